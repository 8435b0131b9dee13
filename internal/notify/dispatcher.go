package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

// Channel delivers a notification to one user over one transport. Channels
// are independent: one failing must not block the others.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev models.Event, user models.User) error
}

// Dispatcher fans domain events out to users. For each event it resolves
// the target set (step assignees plus the event's extra users), applies the
// user's category and quiet-hours preferences, records the in-app
// notification unconditionally, and delivers on every other enabled channel.
type Dispatcher struct {
	prefs         db.PreferenceCollection
	assignments   db.AssignmentCollection
	users         db.UserCollection
	notifications db.NotificationCollection
	channels      []Channel
	now           func() time.Time
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(prefs db.PreferenceCollection, assignments db.AssignmentCollection, users db.UserCollection, notifications db.NotificationCollection, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		prefs:         prefs,
		assignments:   assignments,
		users:         users,
		notifications: notifications,
		channels:      channels,
		now:           time.Now,
	}
}

// WithClock overrides the dispatcher clock. Tests only.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Publish implements the EventSink taken by the engine services. Dispatch
// failures are logged, never propagated into the producing operation.
func (d *Dispatcher) Publish(ctx context.Context, ev models.Event) {
	if err := d.Dispatch(ctx, ev); err != nil {
		log.WithError(err).WithField("event_type", ev.Type).Error("Failed to dispatch event")
	}
}

// Dispatch resolves targets and fans the event out. Only the authoritative
// in-app recording can fail the dispatch for a user; transport channels log
// and carry on.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) error {
	userIDs, err := d.resolveTargets(ctx, ev)
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	users, err := d.users.FindUsersByIDs(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("resolve users: %w", err)
	}

	var firstErr error
	for _, user := range users {
		if !user.IsActive {
			continue
		}
		if err := d.dispatchToUser(ctx, ev, user); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Dispatcher) dispatchToUser(ctx context.Context, ev models.Event, user models.User) error {
	pref, err := d.preference(ctx, user.ID.Hex())
	if err != nil {
		return err
	}
	if !pref.CategoryEnabled(ev.Category) {
		return nil
	}

	// In-app is always recorded so the unread badge stays consistent,
	// regardless of channel toggles and quiet hours.
	notification := models.Notification{
		UserID:       user.ID.Hex(),
		Category:     ev.Category,
		Severity:     ev.Severity,
		Title:        ev.Title,
		Message:      ev.Message,
		ResourceType: resourceType(ev),
		ResourceID:   resourceID(ev),
		CreatedAt:    d.now(),
	}
	if err := d.notifications.InsertNotification(ctx, notification); err != nil {
		return fmt.Errorf("record in-app notification: %w", err)
	}

	if pref.InQuietHours(d.now()) {
		log.WithFields(log.Fields{"user_id": user.ID.Hex(), "event_type": ev.Type}).
			Debug("Quiet hours, suppressing transport channels")
		return nil
	}

	for _, ch := range d.channels {
		if !channelEnabled(pref, ch.Name()) {
			continue
		}
		if err := ch.Deliver(ctx, ev, user); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"channel": ch.Name(),
				"user_id": user.ID.Hex(),
			}).Error("Channel delivery failed")
		}
	}
	return nil
}

// resolveTargets unions the step's assignees with the event's extra users.
func (d *Dispatcher) resolveTargets(ctx context.Context, ev models.Event) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	if ev.StepID != "" {
		assignments, err := d.assignments.FindAssignmentsByStep(ctx, ev.StepID)
		if err != nil {
			return nil, fmt.Errorf("resolve step assignees: %w", err)
		}
		for _, a := range assignments {
			for _, id := range a.UserIDs {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	for _, id := range ev.ExtraUserIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (d *Dispatcher) preference(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	pref, err := d.prefs.FindPreferenceByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			def := models.DefaultPreference(userID)
			return &def, nil
		}
		return nil, fmt.Errorf("load preference: %w", err)
	}
	return pref, nil
}

func channelEnabled(pref *models.NotificationPreference, name string) bool {
	switch name {
	case ChannelEmail:
		return pref.Channels.Email
	case ChannelSound:
		return pref.Channels.Sound
	case ChannelDesktop:
		return pref.Channels.Desktop
	default:
		return false
	}
}

func resourceType(ev models.Event) string {
	switch ev.Type {
	case models.EventWorkItemTransition:
		return "work_item"
	case models.EventBottleneckAlert:
		return "step"
	case models.EventStepEntry:
		return "vehicle"
	}
	return ""
}

func resourceID(ev models.Event) string {
	switch ev.Type {
	case models.EventWorkItemTransition:
		return ev.WorkItemID
	case models.EventBottleneckAlert:
		return ev.StepID
	case models.EventStepEntry:
		return ev.VehicleID
	}
	return ""
}

// EventFromAlert turns a bottleneck alert into a dispatchable event.
// Critical dwell findings escalate to the sla_critical category so users
// who muted routine bottleneck chatter still hear about them.
func EventFromAlert(alert models.BottleneckAlert) models.Event {
	category := models.CategoryBottlenecks
	if alert.Metric == models.MetricDwellTime {
		category = models.CategorySLAWarning
		if alert.Severity == models.SeverityCritical {
			category = models.CategorySLACritical
		}
	}
	return models.Event{
		Type:       models.EventBottleneckAlert,
		Category:   category,
		Severity:   alert.Severity,
		StepID:     alert.StepID,
		Title:      fmt.Sprintf("Bottleneck: %s", alert.StepName),
		Message:    alert.Message,
		OccurredAt: alert.ComputedAt,
	}
}
