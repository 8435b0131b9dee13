package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType names the domain events the dispatcher consumes.
type EventType string

const (
	EventWorkItemTransition EventType = "work_item_transition"
	EventBottleneckAlert    EventType = "bottleneck_alert"
	EventStepEntry          EventType = "step_entry"
)

// NotificationCategory is the per-user toggle an event is filtered against.
type NotificationCategory string

const (
	CategorySLAWarning     NotificationCategory = "sla_warning"
	CategorySLACritical    NotificationCategory = "sla_critical"
	CategoryApprovals      NotificationCategory = "approvals"
	CategoryBottlenecks    NotificationCategory = "bottlenecks"
	CategoryVehicleStatus  NotificationCategory = "vehicle_status"
	CategoryWorkItems      NotificationCategory = "work_items"
	CategoryStepCompletion NotificationCategory = "step_completion"
	CategorySystem         NotificationCategory = "system"
)

// Event is a domain event flowing into the notification dispatcher.
// ExtraUserIDs carries targets known only to the producer (the item's
// technician or vendor contact); the dispatcher unions them with the
// step's assignees.
type Event struct {
	Type         EventType            `json:"type"`
	Category     NotificationCategory `json:"category"`
	Severity     AlertSeverity        `json:"severity,omitempty"`
	StepID       string               `json:"step_id,omitempty"`
	VehicleID    string               `json:"vehicle_id,omitempty"`
	WorkItemID   string               `json:"work_item_id,omitempty"`
	ExtraUserIDs []string             `json:"extra_user_ids,omitempty"`
	Title        string               `json:"title"`
	Message      string               `json:"message"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

// Notification is a persisted in-app notification. In-app records are the
// authoritative source for unread counts.
type Notification struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID       string               `bson:"user_id" json:"user_id"`
	Category     NotificationCategory `bson:"category" json:"category"`
	Severity     AlertSeverity        `bson:"severity,omitempty" json:"severity,omitempty"`
	Title        string               `bson:"title" json:"title"`
	Message      string               `bson:"message" json:"message"`
	ResourceType string               `bson:"resource_type,omitempty" json:"resource_type,omitempty"`
	ResourceID   string               `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	Read         bool                 `bson:"read" json:"read"`
	ReadAt       *time.Time           `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt    time.Time            `bson:"created_at" json:"created_at"`
}

// ChannelToggles enables or disables each delivery channel for a user.
type ChannelToggles struct {
	InApp   bool `bson:"in_app" json:"in_app"`
	Email   bool `bson:"email" json:"email"`
	Sound   bool `bson:"sound" json:"sound"`
	Desktop bool `bson:"desktop" json:"desktop"`
}

// NotificationPreference is the per-user notification configuration.
// Categories missing from the map default to enabled.
type NotificationPreference struct {
	ID                  primitive.ObjectID            `bson:"_id,omitempty" json:"id"`
	UserID              string                        `bson:"user_id" json:"user_id"`
	Categories          map[NotificationCategory]bool `bson:"categories" json:"categories"`
	Channels            ChannelToggles                `bson:"channels" json:"channels"`
	QuietHoursStart     string                        `bson:"quiet_hours_start" json:"quiet_hours_start"` // "HH:MM", empty disables
	QuietHoursEnd       string                        `bson:"quiet_hours_end" json:"quiet_hours_end"`
	Timezone            string                        `bson:"timezone,omitempty" json:"timezone,omitempty"` // IANA name, empty means server local
	ReadRetentionDays   int                           `bson:"read_retention_days" json:"read_retention_days"`
	UnreadRetentionDays int                           `bson:"unread_retention_days" json:"unread_retention_days"`
	UpdatedAt           time.Time                     `bson:"updated_at" json:"updated_at"`
}

// DefaultPreference returns the configuration used for users who never
// saved one: every category on, every channel on, no quiet hours.
func DefaultPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:              userID,
		Categories:          map[NotificationCategory]bool{},
		Channels:            ChannelToggles{InApp: true, Email: true, Sound: true, Desktop: true},
		ReadRetentionDays:   7,
		UnreadRetentionDays: 30,
	}
}

// CategoryEnabled reports whether the user receives the given category.
func (p *NotificationPreference) CategoryEnabled(cat NotificationCategory) bool {
	enabled, ok := p.Categories[cat]
	if !ok {
		return true
	}
	return enabled
}

// InQuietHours reports whether t falls inside the user's quiet-hours window.
// The window is evaluated on the wall clock of the user's configured
// timezone; an empty or unknown timezone falls back to t's own location.
// A window whose start is after its end wraps midnight and is treated as two
// half-open intervals: [start, 24:00) and [00:00, end).
func (p *NotificationPreference) InQuietHours(t time.Time) bool {
	start, err := parseClock(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(p.QuietHoursEnd)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			t = t.In(loc)
		}
	}
	minute := t.Hour()*60 + t.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*60 + m, nil
}
