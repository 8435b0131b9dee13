package workitems

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

var (
	// ErrInvalidTransition means the precondition on the current status
	// was not met. Transitions are never silent no-ops: repeating one
	// fails with this error.
	ErrInvalidTransition = errors.New("invalid work item transition")
	// ErrMissingReason means a mandatory justification was blank.
	ErrMissingReason = errors.New("reason is required")
	// ErrInvalidWorkType means the work type is not one of the fixed enum.
	ErrInvalidWorkType = errors.New("invalid work type")
	// ErrInvalidPriority means the priority is outside low..high.
	ErrInvalidPriority = errors.New("invalid priority")
)

// EventSink receives lifecycle events for the notification dispatcher.
type EventSink interface {
	Publish(ctx context.Context, ev models.Event)
}

// Service drives the work item lifecycle. Every mutating verb re-validates
// against the stored status and persists with a conditional replace, so a
// concurrent transition on the same item loses cleanly with
// ErrInvalidTransition instead of corrupting state.
type Service struct {
	items       db.WorkItemCollection
	transitions db.TransitionCollection
	templates   db.TemplateCollection
	states      db.StepStateCollection
	events      EventSink
	now         func() time.Time
}

// NewService creates a work item lifecycle service. events may be nil.
func NewService(items db.WorkItemCollection, transitions db.TransitionCollection, templates db.TemplateCollection, states db.StepStateCollection, events EventSink) *Service {
	return &Service{
		items:       items,
		transitions: transitions,
		templates:   templates,
		states:      states,
		events:      events,
		now:         time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates and stores a new pending work item.
func (s *Service) Create(ctx context.Context, item models.WorkItem) (*models.WorkItem, error) {
	if item.WorkType == "" {
		item.WorkType = models.WorkTypeOther
	}
	if !models.IsValidWorkType(item.WorkType) {
		return nil, ErrInvalidWorkType
	}
	if item.Priority == 0 {
		item.Priority = models.PriorityNormal
	}
	if !models.IsValidPriority(item.Priority) {
		return nil, ErrInvalidPriority
	}
	item.Status = models.WorkItemPending
	item.ApprovalStatus = ""
	item.ActualStart = nil
	item.ActualCompletion = nil

	id, err := s.items.InsertWorkItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	created, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"work_item_id": id,
		"vehicle_id":   item.VehicleID,
		"work_type":    item.WorkType,
	}).Info("Created work item")
	return created, nil
}

// CreateFromTemplate instantiates a template into a pending item for a vehicle.
func (s *Service) CreateFromTemplate(ctx context.Context, templateID, vehicleID string) (*models.WorkItem, error) {
	tpl, err := s.templates.FindTemplateByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, tpl.Instantiate(vehicleID))
}

// Get returns a work item.
func (s *Service) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	return s.items.FindWorkItemByID(ctx, id)
}

// ListByVehicle returns all work items attached to a vehicle.
func (s *Service) ListByVehicle(ctx context.Context, vehicleID string) ([]models.WorkItem, error) {
	return s.items.FindWorkItemsByVehicle(ctx, vehicleID)
}

// History returns an item's transition audit trail.
func (s *Service) History(ctx context.Context, id string) ([]models.WorkItemTransition, error) {
	return s.transitions.FindTransitionsByWorkItem(ctx, id)
}

// Update edits descriptive fields of an item. Status never changes here;
// lifecycle moves only through the transition verbs.
func (s *Service) Update(ctx context.Context, id string, edit models.WorkItem) (*models.WorkItem, error) {
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if edit.WorkType != "" {
		if !models.IsValidWorkType(edit.WorkType) {
			return nil, ErrInvalidWorkType
		}
		item.WorkType = edit.WorkType
	}
	if edit.Priority != 0 {
		if !models.IsValidPriority(edit.Priority) {
			return nil, ErrInvalidPriority
		}
		item.Priority = edit.Priority
	}
	if edit.Title != "" {
		item.Title = edit.Title
	}
	if edit.Description != "" {
		item.Description = edit.Description
	}
	if edit.EstimatedCost != 0 {
		item.EstimatedCost = edit.EstimatedCost
	}
	if edit.EstimatedHours != 0 {
		item.EstimatedHours = edit.EstimatedHours
	}
	if edit.VendorID != "" {
		item.VendorID = edit.VendorID
	}
	if edit.TechnicianID != "" {
		item.TechnicianID = edit.TechnicianID
	}
	if err := s.items.UpdateWorkItem(ctx, id, *item); err != nil {
		return nil, err
	}
	return item, nil
}

// Approve lifts the work-to-start gate on an approval-gated pending item.
// The stored status stays pending; there is no separate "approved" status.
func (s *Service) Approve(ctx context.Context, id, actor string) (*models.WorkItem, error) {
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.WorkItemPending || !item.ApprovalRequired || item.ApprovalStatus != "" {
		return nil, ErrInvalidTransition
	}
	updated := *item
	updated.ApprovalStatus = models.ApprovalApproved
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, "")
	s.publish(ctx, &updated, models.CategoryApprovals, "Work item approved",
		fmt.Sprintf("%s was approved", updated.Title))
	return &updated, nil
}

// Decline rejects an approval-gated item. The reason is mandatory; rejected
// is terminal and permanently blocks Start.
func (s *Service) Decline(ctx context.Context, id, actor, reason string) (*models.WorkItem, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrMissingReason
	}
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.WorkItemPending {
		return nil, ErrInvalidTransition
	}
	updated := *item
	updated.Status = models.WorkItemRejected
	updated.ApprovalStatus = models.ApprovalRejected
	updated.StatusReason = reason
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, reason)
	s.publish(ctx, &updated, models.CategoryApprovals, "Work item declined",
		fmt.Sprintf("%s was declined: %s", updated.Title, reason))
	return &updated, nil
}

// Schedule books a pending item for later execution.
func (s *Service) Schedule(ctx context.Context, id, actor string) (*models.WorkItem, error) {
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.WorkItemPending || !approvalCleared(item) {
		return nil, ErrInvalidTransition
	}
	updated := *item
	updated.Status = models.WorkItemScheduled
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, "")
	s.publish(ctx, &updated, models.CategoryWorkItems, "Work item scheduled",
		fmt.Sprintf("%s was scheduled", updated.Title))
	return &updated, nil
}

// Start begins work on a pending or scheduled item and stamps actual_start.
// An unresolved approval gate blocks the start.
func (s *Service) Start(ctx context.Context, id, actor string) (*models.WorkItem, error) {
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.WorkItemPending && item.Status != models.WorkItemScheduled {
		return nil, ErrInvalidTransition
	}
	if !approvalCleared(item) {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	updated := *item
	updated.Status = models.WorkItemInProgress
	updated.ActualStart = &now
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, "")
	s.publish(ctx, &updated, models.CategoryWorkItems, "Work item started",
		fmt.Sprintf("Work started on %s", updated.Title))
	return &updated, nil
}

// Pause puts an in-progress item on hold. The reason is optional.
func (s *Service) Pause(ctx context.Context, id, actor, reason string) (*models.WorkItem, error) {
	return s.simpleTransition(ctx, id, actor, reason, false,
		models.WorkItemInProgress, models.WorkItemOnHold, "Work item on hold")
}

// Resume returns an on-hold item to in progress.
func (s *Service) Resume(ctx context.Context, id, actor string) (*models.WorkItem, error) {
	return s.simpleTransition(ctx, id, actor, "", false,
		models.WorkItemOnHold, models.WorkItemInProgress, "Work item resumed")
}

// Block marks an in-progress item blocked. The reason is mandatory.
func (s *Service) Block(ctx context.Context, id, actor, reason string) (*models.WorkItem, error) {
	return s.simpleTransition(ctx, id, actor, reason, true,
		models.WorkItemInProgress, models.WorkItemBlocked, "Work item blocked")
}

// Unblock returns a blocked item to in progress.
func (s *Service) Unblock(ctx context.Context, id, actor string) (*models.WorkItem, error) {
	return s.simpleTransition(ctx, id, actor, "", false,
		models.WorkItemBlocked, models.WorkItemInProgress, "Work item unblocked")
}

// Complete finishes an in-progress item. When actualHours is nil and the
// item has an actual start, hours are computed from the elapsed time,
// rounded to two decimals.
func (s *Service) Complete(ctx context.Context, id, actor string, actualCost float64, actualHours *float64) (*models.WorkItem, error) {
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.WorkItemInProgress {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	updated := *item
	updated.Status = models.WorkItemCompleted
	updated.ActualCost = actualCost
	updated.ActualCompletion = &now
	switch {
	case actualHours != nil:
		updated.ActualHours = *actualHours
	case item.ActualStart != nil:
		updated.ActualHours = math.Round(now.Sub(*item.ActualStart).Hours()*100) / 100
	}
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, "")
	s.publish(ctx, &updated, models.CategoryWorkItems, "Work item completed",
		fmt.Sprintf("%s completed (%.2fh, $%.2f)", updated.Title, updated.ActualHours, updated.ActualCost))
	return &updated, nil
}

// Cancel abandons an item from any non-terminal state. The reason is
// mandatory.
func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (*models.WorkItem, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrMissingReason
	}
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsTerminal() {
		return nil, ErrInvalidTransition
	}
	updated := *item
	updated.Status = models.WorkItemCancelled
	updated.StatusReason = reason
	if err := s.replace(ctx, id, item.Status, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, item.Status, updated.Status, actor, reason)
	s.publish(ctx, &updated, models.CategoryWorkItems, "Work item cancelled",
		fmt.Sprintf("%s was cancelled: %s", updated.Title, reason))
	return &updated, nil
}

// Delete removes an item irreversibly, from any state. The confirmation
// belongs to the call boundary, not here.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.items.DeleteWorkItem(ctx, id); err != nil {
		return err
	}
	log.WithField("work_item_id", id).Info("Deleted work item")
	return nil
}

// HasBlockingItems reports whether a vehicle still has open work items that
// keep its current step from being considered clear.
func (s *Service) HasBlockingItems(ctx context.Context, vehicleID string) (bool, error) {
	items, err := s.items.FindWorkItemsByVehicle(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if !item.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

// approvalCleared reports whether the approval gate allows work to start.
func approvalCleared(item *models.WorkItem) bool {
	if !item.ApprovalRequired {
		return true
	}
	return item.ApprovalStatus == models.ApprovalApproved
}

// simpleTransition handles the single-precondition verbs.
func (s *Service) simpleTransition(ctx context.Context, id, actor, reason string, reasonRequired bool, from, to models.WorkItemStatus, title string) (*models.WorkItem, error) {
	if reasonRequired && strings.TrimSpace(reason) == "" {
		return nil, ErrMissingReason
	}
	item, err := s.items.FindWorkItemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != from {
		return nil, ErrInvalidTransition
	}
	updated := *item
	updated.Status = to
	updated.StatusReason = reason
	if err := s.replace(ctx, id, from, updated); err != nil {
		return nil, err
	}
	s.record(ctx, &updated, from, to, actor, reason)
	msg := updated.Title
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", updated.Title, reason)
	}
	s.publish(ctx, &updated, models.CategoryWorkItems, title, msg)
	return &updated, nil
}

// replace persists the transition conditionally on the validated status.
// A lost race surfaces as ErrInvalidTransition: last write wins, with
// validation.
func (s *Service) replace(ctx context.Context, id string, expected models.WorkItemStatus, item models.WorkItem) error {
	err := s.items.ReplaceWorkItem(ctx, id, expected, item)
	if errors.Is(err, db.ErrStaleStatus) {
		return ErrInvalidTransition
	}
	return err
}

// record appends the audit entry. Audit failures are logged, not fatal;
// the transition itself already committed.
func (s *Service) record(ctx context.Context, item *models.WorkItem, from, to models.WorkItemStatus, actor, reason string) {
	tr := models.WorkItemTransition{
		WorkItemID: item.ID.Hex(),
		VehicleID:  item.VehicleID,
		From:       from,
		To:         to,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: s.now(),
	}
	if err := s.transitions.InsertTransition(ctx, tr); err != nil {
		log.WithError(err).WithField("work_item_id", item.ID.Hex()).Error("Failed to record transition")
	}
}

// publish raises the lifecycle event, targeting the vehicle's current step
// assignees plus the item's technician and vendor contact.
func (s *Service) publish(ctx context.Context, item *models.WorkItem, cat models.NotificationCategory, title, message string) {
	if s.events == nil {
		return
	}
	ev := models.Event{
		Type:       models.EventWorkItemTransition,
		Category:   cat,
		VehicleID:  item.VehicleID,
		WorkItemID: item.ID.Hex(),
		Title:      title,
		Message:    message,
		OccurredAt: s.now(),
	}
	if item.TechnicianID != "" {
		ev.ExtraUserIDs = append(ev.ExtraUserIDs, item.TechnicianID)
	}
	if item.VendorID != "" {
		ev.ExtraUserIDs = append(ev.ExtraUserIDs, item.VendorID)
	}
	if s.states != nil {
		if state, err := s.states.FindOpenByVehicle(ctx, item.VehicleID); err == nil {
			ev.StepID = state.StepID
		}
	}
	s.events.Publish(ctx, ev)
}
