package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/vehicle-recon/internal/models"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic version check fails,
// e.g. two concurrent step reorders racing each other.
var ErrVersionConflict = errors.New("version conflict")

// ErrStaleStatus is returned when a conditional work-item replace finds the
// stored status no longer matches the status the caller validated against.
var ErrStaleStatus = errors.New("stale status")

// StepCollection defines the interface for pipeline step operations.
// ReplaceOrdinals must apply the full 1..N ordinal assignment as one unit
// guarded by the registry version; a partial sequence must never become
// visible.
type StepCollection interface {
	InsertStep(ctx context.Context, step models.Step) (string, error)
	FindSteps(ctx context.Context) ([]models.Step, error)
	FindStepByID(ctx context.Context, id string) (*models.Step, error)
	UpdateStep(ctx context.Context, id string, step models.Step) error
	DeleteStep(ctx context.Context, id string) error
	RegistryVersion(ctx context.Context) (int64, error)
	ReplaceOrdinals(ctx context.Context, expectedVersion int64, orderedIDs []string) error
}

// AssignmentCollection defines the interface for step assignment operations.
// Assignments are replaced wholesale per step and role.
type AssignmentCollection interface {
	ReplaceForStep(ctx context.Context, stepID, role string, userIDs []string) error
	FindAssignmentsByStep(ctx context.Context, stepID string) ([]models.StepAssignment, error)
	DeleteAssignmentsForStep(ctx context.Context, stepID string) error
}

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) (string, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehicles(ctx context.Context) ([]models.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, vehicle models.Vehicle) error
	DeleteVehicle(ctx context.Context, id string) error
}

// StepStateCollection defines the interface for vehicle step-state
// operations. At most one open state (LeftStepAt nil) exists per vehicle.
type StepStateCollection interface {
	InsertState(ctx context.Context, state models.VehicleStepState) error
	FindOpenByVehicle(ctx context.Context, vehicleID string) (*models.VehicleStepState, error)
	FindOpenByStep(ctx context.Context, stepID string) ([]models.VehicleStepState, error)
	FindOpenStates(ctx context.Context) ([]models.VehicleStepState, error)
	CountOpenByStep(ctx context.Context, stepID string) (int64, error)
	CloseState(ctx context.Context, id string, leftAt time.Time, frozenDays int) error
	CountDepartures(ctx context.Context, stepID string, since time.Time) (int64, error)
	FindHistoryByVehicle(ctx context.Context, vehicleID string) ([]models.VehicleStepState, error)
}

// WorkItemCollection defines the interface for work item persistence.
// ReplaceWorkItem is conditional on the status the caller validated the
// transition against; a concurrent transition makes it fail with
// ErrStaleStatus instead of overwriting.
type WorkItemCollection interface {
	InsertWorkItem(ctx context.Context, item models.WorkItem) (string, error)
	FindWorkItemByID(ctx context.Context, id string) (*models.WorkItem, error)
	FindWorkItemsByVehicle(ctx context.Context, vehicleID string) ([]models.WorkItem, error)
	ReplaceWorkItem(ctx context.Context, id string, expected models.WorkItemStatus, item models.WorkItem) error
	UpdateWorkItem(ctx context.Context, id string, item models.WorkItem) error
	DeleteWorkItem(ctx context.Context, id string) error
}

// TransitionCollection persists the append-only work-item transition history.
type TransitionCollection interface {
	InsertTransition(ctx context.Context, tr models.WorkItemTransition) error
	FindTransitionsByWorkItem(ctx context.Context, workItemID string) ([]models.WorkItemTransition, error)
}

// TemplateCollection defines the interface for work item templates.
type TemplateCollection interface {
	InsertTemplate(ctx context.Context, tpl models.WorkItemTemplate) (string, error)
	FindTemplates(ctx context.Context) ([]models.WorkItemTemplate, error)
	FindTemplateByID(ctx context.Context, id string) (*models.WorkItemTemplate, error)
}

// NotificationCollection persists in-app notifications, the authoritative
// record for unread counts.
type NotificationCollection interface {
	InsertNotification(ctx context.Context, n models.Notification) error
	FindNotificationsByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
	CountUnread(ctx context.Context, userID string) (int64, error)
	DeleteReadBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	DeleteUnreadBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
}

// PreferenceCollection persists per-user notification preferences.
type PreferenceCollection interface {
	FindPreferenceByUser(ctx context.Context, userID string) (*models.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref models.NotificationPreference) error
}
