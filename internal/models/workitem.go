package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkItemStatus is the stored lifecycle status of a work item.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemScheduled  WorkItemStatus = "scheduled"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemOnHold     WorkItemStatus = "on_hold"
	WorkItemBlocked    WorkItemStatus = "blocked"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemCancelled  WorkItemStatus = "cancelled"
	WorkItemRejected   WorkItemStatus = "rejected"
)

// DisplayStatus is the status projected for presentation. It adds
// awaiting_approval, which is derived and never stored.
type DisplayStatus string

const DisplayAwaitingApproval DisplayStatus = "awaiting_approval"

// WorkType categorizes a work item.
type WorkType string

const (
	WorkTypeMechanical       WorkType = "mechanical"
	WorkTypeBodyRepair       WorkType = "body_repair"
	WorkTypeDetailing        WorkType = "detailing"
	WorkTypeSafetyInspection WorkType = "safety_inspection"
	WorkTypeReconditioning   WorkType = "reconditioning"
	WorkTypePartsOrdering    WorkType = "parts_ordering"
	WorkTypeOther            WorkType = "other"
)

// Priority of a work item.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
)

// ApprovalStatus is the decision recorded on an approval-gated item.
// Empty means no decision yet.
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// WorkItem is a repair or approval task attached to exactly one vehicle.
// Items are retained indefinitely as history; only an explicit delete
// removes one.
type WorkItem struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID        string             `json:"vehicle_id" bson:"vehicle_id"`
	Title            string             `json:"title" bson:"title"`
	Description      string             `json:"description" bson:"description"`
	WorkType         WorkType           `json:"work_type" bson:"work_type"`
	Priority         Priority           `json:"priority" bson:"priority"`
	EstimatedCost    float64            `json:"estimated_cost" bson:"estimated_cost"`
	ActualCost       float64            `json:"actual_cost" bson:"actual_cost"`
	EstimatedHours   float64            `json:"estimated_hours" bson:"estimated_hours"`
	ActualHours      float64            `json:"actual_hours" bson:"actual_hours"`
	ApprovalRequired bool               `json:"approval_required" bson:"approval_required"`
	ApprovalStatus   ApprovalStatus     `json:"approval_status,omitempty" bson:"approval_status,omitempty"`
	Status           WorkItemStatus     `json:"status" bson:"status"`
	StatusReason     string             `json:"status_reason,omitempty" bson:"status_reason,omitempty"`
	VendorID         string             `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	TechnicianID     string             `json:"technician_id,omitempty" bson:"technician_id,omitempty"`
	ActualStart      *time.Time         `json:"actual_start,omitempty" bson:"actual_start,omitempty"`
	ActualCompletion *time.Time         `json:"actual_completion,omitempty" bson:"actual_completion,omitempty"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// DeriveDisplayStatus projects the status shown to users. Rejected always
// wins; awaiting_approval is computed from the approval gate, never stored.
func (w *WorkItem) DeriveDisplayStatus() DisplayStatus {
	if w.Status == WorkItemRejected {
		return DisplayStatus(WorkItemRejected)
	}
	if w.Status == WorkItemPending && w.ApprovalRequired && w.ApprovalStatus == "" {
		return DisplayAwaitingApproval
	}
	return DisplayStatus(w.Status)
}

// IsTerminal reports whether no further transitions are possible.
func (w *WorkItem) IsTerminal() bool {
	switch w.Status {
	case WorkItemCompleted, WorkItemCancelled, WorkItemRejected:
		return true
	}
	return false
}

// IsValidWorkType checks if a work type is one of the fixed enum values.
func IsValidWorkType(t WorkType) bool {
	switch t {
	case WorkTypeMechanical, WorkTypeBodyRepair, WorkTypeDetailing,
		WorkTypeSafetyInspection, WorkTypeReconditioning,
		WorkTypePartsOrdering, WorkTypeOther:
		return true
	default:
		return false
	}
}

// IsValidPriority checks if a priority is one of the fixed levels.
func IsValidPriority(p Priority) bool {
	return p >= PriorityLow && p <= PriorityHigh
}

// WorkItemTransition is one audit entry in an item's lifecycle history.
type WorkItemTransition struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	WorkItemID string             `json:"work_item_id" bson:"work_item_id"`
	VehicleID  string             `json:"vehicle_id" bson:"vehicle_id"`
	From       WorkItemStatus     `json:"from" bson:"from"`
	To         WorkItemStatus     `json:"to" bson:"to"`
	Actor      string             `json:"actor" bson:"actor"`
	Reason     string             `json:"reason,omitempty" bson:"reason,omitempty"`
	OccurredAt time.Time          `json:"occurred_at" bson:"occurred_at"`
}

// WorkItemTemplate is a reusable blueprint staff instantiate into items.
type WorkItemTemplate struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name             string             `json:"name" bson:"name"`
	Description      string             `json:"description" bson:"description"`
	WorkType         WorkType           `json:"work_type" bson:"work_type"`
	Priority         Priority           `json:"priority" bson:"priority"`
	EstimatedCost    float64            `json:"estimated_cost" bson:"estimated_cost"`
	EstimatedHours   float64            `json:"estimated_hours" bson:"estimated_hours"`
	ApprovalRequired bool               `json:"approval_required" bson:"approval_required"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}

// Instantiate builds a fresh pending work item for a vehicle from the template.
func (t *WorkItemTemplate) Instantiate(vehicleID string) WorkItem {
	return WorkItem{
		VehicleID:        vehicleID,
		Title:            t.Name,
		Description:      t.Description,
		WorkType:         t.WorkType,
		Priority:         t.Priority,
		EstimatedCost:    t.EstimatedCost,
		EstimatedHours:   t.EstimatedHours,
		ApprovalRequired: t.ApprovalRequired,
		Status:           WorkItemPending,
	}
}
