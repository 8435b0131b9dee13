package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDisplayStatus(t *testing.T) {
	tests := []struct {
		name string
		item WorkItem
		want DisplayStatus
	}{
		{
			"pending without gate",
			WorkItem{Status: WorkItemPending},
			DisplayStatus(WorkItemPending),
		},
		{
			"gated pending awaits approval",
			WorkItem{Status: WorkItemPending, ApprovalRequired: true},
			DisplayAwaitingApproval,
		},
		{
			"approved pending shows pending",
			WorkItem{Status: WorkItemPending, ApprovalRequired: true, ApprovalStatus: ApprovalApproved},
			DisplayStatus(WorkItemPending),
		},
		{
			"rejected wins over everything",
			WorkItem{Status: WorkItemRejected, ApprovalRequired: true},
			DisplayStatus(WorkItemRejected),
		},
		{
			"in progress passes through",
			WorkItem{Status: WorkItemInProgress, ApprovalRequired: true, ApprovalStatus: ApprovalApproved},
			DisplayStatus(WorkItemInProgress),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.DeriveDisplayStatus())
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []WorkItemStatus{WorkItemCompleted, WorkItemCancelled, WorkItemRejected}
	for _, status := range terminal {
		item := WorkItem{Status: status}
		assert.True(t, item.IsTerminal(), string(status))
	}
	open := []WorkItemStatus{WorkItemPending, WorkItemScheduled, WorkItemInProgress, WorkItemOnHold, WorkItemBlocked}
	for _, status := range open {
		item := WorkItem{Status: status}
		assert.False(t, item.IsTerminal(), string(status))
	}
}

func TestWorkTypeAndPriorityValidation(t *testing.T) {
	assert.True(t, IsValidWorkType(WorkTypeMechanical))
	assert.True(t, IsValidWorkType(WorkTypeOther))
	assert.False(t, IsValidWorkType("plumbing"))
	assert.False(t, IsValidWorkType(""))

	assert.True(t, IsValidPriority(PriorityLow))
	assert.True(t, IsValidPriority(PriorityHigh))
	assert.False(t, IsValidPriority(0))
	assert.False(t, IsValidPriority(4))
}

func TestTemplateInstantiate(t *testing.T) {
	tpl := WorkItemTemplate{
		Name:             "Full detail",
		Description:      "Interior and exterior detail",
		WorkType:         WorkTypeDetailing,
		Priority:         PriorityLow,
		EstimatedCost:    180,
		EstimatedHours:   3,
		ApprovalRequired: true,
	}
	item := tpl.Instantiate("veh1")
	assert.Equal(t, "veh1", item.VehicleID)
	assert.Equal(t, "Full detail", item.Title)
	assert.Equal(t, WorkTypeDetailing, item.WorkType)
	assert.Equal(t, WorkItemPending, item.Status)
	assert.True(t, item.ApprovalRequired)
	assert.Zero(t, item.ActualCost)
}
