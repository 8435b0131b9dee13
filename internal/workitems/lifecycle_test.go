package workitems

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

type recordingSink struct {
	events []models.Event
}

func (s *recordingSink) Publish(_ context.Context, ev models.Event) {
	s.events = append(s.events, ev)
}

type lifecycleFixture struct {
	service *Service
	store   *db.MemoryStore
	sink    *recordingSink
	now     time.Time
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := db.NewMemoryStore()
	sink := &recordingSink{}
	f := &lifecycleFixture{store: store, sink: sink, now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	f.service = NewService(store, store, store, store, sink).WithClock(func() time.Time { return f.now })
	return f
}

func (f *lifecycleFixture) create(t *testing.T, item models.WorkItem) *models.WorkItem {
	t.Helper()
	if item.VehicleID == "" {
		item.VehicleID = "veh1"
	}
	if item.Title == "" {
		item.Title = "Replace brake pads"
	}
	created, err := f.service.Create(context.Background(), item)
	require.NoError(t, err)
	return created
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	created := f.create(t, models.WorkItem{})
	assert.Equal(t, models.WorkItemPending, created.Status)
	assert.Equal(t, models.WorkTypeOther, created.WorkType)
	assert.Equal(t, models.PriorityNormal, created.Priority)

	_, err := f.service.Create(ctx, models.WorkItem{VehicleID: "veh1", Title: "x", WorkType: "plumbing"})
	assert.ErrorIs(t, err, ErrInvalidWorkType)

	_, err = f.service.Create(ctx, models.WorkItem{VehicleID: "veh1", Title: "x", Priority: 9})
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestCreateIgnoresClientStatus(t *testing.T) {
	f := newLifecycleFixture(t)
	created := f.create(t, models.WorkItem{Status: models.WorkItemCompleted, ApprovalStatus: models.ApprovalApproved})
	assert.Equal(t, models.WorkItemPending, created.Status)
	assert.Empty(t, created.ApprovalStatus)
}

func TestApprovalGate(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{ApprovalRequired: true})
	id := item.ID.Hex()

	assert.Equal(t, models.DisplayAwaitingApproval, item.DeriveDisplayStatus())

	// The gate blocks both start and schedule until a decision lands.
	_, err := f.service.Start(ctx, id, "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.service.Schedule(ctx, id, "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	approved, err := f.service.Approve(ctx, id, "mgr")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemPending, approved.Status)
	assert.Equal(t, models.ApprovalApproved, approved.ApprovalStatus)
	assert.Equal(t, models.DisplayStatus(models.WorkItemPending), approved.DeriveDisplayStatus())

	// Approving twice is not a no-op.
	_, err = f.service.Approve(ctx, id, "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, started.Status)
}

func TestApproveWithoutGateRejected(t *testing.T) {
	f := newLifecycleFixture(t)
	item := f.create(t, models.WorkItem{})
	_, err := f.service.Approve(context.Background(), item.ID.Hex(), "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeclineRequiresReasonAndIsTerminal(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{ApprovalRequired: true})
	id := item.ID.Hex()

	_, err := f.service.Decline(ctx, id, "mgr", "  ")
	assert.ErrorIs(t, err, ErrMissingReason)

	declined, err := f.service.Decline(ctx, id, "mgr", "cost exceeds budget")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemRejected, declined.Status)
	assert.Equal(t, models.ApprovalRejected, declined.ApprovalStatus)
	assert.Equal(t, "cost exceeds budget", declined.StatusReason)
	assert.Equal(t, models.DisplayStatus(models.WorkItemRejected), declined.DeriveDisplayStatus())

	// Rejected permanently blocks work.
	_, err = f.service.Start(ctx, id, "tech")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.service.Approve(ctx, id, "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStartStampsActualStart(t *testing.T) {
	f := newLifecycleFixture(t)
	item := f.create(t, models.WorkItem{})
	started, err := f.service.Start(context.Background(), item.ID.Hex(), "tech")
	require.NoError(t, err)
	require.NotNil(t, started.ActualStart)
	assert.Equal(t, f.now, *started.ActualStart)
}

func TestScheduleThenStart(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()

	scheduled, err := f.service.Schedule(ctx, id, "mgr")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemScheduled, scheduled.Status)

	// Scheduling twice fails rather than silently succeeding.
	_, err = f.service.Schedule(ctx, id, "mgr")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, started.Status)
}

func TestHoldAndBlockFlows(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()
	_, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)

	held, err := f.service.Pause(ctx, id, "tech", "")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemOnHold, held.Status)

	// Blocking only applies to in-progress items.
	_, err = f.service.Block(ctx, id, "tech", "parts on backorder")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resumed, err := f.service.Resume(ctx, id, "tech")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, resumed.Status)

	_, err = f.service.Block(ctx, id, "tech", "")
	assert.ErrorIs(t, err, ErrMissingReason)

	blocked, err := f.service.Block(ctx, id, "tech", "parts on backorder")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemBlocked, blocked.Status)
	assert.Equal(t, "parts on backorder", blocked.StatusReason)

	unblocked, err := f.service.Unblock(ctx, id, "tech")
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, unblocked.Status)
}

func TestCompleteComputesHoursFromActualStart(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()
	_, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	done, err := f.service.Complete(ctx, id, "tech", 350.00, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemCompleted, done.Status)
	assert.Equal(t, 350.00, done.ActualCost)
	assert.Equal(t, 2.0, done.ActualHours)
	require.NotNil(t, done.ActualCompletion)
	assert.Equal(t, f.now, *done.ActualCompletion)
}

func TestCompleteHonorsExplicitHours(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()
	_, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)

	hours := 3.5
	done, err := f.service.Complete(ctx, id, "tech", 0, &hours)
	require.NoError(t, err)
	assert.Equal(t, 3.5, done.ActualHours)
}

func TestCompleteRequiresInProgress(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()

	_, err := f.service.Complete(ctx, id, "tech", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.service.Start(ctx, id, "tech")
	require.NoError(t, err)
	_, err = f.service.Complete(ctx, id, "tech", 0, nil)
	require.NoError(t, err)

	// Completed is terminal.
	_, err = f.service.Start(ctx, id, "tech")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.service.Cancel(ctx, id, "mgr", "duplicate")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	for _, setup := range []func(id string){
		func(string) {},
		func(id string) {
			_, err := f.service.Schedule(ctx, id, "mgr")
			require.NoError(t, err)
		},
		func(id string) {
			_, err := f.service.Start(ctx, id, "tech")
			require.NoError(t, err)
		},
		func(id string) {
			_, err := f.service.Start(ctx, id, "tech")
			require.NoError(t, err)
			_, err = f.service.Block(ctx, id, "tech", "no parts")
			require.NoError(t, err)
		},
	} {
		item := f.create(t, models.WorkItem{})
		id := item.ID.Hex()
		setup(id)

		_, err := f.service.Cancel(ctx, id, "mgr", "")
		assert.ErrorIs(t, err, ErrMissingReason)

		cancelled, err := f.service.Cancel(ctx, id, "mgr", "vehicle wholesaled")
		require.NoError(t, err)
		assert.Equal(t, models.WorkItemCancelled, cancelled.Status)
	}
}

func TestConcurrentTransitionLosesCleanly(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()

	// Simulate a competing writer landing between read and replace.
	stale := *item
	stale.Status = models.WorkItemCancelled
	require.NoError(t, f.store.UpdateWorkItem(ctx, id, stale))

	err := f.service.replace(ctx, id, models.WorkItemPending, *item)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionHistoryRecorded(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{})
	id := item.ID.Hex()

	_, err := f.service.Start(ctx, id, "tech")
	require.NoError(t, err)
	f.now = f.now.Add(time.Hour)
	_, err = f.service.Complete(ctx, id, "tech", 100, nil)
	require.NoError(t, err)

	history, err := f.service.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.WorkItemPending, history[0].From)
	assert.Equal(t, models.WorkItemInProgress, history[0].To)
	assert.Equal(t, "tech", history[0].Actor)
	assert.Equal(t, models.WorkItemCompleted, history[1].To)
}

func TestCreateFromTemplate(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	tplID, err := f.store.InsertTemplate(ctx, models.WorkItemTemplate{
		Name:             "120-point inspection",
		WorkType:         models.WorkTypeSafetyInspection,
		Priority:         models.PriorityHigh,
		EstimatedHours:   2,
		ApprovalRequired: true,
	})
	require.NoError(t, err)

	item, err := f.service.CreateFromTemplate(ctx, tplID, "veh9")
	require.NoError(t, err)
	assert.Equal(t, "veh9", item.VehicleID)
	assert.Equal(t, "120-point inspection", item.Title)
	assert.Equal(t, models.WorkItemPending, item.Status)
	assert.True(t, item.ApprovalRequired)
	assert.Equal(t, models.DisplayAwaitingApproval, item.DeriveDisplayStatus())
}

func TestHasBlockingItems(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	item := f.create(t, models.WorkItem{VehicleID: "veh1"})
	blocking, err := f.service.HasBlockingItems(ctx, "veh1")
	require.NoError(t, err)
	assert.True(t, blocking)

	_, err = f.service.Cancel(ctx, item.ID.Hex(), "mgr", "not needed")
	require.NoError(t, err)
	blocking, err = f.service.HasBlockingItems(ctx, "veh1")
	require.NoError(t, err)
	assert.False(t, blocking)
}

func TestEventsCarryTechnicianAndVendor(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	item := f.create(t, models.WorkItem{TechnicianID: "tech1", VendorID: "vendor1"})

	_, err := f.service.Start(ctx, item.ID.Hex(), "tech")
	require.NoError(t, err)

	require.NotEmpty(t, f.sink.events)
	ev := f.sink.events[len(f.sink.events)-1]
	assert.Equal(t, models.EventWorkItemTransition, ev.Type)
	assert.ElementsMatch(t, []string{"tech1", "vendor1"}, ev.ExtraUserIDs)
}
