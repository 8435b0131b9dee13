package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

type inboxFixture struct {
	inbox *Inbox
	store *db.MemoryStore
	now   time.Time
}

func newInboxFixture(t *testing.T) *inboxFixture {
	t.Helper()
	store := db.NewMemoryStore()
	f := &inboxFixture{store: store, now: time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)}
	f.inbox = NewInbox(store, store).WithClock(func() time.Time { return f.now })
	return f
}

func (f *inboxFixture) addNotification(t *testing.T, userID string, age time.Duration, read bool) string {
	t.Helper()
	n := models.Notification{
		UserID:    userID,
		Category:  models.CategoryWorkItems,
		Title:     "Work item completed",
		Read:      read,
		CreatedAt: f.now.Add(-age),
	}
	require.NoError(t, f.store.InsertNotification(context.Background(), n))
	list, err := f.store.FindNotificationsByUser(context.Background(), userID, false)
	require.NoError(t, err)
	for _, stored := range list {
		if stored.CreatedAt.Equal(n.CreatedAt) {
			return stored.ID.Hex()
		}
	}
	t.Fatal("inserted notification not found")
	return ""
}

func TestListAndUnreadFilter(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()
	f.addNotification(t, "u1", time.Hour, false)
	readID := f.addNotification(t, "u1", 2*time.Hour, true)
	f.addNotification(t, "u2", time.Hour, false)

	all, err := f.inbox.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	unread, err := f.inbox.List(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.NotEqual(t, readID, unread[0].ID.Hex())
}

func TestMarkReadUpdatesCount(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()
	id := f.addNotification(t, "u1", time.Hour, false)
	f.addNotification(t, "u1", 2*time.Hour, false)

	count, err := f.inbox.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, f.inbox.MarkRead(ctx, id))

	count, err = f.inbox.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, f.inbox.MarkRead(ctx, "000000000000000000000000"), db.ErrNotFound)
}

func TestSweepAppliesRetention(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	// Defaults: read kept 7 days, unread kept 30.
	f.addNotification(t, "u1", 6*24*time.Hour, true)   // read, fresh enough
	f.addNotification(t, "u1", 8*24*time.Hour, true)   // read, expired
	f.addNotification(t, "u1", 29*24*time.Hour, false) // unread, fresh enough
	f.addNotification(t, "u1", 31*24*time.Hour, false) // unread, expired

	list, err := f.inbox.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSweepHonorsCustomRetention(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	pref := models.DefaultPreference("u1")
	pref.ReadRetentionDays = 1
	pref.UnreadRetentionDays = 2
	require.NoError(t, f.store.UpsertPreference(ctx, pref))

	f.addNotification(t, "u1", 36*time.Hour, true)  // past 1 day
	f.addNotification(t, "u1", 36*time.Hour, false) // within 2 days

	list, err := f.inbox.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read)
}

func TestSweepDisabledWithZeroRetention(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	pref := models.DefaultPreference("u1")
	pref.ReadRetentionDays = 0
	pref.UnreadRetentionDays = 0
	require.NoError(t, f.store.UpsertPreference(ctx, pref))

	f.addNotification(t, "u1", 365*24*time.Hour, true)
	f.addNotification(t, "u1", 365*24*time.Hour, false)

	list, err := f.inbox.List(ctx, "u1", false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPreferencesFallBackToDefault(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()

	pref, err := f.inbox.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", pref.UserID)
	assert.True(t, pref.Channels.Email)
	assert.Equal(t, 7, pref.ReadRetentionDays)

	pref.Channels.Email = false
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	require.NoError(t, f.inbox.UpdatePreferences(ctx, *pref))

	saved, err := f.inbox.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, saved.Channels.Email)
	assert.Equal(t, "22:00", saved.QuietHoursStart)
}
