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

// Inbox is the read side of in-app notifications: listing, read marks,
// unread counts and the auto-dismiss sweep.
type Inbox struct {
	notifications db.NotificationCollection
	prefs         db.PreferenceCollection
	now           func() time.Time
}

// NewInbox creates a notification inbox.
func NewInbox(notifications db.NotificationCollection, prefs db.PreferenceCollection) *Inbox {
	return &Inbox{notifications: notifications, prefs: prefs, now: time.Now}
}

// WithClock overrides the inbox clock. Tests only.
func (i *Inbox) WithClock(now func() time.Time) *Inbox {
	i.now = now
	return i
}

// List returns a user's notifications after sweeping expired ones.
func (i *Inbox) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	if err := i.Sweep(ctx, userID); err != nil {
		log.WithError(err).WithField("user_id", userID).Error("Auto-dismiss sweep failed")
	}
	return i.notifications.FindNotificationsByUser(ctx, userID, unreadOnly)
}

// MarkRead flags one notification as read.
func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	return i.notifications.MarkNotificationRead(ctx, id, i.now())
}

// UnreadCount returns the badge count for a user.
func (i *Inbox) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return i.notifications.CountUnread(ctx, userID)
}

// Sweep applies the user's auto-dismiss retention: read notifications past
// the read retention and unread ones past the unread retention are removed.
func (i *Inbox) Sweep(ctx context.Context, userID string) error {
	pref, err := i.prefs.FindPreferenceByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			def := models.DefaultPreference(userID)
			pref = &def
		} else {
			return fmt.Errorf("load preference: %w", err)
		}
	}
	now := i.now()
	if pref.ReadRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -pref.ReadRetentionDays)
		if _, err := i.notifications.DeleteReadBefore(ctx, userID, cutoff); err != nil {
			return fmt.Errorf("sweep read: %w", err)
		}
	}
	if pref.UnreadRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -pref.UnreadRetentionDays)
		if _, err := i.notifications.DeleteUnreadBefore(ctx, userID, cutoff); err != nil {
			return fmt.Errorf("sweep unread: %w", err)
		}
	}
	return nil
}

// Preferences returns a user's notification preference, falling back to the
// default when none was saved.
func (i *Inbox) Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	pref, err := i.prefs.FindPreferenceByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			def := models.DefaultPreference(userID)
			return &def, nil
		}
		return nil, err
	}
	return pref, nil
}

// UpdatePreferences saves a user's notification preference.
func (i *Inbox) UpdatePreferences(ctx context.Context, pref models.NotificationPreference) error {
	return i.prefs.UpsertPreference(ctx, pref)
}
