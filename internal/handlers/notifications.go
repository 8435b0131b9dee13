package handlers

import (
	"net/http"

	"github.com/ukydev/vehicle-recon/internal/middleware"
	"github.com/ukydev/vehicle-recon/internal/models"
	"github.com/ukydev/vehicle-recon/internal/notify"
)

// NotificationHandler exposes a user's in-app inbox and preferences.
type NotificationHandler struct {
	inbox *notify.Inbox
}

// NewNotificationHandler creates a notification handler.
func NewNotificationHandler(inbox *notify.Inbox) *NotificationHandler {
	return &NotificationHandler{inbox: inbox}
}

// currentUserID resolves the authenticated user id from the request context.
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok || claims.UserID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return claims.UserID, true
}

// List returns the current user's notifications. ?unread=true filters to
// unread ones only.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	notifications, err := h.inbox.List(r.Context(), userID, unreadOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// MarkRead flags one notification as read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}
	if err := h.inbox.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked read"})
}

// UnreadCount returns the badge count for the current user.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	count, err := h.inbox.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// GetPreferences returns the current user's notification preference.
func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	pref, err := h.inbox.Preferences(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// UpdatePreferences saves the current user's notification preference. The
// user id always comes from the token, never the body.
func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}
	var pref models.NotificationPreference
	if !decodeBody(w, r, &pref) {
		return
	}
	pref.UserID = userID
	if err := h.inbox.UpdatePreferences(r.Context(), pref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}
