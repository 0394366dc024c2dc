package models

import "time"

// NotificationType identifies the event handed to the delivery service.
type NotificationType string

const (
	NotificationSessionCancelled NotificationType = "session.cancelled"
	NotificationWaitlistPromoted NotificationType = "waitlist.promoted"
)

// Notification is a "client X, session Y, reason Z" event.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	StudioID  string           `json:"studio_id"`
	ClientID  string           `json:"client_id"`
	SessionID string           `json:"session_id"`
	EntryID   string           `json:"waitlist_entry_id,omitempty"`
	Reason    string           `json:"reason"`
	StartTime time.Time        `json:"session_start_time"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
