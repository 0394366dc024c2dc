package models

import "time"

// WaitlistStatus enumerates waitlist entry states.
type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "WAITING"
	WaitlistStatusNotified  WaitlistStatus = "NOTIFIED"
	WaitlistStatusExpired   WaitlistStatus = "EXPIRED"
	WaitlistStatusConfirmed WaitlistStatus = "CONFIRMED"
)

// Open reports whether the entry still holds a place in line or an offer.
func (s WaitlistStatus) Open() bool {
	return s == WaitlistStatusWaiting || s == WaitlistStatusNotified
}

// WaitlistEntry is a client queued for a full session. Only WAITING entries
// carry a position; notified and expired entries sit at position 0.
type WaitlistEntry struct {
	ID             string         `db:"id" json:"id"`
	StudioID       string         `db:"studio_id" json:"studio_id"`
	ClientID       string         `db:"client_id" json:"client_id"`
	ClassSessionID string         `db:"class_session_id" json:"class_session_id"`
	Position       int            `db:"position" json:"position"`
	Status         WaitlistStatus `db:"status" json:"status"`
	NotifiedAt     *time.Time     `db:"notified_at" json:"notified_at,omitempty"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// OfferOutstanding is true for a NOTIFIED entry whose hold has not lapsed at now.
func (e WaitlistEntry) OfferOutstanding(now time.Time) bool {
	return e.Status == WaitlistStatusNotified && e.ExpiresAt != nil && now.Before(*e.ExpiresAt)
}
