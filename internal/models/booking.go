package models

import "time"

// BookingStatus enumerates the booking lifecycle.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

// Terminal reports whether no further transition is allowed.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted || s == BookingStatusNoShow
}

// Booking is a client's claim on a seat in a session.
type Booking struct {
	ID                 string        `db:"id" json:"id"`
	StudioID           string        `db:"studio_id" json:"studio_id"`
	ClientID           string        `db:"client_id" json:"client_id"`
	ClassSessionID     string        `db:"class_session_id" json:"class_session_id"`
	Status             BookingStatus `db:"status" json:"status"`
	PaidAmount         *float64      `db:"paid_amount" json:"paid_amount,omitempty"`
	PaymentID          *string       `db:"payment_id" json:"payment_id,omitempty"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Notes              *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingFilter narrows client booking history.
type BookingFilter struct {
	ClientID string
	Status   BookingStatus
	Page     int
	PageSize int
}
