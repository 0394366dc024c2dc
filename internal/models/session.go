package models

import "time"

// ClassSession is one scheduled occurrence of a class.
type ClassSession struct {
	ID               string     `db:"id" json:"id"`
	StudioID         string     `db:"studio_id" json:"studio_id"`
	ClassTypeID      string     `db:"class_type_id" json:"class_type_id"`
	TeacherID        string     `db:"teacher_id" json:"teacher_id"`
	LocationID       string     `db:"location_id" json:"location_id"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          time.Time  `db:"end_time" json:"end_time"`
	Capacity         int        `db:"capacity" json:"capacity"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	RecurringGroupID *string    `db:"recurring_group_id" json:"recurring_group_id,omitempty"`
	CancelledAt      *time.Time `db:"cancelled_at" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Duration returns the scheduled length of the session.
func (s ClassSession) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Overlaps applies half-open interval comparison against [start, end).
func (s ClassSession) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	StudioID         string
	From             *time.Time
	To               *time.Time
	TeacherID        string
	LocationID       string
	ClassTypeID      string
	RecurringGroupID string
	Page             int
	PageSize         int
}

// SessionDetail augments a session with its current occupancy.
type SessionDetail struct {
	ClassSession
	ActiveBookings int `json:"active_bookings"`
	WaitlistLength int `json:"waitlist_length"`
	SeatsAvailable int `json:"seats_available"`
}

// ConflictDimension names the resource that collides.
type ConflictDimension string

const (
	ConflictTeacher     ConflictDimension = "TEACHER"
	ConflictLocation    ConflictDimension = "LOCATION"
	ConflictBlockedTime ConflictDimension = "BLOCKED_TIME"
)

// SessionConflict describes an existing session or blocked interval that collides with a proposal.
type SessionConflict struct {
	SessionID string            `json:"session_id,omitempty"`
	Dimension ConflictDimension `json:"dimension"`
	TeacherID string            `json:"teacher_id,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
}

// SessionConflictError is returned when a session collides with the existing schedule.
type SessionConflictError struct {
	Message   string            `json:"message"`
	Conflicts []SessionConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// BlockedTime is a teacher unavailability window owned by availability management.
type BlockedTime struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
}
