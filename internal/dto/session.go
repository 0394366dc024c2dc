package dto

import "time"

// CreateSessionRequest schedules a single session.
type CreateSessionRequest struct {
	StudioID         string    `json:"-" validate:"required"`
	ClassTypeID      string    `json:"classTypeId" validate:"required"`
	TeacherID        string    `json:"teacherId" validate:"required"`
	LocationID       string    `json:"locationId" validate:"required"`
	StartTime        time.Time `json:"startTime" validate:"required"`
	EndTime          time.Time `json:"endTime" validate:"required"`
	Capacity         int       `json:"capacity"`
	Notes            *string   `json:"notes" validate:"omitnil,max=2000"`
	RecurringGroupID *string   `json:"recurringGroupId" validate:"omitnil,min=1,max=64"`
	AllowConflicts   bool      `json:"allowConflicts"`
}

// UpdateSessionRequest patches a single session. Nil fields are left untouched.
type UpdateSessionRequest struct {
	ClassTypeID    *string    `json:"classTypeId" validate:"omitnil,min=1"`
	TeacherID      *string    `json:"teacherId" validate:"omitnil,min=1"`
	LocationID     *string    `json:"locationId" validate:"omitnil,min=1"`
	StartTime      *time.Time `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	Capacity       *int       `json:"capacity"`
	Notes          *string    `json:"notes" validate:"omitnil,max=2000"`
	AllowConflicts bool       `json:"allowConflicts"`
}

// Empty reports whether the patch changes nothing.
func (r UpdateSessionRequest) Empty() bool {
	return r.ClassTypeID == nil && r.TeacherID == nil && r.LocationID == nil &&
		r.StartTime == nil && r.EndTime == nil && r.Capacity == nil && r.Notes == nil
}

// SessionQuery captures list filters accepted over HTTP.
type SessionQuery struct {
	From             string `form:"from"`
	To               string `form:"to"`
	TeacherID        string `form:"teacherId"`
	LocationID       string `form:"locationId"`
	ClassTypeID      string `form:"classTypeId"`
	RecurringGroupID string `form:"recurringGroupId"`
	Page             int    `form:"page"`
	Limit            int    `form:"limit"`
}

// CancelSessionResult reports the fan-out of a session cancellation.
type CancelSessionResult struct {
	SessionID            string `json:"sessionId"`
	AffectedClients      int    `json:"affectedClients"`
	NotifiedClients      int    `json:"notifiedClients"`
	NotificationFailures int    `json:"notificationFailures"`
	DroppedWaitlist      int    `json:"droppedWaitlist"`
}

// SeriesPatch is applied to every matched occurrence of a recurring group.
// StartClock and DurationMinutes are interpreted in the studio timezone per occurrence.
type SeriesPatch struct {
	ClassTypeID     *string `json:"classTypeId" validate:"omitnil,min=1"`
	TeacherID       *string `json:"teacherId" validate:"omitnil,min=1"`
	LocationID      *string `json:"locationId" validate:"omitnil,min=1"`
	Capacity        *int    `json:"capacity"`
	Notes           *string `json:"notes" validate:"omitnil,max=2000"`
	StartClock      *string `json:"startTime" validate:"omitnil,datetime=15:04"`
	DurationMinutes *int    `json:"durationMinutes" validate:"omitnil,min=1,max=1440"`
}

// Empty reports whether the patch changes nothing.
func (p SeriesPatch) Empty() bool {
	return p.ClassTypeID == nil && p.TeacherID == nil && p.LocationID == nil &&
		p.Capacity == nil && p.Notes == nil && p.StartClock == nil && p.DurationMinutes == nil
}

// SkippedSession records why one occurrence of a series operation was not applied.
type SkippedSession struct {
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
}

// SeriesResult aggregates per-occurrence outcomes of a series operation.
type SeriesResult struct {
	RecurringGroupID string           `json:"recurringGroupId"`
	Matched          int              `json:"matched"`
	Updated          int              `json:"updated"`
	Deleted          int              `json:"deleted"`
	NotifiedClients  int              `json:"notifiedClients"`
	Skipped          []SkippedSession `json:"skipped"`
}
