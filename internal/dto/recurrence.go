package dto

import "github.com/noah-isme/studio-class-api/internal/models"

// RecurrenceRequest expands a weekly rule into concrete sessions.
type RecurrenceRequest struct {
	StudioID         string  `json:"-" validate:"required"`
	ClassTypeID      string  `json:"classTypeId" validate:"required"`
	TeacherID        string  `json:"teacherId" validate:"required"`
	LocationID       string  `json:"locationId" validate:"required"`
	Capacity         int     `json:"capacity"`
	Notes            *string `json:"notes" validate:"omitnil,max=2000"`
	AnchorDate       string  `json:"anchorDate" validate:"required,datetime=2006-01-02"`
	StartTime        string  `json:"startTime" validate:"required,datetime=15:04"`
	DurationMinutes  int     `json:"durationMinutes" validate:"required,min=1,max=1440"`
	Weekdays         []int   `json:"weekdays" validate:"required,min=1"`
	EndDate          string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	SkipFirst        bool    `json:"skipFirst"`
	RecurringGroupID string  `json:"recurringGroupId" validate:"omitempty,max=64"`
}

// SkippedOccurrence is a date the generator did not schedule.
type SkippedOccurrence struct {
	Date      string                   `json:"date"`
	Reason    string                   `json:"reason"`
	Conflicts []models.SessionConflict `json:"conflicts,omitempty"`
}

// RecurrenceResult summarises a generation run.
type RecurrenceResult struct {
	RecurringGroupID string                `json:"recurringGroupId"`
	Created          int                   `json:"created"`
	Skipped          int                   `json:"skipped"`
	Sessions         []models.ClassSession `json:"sessions"`
	SkippedDates     []SkippedOccurrence   `json:"skippedDates"`
}
