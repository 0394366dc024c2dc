package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

type sessionOverlapFinder interface {
	FindOverlapping(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeID string) ([]models.ClassSession, error)
}

type blockedTimeFinder interface {
	FindOverlapping(ctx context.Context, teacherID string, start, end time.Time) ([]models.BlockedTime, error)
}

// ConflictService detects teacher, location and blocked-time collisions.
type ConflictService struct {
	sessions sessionOverlapFinder
	blocked  blockedTimeFinder
	logger   *zap.Logger
}

// NewConflictService constructs the checker. blocked may be nil when no availability source exists.
func NewConflictService(sessions sessionOverlapFinder, blocked blockedTimeFinder, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{sessions: sessions, blocked: blocked, logger: logger}
}

// HasConflict reports whether [start, end) collides with the teacher's or location's schedule.
func (s *ConflictService) HasConflict(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeSessionID string) (bool, error) {
	conflicts, err := s.Check(ctx, teacherID, locationID, start, end, excludeSessionID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// Check lists every collision for display to an operator. A session sharing
// both teacher and location is reported once per dimension.
func (s *ConflictService) Check(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeSessionID string) ([]models.SessionConflict, error) {
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	existing, err := s.sessions.FindOverlapping(ctx, teacherID, locationID, start, end, excludeSessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session conflicts")
	}

	var conflicts []models.SessionConflict
	for _, session := range existing {
		if session.ID == excludeSessionID || !session.Overlaps(start, end) {
			continue
		}
		if session.TeacherID == teacherID {
			conflicts = append(conflicts, models.SessionConflict{
				SessionID: session.ID,
				Dimension: models.ConflictTeacher,
				TeacherID: session.TeacherID,
				StartTime: session.StartTime,
				EndTime:   session.EndTime,
			})
		}
		if session.LocationID == locationID {
			conflicts = append(conflicts, models.SessionConflict{
				SessionID: session.ID,
				Dimension: models.ConflictLocation,
				TeacherID: session.TeacherID,
				StartTime: session.StartTime,
				EndTime:   session.EndTime,
			})
		}
	}

	if s.blocked != nil {
		blocked, err := s.blocked.FindOverlapping(ctx, teacherID, start, end)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
		}
		for _, interval := range blocked {
			if !(interval.StartTime.Before(end) && start.Before(interval.EndTime)) {
				continue
			}
			conflicts = append(conflicts, models.SessionConflict{
				Dimension: models.ConflictBlockedTime,
				TeacherID: interval.TeacherID,
				StartTime: interval.StartTime,
				EndTime:   interval.EndTime,
			})
		}
	}
	return conflicts, nil
}

func newConflictError(message string, conflicts []models.SessionConflict) error {
	appErr := appErrors.WithDetails(appErrors.ErrConflict, message, conflicts)
	appErr.Err = &models.SessionConflictError{
		Message:   fmt.Sprintf("%d conflicting schedule entries", len(conflicts)),
		Conflicts: conflicts,
	}
	return appErr
}
