package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

type stubOverlapFinder struct {
	sessions []models.ClassSession
	err      error
}

func (s stubOverlapFinder) FindOverlapping(_ context.Context, teacherID, locationID string, start, end time.Time, excludeID string) ([]models.ClassSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.ClassSession
	for _, session := range s.sessions {
		if session.TeacherID != teacherID && session.LocationID != locationID {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

type stubBlockedFinder struct {
	intervals []models.BlockedTime
}

func (s stubBlockedFinder) FindOverlapping(_ context.Context, teacherID string, start, end time.Time) ([]models.BlockedTime, error) {
	var out []models.BlockedTime
	for _, b := range s.intervals {
		if b.TeacherID == teacherID {
			out = append(out, b)
		}
	}
	return out, nil
}

func TestConflictServiceCheck(t *testing.T) {
	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	existing := []models.ClassSession{
		{ID: "s1", TeacherID: "t1", LocationID: "room-a", StartTime: base, EndTime: base.Add(time.Hour)},
		{ID: "s2", TeacherID: "t2", LocationID: "room-b", StartTime: base.Add(30 * time.Minute), EndTime: base.Add(90 * time.Minute)},
		{ID: "s3", TeacherID: "t1", LocationID: "room-c", StartTime: base.Add(2 * time.Hour), EndTime: base.Add(3 * time.Hour)},
	}
	blocked := []models.BlockedTime{
		{ID: "b1", TeacherID: "t1", StartTime: base.Add(-time.Hour), EndTime: base.Add(15 * time.Minute)},
	}
	svc := NewConflictService(stubOverlapFinder{sessions: existing}, stubBlockedFinder{intervals: blocked}, nil)
	ctx := context.Background()

	t.Run("same teacher and location reported per dimension", func(t *testing.T) {
		conflicts, err := svc.Check(ctx, "t1", "room-a", base.Add(15*time.Minute), base.Add(45*time.Minute), "")
		require.NoError(t, err)
		require.Len(t, conflicts, 2)
		assert.Equal(t, models.ConflictTeacher, conflicts[0].Dimension)
		assert.Equal(t, models.ConflictLocation, conflicts[1].Dimension)
		assert.Equal(t, "s1", conflicts[0].SessionID)
	})

	t.Run("location only", func(t *testing.T) {
		conflicts, err := svc.Check(ctx, "t9", "room-b", base.Add(time.Hour), base.Add(2*time.Hour), "")
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictLocation, conflicts[0].Dimension)
		assert.Equal(t, "s2", conflicts[0].SessionID)
	})

	t.Run("blocked time", func(t *testing.T) {
		conflicts, err := svc.Check(ctx, "t1", "room-z", base.Add(-30*time.Minute), base, "")
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, models.ConflictBlockedTime, conflicts[0].Dimension)
		assert.Empty(t, conflicts[0].SessionID)
	})

	t.Run("back to back is not a conflict", func(t *testing.T) {
		has, err := svc.HasConflict(ctx, "t1", "room-c", base.Add(time.Hour), base.Add(2*time.Hour), "")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("excluded session ignored", func(t *testing.T) {
		has, err := svc.HasConflict(ctx, "t1", "room-c", base.Add(2*time.Hour), base.Add(3*time.Hour), "s3")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("empty interval rejected", func(t *testing.T) {
		_, err := svc.Check(ctx, "t1", "room-a", base, base, "")
		assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	})
}

func TestConflictServiceRepositoryFailure(t *testing.T) {
	svc := NewConflictService(stubOverlapFinder{err: errors.New("boom")}, nil, nil)
	start := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	_, err := svc.Check(context.Background(), "t1", "room-a", start, start.Add(time.Hour), "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInternal.Code))
}

func TestNewConflictErrorCarriesDetails(t *testing.T) {
	conflicts := []models.SessionConflict{{SessionID: "s1", Dimension: models.ConflictTeacher}}
	err := newConflictError("session conflicts with existing schedule", conflicts)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, conflicts, appErr.Details)

	var conflictErr *models.SessionConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Len(t, conflictErr.Conflicts, 1)
}
