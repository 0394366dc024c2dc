package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

func (f *schedulingFixture) seedSeries(t *testing.T, groupID string, starts ...time.Time) []models.ClassSession {
	t.Helper()
	out := make([]models.ClassSession, 0, len(starts))
	for i, start := range starts {
		group := groupID
		session := models.ClassSession{
			StudioID:         testStudio,
			ClassTypeID:      "barre",
			TeacherID:        "teacher-series",
			LocationID:       fmt.Sprintf("room-%d", i),
			StartTime:        start,
			EndTime:          start.Add(time.Hour),
			Capacity:         4,
			RecurringGroupID: &group,
		}
		require.NoError(t, memSessions{f.store}.Create(context.Background(), nil, &session))
		out = append(out, session)
	}
	return out
}

func TestSeriesServiceFutureOnlyNeverTouchesPastSessions(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	members := f.seedSeries(t, "group-1",
		now.Add(-14*24*time.Hour),
		now.Add(-7*24*time.Hour),
		now.Add(7*24*time.Hour),
		now.Add(14*24*time.Hour),
		now.Add(21*24*time.Hour),
	)

	result, err := f.series.UpdateSeries(ctx, "group-1", dto.SeriesPatch{TeacherID: strPtr("teacher-new")}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Matched)
	assert.Equal(t, 3, result.Updated)
	assert.Empty(t, result.Skipped)

	for _, m := range members[:2] {
		assert.Equal(t, "teacher-series", f.session(t, m.ID).TeacherID)
	}
	for _, m := range members[2:] {
		assert.Equal(t, "teacher-new", f.session(t, m.ID).TeacherID)
	}

	result, err = f.series.UpdateSeries(ctx, "group-1", dto.SeriesPatch{Notes: strPtr("all")}, false)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Updated)
}

func TestSeriesServiceSkipsAndContinues(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	members := f.seedSeries(t, "group-2", now.Add(24*time.Hour), now.Add(48*time.Hour), now.Add(72*time.Hour))
	for i := 0; i < 4; i++ {
		_, err := f.bookings.Book(ctx, dto.BookRequest{SessionID: members[1].ID, ClientID: fmt.Sprintf("client-%d", i)})
		require.NoError(t, err)
	}

	result, err := f.series.UpdateSeries(ctx, "group-2", dto.SeriesPatch{Capacity: intPtr(3)}, true)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Matched)
	assert.Equal(t, 2, result.Updated)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, members[1].ID, result.Skipped[0].SessionID)
	assert.Equal(t, appErrors.ErrCapacity.Code, result.Skipped[0].Code)

	assert.Equal(t, 3, f.session(t, members[0].ID).Capacity)
	assert.Equal(t, 4, f.session(t, members[1].ID).Capacity)
	assert.Equal(t, 3, f.session(t, members[2].ID).Capacity)
}

func TestSeriesServiceFutureOnlyRefusesToMoveOccurrenceIntoPast(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	members := f.seedSeries(t, "group-past", now.Add(2*time.Hour), now.Add(26*time.Hour))
	_, err := f.bookings.Book(ctx, dto.BookRequest{SessionID: members[0].ID, ClientID: "client-early"})
	require.NoError(t, err)

	result, err := f.series.UpdateSeries(ctx, "group-past", dto.SeriesPatch{StartClock: strPtr("07:00")}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, members[0].ID, result.Skipped[0].SessionID)
	assert.Equal(t, appErrors.ErrValidation.Code, result.Skipped[0].Code)

	assert.True(t, f.session(t, members[0].ID).StartTime.Equal(members[0].StartTime))
	moved := f.session(t, members[1].ID).StartTime
	assert.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), moved.UTC())
}

func TestSeriesServiceStartClockKeepsLocalDateAcrossDST(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	f.series.settings = NewStudioSettingsService(nil, "America/New_York", time.Hour, nil, nil)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	members := f.seedSeries(t, "group-3",
		time.Date(2024, 3, 8, 18, 0, 0, 0, loc),
		time.Date(2024, 3, 11, 18, 0, 0, 0, loc),
	)

	result, err := f.series.UpdateSeries(ctx, "group-3", dto.SeriesPatch{StartClock: strPtr("19:30"), DurationMinutes: intPtr(45)}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)

	for i, m := range members {
		updated := f.session(t, m.ID)
		local := updated.StartTime.In(loc)
		assert.Equal(t, 19, local.Hour())
		assert.Equal(t, 30, local.Minute())
		assert.Equal(t, m.StartTime.In(loc).Day(), local.Day(), "occurrence %d keeps its date", i)
		assert.Equal(t, 45*time.Minute, updated.Duration())
	}
	assert.NotEqual(t, f.session(t, members[0].ID).StartTime.UTC().Hour(), f.session(t, members[1].ID).StartTime.UTC().Hour())
}

func TestSeriesServiceDeleteSeries(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	members := f.seedSeries(t, "group-4", now.Add(-24*time.Hour), now.Add(24*time.Hour), now.Add(48*time.Hour))
	_, err := f.bookings.Book(ctx, dto.BookRequest{SessionID: members[1].ID, ClientID: "client-a"})
	require.NoError(t, err)
	_, err = f.bookings.Book(ctx, dto.BookRequest{SessionID: members[2].ID, ClientID: "client-b"})
	require.NoError(t, err)

	result, err := f.series.DeleteSeries(ctx, "group-4", true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, 2, result.NotifiedClients)
	assert.Nil(t, f.session(t, members[0].ID).CancelledAt)
	assert.NotNil(t, f.session(t, members[1].ID).CancelledAt)
	assert.NotNil(t, f.session(t, members[2].ID).CancelledAt)
}

func TestSeriesServiceValidation(t *testing.T) {
	f := newSchedulingFixture(t)
	ctx := context.Background()

	_, err := f.series.UpdateSeries(ctx, "group-x", dto.SeriesPatch{}, true)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.series.UpdateSeries(ctx, "group-x", dto.SeriesPatch{Capacity: intPtr(2)}, true)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.series.DeleteSeries(ctx, "group-x", true)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
