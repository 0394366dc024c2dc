package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

type seriesEditor interface {
	update(ctx context.Context, id string, req dto.UpdateSessionRequest, guard sessionGuard) (*models.ClassSession, error)
	delete(ctx context.Context, id string, guard sessionGuard) (*dto.CancelSessionResult, error)
}

type groupLister interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.ClassSession, error)
}

// SeriesService applies edits and cancellations to every matched occurrence
// of a recurring group. Each occurrence is applied independently.
type SeriesService struct {
	sessions  groupLister
	editor    seriesEditor
	settings  settingsProvider
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSeriesService constructs a SeriesService.
func NewSeriesService(sessions groupLister, editor *SessionService, settings settingsProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SeriesService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesService{
		sessions:  sessions,
		editor:    editor,
		settings:  settings,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       utcNow,
	}
}

// UpdateSeries patches the group. With futureOnly only sessions that have not
// started are touched. Per-session failures are collected in the result.
func (s *SeriesService) UpdateSeries(ctx context.Context, groupID string, patch dto.SeriesPatch, futureOnly bool) (*dto.SeriesResult, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid series payload")
	}
	if patch.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if patch.Capacity != nil && *patch.Capacity < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must be at least 1")
	}

	now := s.now()
	matched, err := s.match(ctx, groupID, futureOnly, now)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if s.settings != nil && len(matched) > 0 {
		settings, err := s.settings.Resolve(ctx, matched[0].StudioID)
		if err != nil {
			return nil, err
		}
		if loc, err = studioLocation(settings); err != nil {
			return nil, err
		}
	}
	guard := seriesGuard(futureOnly, now)

	result := &dto.SeriesResult{RecurringGroupID: groupID, Matched: len(matched), Skipped: []dto.SkippedSession{}}
	for _, session := range matched {
		req, err := seriesPatchFor(session, patch, loc)
		if err == nil && futureOnly && req.StartTime != nil && req.StartTime.Before(now) {
			err = appErrors.Clone(appErrors.ErrValidation, "new start time is already in the past")
		}
		if err == nil {
			_, err = s.editor.update(ctx, session.ID, req, guard)
		}
		if err != nil {
			result.Skipped = append(result.Skipped, skippedSession(session, err))
			continue
		}
		result.Updated++
	}

	s.metrics.RecordSeriesOperation("update", result.Updated, len(result.Skipped))
	logger.FromContext(ctx, s.logger).Info("series updated",
		zap.String("recurring_group_id", groupID),
		zap.Int("matched", result.Matched),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// DeleteSeries cancels the group with the same per-session semantics as a single cancellation.
func (s *SeriesService) DeleteSeries(ctx context.Context, groupID string, futureOnly bool) (*dto.SeriesResult, error) {
	now := s.now()
	matched, err := s.match(ctx, groupID, futureOnly, now)
	if err != nil {
		return nil, err
	}
	guard := seriesGuard(futureOnly, now)

	result := &dto.SeriesResult{RecurringGroupID: groupID, Matched: len(matched), Skipped: []dto.SkippedSession{}}
	for _, session := range matched {
		cancelled, err := s.editor.delete(ctx, session.ID, guard)
		if err != nil {
			result.Skipped = append(result.Skipped, skippedSession(session, err))
			continue
		}
		result.Deleted++
		result.NotifiedClients += cancelled.NotifiedClients
	}

	s.metrics.RecordSeriesOperation("delete", result.Deleted, len(result.Skipped))
	logger.FromContext(ctx, s.logger).Info("series cancelled",
		zap.String("recurring_group_id", groupID),
		zap.Int("matched", result.Matched),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

func (s *SeriesService) match(ctx context.Context, groupID string, futureOnly bool, now time.Time) ([]models.ClassSession, error) {
	members, err := s.sessions.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring group")
	}
	if len(members) == 0 || !tenant.Allows(ctx, members[0].StudioID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "recurring group not found")
	}
	if !futureOnly {
		return members, nil
	}
	matched := make([]models.ClassSession, 0, len(members))
	for _, session := range members {
		if !session.StartTime.Before(now) {
			matched = append(matched, session)
		}
	}
	return matched, nil
}

func seriesGuard(futureOnly bool, now time.Time) sessionGuard {
	if !futureOnly {
		return nil
	}
	return startsNoEarlierThan(now)
}

// seriesPatchFor maps a series patch onto one occurrence. Clock and duration
// changes keep the occurrence's local calendar date.
func seriesPatchFor(session models.ClassSession, patch dto.SeriesPatch, loc *time.Location) (dto.UpdateSessionRequest, error) {
	req := dto.UpdateSessionRequest{
		ClassTypeID: patch.ClassTypeID,
		TeacherID:   patch.TeacherID,
		LocationID:  patch.LocationID,
		Capacity:    patch.Capacity,
		Notes:       patch.Notes,
	}
	if patch.StartClock == nil && patch.DurationMinutes == nil {
		return req, nil
	}

	local := session.StartTime.In(loc)
	hour, minute := local.Hour(), local.Minute()
	if patch.StartClock != nil {
		clock, err := time.Parse("15:04", *patch.StartClock)
		if err != nil {
			return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
		}
		hour, minute = clock.Hour(), clock.Minute()
	}
	duration := session.Duration()
	if patch.DurationMinutes != nil {
		duration = time.Duration(*patch.DurationMinutes) * time.Minute
	}
	start := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	end := start.Add(duration)
	req.StartTime = &start
	req.EndTime = &end
	return req, nil
}

func skippedSession(session models.ClassSession, err error) dto.SkippedSession {
	appErr := appErrors.FromError(err)
	return dto.SkippedSession{
		SessionID: session.ID,
		StartTime: session.StartTime,
		Code:      appErr.Code,
		Reason:    appErr.Message,
	}
}
