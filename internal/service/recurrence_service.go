package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

const defaultMaxRecurrenceDays = 366

// RecurrenceRule is a weekly rule evaluated on the calendar of Location.
// Weekdays use ISO numbering, 1 for Monday through 7 for Sunday.
type RecurrenceRule struct {
	AnchorDate time.Time
	EndDate    time.Time
	Weekdays   []int
	Hour       int
	Minute     int
	Duration   time.Duration
	SkipFirst  bool
	Location   *time.Location
}

// Occurrence is one concrete date produced by a RecurrenceRule.
type Occurrence struct {
	Date  string
	Start time.Time
	End   time.Time
}

// ExpandRecurrence lists every date from the anchor (or the day after when
// SkipFirst is set) through EndDate inclusive whose weekday is in the rule.
// Wall-clock times are kept across DST changes.
func ExpandRecurrence(rule RecurrenceRule) []Occurrence {
	loc := rule.Location
	if loc == nil {
		loc = time.UTC
	}
	weekdays := normalizeWeekdays(rule.Weekdays)
	if len(weekdays) == 0 {
		return nil
	}
	wanted := make(map[int]bool, len(weekdays))
	for _, d := range weekdays {
		wanted[d] = true
	}

	ay, am, ad := rule.AnchorDate.Date()
	ey, em, ed := rule.EndDate.Date()
	last := time.Date(ey, em, ed, 12, 0, 0, 0, loc)

	offset := 0
	if rule.SkipFirst {
		offset = 1
	}
	var occurrences []Occurrence
	for day := time.Date(ay, am, ad+offset, 12, 0, 0, 0, loc); !day.After(last); day = day.AddDate(0, 0, 1) {
		if !wanted[isoWeekday(day.Weekday())] {
			continue
		}
		y, m, d := day.Date()
		start := time.Date(y, m, d, rule.Hour, rule.Minute, 0, 0, loc)
		occurrences = append(occurrences, Occurrence{
			Date:  day.Format(dateLayout),
			Start: start,
			End:   start.Add(rule.Duration),
		})
	}
	return occurrences
}

func normalizeWeekdays(days []int) []int {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 7 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func isoWeekday(day time.Weekday) int {
	if day == time.Sunday {
		return 7
	}
	return int(day)
}

// RecurrenceServiceParams wires the generator collaborators.
type RecurrenceServiceParams struct {
	Sessions  sessionRepository
	Conflicts conflictChecker
	Settings  settingsProvider
	Cache     *CacheService
	Validator *validator.Validate
	Logger    *zap.Logger
	MaxDays   int
}

// RecurrenceService expands weekly rules into concrete sessions sharing one recurring group.
type RecurrenceService struct {
	sessions  sessionRepository
	conflicts conflictChecker
	settings  settingsProvider
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	maxDays   int
}

// NewRecurrenceService constructs a RecurrenceService.
func NewRecurrenceService(params RecurrenceServiceParams) *RecurrenceService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.MaxDays <= 0 {
		params.MaxDays = defaultMaxRecurrenceDays
	}
	return &RecurrenceService{
		sessions:  params.Sessions,
		conflicts: params.Conflicts,
		settings:  params.Settings,
		cache:     params.Cache,
		validator: params.Validator,
		logger:    params.Logger,
		maxDays:   params.MaxDays,
	}
}

// Generate creates one session per occurrence. Conflicting or failing
// occurrences are reported and skipped without aborting the batch.
func (s *RecurrenceService) Generate(ctx context.Context, req dto.RecurrenceRequest) (*dto.RecurrenceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurrence payload")
	}
	if req.Capacity < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must be at least 1")
	}
	if len(normalizeWeekdays(req.Weekdays)) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekdays must contain values between 1 and 7")
	}

	settings, err := s.settings.Resolve(ctx, req.StudioID)
	if err != nil {
		return nil, err
	}
	loc, err := studioLocation(settings)
	if err != nil {
		return nil, err
	}
	anchor, err := time.ParseInLocation(dateLayout, req.AnchorDate, loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid anchor date")
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end date")
	}
	if end.Before(anchor) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before anchor date")
	}
	if span := calendarDays(anchor, end) + 1; span > s.maxDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recurrence spans more than %d days", s.maxDays))
	}
	clock, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}

	groupID := req.RecurringGroupID
	if groupID != "" {
		members, err := s.sessions.ListByGroup(ctx, groupID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recurring group")
		}
		if len(members) == 0 || !tenant.Allows(ctx, members[0].StudioID) || members[0].StudioID != req.StudioID {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recurring group not found")
		}
	} else {
		groupID = uuid.NewString()
	}

	occurrences := ExpandRecurrence(RecurrenceRule{
		AnchorDate: anchor,
		EndDate:    end,
		Weekdays:   req.Weekdays,
		Hour:       clock.Hour(),
		Minute:     clock.Minute(),
		Duration:   time.Duration(req.DurationMinutes) * time.Minute,
		SkipFirst:  req.SkipFirst,
		Location:   loc,
	})

	log := logger.FromContext(ctx, s.logger)
	result := &dto.RecurrenceResult{
		RecurringGroupID: groupID,
		Sessions:         []models.ClassSession{},
		SkippedDates:     []dto.SkippedOccurrence{},
	}
	for _, occ := range occurrences {
		conflicts, err := s.conflicts.Check(ctx, req.TeacherID, req.LocationID, occ.Start, occ.End, "")
		if err != nil {
			log.Warn("recurrence conflict check failed", zap.String("date", occ.Date), zap.Error(err))
			result.SkippedDates = append(result.SkippedDates, dto.SkippedOccurrence{Date: occ.Date, Reason: "conflict check failed"})
			continue
		}
		if len(conflicts) > 0 {
			result.SkippedDates = append(result.SkippedDates, dto.SkippedOccurrence{Date: occ.Date, Reason: "conflict", Conflicts: conflicts})
			continue
		}

		group := groupID
		session := models.ClassSession{
			StudioID:         req.StudioID,
			ClassTypeID:      req.ClassTypeID,
			TeacherID:        req.TeacherID,
			LocationID:       req.LocationID,
			StartTime:        occ.Start,
			EndTime:          occ.End,
			Capacity:         req.Capacity,
			Notes:            req.Notes,
			RecurringGroupID: &group,
		}
		if err := s.sessions.Create(ctx, nil, &session); err != nil {
			log.Error("failed to create recurring session", zap.String("date", occ.Date), zap.Error(err))
			result.SkippedDates = append(result.SkippedDates, dto.SkippedOccurrence{Date: occ.Date, Reason: "failed to create session"})
			continue
		}
		result.Sessions = append(result.Sessions, session)
	}
	result.Created = len(result.Sessions)
	result.Skipped = len(result.SkippedDates)

	if result.Created > 0 {
		s.cache.InvalidateSessions(ctx, req.StudioID)
	}
	log.Info("recurring sessions generated",
		zap.String("recurring_group_id", groupID),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// calendarDays counts whole dates between from and to, ignoring DST-shortened days.
func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}
