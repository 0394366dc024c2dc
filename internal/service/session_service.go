package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.ClassSession, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error
	MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
}

type conflictChecker interface {
	Check(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeSessionID string) ([]models.SessionConflict, error)
}

type sessionCanceller interface {
	cancelSession(ctx context.Context, sessionID string, guard sessionGuard) (*dto.CancelSessionResult, error)
}

// SessionServiceParams wires the session service collaborators.
type SessionServiceParams struct {
	Sessions  sessionRepository
	Bookings  bookingRepository
	Waitlist  waitlistRepository
	Conflicts conflictChecker
	Locker    sessionLocker
	Canceller sessionCanceller
	Promoter  seatPromoter
	Notifier  notifier
	Cache     *CacheService
	CacheTTL  time.Duration
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// SessionService manages single class sessions.
type SessionService struct {
	sessions  sessionRepository
	bookings  bookingRepository
	waitlist  waitlistRepository
	conflicts conflictChecker
	locker    sessionLocker
	canceller sessionCanceller
	promoter  seatPromoter
	notifier  notifier
	cache     *CacheService
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type sessionPage struct {
	Items      []models.ClassSession `json:"items"`
	Pagination models.Pagination     `json:"pagination"`
}

// NewSessionService constructs a SessionService.
func NewSessionService(params SessionServiceParams) *SessionService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Notifier == nil {
		params.Notifier = noopNotifier{}
	}
	return &SessionService{
		sessions:  params.Sessions,
		bookings:  params.Bookings,
		waitlist:  params.Waitlist,
		conflicts: params.Conflicts,
		locker:    params.Locker,
		canceller: params.Canceller,
		promoter:  params.Promoter,
		notifier:  params.Notifier,
		cache:     params.Cache,
		cacheTTL:  params.CacheTTL,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		now:       utcNow,
	}
}

// Create schedules a single session. Conflicts reject the request unless the
// caller explicitly allows them.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if req.Capacity < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must be at least 1")
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	conflicts, err := s.conflicts.Check(ctx, req.TeacherID, req.LocationID, req.StartTime, req.EndTime, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if !req.AllowConflicts {
			return nil, newConflictError("session conflicts with the existing schedule", conflicts)
		}
		logger.FromContext(ctx, s.logger).Warn("session created despite conflicts", zap.Int("conflicts", len(conflicts)), zap.String("teacher_id", req.TeacherID))
	}

	session := &models.ClassSession{
		StudioID:         req.StudioID,
		ClassTypeID:      req.ClassTypeID,
		TeacherID:        req.TeacherID,
		LocationID:       req.LocationID,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		Capacity:         req.Capacity,
		Notes:            req.Notes,
		RecurringGroupID: req.RecurringGroupID,
	}
	if err := s.sessions.Create(ctx, nil, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.cache.InvalidateSessions(ctx, session.StudioID)

	logger.FromContext(ctx, s.logger).Info("session created", zap.String("session_id", session.ID), zap.String("studio_id", session.StudioID))
	return session, nil
}

// Query lists active sessions of a studio, served from cache when possible.
func (s *SessionService) Query(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, *models.Pagination, error) {
	if filter.StudioID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "studio is required")
	}
	if !tenant.Allows(ctx, filter.StudioID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "studio is outside the caller's scope")
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	key := sessionQueryKey(filter)
	var cached sessionPage
	if s.cache.Get(ctx, key, &cached) {
		return cached.Items, &cached.Pagination, nil
	}

	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := sessionPage{
		Items:      sessions,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}
	s.cache.Set(ctx, key, page, s.cacheTTL)
	return page.Items, &page.Pagination, nil
}

// Get returns a session together with its live occupancy.
func (s *SessionService) Get(ctx context.Context, id string) (*models.SessionDetail, error) {
	session, err := loadSessionLocked(ctx, s.sessions, nil, id)
	if err != nil {
		return nil, lockError(err, "failed to load session")
	}
	active, err := s.bookings.CountActive(ctx, nil, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count bookings")
	}
	queued, err := s.waitlist.CountOpen(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count waitlist")
	}
	offers, err := s.waitlist.CountOutstandingOffers(ctx, nil, id, s.now(), "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count waitlist offers")
	}

	seats := session.Capacity - active - offers
	if seats < 0 {
		seats = 0
	}
	return &models.SessionDetail{
		ClassSession:   *session,
		ActiveBookings: active,
		WaitlistLength: queued,
		SeatsAvailable: seats,
	}, nil
}

// UpdateSingle patches one session. Raising capacity offers the new seats to the waitlist.
func (s *SessionService) UpdateSingle(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.ClassSession, error) {
	return s.update(ctx, id, req, nil)
}

// DeleteSingle cancels one session and notifies its booked clients.
func (s *SessionService) DeleteSingle(ctx context.Context, id string) (*dto.CancelSessionResult, error) {
	return s.delete(ctx, id, nil)
}

func (s *SessionService) update(ctx context.Context, id string, req dto.UpdateSessionRequest, guard sessionGuard) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if req.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if req.Capacity != nil && *req.Capacity < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must be at least 1")
	}

	var (
		updated *models.ClassSession
		notes   []models.Notification
	)
	err := s.locker.WithSessionLock(ctx, id, func(exec sqlx.ExtContext) error {
		current, err := loadSessionLocked(ctx, s.sessions, exec, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}

		next := applySessionPatch(*current, req)
		if !next.EndTime.After(next.StartTime) {
			return appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
		}

		if next.Capacity < current.Capacity {
			active, err := s.bookings.CountActive(ctx, exec, id)
			if err != nil {
				return err
			}
			if next.Capacity < active {
				return appErrors.WithDetails(appErrors.ErrCapacity, "capacity cannot drop below active bookings", map[string]int{
					"requestedCapacity": next.Capacity,
					"activeBookings":    active,
				})
			}
		}

		if reschedules(*current, next) {
			conflicts, err := s.conflicts.Check(ctx, next.TeacherID, next.LocationID, next.StartTime, next.EndTime, id)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 && !req.AllowConflicts {
				return newConflictError("session conflicts with the existing schedule", conflicts)
			}
		}

		if err := s.sessions.Update(ctx, exec, &next); err != nil {
			return err
		}

		if added := next.Capacity - current.Capacity; added > 0 && s.promoter != nil && next.StartTime.After(s.now()) {
			now := s.now()
			for i := 0; i < added; i++ {
				_, note, err := s.promoter.promoteLocked(ctx, exec, &next, now)
				if err != nil {
					return err
				}
				if note == nil {
					break
				}
				notes = append(notes, *note)
			}
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to update session")
	}

	dispatchNotifications(ctx, s.notifier, notes, s.logger)
	s.cache.InvalidateSessions(ctx, updated.StudioID)
	logger.FromContext(ctx, s.logger).Info("session updated", zap.String("session_id", id), zap.Int("promoted", len(notes)))
	return updated, nil
}

func (s *SessionService) delete(ctx context.Context, id string, guard sessionGuard) (*dto.CancelSessionResult, error) {
	session, err := loadSessionLocked(ctx, s.sessions, nil, id)
	if err != nil {
		return nil, lockError(err, "failed to load session")
	}
	result, err := s.canceller.cancelSession(ctx, id, guard)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateSessions(ctx, session.StudioID)
	return result, nil
}

func applySessionPatch(session models.ClassSession, req dto.UpdateSessionRequest) models.ClassSession {
	if req.ClassTypeID != nil {
		session.ClassTypeID = *req.ClassTypeID
	}
	if req.TeacherID != nil {
		session.TeacherID = *req.TeacherID
	}
	if req.LocationID != nil {
		session.LocationID = *req.LocationID
	}
	if req.StartTime != nil {
		session.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		session.EndTime = req.EndTime.UTC()
	}
	if req.Capacity != nil {
		session.Capacity = *req.Capacity
	}
	if req.Notes != nil {
		session.Notes = req.Notes
	}
	return session
}

func reschedules(before, after models.ClassSession) bool {
	return !before.StartTime.Equal(after.StartTime) ||
		!before.EndTime.Equal(after.EndTime) ||
		before.TeacherID != after.TeacherID ||
		before.LocationID != after.LocationID
}
