package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

const sessionCancelledReason = "Class cancelled"

type bookingRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error)
	ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	FindForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.Booking, error)
	FindClientOverlaps(ctx context.Context, exec sqlx.ExtContext, clientID string, start, end time.Time, excludeSessionID string) ([]models.Booking, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID, reason string, at time.Time) ([]models.Booking, error)
}

// BookingServiceParams wires the booking service collaborators.
type BookingServiceParams struct {
	Sessions             sessionRepository
	Bookings             bookingRepository
	Waitlist             waitlistRepository
	Locker               sessionLocker
	Promoter             seatPromoter
	Notifier             notifier
	Metrics              *MetricsService
	Validator            *validator.Validate
	Logger               *zap.Logger
	PreventClientOverlap bool
}

// BookingService owns the seat lifecycle of a session. Every capacity-affecting
// write runs under the session lock.
type BookingService struct {
	sessions       sessionRepository
	bookings       bookingRepository
	waitlist       waitlistRepository
	ledger         seatLedger
	locker         sessionLocker
	promoter       seatPromoter
	notifier       notifier
	metrics        *MetricsService
	validator      *validator.Validate
	logger         *zap.Logger
	preventOverlap bool
	now            func() time.Time
}

// NewBookingService constructs a BookingService.
func NewBookingService(params BookingServiceParams) *BookingService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Notifier == nil {
		params.Notifier = noopNotifier{}
	}
	return &BookingService{
		sessions:       params.Sessions,
		bookings:       params.Bookings,
		waitlist:       params.Waitlist,
		ledger:         seatLedger{bookings: params.Bookings, waitlist: params.Waitlist},
		locker:         params.Locker,
		promoter:       params.Promoter,
		notifier:       params.Notifier,
		metrics:        params.Metrics,
		validator:      params.Validator,
		logger:         params.Logger,
		preventOverlap: params.PreventClientOverlap,
		now:            utcNow,
	}
}

// Book claims a seat for a client. A client holding an outstanding waitlist
// offer books against the seat reserved for them.
func (s *BookingService) Book(ctx context.Context, req dto.BookRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	now := s.now()
	var booking *models.Booking
	err := s.locker.WithSessionLock(ctx, req.SessionID, func(exec sqlx.ExtContext) error {
		session, err := loadSessionLocked(ctx, s.sessions, exec, req.SessionID)
		if err != nil {
			return err
		}
		if !session.StartTime.After(now) {
			return appErrors.Clone(appErrors.ErrValidation, "session has already started")
		}

		existing, err := s.bookings.FindForClient(ctx, exec, session.ID, req.ClientID)
		if err != nil && !isNoRows(err) {
			return err
		}
		if existing != nil && err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateBooking, "")
		}

		if s.preventOverlap {
			overlaps, err := s.bookings.FindClientOverlaps(ctx, exec, req.ClientID, session.StartTime, session.EndTime, session.ID)
			if err != nil {
				return err
			}
			if len(overlaps) > 0 {
				ids := make([]string, 0, len(overlaps))
				for _, b := range overlaps {
					ids = append(ids, b.ClassSessionID)
				}
				return appErrors.WithDetails(appErrors.ErrConflict, "client already has a booking at this time", map[string][]string{"sessionIds": ids})
			}
		}

		entry, err := s.waitlist.FindOpenForClient(ctx, exec, session.ID, req.ClientID)
		if err != nil && !isNoRows(err) {
			return err
		}
		if err != nil {
			entry = nil
		}
		exclude := ""
		if entry != nil && entry.OfferOutstanding(now) {
			exclude = entry.ID
		}

		occupied, err := s.ledger.occupied(ctx, exec, session.ID, now, exclude)
		if err != nil {
			return err
		}
		if occupied >= session.Capacity {
			return appErrors.WithDetails(appErrors.ErrSessionFull, "", map[string]int{"capacity": session.Capacity})
		}

		created := &models.Booking{
			StudioID:       session.StudioID,
			ClientID:       req.ClientID,
			ClassSessionID: session.ID,
			Status:         models.BookingStatusConfirmed,
			PaymentID:      req.PaymentID,
			PaidAmount:     req.PaidAmount,
			Notes:          req.Notes,
		}
		if err := s.bookings.Create(ctx, exec, created); err != nil {
			return err
		}
		if entry != nil {
			if err := s.waitlist.Delete(ctx, exec, entry.ID); err != nil {
				return err
			}
			if err := s.waitlist.Compact(ctx, exec, session.ID); err != nil {
				return err
			}
		}
		booking = created
		return nil
	})
	if err != nil {
		s.metrics.RecordBooking(bookingOutcome(err))
		return nil, lockError(err, "failed to book session")
	}

	s.metrics.RecordBooking(BookingOutcomeConfirmed)
	logger.FromContext(ctx, s.logger).Info("session booked",
		zap.String("booking_id", booking.ID),
		zap.String("session_id", booking.ClassSessionID),
		zap.String("client_id", booking.ClientID),
	)
	return booking, nil
}

// CancelBooking cancels a CONFIRMED booking and offers the freed seat to the waitlist.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID string, req dto.CancelBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	existing, err := s.loadBooking(ctx, nil, bookingID)
	if err != nil {
		return nil, lockError(err, "failed to load booking")
	}

	var (
		cancelled *models.Booking
		notes     []models.Notification
	)
	err = s.locker.WithSessionLock(ctx, existing.ClassSessionID, func(exec sqlx.ExtContext) error {
		booking, err := s.loadBooking(ctx, exec, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingStatusConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("booking is %s", booking.Status))
		}

		now := s.now()
		booking.Status = models.BookingStatusCancelled
		booking.CancelledAt = &now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			booking.CancellationReason = &reason
		}
		if err := s.bookings.UpdateStatus(ctx, exec, booking); err != nil {
			return err
		}
		cancelled = booking

		session, err := s.sessions.FindByID(ctx, exec, booking.ClassSessionID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		if s.promoter == nil || !session.StartTime.After(now) {
			return nil
		}
		_, note, err := s.promoter.promoteLocked(ctx, exec, session, now)
		if err != nil {
			return err
		}
		if note != nil {
			notes = append(notes, *note)
		}
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to cancel booking")
	}

	dispatchNotifications(ctx, s.notifier, notes, s.logger)
	s.metrics.RecordBooking(BookingOutcomeCancelled)
	logger.FromContext(ctx, s.logger).Info("booking cancelled", zap.String("booking_id", bookingID), zap.Int("promoted", len(notes)))
	return cancelled, nil
}

// MarkOutcome records COMPLETED or NO_SHOW once the session has ended.
func (s *BookingService) MarkOutcome(ctx context.Context, bookingID string, req dto.MarkOutcomeRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid outcome payload")
	}
	outcome := models.BookingStatus(strings.ToUpper(strings.TrimSpace(req.Outcome)))
	if outcome != models.BookingStatusCompleted && outcome != models.BookingStatusNoShow {
		return nil, appErrors.Clone(appErrors.ErrValidation, "outcome must be COMPLETED or NO_SHOW")
	}
	existing, err := s.loadBooking(ctx, nil, bookingID)
	if err != nil {
		return nil, lockError(err, "failed to load booking")
	}

	var marked *models.Booking
	err = s.locker.WithSessionLock(ctx, existing.ClassSessionID, func(exec sqlx.ExtContext) error {
		booking, err := s.loadBooking(ctx, exec, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingStatusConfirmed {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("booking is %s", booking.Status))
		}
		session, err := loadSessionLocked(ctx, s.sessions, exec, booking.ClassSessionID)
		if err != nil {
			return err
		}
		if session.EndTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "session has not ended yet")
		}
		booking.Status = outcome
		if err := s.bookings.UpdateStatus(ctx, exec, booking); err != nil {
			return err
		}
		marked = booking
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to record booking outcome")
	}

	if outcome == models.BookingStatusCompleted {
		s.metrics.RecordBooking(BookingOutcomeCompleted)
	} else {
		s.metrics.RecordBooking(BookingOutcomeNoShow)
	}
	return marked, nil
}

// CancelSession cancels a session with all its bookings and waitlist entries,
// then notifies every affected client. Notification failures are counted, not fatal.
func (s *BookingService) CancelSession(ctx context.Context, sessionID string) (*dto.CancelSessionResult, error) {
	return s.cancelSession(ctx, sessionID, nil)
}

func (s *BookingService) cancelSession(ctx context.Context, sessionID string, guard sessionGuard) (*dto.CancelSessionResult, error) {
	var (
		session  *models.ClassSession
		affected []models.Booking
		dropped  int
	)
	err := s.locker.WithSessionLock(ctx, sessionID, func(exec sqlx.ExtContext) error {
		var err error
		session, err = loadSessionLocked(ctx, s.sessions, exec, sessionID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(session); err != nil {
				return err
			}
		}
		now := s.now()
		affected, err = s.bookings.CancelActiveBySession(ctx, exec, sessionID, sessionCancelledReason, now)
		if err != nil {
			return err
		}
		dropped, err = s.waitlist.DeleteOpenBySession(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		return s.sessions.MarkCancelled(ctx, exec, sessionID, now)
	})
	if err != nil {
		return nil, lockError(err, "failed to cancel session")
	}

	now := s.now()
	notes := make([]models.Notification, 0, len(affected))
	for _, booking := range affected {
		notes = append(notes, models.Notification{
			ID:        uuid.NewString(),
			Type:      models.NotificationSessionCancelled,
			StudioID:  session.StudioID,
			ClientID:  booking.ClientID,
			SessionID: session.ID,
			Reason:    sessionCancelledReason,
			StartTime: session.StartTime,
			CreatedAt: now,
		})
	}
	failures := dispatchNotifications(ctx, s.notifier, notes, s.logger)

	result := &dto.CancelSessionResult{
		SessionID:            sessionID,
		AffectedClients:      len(affected),
		NotifiedClients:      len(affected) - failures,
		NotificationFailures: failures,
		DroppedWaitlist:      dropped,
	}
	logger.FromContext(ctx, s.logger).Info("session cancelled",
		zap.String("session_id", sessionID),
		zap.Int("affected_clients", result.AffectedClients),
		zap.Int("notification_failures", failures),
		zap.Int("dropped_waitlist", dropped),
	)
	return result, nil
}

// Get returns one booking.
func (s *BookingService) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, nil, bookingID)
	if err != nil {
		return nil, lockError(err, "failed to load booking")
	}
	return booking, nil
}

// ListBySession returns the roster of a session.
func (s *BookingService) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	if _, err := loadSessionLocked(ctx, s.sessions, nil, sessionID); err != nil {
		return nil, lockError(err, "failed to load session")
	}
	bookings, err := s.bookings.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// ListByClient returns a client's booking history.
func (s *BookingService) ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	if filter.ClientID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "client is required")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	bookings, total, err := s.bookings.ListByClient(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	visible := bookings[:0]
	for _, b := range bookings {
		if tenant.Allows(ctx, b.StudioID) {
			visible = append(visible, b)
		}
	}
	return visible, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *BookingService) loadBooking(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, exec, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, err
	}
	if !tenant.Allows(ctx, booking.StudioID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	return booking, nil
}

func bookingOutcome(err error) string {
	switch {
	case appErrors.HasCode(err, appErrors.ErrSessionFull.Code):
		return BookingOutcomeFull
	case appErrors.HasCode(err, appErrors.ErrDuplicateBooking.Code):
		return BookingOutcomeDuplicate
	default:
		return BookingOutcomeRejected
	}
}
