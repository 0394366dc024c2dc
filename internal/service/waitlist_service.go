package service

import (
	"context"
	"fmt"
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

const waitlistPromotedReason = "A seat is available"

type waitlistRepository interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error)
	FindOpenForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.WaitlistEntry, error)
	NextPosition(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.WaitlistEntry, error)
	CountOutstandingOffers(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time, excludeID string) (int, error)
	CountOpen(ctx context.Context, sessionID string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	Compact(ctx context.Context, exec sqlx.ExtContext, sessionID string) error
	DeleteOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error)
}

// WaitlistServiceParams wires the waitlist service collaborators.
type WaitlistServiceParams struct {
	Sessions  sessionRepository
	Bookings  bookingRepository
	Waitlist  waitlistRepository
	Locker    sessionLocker
	Settings  settingsProvider
	Notifier  notifier
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// WaitlistService manages the FIFO queue of a full session and the timed
// seat offers made to its head.
type WaitlistService struct {
	sessions  sessionRepository
	bookings  bookingRepository
	waitlist  waitlistRepository
	ledger    seatLedger
	locker    sessionLocker
	settings  settingsProvider
	notifier  notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewWaitlistService constructs a WaitlistService.
func NewWaitlistService(params WaitlistServiceParams) *WaitlistService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Notifier == nil {
		params.Notifier = noopNotifier{}
	}
	return &WaitlistService{
		sessions:  params.Sessions,
		bookings:  params.Bookings,
		waitlist:  params.Waitlist,
		ledger:    seatLedger{bookings: params.Bookings, waitlist: params.Waitlist},
		locker:    params.Locker,
		settings:  params.Settings,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		now:       utcNow,
	}
}

// Join appends a client to the tail of the session waitlist.
func (s *WaitlistService) Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*models.WaitlistEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid waitlist payload")
	}

	var joined *models.WaitlistEntry
	err := s.locker.WithSessionLock(ctx, sessionID, func(exec sqlx.ExtContext) error {
		session, err := loadSessionLocked(ctx, s.sessions, exec, sessionID)
		if err != nil {
			return err
		}
		if !session.StartTime.After(s.now()) {
			return appErrors.Clone(appErrors.ErrValidation, "session has already started")
		}

		if _, err := s.waitlist.FindOpenForClient(ctx, exec, sessionID, req.ClientID); err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateWaitlist, "")
		} else if !isNoRows(err) {
			return err
		}
		if _, err := s.bookings.FindForClient(ctx, exec, sessionID, req.ClientID); err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateBooking, "")
		} else if !isNoRows(err) {
			return err
		}

		position, err := s.waitlist.NextPosition(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		entry := &models.WaitlistEntry{
			StudioID:       session.StudioID,
			ClientID:       req.ClientID,
			ClassSessionID: sessionID,
			Position:       position,
			Status:         models.WaitlistStatusWaiting,
		}
		if err := s.waitlist.Create(ctx, exec, entry); err != nil {
			return err
		}
		joined = entry
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to join waitlist")
	}

	s.metrics.RecordWaitlist(WaitlistEventJoined)
	logger.FromContext(ctx, s.logger).Info("waitlist joined",
		zap.String("session_id", sessionID),
		zap.String("client_id", req.ClientID),
		zap.Int("position", joined.Position),
	)
	return joined, nil
}

// PromoteNext offers a free seat to the head of the queue. It returns nil
// when the session has no free seat or nobody is waiting.
func (s *WaitlistService) PromoteNext(ctx context.Context, sessionID string) (*models.WaitlistEntry, error) {
	var (
		promoted *models.WaitlistEntry
		note     *models.Notification
	)
	err := s.locker.WithSessionLock(ctx, sessionID, func(exec sqlx.ExtContext) error {
		session, err := loadSessionLocked(ctx, s.sessions, exec, sessionID)
		if err != nil {
			return err
		}
		promoted, note, err = s.promoteLocked(ctx, exec, session, s.now())
		return err
	})
	if err != nil {
		return nil, lockError(err, "failed to promote waitlist")
	}
	if note != nil {
		dispatchNotifications(ctx, s.notifier, []models.Notification{*note}, s.logger)
	}
	return promoted, nil
}

// Confirm converts an outstanding offer into a CONFIRMED booking.
func (s *WaitlistService) Confirm(ctx context.Context, entryID string) (*models.Booking, error) {
	existing, err := s.loadEntry(ctx, nil, entryID)
	if err != nil {
		return nil, lockError(err, "failed to load waitlist entry")
	}

	var booking *models.Booking
	err = s.locker.WithSessionLock(ctx, existing.ClassSessionID, func(exec sqlx.ExtContext) error {
		entry, err := s.loadEntry(ctx, exec, entryID)
		if err != nil {
			return err
		}
		now := s.now()
		if !entry.OfferOutstanding(now) {
			if entry.Status == models.WaitlistStatusNotified {
				return appErrors.Clone(appErrors.ErrInvalidTransition, "offer has expired")
			}
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("waitlist entry is %s", entry.Status))
		}
		session, err := loadSessionLocked(ctx, s.sessions, exec, entry.ClassSessionID)
		if err != nil {
			return err
		}
		if _, err := s.bookings.FindForClient(ctx, exec, session.ID, entry.ClientID); err == nil {
			return appErrors.Clone(appErrors.ErrDuplicateBooking, "")
		} else if !isNoRows(err) {
			return err
		}

		occupied, err := s.ledger.occupied(ctx, exec, session.ID, now, entry.ID)
		if err != nil {
			return err
		}
		if occupied >= session.Capacity {
			return appErrors.WithDetails(appErrors.ErrSessionFull, "", map[string]int{"capacity": session.Capacity})
		}

		created := &models.Booking{
			StudioID:       session.StudioID,
			ClientID:       entry.ClientID,
			ClassSessionID: session.ID,
			Status:         models.BookingStatusConfirmed,
		}
		if err := s.bookings.Create(ctx, exec, created); err != nil {
			return err
		}
		if err := s.waitlist.Delete(ctx, exec, entry.ID); err != nil {
			return err
		}
		if err := s.waitlist.Compact(ctx, exec, session.ID); err != nil {
			return err
		}
		booking = created
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to confirm waitlist offer")
	}

	s.metrics.RecordWaitlist(WaitlistEventConfirmed)
	s.metrics.RecordBooking(BookingOutcomeConfirmed)
	logger.FromContext(ctx, s.logger).Info("waitlist offer confirmed", zap.String("entry_id", entryID), zap.String("booking_id", booking.ID))
	return booking, nil
}

// Expire lapses an offer whose window has passed and cascades the seat to the next client.
func (s *WaitlistService) Expire(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	existing, err := s.loadEntry(ctx, nil, entryID)
	if err != nil {
		return nil, lockError(err, "failed to load waitlist entry")
	}

	var (
		expired *models.WaitlistEntry
		notes   []models.Notification
	)
	err = s.locker.WithSessionLock(ctx, existing.ClassSessionID, func(exec sqlx.ExtContext) error {
		entry, err := s.loadEntry(ctx, exec, entryID)
		if err != nil {
			return err
		}
		now := s.now()
		if entry.Status != models.WaitlistStatusNotified {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("waitlist entry is %s", entry.Status))
		}
		if entry.OfferOutstanding(now) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "offer window has not elapsed")
		}

		entry.Status = models.WaitlistStatusExpired
		entry.Position = 0
		if err := s.waitlist.UpdateStatus(ctx, exec, entry); err != nil {
			return err
		}
		if err := s.waitlist.Compact(ctx, exec, entry.ClassSessionID); err != nil {
			return err
		}
		expired = entry

		session, err := s.sessions.FindByID(ctx, exec, entry.ClassSessionID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		if !session.StartTime.After(now) {
			return nil
		}
		_, note, err := s.promoteLocked(ctx, exec, session, now)
		if err != nil {
			return err
		}
		if note != nil {
			notes = append(notes, *note)
		}
		return nil
	})
	if err != nil {
		return nil, lockError(err, "failed to expire waitlist offer")
	}

	s.metrics.RecordWaitlist(WaitlistEventExpired)
	dispatchNotifications(ctx, s.notifier, notes, s.logger)
	logger.FromContext(ctx, s.logger).Info("waitlist offer expired", zap.String("entry_id", entryID), zap.Int("cascaded", len(notes)))
	return expired, nil
}

// Leave removes a client from the queue. Walking away from an outstanding
// offer releases the held seat to the next client.
func (s *WaitlistService) Leave(ctx context.Context, entryID string) error {
	existing, err := s.loadEntry(ctx, nil, entryID)
	if err != nil {
		return lockError(err, "failed to load waitlist entry")
	}

	var notes []models.Notification
	err = s.locker.WithSessionLock(ctx, existing.ClassSessionID, func(exec sqlx.ExtContext) error {
		entry, err := s.loadEntry(ctx, exec, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.Open() {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("waitlist entry is %s", entry.Status))
		}
		if err := s.waitlist.Delete(ctx, exec, entry.ID); err != nil {
			return err
		}
		if err := s.waitlist.Compact(ctx, exec, entry.ClassSessionID); err != nil {
			return err
		}
		if entry.Status != models.WaitlistStatusNotified {
			return nil
		}

		now := s.now()
		session, err := s.sessions.FindByID(ctx, exec, entry.ClassSessionID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		if !session.StartTime.After(now) {
			return nil
		}
		_, note, err := s.promoteLocked(ctx, exec, session, now)
		if err != nil {
			return err
		}
		if note != nil {
			notes = append(notes, *note)
		}
		return nil
	})
	if err != nil {
		return lockError(err, "failed to leave waitlist")
	}

	s.metrics.RecordWaitlist(WaitlistEventLeft)
	dispatchNotifications(ctx, s.notifier, notes, s.logger)
	return nil
}

// ListBySession returns the queue of a session, offers first then by position.
func (s *WaitlistService) ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error) {
	if _, err := loadSessionLocked(ctx, s.sessions, nil, sessionID); err != nil {
		return nil, lockError(err, "failed to load session")
	}
	entries, err := s.waitlist.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlist")
	}
	return entries, nil
}

// Get returns one waitlist entry.
func (s *WaitlistService) Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	entry, err := s.loadEntry(ctx, nil, entryID)
	if err != nil {
		return nil, lockError(err, "failed to load waitlist entry")
	}
	return entry, nil
}

// promoteLocked offers one free seat to the head of the queue. The caller
// holds the session lock and dispatches the returned notification after commit.
func (s *WaitlistService) promoteLocked(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession, now time.Time) (*models.WaitlistEntry, *models.Notification, error) {
	occupied, err := s.ledger.occupied(ctx, exec, session.ID, now, "")
	if err != nil {
		return nil, nil, err
	}
	if occupied >= session.Capacity {
		return nil, nil, nil
	}

	next, err := s.waitlist.NextWaiting(ctx, exec, session.ID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	window := time.Hour
	if s.settings != nil {
		settings, err := s.settings.Resolve(ctx, session.StudioID)
		if err != nil {
			return nil, nil, err
		}
		if w := settings.NotificationWindow(); w > 0 {
			window = w
		}
	}
	notifiedAt := now
	expiresAt := now.Add(window)
	next.Status = models.WaitlistStatusNotified
	next.Position = 0
	next.NotifiedAt = &notifiedAt
	next.ExpiresAt = &expiresAt
	if err := s.waitlist.UpdateStatus(ctx, exec, next); err != nil {
		return nil, nil, err
	}
	if err := s.waitlist.Compact(ctx, exec, session.ID); err != nil {
		return nil, nil, err
	}

	s.metrics.RecordWaitlist(WaitlistEventPromoted)
	note := &models.Notification{
		ID:        uuid.NewString(),
		Type:      models.NotificationWaitlistPromoted,
		StudioID:  session.StudioID,
		ClientID:  next.ClientID,
		SessionID: session.ID,
		EntryID:   next.ID,
		Reason:    waitlistPromotedReason,
		StartTime: session.StartTime,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	}
	return next, note, nil
}

func (s *WaitlistService) loadEntry(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error) {
	entry, err := s.waitlist.FindByID(ctx, exec, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return nil, err
	}
	if !tenant.Allows(ctx, entry.StudioID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
	}
	return entry, nil
}
