package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

// sessionLocker runs fn inside the serialization scope of one session.
type sessionLocker interface {
	WithSessionLock(ctx context.Context, sessionID string, fn func(exec sqlx.ExtContext) error) error
}

type notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

type settingsProvider interface {
	Resolve(ctx context.Context, studioID string) (models.StudioSettings, error)
}

// seatPromoter offers a freed seat to the next waitlisted client. It must be
// called while the session lock is held.
type seatPromoter interface {
	promoteLocked(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession, now time.Time) (*models.WaitlistEntry, *models.Notification, error)
}

// sessionGuard rejects a session loaded under lock before it is mutated.
type sessionGuard func(session *models.ClassSession) error

// startsNoEarlierThan refuses sessions that began before t.
func startsNoEarlierThan(t time.Time) sessionGuard {
	return func(session *models.ClassSession) error {
		if session.StartTime.Before(t) {
			return appErrors.Clone(appErrors.ErrValidation, "session has already started")
		}
		return nil
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.Notification) error { return nil }

// seatLedger computes occupancy: CONFIRMED bookings plus outstanding waitlist offers.
type seatLedger struct {
	bookings bookingRepository
	waitlist waitlistRepository
}

func (l seatLedger) occupied(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time, excludeEntryID string) (int, error) {
	active, err := l.bookings.CountActive(ctx, exec, sessionID)
	if err != nil {
		return 0, err
	}
	offers, err := l.waitlist.CountOutstandingOffers(ctx, exec, sessionID, now, excludeEntryID)
	if err != nil {
		return 0, err
	}
	return active + offers, nil
}

func loadSessionLocked(ctx context.Context, repo sessionFinder, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	session, err := repo.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, err
	}
	if !tenant.Allows(ctx, session.StudioID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return session, nil
}

type sessionFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
}

// lockError normalises failures surfacing from a session lock scope. Domain
// errors pass through untouched.
func lockError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "session is busy, retry shortly")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
