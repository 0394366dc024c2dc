package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

const bookingColumns = `id, studio_id, client_id, class_session_id, status, paid_amount, payment_id, cancelled_at, cancellation_reason, notes, created_at, updated_at`

// BookingRepository provides persistence for bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a booking by id.
func (r *BookingRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBySession returns every booking for a session, oldest first.
func (r *BookingRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE class_session_id = $1 ORDER BY created_at ASC`
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, sessionID); err != nil {
		return nil, fmt.Errorf("list bookings by session: %w", err)
	}
	return bookings, nil
}

// ListByClient returns a client's booking history, newest first.
func (r *BookingRepository) ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	base := "FROM bookings WHERE client_id = $1"
	args := []interface{}{filter.ClientID}
	if filter.Status != "" {
		base += " AND status = $2"
		args = append(args, filter.Status)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", bookingColumns, base, size, (page-1)*size)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings by client: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings by client: %w", err)
	}
	return bookings, total, nil
}

// CountActive returns the number of CONFIRMED bookings holding a seat.
func (r *BookingRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM bookings WHERE class_session_id = $1 AND status = 'CONFIRMED'`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return count, nil
}

// FindForClient returns the client's non-cancelled booking for the session.
func (r *BookingRepository) FindForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE class_session_id = $1 AND client_id = $2 AND status <> 'CANCELLED' LIMIT 1`
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, sessionID, clientID); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindClientOverlaps returns the client's non-cancelled bookings on other active
// sessions whose interval intersects [start, end).
func (r *BookingRepository) FindClientOverlaps(ctx context.Context, exec sqlx.ExtContext, clientID string, start, end time.Time, excludeSessionID string) ([]models.Booking, error) {
	const query = `SELECT b.id, b.studio_id, b.client_id, b.class_session_id, b.status, b.paid_amount, b.payment_id, b.cancelled_at, b.cancellation_reason, b.notes, b.created_at, b.updated_at
FROM bookings b JOIN class_sessions s ON s.id = b.class_session_id
WHERE b.client_id = $1 AND b.status <> 'CANCELLED' AND s.cancelled_at IS NULL AND s.start_time < $2 AND $3 < s.end_time AND s.id <> $4`
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, clientID, end.UTC(), start.UTC(), excludeSessionID); err != nil {
		return nil, fmt.Errorf("find client overlaps: %w", err)
	}
	return bookings, nil
}

// Create stores a new booking.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingStatusConfirmed
	}

	const query = `INSERT INTO bookings (id, studio_id, client_id, class_session_id, status, paid_amount, payment_id, notes, created_at, updated_at)
VALUES (:id, :studio_id, :client_id, :class_session_id, :status, :paid_amount, :payment_id, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// UpdateStatus persists a lifecycle transition.
func (r *BookingRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	booking.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bookings SET status = :status, cancelled_at = :cancelled_at, cancellation_reason = :cancellation_reason, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// CancelActiveBySession cancels every CONFIRMED booking of a session and returns them.
func (r *BookingRepository) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID, reason string, at time.Time) ([]models.Booking, error) {
	query := `UPDATE bookings SET status = 'CANCELLED', cancelled_at = $2, cancellation_reason = $3, updated_at = $2
WHERE class_session_id = $1 AND status = 'CONFIRMED'
RETURNING ` + bookingColumns
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, sessionID, at.UTC(), reason); err != nil {
		return nil, fmt.Errorf("cancel session bookings: %w", err)
	}
	return bookings, nil
}
