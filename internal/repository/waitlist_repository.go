package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

const waitlistColumns = `id, studio_id, client_id, class_session_id, position, status, notified_at, expires_at, created_at, updated_at`

// WaitlistRepository persists per-session waitlist queues.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a waitlist entry.
func (r *WaitlistRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE id = $1`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListBySession returns open entries: outstanding offers first, then the queue in position order.
func (r *WaitlistRepository) ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
WHERE class_session_id = $1 AND status IN ('WAITING', 'NOTIFIED')
ORDER BY position ASC, notified_at ASC NULLS LAST, created_at ASC`
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

// FindOpenForClient returns the client's WAITING or NOTIFIED entry for the session.
func (r *WaitlistRepository) FindOpenForClient(ctx context.Context, exec sqlx.ExtContext, sessionID, clientID string) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE class_session_id = $1 AND client_id = $2 AND status IN ('WAITING', 'NOTIFIED') LIMIT 1`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, sessionID, clientID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// NextPosition returns the position a newly joined entry takes.
func (r *WaitlistRepository) NextPosition(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var next int
	const query = `SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE class_session_id = $1 AND status = 'WAITING'`
	if err := sqlx.GetContext(ctx, r.exec(exec), &next, query, sessionID); err != nil {
		return 0, fmt.Errorf("compute next waitlist position: %w", err)
	}
	return next, nil
}

// NextWaiting returns the lowest-position WAITING entry or sql.ErrNoRows.
func (r *WaitlistRepository) NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE class_session_id = $1 AND status = 'WAITING' ORDER BY position ASC LIMIT 1`
	var entry models.WaitlistEntry
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, sessionID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountOutstandingOffers counts NOTIFIED entries still holding a seat at now.
func (r *WaitlistRepository) CountOutstandingOffers(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time, excludeID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM waitlist_entries WHERE class_session_id = $1 AND status = 'NOTIFIED' AND expires_at > $2 AND id <> $3`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID, now.UTC(), excludeID); err != nil {
		return 0, fmt.Errorf("count outstanding offers: %w", err)
	}
	return count, nil
}

// CountOpen returns the number of WAITING and NOTIFIED entries.
func (r *WaitlistRepository) CountOpen(ctx context.Context, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM waitlist_entries WHERE class_session_id = $1 AND status IN ('WAITING', 'NOTIFIED')`
	if err := r.db.GetContext(ctx, &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count waitlist: %w", err)
	}
	return count, nil
}

// Create stores a new entry.
func (r *WaitlistRepository) Create(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if entry.Status == "" {
		entry.Status = models.WaitlistStatusWaiting
	}
	const query = `INSERT INTO waitlist_entries (id, studio_id, client_id, class_session_id, position, status, created_at, updated_at)
VALUES (:id, :studio_id, :client_id, :class_session_id, :position, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}
	return nil
}

// UpdateStatus persists a state transition together with its position and offer window.
func (r *WaitlistRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, entry *models.WaitlistEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE waitlist_entries SET status = :status, position = :position, notified_at = :notified_at, expires_at = :expires_at, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("update waitlist entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *WaitlistRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	return nil
}

// Compact renumbers WAITING entries of a session to 1..N preserving their order.
func (r *WaitlistRepository) Compact(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	const query = `UPDATE waitlist_entries w SET position = ranked.rn, updated_at = $2
FROM (
	SELECT id, ROW_NUMBER() OVER (ORDER BY position ASC, created_at ASC) AS rn
	FROM waitlist_entries WHERE class_session_id = $1 AND status = 'WAITING'
) ranked
WHERE w.id = ranked.id AND w.position <> ranked.rn`
	if _, err := r.exec(exec).ExecContext(ctx, query, sessionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("compact waitlist: %w", err)
	}
	return nil
}

// DeleteOpenBySession drops every WAITING and NOTIFIED entry of a session.
func (r *WaitlistRepository) DeleteOpenBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM waitlist_entries WHERE class_session_id = $1 AND status IN ('WAITING', 'NOTIFIED')`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("drop session waitlist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("drop session waitlist rows: %w", err)
	}
	return int(affected), nil
}

// ListExpired returns NOTIFIED entries whose hold lapsed at or before now.
func (r *WaitlistRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM waitlist_entries WHERE status = 'NOTIFIED' AND expires_at <= $1 ORDER BY expires_at ASC LIMIT %d`, waitlistColumns, limit)
	var entries []models.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, now.UTC()); err != nil {
		return nil, fmt.Errorf("list expired waitlist offers: %w", err)
	}
	return entries, nil
}
