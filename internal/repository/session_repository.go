package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

const sessionColumns = `id, studio_id, class_type_id, teacher_id, location_id, start_time, end_time, capacity, notes, recurring_group_id, cancelled_at, created_at, updated_at`

// SessionRepository provides persistence for class sessions. Cancelled sessions
// are soft deleted and invisible to every read.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns sessions matching the filter ordered by start time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, int, error) {
	base := "FROM class_sessions WHERE cancelled_at IS NULL"
	var conditions []string
	var args []interface{}

	if filter.StudioID != "" {
		conditions = append(conditions, fmt.Sprintf("studio_id = $%d", len(args)+1))
		args = append(args, filter.StudioID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("end_time > $%d", len(args)+1))
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)+1))
		args = append(args, filter.To.UTC())
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.LocationID != "" {
		conditions = append(conditions, fmt.Sprintf("location_id = $%d", len(args)+1))
		args = append(args, filter.LocationID)
	}
	if filter.ClassTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("class_type_id = $%d", len(args)+1))
		args = append(args, filter.ClassTypeID)
	}
	if filter.RecurringGroupID != "" {
		conditions = append(conditions, fmt.Sprintf("recurring_group_id = $%d", len(args)+1))
		args = append(args, filter.RecurringGroupID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC, id ASC LIMIT %d OFFSET %d", sessionColumns, base, size, offset)
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// FindByID loads an active session.
func (r *SessionRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1 AND cancelled_at IS NULL`
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByGroup returns the active members of a recurring group ordered by start time.
func (r *SessionRepository) ListByGroup(ctx context.Context, groupID string) ([]models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE recurring_group_id = $1 AND cancelled_at IS NULL ORDER BY start_time ASC`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, groupID); err != nil {
		return nil, fmt.Errorf("list sessions by group: %w", err)
	}
	return sessions, nil
}

// FindOverlapping returns active sessions sharing the teacher or location whose
// interval intersects [start, end).
func (r *SessionRepository) FindOverlapping(ctx context.Context, teacherID, locationID string, start, end time.Time, excludeID string) ([]models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions
WHERE cancelled_at IS NULL AND (teacher_id = $1 OR location_id = $2) AND start_time < $3 AND $4 < end_time AND id <> $5
ORDER BY start_time ASC`
	var sessions []models.ClassSession
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, locationID, end.UTC(), start.UTC(), excludeID); err != nil {
		return nil, fmt.Errorf("find overlapping sessions: %w", err)
	}
	return sessions, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	session.StartTime = session.StartTime.UTC()
	session.EndTime = session.EndTime.UTC()

	const query = `INSERT INTO class_sessions (id, studio_id, class_type_id, teacher_id, location_id, start_time, end_time, capacity, notes, recurring_group_id, created_at, updated_at)
VALUES (:id, :studio_id, :class_type_id, :teacher_id, :location_id, :start_time, :end_time, :capacity, :notes, :recurring_group_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update persists mutable session fields.
func (r *SessionRepository) Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error {
	session.UpdatedAt = time.Now().UTC()
	session.StartTime = session.StartTime.UTC()
	session.EndTime = session.EndTime.UTC()
	const query = `UPDATE class_sessions SET class_type_id = :class_type_id, teacher_id = :teacher_id, location_id = :location_id, start_time = :start_time, end_time = :end_time, capacity = :capacity, notes = :notes, updated_at = :updated_at WHERE id = :id AND cancelled_at IS NULL`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// MarkCancelled soft deletes the session.
func (r *SessionRepository) MarkCancelled(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	const query = `UPDATE class_sessions SET cancelled_at = $2, updated_at = $2 WHERE id = $1 AND cancelled_at IS NULL`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, at.UTC()); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}
