package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

// ReportRepository aggregates attendance figures consumed by pay calculation.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// AttendanceByTeacher summarises active sessions and their booking outcomes per teacher.
func (r *ReportRepository) AttendanceByTeacher(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceSummary, error) {
	query := `SELECT s.teacher_id,
	COUNT(DISTINCT s.id) AS sessions,
	COUNT(b.id) FILTER (WHERE b.status = 'CONFIRMED') AS confirmed,
	COUNT(b.id) FILTER (WHERE b.status = 'COMPLETED') AS completed,
	COUNT(b.id) FILTER (WHERE b.status = 'NO_SHOW') AS no_show,
	COUNT(b.id) FILTER (WHERE b.status = 'CANCELLED') AS cancelled
FROM class_sessions s
LEFT JOIN bookings b ON b.class_session_id = s.id
WHERE s.cancelled_at IS NULL AND s.studio_id = $1 AND s.start_time >= $2 AND s.start_time < $3`
	args := []interface{}{filter.StudioID, filter.From.UTC(), filter.To.UTC()}
	if filter.TeacherID != "" {
		query += " AND s.teacher_id = $4"
		args = append(args, filter.TeacherID)
	}
	query += " GROUP BY s.teacher_id ORDER BY s.teacher_id ASC"

	var rows []models.AttendanceSummary
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("attendance by teacher: %w", err)
	}
	return rows, nil
}
