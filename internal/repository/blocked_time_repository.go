package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

// BlockedTimeRepository reads teacher unavailability maintained by the availability service.
type BlockedTimeRepository struct {
	db *sqlx.DB
}

// NewBlockedTimeRepository constructs the repository.
func NewBlockedTimeRepository(db *sqlx.DB) *BlockedTimeRepository {
	return &BlockedTimeRepository{db: db}
}

// FindOverlapping returns blocked intervals for the teacher intersecting [start, end).
func (r *BlockedTimeRepository) FindOverlapping(ctx context.Context, teacherID string, start, end time.Time) ([]models.BlockedTime, error) {
	const query = `SELECT id, teacher_id, start_time, end_time, reason FROM teacher_blocked_times
WHERE teacher_id = $1 AND start_time < $2 AND $3 < end_time ORDER BY start_time ASC`
	var blocked []models.BlockedTime
	if err := r.db.SelectContext(ctx, &blocked, query, teacherID, end.UTC(), start.UTC()); err != nil {
		return nil, fmt.Errorf("find blocked times: %w", err)
	}
	return blocked, nil
}
