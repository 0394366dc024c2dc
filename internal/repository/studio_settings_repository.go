package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-class-api/internal/models"
)

// StudioSettingsRepository persists per-studio scheduling configuration.
type StudioSettingsRepository struct {
	db *sqlx.DB
}

// NewStudioSettingsRepository constructs the repository.
func NewStudioSettingsRepository(db *sqlx.DB) *StudioSettingsRepository {
	return &StudioSettingsRepository{db: db}
}

// Get returns the stored settings or sql.ErrNoRows.
func (r *StudioSettingsRepository) Get(ctx context.Context, studioID string) (*models.StudioSettings, error) {
	const query = `SELECT studio_id, timezone, notification_window_minutes, updated_at FROM studio_settings WHERE studio_id = $1`
	var settings models.StudioSettings
	if err := r.db.GetContext(ctx, &settings, query, studioID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert writes the settings row.
func (r *StudioSettingsRepository) Upsert(ctx context.Context, settings *models.StudioSettings) error {
	settings.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO studio_settings (studio_id, timezone, notification_window_minutes, updated_at)
VALUES (:studio_id, :timezone, :notification_window_minutes, :updated_at)
ON CONFLICT (studio_id) DO UPDATE SET timezone = EXCLUDED.timezone, notification_window_minutes = EXCLUDED.notification_window_minutes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert studio settings: %w", err)
	}
	return nil
}
