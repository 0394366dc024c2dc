package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

type studioSettingsRepository interface {
	Get(ctx context.Context, studioID string) (*models.StudioSettings, error)
	Upsert(ctx context.Context, settings *models.StudioSettings) error
}

// StudioSettingsService resolves per-studio timezone and offer window, falling back to configured defaults.
type StudioSettingsService struct {
	repo            studioSettingsRepository
	defaultTimezone string
	defaultWindow   time.Duration
	validator       *validator.Validate
	logger          *zap.Logger
}

// NewStudioSettingsService constructs the service. repo may be nil to always serve defaults.
func NewStudioSettingsService(repo studioSettingsRepository, defaultTimezone string, defaultWindow time.Duration, validate *validator.Validate, logger *zap.Logger) *StudioSettingsService {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	if defaultWindow <= 0 {
		defaultWindow = time.Hour
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudioSettingsService{
		repo:            repo,
		defaultTimezone: defaultTimezone,
		defaultWindow:   defaultWindow,
		validator:       validate,
		logger:          logger,
	}
}

// Resolve returns the effective settings of a studio.
func (s *StudioSettingsService) Resolve(ctx context.Context, studioID string) (models.StudioSettings, error) {
	settings := models.StudioSettings{
		StudioID:                  studioID,
		Timezone:                  s.defaultTimezone,
		NotificationWindowMinutes: int(s.defaultWindow / time.Minute),
	}
	if s.repo != nil && studioID != "" {
		stored, err := s.repo.Get(ctx, studioID)
		switch {
		case err == nil:
			if stored.Timezone != "" {
				settings.Timezone = stored.Timezone
			}
			if stored.NotificationWindowMinutes > 0 {
				settings.NotificationWindowMinutes = stored.NotificationWindowMinutes
			}
			settings.UpdatedAt = stored.UpdatedAt
		case !isNoRows(err):
			return settings, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load studio settings")
		}
	}

	if _, err := settings.Location(); err != nil {
		logger.FromContext(ctx, s.logger).Error("studio timezone cannot be loaded",
			zap.String("studio_id", studioID),
			zap.String("timezone", settings.Timezone),
			zap.Error(err),
		)
		return settings, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "studio timezone cannot be loaded")
	}
	return settings, nil
}

// studioLocation loads the timezone of already resolved settings.
func studioLocation(settings models.StudioSettings) (*time.Location, error) {
	loc, err := settings.Location()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "studio timezone cannot be loaded")
	}
	return loc, nil
}

// Update replaces the studio settings.
func (s *StudioSettingsService) Update(ctx context.Context, studioID string, req dto.UpdateStudioSettingsRequest) (*models.StudioSettings, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid studio settings payload")
	}
	if !tenant.Allows(ctx, studioID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "studio is outside the caller's scope")
	}
	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "studio settings storage is not configured")
	}
	settings := &models.StudioSettings{
		StudioID:                  studioID,
		Timezone:                  req.Timezone,
		NotificationWindowMinutes: req.NotificationWindowMinutes,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save studio settings")
	}
	s.logger.Info("studio settings updated", zap.String("studio_id", studioID), zap.String("timezone", req.Timezone))
	return settings, nil
}
