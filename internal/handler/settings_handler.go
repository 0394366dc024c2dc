package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/response"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

type studioSettingsService interface {
	Resolve(ctx context.Context, studioID string) (models.StudioSettings, error)
	Update(ctx context.Context, studioID string, req dto.UpdateStudioSettingsRequest) (*models.StudioSettings, error)
}

// SettingsHandler manages per-studio timezone and waitlist window.
type SettingsHandler struct {
	settings studioSettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settings studioSettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get godoc
// @Summary Effective studio settings
// @Tags Settings
// @Produce json
// @Param id path string true "Studio ID"
// @Success 200 {object} response.Envelope
// @Router /studios/{id}/settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	studioID := c.Param("id")
	if !tenant.Allows(c.Request.Context(), studioID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	settings, err := h.settings.Resolve(c.Request.Context(), studioID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}

// Update godoc
// @Summary Replace studio settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param id path string true "Studio ID"
// @Param payload body dto.UpdateStudioSettingsRequest true "Settings"
// @Success 200 {object} response.Envelope
// @Router /studios/{id}/settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req dto.UpdateStudioSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settings)
}
