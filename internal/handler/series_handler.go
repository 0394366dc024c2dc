package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/pkg/response"
)

type seriesService interface {
	UpdateSeries(ctx context.Context, groupID string, patch dto.SeriesPatch, futureOnly bool) (*dto.SeriesResult, error)
	DeleteSeries(ctx context.Context, groupID string, futureOnly bool) (*dto.SeriesResult, error)
}

// SeriesHandler edits every occurrence of a recurring group.
type SeriesHandler struct {
	series seriesService
}

// NewSeriesHandler constructs handler.
func NewSeriesHandler(series seriesService) *SeriesHandler {
	return &SeriesHandler{series: series}
}

// Update godoc
// @Summary Update a recurring series
// @Tags Series
// @Accept json
// @Produce json
// @Param groupId path string true "Recurring group ID"
// @Param futureOnly query bool false "Only touch sessions that have not started (default true)"
// @Param payload body dto.SeriesPatch true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /series/{groupId} [patch]
func (h *SeriesHandler) Update(c *gin.Context) {
	futureOnly, err := queryBool(c, "futureOnly", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	var patch dto.SeriesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.series.UpdateSeries(c.Request.Context(), c.Param("groupId"), patch, futureOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Delete godoc
// @Summary Cancel a recurring series
// @Tags Series
// @Produce json
// @Param groupId path string true "Recurring group ID"
// @Param futureOnly query bool false "Only cancel sessions that have not started (default true)"
// @Success 200 {object} response.Envelope
// @Router /series/{groupId} [delete]
func (h *SeriesHandler) Delete(c *gin.Context) {
	futureOnly, err := queryBool(c, "futureOnly", true)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.series.DeleteSeries(c.Request.Context(), c.Param("groupId"), futureOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
