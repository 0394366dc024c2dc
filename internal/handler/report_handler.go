package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/pkg/response"
)

type reportService interface {
	Attendance(ctx context.Context, query dto.AttendanceQuery) (*dto.AttendanceReport, error)
	Export(ctx context.Context, query dto.AttendanceQuery) (*dto.ExportedFile, error)
}

// ReportHandler serves the attendance summary used for teacher pay.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Attendance godoc
// @Summary Per-teacher attendance summary
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param from query string true "First day (YYYY-MM-DD, studio local)"
// @Param to query string true "Last day inclusive (YYYY-MM-DD, studio local)"
// @Param teacherId query string false "Restrict to one teacher"
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /reports/attendance [get]
func (h *ReportHandler) Attendance(c *gin.Context) {
	var query dto.AttendanceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	studioID, err := studioFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	query.StudioID = studioID

	if query.Format == "" || query.Format == dto.ReportFormatJSON {
		report, err := h.reports.Attendance(c.Request.Context(), query)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, report)
		return
	}

	file, err := h.reports.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
