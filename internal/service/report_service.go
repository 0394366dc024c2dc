package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/export"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

const dateLayout = "2006-01-02"

type attendanceRepository interface {
	AttendanceByTeacher(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceSummary, error)
}

// ReportService builds the per-teacher attendance summary used for payroll.
type ReportService struct {
	repo      attendanceRepository
	settings  settingsProvider
	exporters map[string]export.Exporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(repo attendanceRepository, settings settingsProvider, csv, pdf export.Exporter, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exporters := map[string]export.Exporter{}
	if csv != nil {
		exporters[dto.ReportFormatCSV] = csv
	}
	if pdf != nil {
		exporters[dto.ReportFormatPDF] = pdf
	}
	return &ReportService{repo: repo, settings: settings, exporters: exporters, validator: validate, logger: logger}
}

// Attendance summarises sessions and outcomes per teacher. Dates are studio-local and To is inclusive.
func (s *ReportService) Attendance(ctx context.Context, query dto.AttendanceQuery) (*dto.AttendanceReport, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance query")
	}
	if !tenant.Allows(ctx, query.StudioID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "studio is outside the caller's scope")
	}

	loc := time.UTC
	if s.settings != nil {
		settings, err := s.settings.Resolve(ctx, query.StudioID)
		if err != nil {
			return nil, err
		}
		if loc, err = studioLocation(settings); err != nil {
			return nil, err
		}
	}
	from, err := time.ParseInLocation(dateLayout, query.From, loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid from date")
	}
	to, err := time.ParseInLocation(dateLayout, query.To, loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid to date")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	rows, err := s.repo.AttendanceByTeacher(ctx, models.AttendanceFilter{
		StudioID:  query.StudioID,
		From:      from,
		To:        to.AddDate(0, 0, 1),
		TeacherID: query.TeacherID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance report")
	}
	if rows == nil {
		rows = []models.AttendanceSummary{}
	}
	return &dto.AttendanceReport{From: query.From, To: query.To, Rows: rows}, nil
}

// Export renders the attendance summary as CSV or PDF.
func (s *ReportService) Export(ctx context.Context, query dto.AttendanceQuery) (*dto.ExportedFile, error) {
	exporter, ok := s.exporters[query.Format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", query.Format))
	}
	report, err := s.Attendance(ctx, query)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Attendance %s to %s", report.From, report.To),
		Headers: []string{"teacher_id", "sessions", "confirmed", "completed", "no_show", "cancelled"},
	}
	for _, row := range report.Rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"teacher_id": row.TeacherID,
			"sessions":   strconv.Itoa(row.Sessions),
			"confirmed":  strconv.Itoa(row.Confirmed),
			"completed":  strconv.Itoa(row.Completed),
			"no_show":    strconv.Itoa(row.NoShow),
			"cancelled":  strconv.Itoa(row.Cancelled),
		})
	}
	content, err := exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render attendance report")
	}
	return &dto.ExportedFile{
		Filename:    fmt.Sprintf("attendance_%s_%s.%s", report.From, report.To, exporter.Extension()),
		ContentType: exporter.ContentType(),
		Content:     content,
	}, nil
}
