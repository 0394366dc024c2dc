package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
	"github.com/noah-isme/studio-class-api/pkg/export"
	"github.com/noah-isme/studio-class-api/pkg/tenant"
)

type attendanceRepoMock struct {
	filter models.AttendanceFilter
	rows   []models.AttendanceSummary
}

func (m *attendanceRepoMock) AttendanceByTeacher(_ context.Context, filter models.AttendanceFilter) ([]models.AttendanceSummary, error) {
	m.filter = filter
	return m.rows, nil
}

func TestReportServiceAttendanceUsesStudioLocalDays(t *testing.T) {
	repo := &attendanceRepoMock{}
	settings := NewStudioSettingsService(nil, "Asia/Jakarta", time.Hour, nil, nil)
	svc := NewReportService(repo, settings, nil, nil, nil, nil)

	report, err := svc.Attendance(context.Background(), dto.AttendanceQuery{StudioID: "studio-1", From: "2024-01-01", To: "2024-01-31"})
	require.NoError(t, err)
	assert.NotNil(t, report.Rows)

	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	assert.True(t, repo.filter.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, loc)))
	assert.True(t, repo.filter.To.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, loc)))
	assert.Equal(t, 17, repo.filter.To.UTC().Hour())
}

func TestReportServiceAttendanceValidation(t *testing.T) {
	svc := NewReportService(&attendanceRepoMock{}, nil, nil, nil, nil, nil)

	_, err := svc.Attendance(context.Background(), dto.AttendanceQuery{StudioID: "studio-1", From: "2024-02-01", To: "2024-01-01"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = svc.Attendance(context.Background(), dto.AttendanceQuery{StudioID: "studio-1", From: "01/02/2024", To: "2024-01-01"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	scoped := tenant.WithStudio(context.Background(), "studio-2")
	_, err = svc.Attendance(scoped, dto.AttendanceQuery{StudioID: "studio-1", From: "2024-01-01", To: "2024-01-31"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestReportServiceExport(t *testing.T) {
	repo := &attendanceRepoMock{rows: []models.AttendanceSummary{
		{TeacherID: "teacher-a", Sessions: 4, Confirmed: 1, Completed: 20, NoShow: 2, Cancelled: 3},
	}}
	svc := NewReportService(repo, nil, export.NewCSVExporter(), export.NewPDFExporter(), nil, nil)
	query := dto.AttendanceQuery{StudioID: "studio-1", From: "2024-01-01", To: "2024-01-31", Format: dto.ReportFormatCSV}

	file, err := svc.Export(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, "attendance_2024-01-01_2024-01-31.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "teacher_id,sessions,confirmed,completed,no_show,cancelled", lines[0])
	assert.Equal(t, "teacher-a,4,1,20,2,3", lines[1])

	query.Format = dto.ReportFormatPDF
	file, err = svc.Export(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(file.Content), "%PDF"))

	query.Format = dto.ReportFormatJSON
	_, err = svc.Export(context.Background(), query)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
