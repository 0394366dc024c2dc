package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
)

type reportServiceMock struct {
	query dto.AttendanceQuery
}

func (m *reportServiceMock) Attendance(ctx context.Context, query dto.AttendanceQuery) (*dto.AttendanceReport, error) {
	m.query = query
	return &dto.AttendanceReport{From: query.From, To: query.To, Rows: []models.AttendanceSummary{{TeacherID: "t1", Sessions: 3}}}, nil
}

func (m *reportServiceMock) Export(ctx context.Context, query dto.AttendanceQuery) (*dto.ExportedFile, error) {
	m.query = query
	return &dto.ExportedFile{Filename: "attendance_2024-01-01_2024-01-31.csv", ContentType: "text/csv; charset=utf-8", Content: []byte("teacher_id\nt1\n")}, nil
}

func TestReportHandlerAttendanceJSON(t *testing.T) {
	svc := &reportServiceMock{}
	h := NewReportHandler(svc)

	c, w := newGinContext(http.MethodGet, "/reports/attendance?from=2024-01-01&to=2024-01-31&teacherId=t1", nil)
	asStaff(c)
	h.Attendance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "studio-1", svc.query.StudioID)
	assert.Equal(t, "t1", svc.query.TeacherID)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"teacher_id":"t1"`)
}

func TestReportHandlerAttendanceCSVDownload(t *testing.T) {
	h := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodGet, "/reports/attendance?from=2024-01-01&to=2024-01-31&format=csv", nil)
	asStaff(c)
	h.Attendance(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_2024-01-01_2024-01-31.csv")
	assert.Equal(t, "teacher_id\nt1\n", w.Body.String())
}
