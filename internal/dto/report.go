package dto

import "github.com/noah-isme/studio-class-api/internal/models"

// Supported attendance report formats.
const (
	ReportFormatJSON = "json"
	ReportFormatCSV  = "csv"
	ReportFormatPDF  = "pdf"
)

// AttendanceQuery selects the window for the attendance summary.
type AttendanceQuery struct {
	StudioID  string `form:"-" validate:"required"`
	From      string `form:"from" validate:"required,datetime=2006-01-02"`
	To        string `form:"to" validate:"required,datetime=2006-01-02"`
	TeacherID string `form:"teacherId"`
	Format    string `form:"format" validate:"omitempty,oneof=json csv pdf"`
}

// AttendanceReport is the JSON rendering of the attendance summary.
type AttendanceReport struct {
	From string                     `json:"from"`
	To   string                     `json:"to"`
	Rows []models.AttendanceSummary `json:"rows"`
}

// ExportedFile is a rendered report ready for download.
type ExportedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// UpdateStudioSettingsRequest replaces the studio scheduling configuration.
type UpdateStudioSettingsRequest struct {
	Timezone                  string `json:"timezone" validate:"required,timezone"`
	NotificationWindowMinutes int    `json:"notificationWindowMinutes" validate:"required,min=1,max=10080"`
}
