package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest) (*models.ClassSession, error)
	Query(ctx context.Context, filter models.SessionFilter) ([]models.ClassSession, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.SessionDetail, error)
	UpdateSingle(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.ClassSession, error)
	DeleteSingle(ctx context.Context, id string) (*dto.CancelSessionResult, error)
}

type recurrenceGenerator interface {
	Generate(ctx context.Context, req dto.RecurrenceRequest) (*dto.RecurrenceResult, error)
}

// SessionHandler serves the class session endpoints.
type SessionHandler struct {
	sessions   sessionService
	recurrence recurrenceGenerator
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions sessionService, recurrence recurrenceGenerator) *SessionHandler {
	return &SessionHandler{sessions: sessions, recurrence: recurrence}
}

// List godoc
// @Summary Query sessions
// @Tags Sessions
// @Produce json
// @Param from query string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Range end (RFC3339 or YYYY-MM-DD)"
// @Param teacherId query string false "Filter by teacher"
// @Param locationId query string false "Filter by location"
// @Param classTypeId query string false "Filter by class type"
// @Param recurringGroupId query string false "Filter by recurring group"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	studioID, err := studioFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var query dto.SessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	from, err := parseTimeParam("from", query.From)
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := parseTimeParam("to", query.To)
	if err != nil {
		response.Error(c, err)
		return
	}

	sessions, pagination, err := h.sessions.Query(c.Request.Context(), models.SessionFilter{
		StudioID:         studioID,
		From:             from,
		To:               to,
		TeacherID:        query.TeacherID,
		LocationID:       query.LocationID,
		ClassTypeID:      query.ClassTypeID,
		RecurringGroupID: query.RecurringGroupID,
		Page:             query.Page,
		PageSize:         query.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Create godoc
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	studioID, err := studioFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.StudioID = studioID

	session, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get session with occupancy
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	detail, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Update godoc
// @Summary Update a single session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [patch]
func (h *SessionHandler) Update(c *gin.Context) {
	var req dto.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	session, err := h.sessions.UpdateSingle(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Delete godoc
// @Summary Cancel a session and notify booked clients
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	result, err := h.sessions.DeleteSingle(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// GenerateRecurring godoc
// @Summary Generate weekly recurring sessions
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.RecurrenceRequest true "Recurrence rule"
// @Success 201 {object} response.Envelope
// @Router /sessions/recurring [post]
func (h *SessionHandler) GenerateRecurring(c *gin.Context) {
	var req dto.RecurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	studioID, err := studioFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.StudioID = studioID

	result, err := h.recurrence.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
