package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, req dto.BookRequest) (*models.Booking, error)
	Get(ctx context.Context, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, req dto.CancelBookingRequest) (*models.Booking, error)
	MarkOutcome(ctx context.Context, bookingID string, req dto.MarkOutcomeRequest) (*models.Booking, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error)
	ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error)
}

// BookingHandler exposes seat booking endpoints.
type BookingHandler struct {
	bookings bookingService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(bookings bookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Book godoc
// @Summary Book a seat
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.BookRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/bookings [post]
func (h *BookingHandler) Book(c *gin.Context) {
	var req dto.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	req.SessionID = c.Param("id")
	if isClient(c) {
		req.ClientID = claimsFromContext(c).UserID
	}

	booking, err := h.bookings.Book(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// ListBySession godoc
// @Summary List bookings of a session
// @Tags Bookings
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/bookings [get]
func (h *BookingHandler) ListBySession(c *gin.Context) {
	bookings, err := h.bookings.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, bookings)
}

// ListByClient godoc
// @Summary List bookings of a client
// @Tags Bookings
// @Produce json
// @Param id path string true "Client ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clients/{id}/bookings [get]
func (h *BookingHandler) ListByClient(c *gin.Context) {
	filter := models.BookingFilter{
		ClientID: c.Param("id"),
		Status:   models.BookingStatus(strings.ToUpper(c.Query("status"))),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "limit", 20),
	}
	bookings, pagination, err := h.bookings.ListByClient(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.CancelBookingRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req dto.CancelBookingRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if isClient(c) {
		existing, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		if err := ownsResource(c, existing.ClientID); err != nil {
			response.Error(c, err)
			return
		}
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, booking)
}

// MarkOutcome godoc
// @Summary Record attendance for a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.MarkOutcomeRequest true "COMPLETED or NO_SHOW"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bookings/{id}/outcome [post]
func (h *BookingHandler) MarkOutcome(c *gin.Context) {
	var req dto.MarkOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	booking, err := h.bookings.MarkOutcome(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, booking)
}
