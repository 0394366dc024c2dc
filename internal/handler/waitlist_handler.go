package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/pkg/response"
)

type waitlistService interface {
	Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*models.WaitlistEntry, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error)
	PromoteNext(ctx context.Context, sessionID string) (*models.WaitlistEntry, error)
	Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	Confirm(ctx context.Context, entryID string) (*models.Booking, error)
	Expire(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
	Leave(ctx context.Context, entryID string) error
}

// WaitlistHandler exposes waitlist endpoints.
type WaitlistHandler struct {
	waitlist waitlistService
}

// NewWaitlistHandler constructs handler.
func NewWaitlistHandler(waitlist waitlistService) *WaitlistHandler {
	return &WaitlistHandler{waitlist: waitlist}
}

// Join godoc
// @Summary Join a session waitlist
// @Tags Waitlist
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.JoinWaitlistRequest true "Client"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/waitlist [post]
func (h *WaitlistHandler) Join(c *gin.Context) {
	var req dto.JoinWaitlistRequest
	if isClient(c) {
		req.ClientID = claimsFromContext(c).UserID
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.waitlist.Join(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// List godoc
// @Summary List open waitlist entries
// @Tags Waitlist
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/waitlist [get]
func (h *WaitlistHandler) List(c *gin.Context) {
	entries, err := h.waitlist.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entries)
}

// PromoteNext godoc
// @Summary Offer the next free seat to the head of the waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/waitlist/promote [post]
func (h *WaitlistHandler) PromoteNext(c *gin.Context) {
	entry, err := h.waitlist.PromoteNext(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"promoted": entry != nil, "entry": entry})
}

// Confirm godoc
// @Summary Accept a waitlist offer
// @Tags Waitlist
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /waitlist/{id}/confirm [post]
func (h *WaitlistHandler) Confirm(c *gin.Context) {
	if !h.authorizeEntry(c) {
		return
	}
	booking, err := h.waitlist.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Expire godoc
// @Summary Expire a lapsed waitlist offer
// @Tags Waitlist
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /waitlist/{id}/expire [post]
func (h *WaitlistHandler) Expire(c *gin.Context) {
	entry, err := h.waitlist.Expire(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}

// Leave godoc
// @Summary Leave a waitlist
// @Tags Waitlist
// @Param id path string true "Waitlist entry ID"
// @Success 204
// @Router /waitlist/{id} [delete]
func (h *WaitlistHandler) Leave(c *gin.Context) {
	if !h.authorizeEntry(c) {
		return
	}
	if err := h.waitlist.Leave(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *WaitlistHandler) authorizeEntry(c *gin.Context) bool {
	if !isClient(c) {
		return true
	}
	entry, err := h.waitlist.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return false
	}
	if err := ownsResource(c, entry.ClientID); err != nil {
		response.Error(c, err)
		return false
	}
	return true
}
