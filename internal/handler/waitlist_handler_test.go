package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

type waitlistServiceMock struct {
	joined   dto.JoinWaitlistRequest
	entries  map[string]models.WaitlistEntry
	promoted *models.WaitlistEntry
	left     string
}

func (m *waitlistServiceMock) Join(ctx context.Context, sessionID string, req dto.JoinWaitlistRequest) (*models.WaitlistEntry, error) {
	m.joined = req
	return &models.WaitlistEntry{ID: "w1", ClientID: req.ClientID, ClassSessionID: sessionID, Position: 1, Status: models.WaitlistStatusWaiting}, nil
}

func (m *waitlistServiceMock) ListBySession(ctx context.Context, sessionID string) ([]models.WaitlistEntry, error) {
	return []models.WaitlistEntry{}, nil
}

func (m *waitlistServiceMock) PromoteNext(ctx context.Context, sessionID string) (*models.WaitlistEntry, error) {
	return m.promoted, nil
}

func (m *waitlistServiceMock) Get(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	e, ok := m.entries[entryID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
	}
	return &e, nil
}

func (m *waitlistServiceMock) Confirm(ctx context.Context, entryID string) (*models.Booking, error) {
	if m.entries[entryID].Status != models.WaitlistStatusNotified {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "waitlist entry is WAITING")
	}
	return &models.Booking{ID: "b1", Status: models.BookingStatusConfirmed}, nil
}

func (m *waitlistServiceMock) Expire(ctx context.Context, entryID string) (*models.WaitlistEntry, error) {
	return &models.WaitlistEntry{ID: entryID, Status: models.WaitlistStatusExpired}, nil
}

func (m *waitlistServiceMock) Leave(ctx context.Context, entryID string) error {
	m.left = entryID
	return nil
}

func TestWaitlistHandlerJoin(t *testing.T) {
	svc := &waitlistServiceMock{}
	h := NewWaitlistHandler(svc)

	c, w := newGinContext(http.MethodPost, "/sessions/s1/waitlist", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asClient(c, "client-3")
	h.Join(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "client-3", svc.joined.ClientID)

	c, w = newGinContext(http.MethodPost, "/sessions/s1/waitlist", []byte("{"))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asStaff(c)
	h.Join(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWaitlistHandlerConfirmAndLeave(t *testing.T) {
	svc := &waitlistServiceMock{entries: map[string]models.WaitlistEntry{
		"w1": {ID: "w1", ClientID: "client-1", Status: models.WaitlistStatusNotified},
		"w2": {ID: "w2", ClientID: "client-1", Status: models.WaitlistStatusWaiting},
	}}
	h := NewWaitlistHandler(svc)

	c, w := newGinContext(http.MethodPost, "/waitlist/w1/confirm", nil)
	c.Params = gin.Params{{Key: "id", Value: "w1"}}
	asClient(c, "client-1")
	h.Confirm(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodPost, "/waitlist/w2/confirm", nil)
	c.Params = gin.Params{{Key: "id", Value: "w2"}}
	asClient(c, "client-1")
	h.Confirm(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	c, w = newGinContext(http.MethodDelete, "/waitlist/w1", nil)
	c.Params = gin.Params{{Key: "id", Value: "w1"}}
	asClient(c, "client-9")
	h.Leave(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.left)

	c, w = newGinContext(http.MethodDelete, "/waitlist/w1", nil)
	c.Params = gin.Params{{Key: "id", Value: "w1"}}
	asStaff(c)
	h.Leave(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "w1", svc.left)
}

func TestWaitlistHandlerPromoteNext(t *testing.T) {
	svc := &waitlistServiceMock{}
	h := NewWaitlistHandler(svc)

	c, w := newGinContext(http.MethodPost, "/sessions/s1/waitlist/promote", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.PromoteNext(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"promoted":false`)

	svc.promoted = &models.WaitlistEntry{ID: "w1", Status: models.WaitlistStatusNotified}
	c, w = newGinContext(http.MethodPost, "/sessions/s1/waitlist/promote", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	h.PromoteNext(c)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"promoted":true`)
}
