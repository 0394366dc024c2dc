package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-class-api/internal/dto"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

type bookingServiceMock struct {
	bookReq   dto.BookRequest
	bookErr   error
	bookings  map[string]models.Booking
	cancelled string
	reason    string
	filter    models.BookingFilter
}

func (m *bookingServiceMock) Book(ctx context.Context, req dto.BookRequest) (*models.Booking, error) {
	m.bookReq = req
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	return &models.Booking{ID: "b1", ClientID: req.ClientID, ClassSessionID: req.SessionID, Status: models.BookingStatusConfirmed}, nil
}

func (m *bookingServiceMock) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	return &b, nil
}

func (m *bookingServiceMock) CancelBooking(ctx context.Context, bookingID string, req dto.CancelBookingRequest) (*models.Booking, error) {
	m.cancelled = bookingID
	m.reason = req.Reason
	return &models.Booking{ID: bookingID, Status: models.BookingStatusCancelled}, nil
}

func (m *bookingServiceMock) MarkOutcome(ctx context.Context, bookingID string, req dto.MarkOutcomeRequest) (*models.Booking, error) {
	if req.Outcome != "COMPLETED" && req.Outcome != "NO_SHOW" {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "outcome must be COMPLETED or NO_SHOW")
	}
	return &models.Booking{ID: bookingID, Status: models.BookingStatus(req.Outcome)}, nil
}

func (m *bookingServiceMock) ListBySession(ctx context.Context, sessionID string) ([]models.Booking, error) {
	return []models.Booking{{ID: "b1"}}, nil
}

func (m *bookingServiceMock) ListByClient(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	m.filter = filter
	return []models.Booking{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func TestBookingHandlerBookForcesClientIdentity(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/sessions/s1/bookings", mustJSON(t, map[string]string{"clientId": "someone-else"}))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asClient(c, "client-7")
	h.Book(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "client-7", svc.bookReq.ClientID)
	assert.Equal(t, "s1", svc.bookReq.SessionID)

	c, _ = newGinContext(http.MethodPost, "/sessions/s1/bookings", mustJSON(t, map[string]string{"clientId": "walk-in"}))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asStaff(c)
	h.Book(c)
	assert.Equal(t, "walk-in", svc.bookReq.ClientID)
}

func TestBookingHandlerBookFull(t *testing.T) {
	svc := &bookingServiceMock{bookErr: appErrors.WithDetails(appErrors.ErrSessionFull, "session is full", map[string]int{"capacity": 1})}
	h := NewBookingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/sessions/s1/bookings", mustJSON(t, map[string]string{"clientId": "c1"}))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	asStaff(c)
	h.Book(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "SESSION_FULL", env.Error.Code)
	assert.JSONEq(t, `{"capacity":1}`, string(env.Error.Details))
}

func TestBookingHandlerCancelChecksOwnership(t *testing.T) {
	svc := &bookingServiceMock{bookings: map[string]models.Booking{
		"b1": {ID: "b1", ClientID: "client-1"},
	}}
	h := NewBookingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/bookings/b1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	asClient(c, "client-2")
	h.Cancel(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.cancelled)

	c, w = newGinContext(http.MethodPost, "/bookings/b1/cancel", mustJSON(t, map[string]string{"reason": "sick"}))
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	asClient(c, "client-1")
	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b1", svc.cancelled)
	assert.Equal(t, "sick", svc.reason)
}

func TestBookingHandlerCancelReadsChunkedBody(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)

	c, w := newGinContext(http.MethodPost, "/bookings/b1/cancel", nil)
	c.Request.Body = io.NopCloser(strings.NewReader(`{"reason":"running late"}`))
	c.Request.ContentLength = -1
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	asStaff(c)
	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running late", svc.reason)

	c, w = newGinContext(http.MethodPost, "/bookings/b2/cancel", nil)
	c.Request.Body = io.NopCloser(strings.NewReader(""))
	c.Request.ContentLength = -1
	c.Params = gin.Params{{Key: "id", Value: "b2"}}
	asStaff(c)
	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b2", svc.cancelled)
	assert.Empty(t, svc.reason)

	c, w = newGinContext(http.MethodPost, "/bookings/b3/cancel", []byte(`{"reason":`))
	c.Params = gin.Params{{Key: "id", Value: "b3"}}
	asStaff(c)
	h.Cancel(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandlerMarkOutcome(t *testing.T) {
	h := NewBookingHandler(&bookingServiceMock{})

	c, w := newGinContext(http.MethodPost, "/bookings/b1/outcome", mustJSON(t, map[string]string{"outcome": "NO_SHOW"}))
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	h.MarkOutcome(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodPost, "/bookings/b1/outcome", mustJSON(t, map[string]string{"outcome": "LATE"}))
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	h.MarkOutcome(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBookingHandlerListByClient(t *testing.T) {
	svc := &bookingServiceMock{}
	h := NewBookingHandler(svc)

	c, w := newGinContext(http.MethodGet, "/clients/c1/bookings?status=confirmed&page=3", nil)
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.ListByClient(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", svc.filter.ClientID)
	assert.Equal(t, models.BookingStatusConfirmed, svc.filter.Status)
	assert.Equal(t, 3, svc.filter.Page)
	assert.Equal(t, 20, svc.filter.PageSize)
}
