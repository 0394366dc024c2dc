package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-class-api/internal/middleware"
	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

const studioHeader = "X-Studio-ID"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// studioFromRequest resolves the studio a request acts on. A studio-scoped
// token wins over the header so callers cannot address another tenant.
func studioFromRequest(c *gin.Context) (string, error) {
	if claims := claimsFromContext(c); claims != nil && claims.StudioID != "" {
		return claims.StudioID, nil
	}
	if studio := c.GetHeader(studioHeader); studio != "" {
		return studio, nil
	}
	if studio := c.Query("studioId"); studio != "" {
		return studio, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "studio is required")
}

// isClient is true when the caller is an end client rather than studio staff.
func isClient(c *gin.Context) bool {
	claims := claimsFromContext(c)
	return claims != nil && claims.Role == models.RoleClient
}

// ownsResource blocks clients from touching another client's booking or entry.
func ownsResource(c *gin.Context, clientID string) error {
	if !isClient(c) {
		return nil
	}
	if claimsFromContext(c).UserID != clientID {
		return appErrors.ErrForbidden
	}
	return nil
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(c *gin.Context, key string, fallback bool) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, appErrors.Clone(appErrors.ErrValidation, key+" must be a boolean")
	}
	return v, nil
}

// parseTimeParam accepts RFC3339 timestamps or plain dates (UTC midnight).
func parseTimeParam(key, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

// bindOptionalJSON binds a JSON body when one is sent. Chunked bodies carry no
// Content-Length, so an empty stream is detected by io.EOF instead.
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
