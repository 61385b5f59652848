package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/omnidesk/backend/internal/apperr"
	"github.com/omnidesk/backend/internal/auth"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/http/middleware"
	"github.com/omnidesk/backend/internal/routing"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Store     Pinger
	Engine    *routing.Engine
	Directory *directory.Directory
	Hub       *events.Hub
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Error().Err(err).Msg("health check failed")
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// caller returns the authenticated context or aborts with 401.
func caller(c *gin.Context) (auth.Context, bool) {
	ac, ok := middleware.AuthContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials", nil)
		return auth.Context{}, false
	}
	return ac, true
}

// bind decodes and validates a JSON body. An empty body is accepted when
// optional is set and leaves req untouched.
func (h *Handler) bind(c *gin.Context, req any, optional bool) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
			return false
		}
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// renderError maps service errors onto the response envelope. Internal
// causes are never exposed.
func renderError(c *gin.Context, err error) {
	if sel, ok := apperr.AsDepartmentSelection(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"requiresDepartmentSelection": true,
			"availableDepartments":        sel.Available,
			"error": gin.H{
				"code":    "DEPARTMENT_SELECTION_REQUIRED",
				"message": "Select a department",
				"details": nil,
			},
		})
		return
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Internal server error", nil)
		return
	}
	writeError(c, ae.Kind.HTTPStatus(), ae.Code, ae.Message, ae.Details)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
