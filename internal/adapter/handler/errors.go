package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/apartment-hub/internal/core/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps the domain error kinds onto HTTP. Anything outside the
// taxonomy is an internal failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed",
			"path", c.FullPath(),
			"request_id", c.GetString(ctxKeyRequestID),
			"error", err,
		)
		c.AbortWithStatusJSON(status, errorResponse{Error: message})
		return
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Details: err.Error()})
}
