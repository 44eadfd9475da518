package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rl1809/apartment-hub/internal/auth"
	"github.com/rl1809/apartment-hub/internal/core/domain"
)

const (
	ctxKeyRequestID = "request_id"
	ctxKeyPrincipal = "principal"
	headerRequestID = "X-Request-Id"
)

func withRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, reqID)
		c.Header(headerRequestID, reqID)
		c.Next()
	}
}

func withLogging(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		lat := time.Since(start)
		log.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency_ms", float64(lat.Microseconds())/1000.0,
			"request_id", c.GetString(ctxKeyRequestID),
		)
	}
}

// requireResident rejects requests without a valid bearer token and stores
// the caller's principal on the context.
func requireResident(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}
		p, err := tokens.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid token", Details: err.Error()})
			return
		}
		c.Set(ctxKeyPrincipal, p)
		c.Next()
	}
}

func principal(c *gin.Context) domain.Principal {
	p, _ := c.MustGet(ctxKeyPrincipal).(domain.Principal)
	return p
}
