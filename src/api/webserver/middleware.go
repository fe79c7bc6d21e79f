package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stake-plus/escrow-market/src/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing a sane inbound one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		ctx := context.WithValue(c.Request.Context(), logging.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Microsecond),
			"ip", c.ClientIP(),
		}
		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= 500:
			logging.Error(ctx, "request", args...)
		case c.Writer.Status() >= 400:
			logging.Warn(ctx, "request", args...)
		default:
			logging.Debug(ctx, "request", args...)
		}
	}
}

func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.Error(c.Request.Context(), "panic", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
	})
}
