package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// LogApi writes one structured access log line per request. The websocket
// upgrade is logged when the connection is handed to the gateway.
func LogApi() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"clientIP", c.ClientIP(),
			"proto", c.Request.Proto,
		}
		if userID := c.GetString(ContextUserID); userID != "" {
			attrs = append(attrs, "userID", userID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny).String(); errs != "" {
			attrs = append(attrs, "error", errs)
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			slog.Error("HTTP request", attrs...)
		case status >= 400:
			slog.Warn("HTTP request", attrs...)
		default:
			slog.Info("HTTP request", attrs...)
		}
	}
}
