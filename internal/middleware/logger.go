package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirrus-mro/cirrus-api/internal/audit"
)

// LoggerMiddleware writes one slog record per request. The output format follows the default
// handler installed by telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(RequestIDKey)),
		}
		if rc, err := audit.FromGin(c); err == nil {
			attrs = append(attrs, slog.String("session_id", rc.SessionID))
			if rc.UserID != nil {
				attrs = append(attrs, slog.String("user_id", *rc.UserID))
			}
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
