package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request. Errors attached with c.Error are
// included and raise the level.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		}
		if user, ok := CurrentUser(c); ok {
			attrs = append(attrs, "user_id", user.ID)
		}

		switch {
		case len(c.Errors) > 0:
			logger.Error("Request failed", append(attrs, "error", c.Errors.String())...)
		case c.Writer.Status() >= 500:
			logger.Error("Request failed", attrs...)
		default:
			logger.Info("Request handled", attrs...)
		}
	}
}
