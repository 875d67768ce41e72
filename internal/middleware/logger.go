package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger logs one line per request. Bodies and query strings are never
// logged; share codes travel in both.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = log.Error()
		case statusCode >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event = event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent())
		if actor, ok := ActorFromContext(c); ok {
			event = event.Str("actor_user_id", actor.UserID.String()).Str("actor_role", string(actor.Role))
		}

		switch {
		case statusCode >= 500:
			event.Msg("Server error")
		case statusCode >= 400:
			event.Msg("Client error")
		default:
			event.Msg("Request processed")
		}
	}
}
