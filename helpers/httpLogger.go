package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs every request once it is served. 4xx responses are
// logged as warnings and 5xx as errors.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		status := ctx.Writer.Status()

		var event *zerolog.Event
		switch {
		case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
			event = log.Warn()
		case status >= http.StatusInternalServerError:
			event = log.Error()
		default:
			event = log.Info()
		}

		event = event.Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", ctx.ClientIP())

		if len(ctx.Errors) > 0 {
			event = event.Str("errors", ctx.Errors.String())
		}

		event.Msg("HTTP request:")
	}
}
