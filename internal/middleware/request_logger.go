package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/damacus/your-files/internal/logger"
)

// RequestLogger attaches a request-scoped zerolog logger to the request
// context and logs one line per request once it completes.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			l := logger.Global().With().
				Str("request_id", GetRequestID(c)).
				Logger()
			c.SetRequest(req.WithContext(logger.WithLogger(req.Context(), &l)))

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is known.
				c.Error(err)
			}

			status := c.Response().Status
			var event *zerolog.Event
			switch {
			case status >= 500:
				event = l.Error().Err(err)
			case status >= 400:
				event = l.Warn().Err(err)
			default:
				event = l.Info()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes", c.Response().Size).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
