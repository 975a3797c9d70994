package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "LineGuard/pkg/logger"
)

// RequestLogging logs one line per request at debug level; failed requests
// are logged by the metrics middleware.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			l.Debug("request",
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("duration_ms", time.Since(start)),
			)
			return err
		}
	}
}
