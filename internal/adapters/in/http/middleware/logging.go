// Package middleware provides the echo middleware of the HTTP adapter.
package middleware

import (
	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLogger attaches log to the request context for downstream handlers
// and writes one access line per request.
func RequestLogger(log zerowrap.Logger) echo.MiddlewareFunc {
	access := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:          true,
		LogStatus:       true,
		LogMethod:       true,
		LogRemoteIP:     true,
		LogLatency:      true,
		LogResponseSize: true,
		LogRequestID:    true,
		LogError:        true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Status >= 500 {
				event = log.Error().Err(v.Error)
			}
			event.
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str("request_id", v.RequestID).
				Str(zerowrap.FieldMethod, v.Method).
				Str(zerowrap.FieldPath, v.URI).
				Str(zerowrap.FieldClientIP, v.RemoteIP).
				Int(zerowrap.FieldStatus, v.Status).
				Int64("bytes", v.ResponseSize).
				Dur(zerowrap.FieldDuration, v.Latency).
				Msg("request")
			return nil
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return access(func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(zerowrap.WithCtx(req.Context(), log)))
			return next(c)
		})
	}
}
