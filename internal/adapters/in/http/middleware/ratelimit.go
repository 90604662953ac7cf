package middleware

import (
	"net/http"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo/v4"

	"github.com/bnema/catalogd/internal/boundaries/out"
)

// RateLimit throttles requests per client IP.
func RateLimit(limiter out.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if limiter.Allow(c.Request().Context(), "ip:"+ip) {
				return next(c)
			}

			log := zerowrap.FromCtx(c.Request().Context())
			log.Debug().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str(zerowrap.FieldClientIP, ip).
				Str(zerowrap.FieldPath, c.Request().URL.Path).
				Msg("rate limit exceeded")

			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		}
	}
}
