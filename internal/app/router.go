package app

import (
	"net/http"

	"github.com/bnema/zerowrap"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/bnema/catalogd/internal/adapters/in/http/catalog"
	"github.com/bnema/catalogd/internal/adapters/in/http/middleware"
)

// newRouter builds the echo instance serving the catalog API.
func newRouter(cfg Config, c *components, log zerowrap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.SecurityHeaders())

	if cfg.Metrics.Enabled {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "catalogd_http",
			Registerer: c.registry,
		}))
		e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: c.registry,
		}))
	}

	e.GET("/healthz", func(ctx echo.Context) error {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	var throttle echo.MiddlewareFunc = passThrough
	if c.limiter != nil {
		throttle = middleware.RateLimit(c.limiter)
	}

	handler := catalog.NewHandler(c.service, cfg.MaxUploadBytes(), log)
	handler.Register(e, middleware.UploadAuth(cfg.Auth.UploadTokenHashes, log), throttle)

	return e
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}
