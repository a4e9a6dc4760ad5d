package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/pms/internal/config"
	"github.com/ehr/pms/internal/domain/patient"
	"github.com/ehr/pms/internal/platform/db"
	"github.com/ehr/pms/internal/platform/metrics"
	"github.com/ehr/pms/internal/platform/middleware"
)

// newServer builds the echo instance with global middleware, the patient
// routes, /health and /metrics.
func newServer(cfg *config.Config, st *store, logger zerolog.Logger) *echo.Echo {
	collector := metrics.NewCollector("pms")

	svc := patient.NewService(st.gw, logger)
	svc.SetRecorder(collector)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Metrics(collector))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(svc).RegisterRoutes(e, apiV1)

	e.GET("/health", db.HealthHandler(svc, st.driver, st.pool))
	e.GET("/metrics", echo.WrapHandler(collector.Handler()))

	return e
}
