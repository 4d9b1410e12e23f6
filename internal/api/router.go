// Package api provides the HTTP API for RouteSafe.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api/handler"
	"github.com/routesafe/routesafe/internal/api/middleware"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/provider/resilience"
	"github.com/routesafe/routesafe/internal/routing"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// TokenValidator protects the assemble endpoint when set.
	TokenValidator middleware.TokenValidator

	Waypoints      routing.WaypointSource
	Legs           pipeline.LegFetcher
	LegConcurrency int
	Sink           pipeline.Sink
	Providers      *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "routesafe-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	routeHandler := handler.NewRouteHandler(handler.RouteHandlerConfig{
		Waypoints:      cfg.Waypoints,
		Legs:           cfg.Legs,
		LegConcurrency: cfg.LegConcurrency,
		Sink:           cfg.Sink,
		Logger:         cfg.Logger,
	})
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Providers, routeHandler)
	metadataHandler := handler.NewMetadataHandler()

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/enums", metadataHandler.GetEnums)
		})

		// Each assembly holds a stream open and fans out to the routing
		// providers, so it is limited per caller.
		r.Group(func(r chi.Router) {
			if cfg.TokenValidator != nil {
				r.Use(middleware.Auth(cfg.TokenValidator))
			}
			r.Use(middleware.RateLimitByCaller(middleware.AssembleRateLimit))
			r.Use(middleware.RequireJSON)
			r.Post("/routes:assemble", routeHandler.Assemble)
		})
	})

	return r
}
