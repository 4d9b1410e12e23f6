// Package main provides the entrypoint for the RouteSafe API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api"
	"github.com/routesafe/routesafe/internal/api/middleware"
	"github.com/routesafe/routesafe/internal/auth"
	"github.com/routesafe/routesafe/internal/config"
	"github.com/routesafe/routesafe/internal/events"
	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/provider/resilience"
	"github.com/routesafe/routesafe/internal/routing"
	"github.com/routesafe/routesafe/internal/routing/googlemaps"
	"github.com/routesafe/routesafe/internal/routing/openrouteservice"
	"github.com/routesafe/routesafe/internal/routing/safety"
	"github.com/routesafe/routesafe/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "routesafe-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("api server failed")
	}
}

func run(log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RouteSafe API")

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if tp.Enabled() {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()

	waypoints := safety.NewClient(safety.ClientConfig{
		BaseURL:  cfg.SafetyRoutingURL,
		APIKey:   cfg.SafetyRoutingAPIKey,
		Timeout:  cfg.SafetyTimeout,
		Registry: registry,
		Logger:   log,
	})

	provider, err := directionsProvider(cfg, registry, log)
	if err != nil {
		return err
	}
	legs := routing.NewLegFetcher(routing.LegFetcherConfig{
		Provider: provider,
		Timeout:  cfg.LegTimeout,
		Logger:   log,
	})
	log.Info().
		Str("provider", provider.Name()).
		Dur("leg_timeout", cfg.LegTimeout).
		Int("leg_concurrency", cfg.LegConcurrency).
		Msg("directions provider initialized")

	sinks := []pipeline.Sink{pipeline.LogSink{Logger: log}}
	if cfg.PubSubEnabled() {
		publisher, err := events.NewPublisher(ctx, events.PublisherConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    log,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close run publisher")
			}
		}()
		sinks = append(sinks, publisher)
		log.Info().Str("topic", cfg.PubSubTopic).Msg("run publisher initialized")
	}

	var validator middleware.TokenValidator
	if cfg.AuthEnabled() {
		validator = auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
		})
		log.Info().Msg("bearer token auth enabled")
	} else if cfg.IsProduction() {
		log.Warn().Msg("JWT_SIGNING_KEY not set - route assembly is unauthenticated")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		RequireTLS:     cfg.RequireTLS,
		TokenValidator: validator,
		Waypoints:      waypoints,
		Legs:           legs,
		LegConcurrency: cfg.LegConcurrency,
		Sink:           pipeline.NewMultiSink(sinks...),
		Providers:      registry,
	})

	// No WriteTimeout: assembly responses are long-lived event streams.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("closing remaining streams")
		_ = server.Close()
	}

	log.Info().Msg("server stopped")
	return nil
}

func directionsProvider(cfg config.Config, registry *resilience.Registry, log zerolog.Logger) (routing.DirectionsProvider, error) {
	switch cfg.DirectionsProvider {
	case config.ProviderOpenRouteService:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSAPIKey,
			BaseURL:  cfg.ORSBaseURL,
			Timeout:  cfg.LegTimeout,
			Registry: registry,
			Logger:   log,
		}), nil
	default:
		return googlemaps.NewProvider(googlemaps.Config{
			APIKey:   cfg.GoogleMapsAPIKey,
			Timeout:  cfg.LegTimeout,
			Registry: registry,
			Logger:   log,
		})
	}
}
