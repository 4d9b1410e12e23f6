// Package main provides the entrypoint for the RouteSafe run event worker. It
// consumes finished-run events and keeps running outcome statistics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/api/middleware"
	"github.com/routesafe/routesafe/internal/api/models"
	"github.com/routesafe/routesafe/internal/api/response"
	"github.com/routesafe/routesafe/internal/config"
	"github.com/routesafe/routesafe/internal/events"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName   = "routesafe-worker"
	statsInterval = time.Minute
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run(log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting RouteSafe worker")

	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	if cfg.PubSubProjectID == "" || cfg.PubSubSubscription == "" {
		return errors.New("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := events.NewRunStats(log)
	consumer, err := events.NewConsumer(ctx, events.ConsumerConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		Handler:          stats.Handle,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := consumer.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close consumer")
		}
	}()

	// The worker exposes health and stats for the platform's probes.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{
			Status:  models.HealthStatusOK,
			Time:    models.Timestamp(time.Now()),
			Details: map[string]interface{}{"version": Version},
		})
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, stats.Snapshot())
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}()
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.Log()
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errs:
	case <-quit:
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	stats.Log()
	log.Info().Msg("worker stopped")
	return runErr
}
