// Package config loads service configuration from the environment and an
// optional .env file. Process environment values take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Directions providers.
const (
	ProviderGoogleMaps       = "googlemaps"
	ProviderOpenRouteService = "openrouteservice"
)

// Config holds the service configuration.
type Config struct {
	Port        string
	Environment string
	RequireTLS  bool

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	SafetyRoutingURL    string
	SafetyRoutingAPIKey string
	SafetyTimeout       time.Duration

	DirectionsProvider string
	GoogleMapsAPIKey   string
	ORSAPIKey          string
	ORSBaseURL         string
	LegTimeout         time.Duration
	LegConcurrency     int

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	PubSubProjectID    string
	PubSubTopic        string
	PubSubSubscription string
}

// AuthEnabled reports whether route endpoints require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.JWTSigningKey != ""
}

// PubSubEnabled reports whether run summaries are published.
func (c Config) PubSubEnabled() bool {
	return c.PubSubProjectID != "" && c.PubSubTopic != ""
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration. envFile is read when it exists; a missing file is
// not an error.
func Load(envFile string) (Config, error) {
	fileValues := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileValues = values
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	l := loader{file: fileValues}

	cfg := Config{
		Port:                l.str("APP_PORT", "8080"),
		Environment:         l.str("APP_ENV", "development"),
		RequireTLS:          l.str("REQUIRE_TLS", "false") == "true",
		OTelEnabled:         l.str("OTEL_ENABLED", "false") == "true",
		OTLPEndpoint:        l.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:     l.float("OTEL_TRACES_SAMPLER_ARG", 1),
		SafetyRoutingURL:    l.str("SAFETY_ROUTING_URL", ""),
		SafetyRoutingAPIKey: l.str("SAFETY_ROUTING_API_KEY", ""),
		SafetyTimeout:       l.duration("SAFETY_TIMEOUT", 10*time.Second),
		DirectionsProvider:  strings.ToLower(l.str("DIRECTIONS_PROVIDER", ProviderGoogleMaps)),
		GoogleMapsAPIKey:    l.str("GOOGLE_MAPS_API_KEY", ""),
		ORSAPIKey:           l.str("ORS_API_KEY", ""),
		ORSBaseURL:          l.str("ORS_BASE_URL", ""),
		LegTimeout:          l.duration("LEG_TIMEOUT", 15*time.Second),
		LegConcurrency:      l.integer("LEG_CONCURRENCY", 0),
		JWTSigningKey:       l.str("JWT_SIGNING_KEY", ""),
		JWTIssuer:           l.str("JWT_ISSUER", ""),
		JWTAudience:         l.str("JWT_AUDIENCE", ""),
		PubSubProjectID:     l.str("PUBSUB_PROJECT_ID", ""),
		PubSubTopic:         l.str("PUBSUB_TOPIC", ""),
		PubSubSubscription:  l.str("PUBSUB_SUBSCRIPTION", ""),
	}

	if len(l.errs) > 0 {
		return cfg, errors.Join(l.errs...)
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings for the API server.
func (c Config) Validate() error {
	var errs []error

	if c.SafetyRoutingURL == "" {
		errs = append(errs, errors.New("SAFETY_ROUTING_URL is required"))
	}

	switch c.DirectionsProvider {
	case ProviderGoogleMaps:
		if c.GoogleMapsAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required for the googlemaps provider"))
		}
	case ProviderOpenRouteService:
		if c.ORSAPIKey == "" {
			errs = append(errs, errors.New("ORS_API_KEY is required for the openrouteservice provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("DIRECTIONS_PROVIDER %q is not supported", c.DirectionsProvider))
	}

	if c.SafetyTimeout <= 0 {
		errs = append(errs, errors.New("SAFETY_TIMEOUT must be positive"))
	}
	if c.LegTimeout <= 0 {
		errs = append(errs, errors.New("LEG_TIMEOUT must be positive"))
	}
	if c.LegConcurrency < 0 {
		errs = append(errs, errors.New("LEG_CONCURRENCY must not be negative"))
	}
	if c.OTelSampleRatio < 0 || c.OTelSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1"))
	}
	if (c.PubSubProjectID == "") != (c.PubSubTopic == "") {
		errs = append(errs, errors.New("PUBSUB_PROJECT_ID and PUBSUB_TOPIC must be set together"))
	}

	return errors.Join(errs...)
}

type loader struct {
	file map[string]string
	errs []error
}

func (l *loader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := l.file[key]; value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func (l *loader) integer(key string, defaultValue int) int {
	raw := l.str(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func (l *loader) float(key string, defaultValue float64) float64 {
	raw := l.str(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return f
}
