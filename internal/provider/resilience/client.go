package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 10 * time.Second

// ErrCircuitOpen is returned without calling the provider while its breaker is
// open, or half-open with the probe budget spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a breaker-guarded provider client.
type ClientConfig struct {
	// Name is the provider name used for the breaker and the registry.
	Name string

	// Timeout bounds each call. Default: DefaultTimeout.
	Timeout time.Duration

	// CircuitBreaker overrides DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, tracks the client's breaker and call outcomes.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the provider defaults for name.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{Name: name, Timeout: DefaultTimeout}
}

// Client sends each request exactly once through a circuit breaker. A 5xx
// response counts as a breaker failure but is still returned to the caller so
// the provider's error payload can be read.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	registry *Registry
}

// NewClient creates a provider client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cbCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbCfg = *cfg.CircuitBreaker
	}
	cbCfg.Logger = cfg.Logger

	c := &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  NewCircuitBreaker[*http.Response](cbCfg), //nolint:bodyclose // type param
		registry: cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(c.name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Do sends req once. It never retries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
		r, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})

	var serverErr *ServerError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.record(ErrCircuitOpen)
		return nil, ErrCircuitOpen
	case IsCallerCancellation(err):
		return nil, err
	case errors.As(err, &serverErr):
		c.record(serverErr)
		return resp, nil
	case err != nil:
		c.record(err)
		return nil, err
	}
	c.record(nil)
	return resp, nil
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

// ServerError is a 5xx response seen by the breaker.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// RoundTripper lets SDKs that take an *http.Client share the breaker.
func (c *Client) RoundTripper() http.RoundTripper {
	return roundTripperFunc(c.Do)
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker counts for the current generation.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
