package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	apperrors "github.com/Andre27031510/vynlo-taste-sub001/pkg/errors"
)

// BreakerConfig tunes a BreakerClient. It loads from the environment under
// the caller's prefix, e.g. PAYMENT_BREAKER_OPEN_TIMEOUT.
type BreakerConfig struct {
	Name string `env:"-"`

	// HalfOpenProbes is how many requests may pass while half-open.
	HalfOpenProbes uint32 `env:"HALF_OPEN_PROBES" envDefault:"1"`
	// Window resets the closed-state counts. Zero keeps them forever.
	Window time.Duration `env:"WINDOW" envDefault:"60s"`
	// OpenTimeout is how long the breaker rejects before probing again.
	OpenTimeout  time.Duration `env:"OPEN_TIMEOUT" envDefault:"30s"`
	FailureRatio float64       `env:"FAILURE_RATIO" envDefault:"0.5"`
	// MinRequests must be seen in a window before FailureRatio applies.
	MinRequests uint32 `env:"MIN_REQUESTS" envDefault:"5"`
}

// DefaultBreakerConfig matches the env defaults above.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:           name,
		HalfOpenProbes: 1,
		Window:         time.Minute,
		OpenTimeout:    30 * time.Second,
		FailureRatio:   0.5,
		MinRequests:    5,
	}
}

// Validate rejects settings gobreaker would silently reinterpret.
func (c BreakerConfig) Validate() error {
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		return fmt.Errorf("breaker %s: failure ratio must be in (0, 1], got %v", c.Name, c.FailureRatio)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("breaker %s: open timeout must be positive", c.Name)
	}
	return nil
}

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	breakerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejected_total",
			Help: "Requests rejected without reaching the downstream",
		},
		[]string{"name"},
	)
)

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerClient sends requests through a circuit breaker. Transport errors,
// 5xx and 429 answers count against the downstream; a caller giving up
// (context cancelled) does not.
type BreakerClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

// NewBreakerClient wraps client.
func NewBreakerClient(client *Client, cfg BreakerConfig, logger *slog.Logger) *BreakerClient {
	minRequests, ratio := cfg.MinRequests, cfg.FailureRatio
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests &&
				float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))
			log := logger.Warn
			if to == gobreaker.StateClosed {
				log = logger.Info
			}
			log("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	breakerState.WithLabelValues(cfg.Name).Set(0)

	return &BreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](st),
		name:    cfg.Name,
	}
}

// Do sends req. While the breaker is open the request is not sent and a
// SERVICE_UNAVAILABLE error comes back, which retry policies treat as
// transient. Downstream 5xx and 429 answers are returned as errors with the
// body already consumed; any other status is handed to the caller.
func (b *BreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.breaker.Execute(func() (*http.Response, error) {
		resp, err := b.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, ParseResponseError(resp, b.name)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRejected.WithLabelValues(b.name).Inc()
		e := apperrors.ServiceUnavailable(b.name + ": circuit open")
		e.Err = err
		return nil, e
	}
	return resp, err
}

// State reports the breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}
