// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httputil"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// Status is the health of a component or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// DefaultTimeout bounds a full readiness probe.
const DefaultTimeout = 5 * time.Second

// Response is the JSON body of both probes.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Status    Status `json:"status"`
	Critical  bool   `json:"critical"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type check struct {
	fn       Checker
	critical bool
}

// Handler aggregates dependency checks. A failing critical check makes the
// service unready; a failing optional one (a cache, the event bus) only
// degrades it, since the order workflow falls back without them.
type Handler struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
	now     func() time.Time
}

// NewHandler creates a handler with no checks.
func NewHandler() *Handler {
	return &Handler{
		checks:  make(map[string]check),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// Register adds a critical check.
func (h *Handler) Register(name string, fn Checker) {
	h.register(name, fn, true)
}

// RegisterOptional adds a check whose failure degrades but does not fail
// readiness.
func (h *Handler) RegisterOptional(name string, fn Checker) {
	h.register(name, fn, false)
}

func (h *Handler) register(name string, fn Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check{fn: fn, critical: critical}
}

// Names returns the registered check names in order.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LivenessHandler always answers 200 while the process is serving.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler runs every check concurrently and answers 503 when a
// critical one fails.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		status := http.StatusOK
		if resp.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}

// Check runs all registered checks and aggregates their status.
func (h *Handler) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make(map[string]check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(checks))
		g       errgroup.Group
	)
	for name, c := range checks {
		g.Go(func() error {
			start := time.Now()
			err := c.fn(ctx)
			res := CheckResult{
				Status:    StatusUp,
				Critical:  c.critical,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				res.Status = StatusDown
				res.Error = err.Error()
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusUp
	for _, res := range results {
		if res.Status != StatusDown {
			continue
		}
		if res.Critical {
			overall = StatusDown
			break
		}
		overall = StatusDegraded
	}

	return Response{Status: overall, Timestamp: h.now().UTC(), Checks: results}
}
