package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
)

// Attempt describes one finished attempt. It is handed to observers and
// lives only for the duration of the call.
type Attempt struct {
	OperationID string
	Category    Category
	Number      int
	Duration    time.Duration
	Err         error
	Kind        ErrorKind
	// NextDelay is the backoff before the next attempt, zero when none follows.
	NextDelay time.Duration
}

// Observer receives attempt and exhaustion events.
type Observer interface {
	OnAttempt(ctx context.Context, a Attempt)
	OnExhausted(ctx context.Context, err *OperationError, fallback bool)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the default Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OperationError is returned when an operation exhausts its attempts.
type OperationError struct {
	OperationID string
	Category    Category
	Attempts    int
	LastCause   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s (%s) failed after %d attempts: %v", e.OperationID, e.Category, e.Attempts, e.LastCause)
}

func (e *OperationError) Unwrap() error {
	return e.LastCause
}

// Executor runs operations under retry policies. It holds no per-call
// state and is safe for concurrent use.
type Executor struct {
	cfg       Config
	logger    *slog.Logger
	sleep     Sleeper
	observers []Observer
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the backoff sleeper, typically in tests.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithObserver registers an observer for attempt events.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithClock replaces the clock used to time attempts.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, log *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		logger: log,
		sleep:  ContextSleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor's configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Do runs op under policy p, discarding any result value.
func (e *Executor) Do(ctx context.Context, operationID string, p Policy, op func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, operationID, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Execute runs op under policy p.
//
// A failure whose kind the policy does not retry is returned unchanged.
// Once attempts are exhausted the last error is returned wrapped in an
// *OperationError, or the zero value and a nil error when p.SilentFallback
// is set. Cancellation of ctx stops the loop between attempts.
func Execute[T any](ctx context.Context, e *Executor, operationID string, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	r := e.cfg.resolve(p)
	log := logger.WithContext(ctx, e.logger).With(
		slog.String("operation", operationID),
		slog.String("category", string(p.Category)),
	)
	category := string(p.Category)

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		result, elapsed, err := runAttempt(ctx, e, r, op)

		AttemptDuration.WithLabelValues(category).Observe(elapsed.Seconds())
		if e.cfg.SlowThreshold > 0 && elapsed > e.cfg.SlowThreshold {
			SlowOperationsTotal.WithLabelValues(category).Inc()
			log.Warn("slow operation",
				slog.Int("attempt", attempt),
				slog.Duration("duration", elapsed),
				slog.Duration("threshold", e.cfg.SlowThreshold),
			)
		}

		a := Attempt{
			OperationID: operationID,
			Category:    p.Category,
			Number:      attempt,
			Duration:    elapsed,
			Err:         err,
		}

		if err == nil {
			AttemptsTotal.WithLabelValues(category, "success").Inc()
			e.notifyAttempt(ctx, a)
			if attempt > 1 {
				log.Info("operation succeeded after retry", slog.Int("attempts", attempt))
			}
			return result, nil
		}

		lastErr = err
		a.Kind = Classify(err)
		if ctx.Err() != nil {
			// The caller is gone; the failure belongs to it, not the dependency.
			AttemptsTotal.WithLabelValues(category, "failure").Inc()
			e.notifyAttempt(ctx, a)
			return zero, err
		}

		if !r.retryable(a.Kind) {
			AttemptsTotal.WithLabelValues(category, "failure").Inc()
			e.notifyAttempt(ctx, a)
			log.Debug("operation failed with non-retryable error",
				slog.Int("attempt", attempt),
				slog.String("kind", string(a.Kind)),
				slog.String("error", err.Error()),
			)
			return zero, err
		}

		if attempt == r.maxAttempts {
			AttemptsTotal.WithLabelValues(category, "failure").Inc()
			e.notifyAttempt(ctx, a)
			break
		}

		a.NextDelay = Backoff(r.initialDelay, r.maxDelay, attempt)
		AttemptsTotal.WithLabelValues(category, "retry").Inc()
		e.notifyAttempt(ctx, a)
		log.Warn("operation attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxAttempts),
			slog.String("kind", string(a.Kind)),
			slog.Duration("backoff", a.NextDelay),
			slog.String("error", err.Error()),
		)

		if err := e.sleep(ctx, a.NextDelay); err != nil {
			return zero, fmt.Errorf("%s: retry aborted after %d attempts: %w", operationID, attempt, err)
		}
	}

	opErr := &OperationError{
		OperationID: operationID,
		Category:    p.Category,
		Attempts:    r.maxAttempts,
		LastCause:   lastErr,
	}
	ExhaustedTotal.WithLabelValues(category, strconv.FormatBool(p.SilentFallback)).Inc()
	for _, o := range e.observers {
		o.OnExhausted(ctx, opErr, p.SilentFallback)
	}

	if p.SilentFallback {
		log.Warn("retries exhausted, returning fallback value",
			slog.Int("attempts", r.maxAttempts),
			slog.String("error", lastErr.Error()),
		)
		return zero, nil
	}

	log.Error("retries exhausted",
		slog.Int("attempts", r.maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return zero, opErr
}

// runAttempt calls op once, bounded by the policy's attempt timeout. An
// attempt that outlives its own timeout is tagged KindTimeout.
func runAttempt[T any](ctx context.Context, e *Executor, r resolved, op func(ctx context.Context) (T, error)) (T, time.Duration, error) {
	attemptCtx := ctx
	if r.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.AttemptTimeout)
		defer cancel()
	}

	start := e.now()
	result, err := op(attemptCtx)
	elapsed := e.now().Sub(start)

	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = WithKind(fmt.Errorf("attempt timed out after %s: %w", r.AttemptTimeout, err), KindTimeout)
	}
	return result, elapsed, err
}

func (e *Executor) notifyAttempt(ctx context.Context, a Attempt) {
	for _, o := range e.observers {
		o.OnAttempt(ctx, a)
	}
}
