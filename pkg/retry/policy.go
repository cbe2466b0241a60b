// Package retry executes operations under an explicit retry contract:
// bounded attempts, exponential backoff with a ceiling, error-kind filters
// and an optional silent fallback on exhaustion.
package retry

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Category classifies the dependency an operation talks to. It selects the
// default attempt budget and initial delay.
type Category string

const (
	CategoryDatabase        Category = "DATABASE"
	CategoryCache           Category = "CACHE"
	CategoryExternalService Category = "EXTERNAL_SERVICE"
	CategoryRealtimeStore   Category = "REALTIME_STORE"
)

// Categories lists every retry category.
var Categories = []Category{
	CategoryDatabase,
	CategoryCache,
	CategoryExternalService,
	CategoryRealtimeStore,
}

// Default is the sentinel for MaxAttempts and InitialDelay that selects the
// category default.
const Default = -1

// DefaultMaxDelay caps the backoff delay when neither the policy nor the
// executor config sets one.
const DefaultMaxDelay = 30 * time.Second

// Policy is the retry contract for a single call.
type Policy struct {
	Category Category

	// MaxAttempts counts the first call. Values below 1 select the category default.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Negative selects the
	// category default; zero retries immediately.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Zero uses the executor's ceiling.
	MaxDelay time.Duration

	// AttemptTimeout bounds each attempt. Zero means the caller's context only.
	AttemptTimeout time.Duration

	// RetryOn, when non-empty, is the only set of kinds that are retried. It
	// may name DECLINED, NOT_FOUND or CONFLICT, which are otherwise not
	// retried; VALIDATION, RESOURCE, STATE, CANCELED and PERMANENT never are.
	RetryOn []ErrorKind

	// NoRetryOn kinds fail immediately. It takes precedence over RetryOn.
	NoRetryOn []ErrorKind

	// SilentFallback returns the zero value instead of an error once
	// attempts are exhausted.
	SilentFallback bool
}

// For returns a policy for category with every tunable at its default.
func For(category Category) Policy {
	return Policy{
		Category:     category,
		MaxAttempts:  Default,
		InitialDelay: Default,
	}
}

// WithMaxAttempts returns a copy of p with the attempt budget overridden.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// WithInitialDelay returns a copy of p with the initial delay overridden.
func (p Policy) WithInitialDelay(d time.Duration) Policy {
	p.InitialDelay = d
	return p
}

// WithAttemptTimeout returns a copy of p with a per-attempt timeout.
func (p Policy) WithAttemptTimeout(d time.Duration) Policy {
	p.AttemptTimeout = d
	return p
}

// WithSilentFallback returns a copy of p that swallows exhaustion.
func (p Policy) WithSilentFallback() Policy {
	p.SilentFallback = true
	return p
}

// Validate rejects policies that cannot be executed.
func (p Policy) Validate() error {
	if !slices.Contains(Categories, p.Category) {
		return fmt.Errorf("unknown retry category %q", p.Category)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative, got %s", p.MaxDelay)
	}
	if p.AttemptTimeout < 0 {
		return fmt.Errorf("attempt timeout must not be negative, got %s", p.AttemptTimeout)
	}
	return nil
}

// retryable reports whether a failure of the given kind may be retried.
func (p Policy) retryable(kind ErrorKind) bool {
	if kind.fatal() {
		return false
	}
	if slices.Contains(p.NoRetryOn, kind) {
		return false
	}
	if len(p.RetryOn) > 0 {
		return slices.Contains(p.RetryOn, kind)
	}
	return !kind.optIn()
}

// resolved is a policy with every default filled in.
type resolved struct {
	Policy
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// Backoff returns the delay after the given failed attempt (1-based):
// initialDelay * 2^(attempt-1), capped at maxDelay.
func Backoff(initialDelay, maxDelay time.Duration, attempt int) time.Duration {
	if initialDelay <= 0 || attempt < 1 {
		return 0
	}
	d := initialDelay
	for i := 1; i < attempt; i++ {
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
		if d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
