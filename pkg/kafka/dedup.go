package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Deduplicator claims event ids so an event redelivered by the broker, or
// seen by two consumers during a rebalance, is handled once per window.
type Deduplicator interface {
	// Claim reports whether the caller now owns eventID. False means another
	// delivery claimed it within the window.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release gives up a claim so a failed event can be handled again.
	Release(ctx context.Context, eventID string) error
}

const pruneEvery = 256

// MemoryDeduplicator is a Deduplicator local to one process.
type MemoryDeduplicator struct {
	mu      sync.Mutex
	expires map[string]time.Time
	window  time.Duration
	claims  int
	now     func() time.Time
}

// NewMemoryDeduplicator remembers claims for window.
func NewMemoryDeduplicator(window time.Duration) *MemoryDeduplicator {
	return &MemoryDeduplicator{
		expires: make(map[string]time.Time),
		window:  window,
		now:     time.Now,
	}
}

func (d *MemoryDeduplicator) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.expires[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	d.expires[eventID] = now.Add(d.window)

	d.claims++
	if d.claims%pruneEvery == 0 {
		for id, exp := range d.expires {
			if !now.Before(exp) {
				delete(d.expires, id)
			}
		}
	}
	return true, nil
}

func (d *MemoryDeduplicator) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	delete(d.expires, eventID)
	d.mu.Unlock()
	return nil
}

// Len counts remembered ids, expired ones not yet pruned included.
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.expires)
}

// Deduplicated wraps inner so that each event id is handled once. Events
// without an id always pass. If inner fails the claim is released and the
// error returned, leaving retry to the consumer. When the deduplicator itself
// is unreachable the event is handled anyway; handlers must be idempotent.
func Deduplicated(d Deduplicator, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		claimed, err := d.Claim(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "dedup claim failed, handling event anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}
		if !claimed {
			topic, group := consumerLabels(ctx)
			ConsumerMessagesDuplicate.WithLabelValues(topic, group).Inc()
			logger.DebugContext(ctx, "duplicate event dropped",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			if rerr := d.Release(ctx, event.EventID); rerr != nil {
				logger.WarnContext(ctx, "dedup release failed, redelivery will be dropped",
					slog.String("event_id", event.EventID),
					slog.String("error", rerr.Error()),
				)
			}
			return err
		}
		return nil
	}
}
