package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "order:event:claimed:"

// EventDeduplicator claims consumed event ids in Redis, so the dedup window
// holds across consumer instances and restarts.
type EventDeduplicator struct {
	client *redis.Client
	window time.Duration
}

// NewEventDeduplicator keeps claims for window.
func NewEventDeduplicator(client *redis.Client, window time.Duration) *EventDeduplicator {
	return &EventDeduplicator{client: client, window: window}
}

// Claim uses SET NX so concurrent deliveries have exactly one winner.
func (d *EventDeduplicator) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, claimPrefix+eventID, 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return ok, nil
}

func (d *EventDeduplicator) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, claimPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}
