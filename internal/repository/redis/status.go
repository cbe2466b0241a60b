package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

const keyPrefix = "order:status:"

var (
	readPolicy  = retry.For(retry.CategoryCache).WithSilentFallback()
	writePolicy = retry.For(retry.CategoryRealtimeStore)
)

// StatusCache keeps the latest status of each order in Redis. Terminal
// statuses are kept for ttl; in-flight ones for a tenth of it so a stale
// entry cannot outlive a crashed workflow for long.
type StatusCache struct {
	client *redis.Client
	exec   *retry.Executor
	logger *slog.Logger
	ttl    time.Duration
}

// NewStatusCache creates a Redis-backed order status cache.
func NewStatusCache(client *redis.Client, exec *retry.Executor, logger *slog.Logger, ttl time.Duration) *StatusCache {
	return &StatusCache{
		client: client,
		exec:   exec,
		logger: logger,
		ttl:    ttl,
	}
}

// GetStatus returns the cached status. Redis failures and unknown values are
// reported as a miss.
func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool) {
	status, err := retry.Execute(ctx, c.exec, "cache.get_order_status", readPolicy, func(ctx context.Context) (domain.OrderStatus, error) {
		v, err := c.client.Get(ctx, keyPrefix+orderID).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("redis get order status: %w", err)
		}
		return domain.OrderStatus(v), nil
	})
	if err != nil || status == "" {
		return "", false
	}
	if !domain.IsValidStatus(status) {
		c.logger.WarnContext(ctx, "ignoring unknown cached order status",
			slog.String("order_id", orderID),
			slog.String("status", string(status)),
		)
		return "", false
	}
	return status, true
}

// SetStatus records status for orderID. When the write fails the previous
// entry is dropped so readers fall back to the store instead of seeing an
// older status.
func (c *StatusCache) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) {
	ttl := c.ttl
	if !status.IsTerminal() {
		ttl /= 10
	}
	err := c.exec.Do(ctx, "cache.set_order_status", writePolicy, func(ctx context.Context) error {
		if err := c.client.Set(ctx, keyPrefix+orderID, string(status), ttl).Err(); err != nil {
			return fmt.Errorf("redis set order status: %w", err)
		}
		return nil
	})
	if err == nil {
		return
	}
	if derr := c.Invalidate(ctx, orderID); derr != nil {
		c.logger.WarnContext(ctx, "stale order status may remain cached",
			slog.String("order_id", orderID),
			slog.String("status", string(status)),
			slog.String("error", derr.Error()),
		)
	}
}

// Invalidate removes the cached status of orderID.
func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	if err := c.client.Del(ctx, keyPrefix+orderID).Err(); err != nil {
		return fmt.Errorf("redis del order status: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
