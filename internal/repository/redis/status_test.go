package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Andre27031510/vynlo-taste-sub001/internal/domain"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/logger"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

func noSleep(context.Context, time.Duration) error { return nil }

func setupTestRedis(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	exec := retry.NewExecutor(retry.DefaultConfig(), logger.Discard(), retry.WithSleeper(noSleep))
	return NewStatusCache(client, exec, logger.Discard(), time.Hour), mr
}

func TestStatusCache_SetAndGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cache.SetStatus(ctx, "o-1", domain.OrderStatusConfirmed)

	got, ok := cache.GetStatus(ctx, "o-1")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusConfirmed, got)
	assert.Equal(t, time.Hour, mr.TTL("order:status:o-1"))
}

func TestStatusCache_InFlightStatusHasShorterTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	cache.SetStatus(context.Background(), "o-1", domain.OrderStatusReserved)
	assert.Equal(t, 6*time.Minute, mr.TTL("order:status:o-1"))
}

func TestStatusCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, ok := cache.GetStatus(context.Background(), "unknown")
	assert.False(t, ok)
}

func TestStatusCache_Expiry(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cache.SetStatus(ctx, "o-1", domain.OrderStatusPaid)
	mr.FastForward(7 * time.Minute)

	_, ok := cache.GetStatus(ctx, "o-1")
	assert.False(t, ok)
}

func TestStatusCache_UnknownValueIsMiss(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("order:status:o-1", "SHIPPED"))

	_, ok := cache.GetStatus(context.Background(), "o-1")
	assert.False(t, ok)
}

func TestStatusCache_RedisDownIsAbsorbed(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	assert.NotPanics(t, func() { cache.SetStatus(ctx, "o-1", domain.OrderStatusConfirmed) })
	_, ok := cache.GetStatus(ctx, "o-1")
	assert.False(t, ok)
	assert.Error(t, cache.Ping(ctx))
}

func TestStatusCache_Invalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cache.SetStatus(ctx, "o-1", domain.OrderStatusFailed)
	require.NoError(t, cache.Invalidate(ctx, "o-1"))
	assert.False(t, mr.Exists("order:status:o-1"))
}

// readOnlyReplica rejects writes the way a demoted Redis primary does.
type readOnlyReplica struct{}

func (readOnlyReplica) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (readOnlyReplica) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "set" {
			err := errors.New("READONLY You can't write against a read only replica.")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (readOnlyReplica) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

var _ goredis.Hook = readOnlyReplica{}

func TestStatusCache_FailedWriteDropsOlderStatus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	exec := retry.NewExecutor(retry.DefaultConfig(), logger.Discard(), retry.WithSleeper(noSleep))
	cache := NewStatusCache(client, exec, logger.Discard(), time.Hour)
	ctx := context.Background()

	cache.SetStatus(ctx, "o-1", domain.OrderStatusPaid)
	require.True(t, mr.Exists("order:status:o-1"))

	client.AddHook(readOnlyReplica{})
	cache.SetStatus(ctx, "o-1", domain.OrderStatusCancelled)

	assert.False(t, mr.Exists("order:status:o-1"))
	_, ok := cache.GetStatus(ctx, "o-1")
	assert.False(t, ok)
}
