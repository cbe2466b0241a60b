package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// RedisConfig is loaded under REDIS_. Timeouts are short; callers fall back
// when Redis is slow.
type RedisConfig struct {
	Host         string        `env:"HOST" envDefault:"localhost"`
	Port         int           `env:"PORT" envDefault:"6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB" envDefault:"0"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"20"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"500ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"500ms"`
}

func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewRedisClient connects and pings Redis under the realtime-store retry
// policy. The client is closed again if Redis never answers.
func NewRedisClient(ctx context.Context, cfg RedisConfig, exec *retry.Executor) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := exec.Do(ctx, "redis.connect", retry.For(retry.CategoryRealtimeStore), ping); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr(), err)
	}
	return client, nil
}
