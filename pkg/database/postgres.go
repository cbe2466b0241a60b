package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"vynlo"`
	Password string `env:"PASSWORD" envDefault:"vynlo_secret"`
	DBName   string `env:"DB" envDefault:"vynlo_orders"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`

	MaxConns        int32         `env:"MAX_CONNS" envDefault:"25"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"5"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// DSN returns the PostgreSQL connection URL. Credentials are escaped.
func (c *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// connectPolicy gives a database that is still starting a few seconds.
var connectPolicy = retry.For(retry.CategoryDatabase).
	WithMaxAttempts(5).
	WithInitialDelay(time.Second)

// NewPostgresPool opens a pool and pings it, retrying through exec while the
// server is unreachable.
func NewPostgresPool(ctx context.Context, cfg *PostgresConfig, exec *retry.Executor, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := retry.Execute(ctx, exec, "postgres.connect", connectPolicy, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, Classify(err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("connected to postgres",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(cfg.MaxConns)),
	)
	return pool, nil
}
