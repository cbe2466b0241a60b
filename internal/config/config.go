package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/Andre27031510/vynlo-taste-sub001/pkg/config"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/database"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/httpclient"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/kafka"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
	"github.com/Andre27031510/vynlo-taste-sub001/pkg/tracing"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the order service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort             int           `env:"HTTP_PORT" envDefault:"8080"`
	SlowRequestThreshold time.Duration `env:"SLOW_REQUEST_THRESHOLD" envDefault:"2s"`

	// Storage
	StorageDriver      string                  `env:"STORAGE_DRIVER" envDefault:"memory"`
	Postgres           database.PostgresConfig `envPrefix:"POSTGRES_"`
	SlowQueryThreshold time.Duration           `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis order status cache
	RedisEnabled   bool                 `env:"REDIS_ENABLED" envDefault:"false"`
	Redis          database.RedisConfig `envPrefix:"REDIS_"`
	StatusCacheTTL time.Duration        `env:"STATUS_CACHE_TTL" envDefault:"10m"`

	// Kafka
	KafkaEnabled     bool                 `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers     []string             `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID     string               `env:"KAFKA_GROUP_ID" envDefault:"order-service-cancel-requested"`
	KafkaProducer    kafka.ProducerConfig `envPrefix:"KAFKA_PRODUCER_"`
	EventDedupWindow time.Duration        `env:"EVENT_DEDUP_WINDOW" envDefault:"24h"`

	// Payment gateway. An empty URL selects the in-process gateway.
	PaymentGatewayURL   string                   `env:"PAYMENT_GATEWAY_URL"`
	PaymentTimeout      time.Duration            `env:"PAYMENT_TIMEOUT" envDefault:"10s"`
	PaymentRateLimitRPS float64                  `env:"PAYMENT_RATE_LIMIT_RPS" envDefault:"50"`
	PaymentRateBurst    int                      `env:"PAYMENT_RATE_BURST" envDefault:"10"`
	PaymentBreaker      httpclient.BreakerConfig `envPrefix:"PAYMENT_BREAKER_"`

	// Workflow
	MaxOrderLines int `env:"MAX_ORDER_LINES" envDefault:"50"`

	// Retry engine
	Retry retry.Config

	// Background jobs
	StaleOrderTimeout  time.Duration `env:"STALE_ORDER_TIMEOUT" envDefault:"15m"`
	StaleSweepInterval time.Duration `env:"STALE_SWEEP_INTERVAL" envDefault:"1m"`
	RecoveryInterval   time.Duration `env:"RECOVERY_INTERVAL" envDefault:"30s"`
	RecoveryMinAge     time.Duration `env:"RECOVERY_MIN_AGE" envDefault:"1m"`
	JobBatchSize       int           `env:"JOB_BATCH_SIZE" envDefault:"100"`

	// OpenTelemetry
	Tracing tracing.Config `envPrefix:"OTEL_"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{StorageMemory, StoragePostgres}, c.StorageDriver) {
		return fmt.Errorf("invalid storage driver %q: want %s or %s", c.StorageDriver, StorageMemory, StoragePostgres)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive, got %s", c.PaymentTimeout)
	}
	if c.PaymentRateLimitRPS < 0 {
		return fmt.Errorf("PAYMENT_RATE_LIMIT_RPS must not be negative")
	}
	if c.MaxOrderLines < 1 {
		return fmt.Errorf("MAX_ORDER_LINES must be at least 1")
	}
	if c.StaleOrderTimeout <= 0 {
		return fmt.Errorf("STALE_ORDER_TIMEOUT must be positive")
	}
	if c.StaleSweepInterval <= 0 || c.RecoveryInterval <= 0 {
		return fmt.Errorf("job intervals must be positive")
	}
	if c.RecoveryMinAge >= c.StaleOrderTimeout {
		return fmt.Errorf("RECOVERY_MIN_AGE (%s) must be below STALE_ORDER_TIMEOUT (%s)", c.RecoveryMinAge, c.StaleOrderTimeout)
	}
	if c.JobBatchSize < 1 {
		return fmt.Errorf("JOB_BATCH_SIZE must be at least 1")
	}
	if err := c.PaymentBreaker.Validate(); err != nil {
		return err
	}
	return c.Retry.Validate()
}
