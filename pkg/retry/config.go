package retry

import (
	"fmt"
	"time"
)

// CategoryConfig overrides the built-in defaults for one category. A zero
// MaxAttempts or an InitialDelay of Default keeps the built-in value; an
// explicit zero delay retries immediately.
type CategoryConfig struct {
	MaxAttempts  int           `env:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `env:"INITIAL_DELAY" envDefault:"-1ns"`
}

// Config holds executor-wide settings, loadable with caarlos0/env.
type Config struct {
	Database        CategoryConfig `envPrefix:"RETRY_DATABASE_"`
	Cache           CategoryConfig `envPrefix:"RETRY_CACHE_"`
	ExternalService CategoryConfig `envPrefix:"RETRY_EXTERNAL_SERVICE_"`
	RealtimeStore   CategoryConfig `envPrefix:"RETRY_REALTIME_STORE_"`

	MaxDelay      time.Duration `env:"RETRY_MAX_DELAY" envDefault:"30s"`
	SlowThreshold time.Duration `env:"SLOW_OPERATION_THRESHOLD" envDefault:"2s"`
}

var builtinDefaults = map[Category]CategoryConfig{
	CategoryDatabase:        {MaxAttempts: 3, InitialDelay: 100 * time.Millisecond},
	CategoryCache:           {MaxAttempts: 2, InitialDelay: 50 * time.Millisecond},
	CategoryExternalService: {MaxAttempts: 3, InitialDelay: 500 * time.Millisecond},
	CategoryRealtimeStore:   {MaxAttempts: 5, InitialDelay: 200 * time.Millisecond},
}

// DefaultConfig returns the built-in category defaults.
func DefaultConfig() Config {
	return Config{
		Database:        builtinDefaults[CategoryDatabase],
		Cache:           builtinDefaults[CategoryCache],
		ExternalService: builtinDefaults[CategoryExternalService],
		RealtimeStore:   builtinDefaults[CategoryRealtimeStore],
		MaxDelay:        DefaultMaxDelay,
		SlowThreshold:   2 * time.Second,
	}
}

// Validate checks the configured overrides.
func (c *Config) Validate() error {
	for _, cat := range Categories {
		o := c.override(cat)
		if o.MaxAttempts < 0 {
			return fmt.Errorf("retry %s: max attempts must be at least 1, got %d", cat, o.MaxAttempts)
		}
		if o.InitialDelay < 0 && o.InitialDelay != Default {
			return fmt.Errorf("retry %s: initial delay must not be negative, got %s", cat, o.InitialDelay)
		}
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("retry max delay must not be negative")
	}
	return nil
}

func (c *Config) override(cat Category) CategoryConfig {
	switch cat {
	case CategoryDatabase:
		return c.Database
	case CategoryCache:
		return c.Cache
	case CategoryExternalService:
		return c.ExternalService
	case CategoryRealtimeStore:
		return c.RealtimeStore
	}
	return CategoryConfig{InitialDelay: Default}
}

// For returns the effective defaults for a category.
func (c *Config) For(cat Category) CategoryConfig {
	o := c.override(cat)
	out := builtinDefaults[cat]
	if o.MaxAttempts > 0 {
		out.MaxAttempts = o.MaxAttempts
	}
	if o.InitialDelay >= 0 {
		out.InitialDelay = o.InitialDelay
	}
	return out
}

func (c *Config) resolve(p Policy) resolved {
	def := c.For(p.Category)
	r := resolved{
		Policy:       p,
		maxAttempts:  p.MaxAttempts,
		initialDelay: p.InitialDelay,
		maxDelay:     p.MaxDelay,
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = def.MaxAttempts
	}
	if r.initialDelay < 0 {
		r.initialDelay = def.InitialDelay
	}
	if r.maxDelay == 0 {
		r.maxDelay = c.MaxDelay
	}
	if r.maxDelay == 0 {
		r.maxDelay = DefaultMaxDelay
	}
	return r
}
