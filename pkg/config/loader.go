// Package config loads env-tagged structs with caarlos0/env.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Validator is checked by Load once parsing succeeds.
type Validator interface {
	Validate() error
}

// Load fills cfg from the environment using its env tags, then runs
// Validate when cfg implements Validator.
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix reads every key as prefix+key, e.g. RETRY_DATABASE_ +
// MAX_ATTEMPTS.
func LoadWithPrefix(cfg any, prefix string) error {
	err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix})
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
