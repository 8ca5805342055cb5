package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// applyEnv overrides fields from DOCFLOW_<NAME> variables named by the env
// tags. Slices are comma separated, durations use time.ParseDuration syntax.
func applyEnv(cfg *Config, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return fmt.Errorf("apply %s* environment overrides: %w", EnvPrefix, err)
	}
	return nil
}
