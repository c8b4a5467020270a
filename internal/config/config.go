// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the portal runtime.
type Config struct {
	LogLevel  string `env:"PORTAL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"PORTAL_LOG_FORMAT" envDefault:"console"`

	// SnackbarAutoDismiss is how long a snackbar stays on screen before the
	// UI machine closes it.
	SnackbarAutoDismiss time.Duration `env:"PORTAL_SNACKBAR_TIMEOUT" envDefault:"4s"`

	// FakeLatency delays every fake backend call, making the demo's async
	// transitions observable.
	FakeLatency time.Duration `env:"PORTAL_FAKE_LATENCY" envDefault:"0"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
