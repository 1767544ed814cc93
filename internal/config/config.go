// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings for the llamalot core.
type Config struct {
	// DatabasePath is the embedded database file. Defaults to
	// ~/.llamalot/llamalot.db when unset.
	DatabasePath string `env:"LLAMALOT_DB"`

	// CacheTTLHours and AutoSync seed the cache policy for a fresh
	// store; once persisted, the stored values win.
	CacheTTLHours float64 `env:"LLAMALOT_CACHE_TTL_HOURS" envDefault:"1"`
	AutoSync      bool    `env:"LLAMALOT_AUTO_SYNC" envDefault:"true"`

	LogLevel string `env:"LLAMALOT_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DatabasePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DatabasePath = filepath.Join(home, ".llamalot", "llamalot.db")
	}
	return &cfg, nil
}
