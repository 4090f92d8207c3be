// Package config loads the live viewer's environment configuration.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/sudorandom/ropt-live/pkg/projection"
	"github.com/sudorandom/ropt-live/pkg/sources"
)

type Config struct {
	APIBase     string  `env:"ROPT_API_BASE" envDefault:"http://127.0.0.1:8000"`
	FrameWidth  float64 `env:"ROPT_FRAME_WIDTH"`
	FrameHeight float64 `env:"ROPT_FRAME_HEIGHT"`
	ZonesFile   string  `env:"ROPT_ZONES_FILE"`
	CacheDir    string  `env:"ROPT_CACHE_DIR"`
}

// Load reads Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.APIBase == "" {
		cfg.APIBase = sources.DefaultAPIBase
	}
	return &cfg, nil
}

// FixedBounds returns the configured world frame. ok is false unless both
// dimensions are positive, in which case bounds come from the zones.
func (c *Config) FixedBounds() (b projection.Bounds, ok bool) {
	if c.FrameWidth > 0 && c.FrameHeight > 0 {
		return projection.FixedBounds(c.FrameWidth, c.FrameHeight), true
	}
	return projection.Bounds{}, false
}

func (c *Config) StreamURL() string {
	return sources.StreamURL(c.APIBase)
}
