package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerEnv holds the server settings that come only from the environment.
type ServerEnv struct {
	JWTSecret   string        `env:"SITEFORMS_JWT_SECRET"`
	PageIdleTTL time.Duration `env:"SITEFORMS_PAGE_IDLE_TTL" envDefault:"30m"`
	SweepEvery  time.Duration `env:"SITEFORMS_PAGE_SWEEP_INTERVAL" envDefault:"1m"`
	WebhookPoll time.Duration `env:"SITEFORMS_WEBHOOK_POLL_INTERVAL" envDefault:"2s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServerEnv parses ServerEnv and fills zero durations.
func LoadServerEnv() (ServerEnv, error) {
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		return ServerEnv{}, err
	}
	if cfg.PageIdleTTL <= 0 {
		cfg.PageIdleTTL = 30 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	if cfg.WebhookPoll <= 0 {
		cfg.WebhookPoll = 2 * time.Second
	}
	return cfg, nil
}
