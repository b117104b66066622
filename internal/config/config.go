// Package config resolves startup configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/vantage-db/vantage/internal/secrets"
)

const envPrefix = "VANTAGE_"

// Config is everything the process needs at startup. The master secret feeds
// the credential cipher and is resolved exactly once here; a missing secret
// fails the process immediately instead of surfacing at first use.
type Config struct {
	ListenAddr   string
	MasterSecret string
	HistoryLimit int
}

// Load reads VANTAGE_* environment variables over defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"listen_addr":   ":7700",
		"history_limit": 200,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load config defaults: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	cfg := &Config{
		ListenAddr:   k.String("listen_addr"),
		MasterSecret: k.String("master_secret"),
		HistoryLimit: k.Int("history_limit"),
	}

	if cfg.MasterSecret == "" {
		return nil, fmt.Errorf("%w: set VANTAGE_MASTER_SECRET", secrets.ErrMissingSecret)
	}
	if cfg.HistoryLimit < 1 {
		return nil, fmt.Errorf("VANTAGE_HISTORY_LIMIT must be >= 1, got %d", cfg.HistoryLimit)
	}

	return cfg, nil
}
