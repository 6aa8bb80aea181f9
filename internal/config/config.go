// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config contains the orchestrator's configuration parameters.
type Config struct {
	AppName      string   `env:"AUTHFLOW_APP_NAME" envDefault:"Authflow"`
	APIBaseURL   string   `env:"AUTHFLOW_API_BASE_URL" envDefault:"http://localhost:8000"`
	StateDir     string   `env:"AUTHFLOW_STATE_DIR"`
	CallbackAddr string   `env:"AUTHFLOW_CALLBACK_ADDR" envDefault:"127.0.0.1:53682"`
	Debug        bool     `env:"AUTHFLOW_DEBUG" envDefault:"false"`
	Telegram     Telegram `envPrefix:"AUTHFLOW_TELEGRAM_"`
}

// Telegram contains the widget flow parameters.
type Telegram struct {
	WidgetOrigin string `env:"WIDGET_ORIGIN" envDefault:"https://oauth.telegram.org"`
	BotName      string `env:"BOT" envDefault:""`
}

// Load reads configuration from environment variables. StateDir falls back to
// the user's config directory.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.StateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(base, "authflow")
	}
	return &cfg, nil
}

// StateFile returns the path of the persisted staging/credential state file.
func (c *Config) StateFile() string {
	return filepath.Join(c.StateDir, "state.json")
}
