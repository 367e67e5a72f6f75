package client

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

// Config holds the terminal client settings.
type Config struct {
	URL         string        `env:"CHAT_URL" validate:"required,url"`
	Name        string        `env:"CHAT_NAME" validate:"required"`
	Origin      string        `env:"CHAT_ORIGIN"`
	DialTimeout time.Duration `env:"CHAT_DIAL_TIMEOUT" validate:"gt=0"`
	LogLevel    string        `env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
}

var validate = validator.New()

// DefaultConfig points at a relay on the local default address.
func DefaultConfig() Config {
	return Config{
		URL:         "ws://127.0.0.1:8080",
		DialTimeout: 5 * time.Second,
		LogLevel:    "WARN",
	}
}

// ConfigFromEnv overlays environment variables on the defaults. The result is
// not validated yet since the name may still come from a prompt.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}
	return nil
}
