// Package server provides configuration helpers that define runtime defaults,
// file and environment overrides, and validation for the relay service.
package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration settings.
type Config struct {
	Addr             string        `yaml:"addr" env:"CHAT_ADDR" validate:"required"`
	AllowedOrigins   string        `yaml:"allowed_origins" env:"CHAT_ALLOWED_ORIGINS"`
	MaxMessageSize   int64         `yaml:"max_message_size" env:"CHAT_MAX_MESSAGE_SIZE" validate:"gt=0"`
	SendBufferSize   int           `yaml:"send_buffer_size" env:"CHAT_SEND_BUFFER_SIZE" validate:"gt=0"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"CHAT_HANDSHAKE_TIMEOUT" validate:"gt=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"CHAT_WRITE_TIMEOUT" validate:"gt=0"`
	PongWait         time.Duration `yaml:"pong_wait" env:"CHAT_PONG_WAIT" validate:"gt=0"`
	PingInterval     time.Duration `yaml:"ping_interval" env:"CHAT_PING_INTERVAL" validate:"gt=0,ltfield=PongWait"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"CHAT_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	LogLevel         string        `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR"`
}

var validate = validator.New()

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Addr:             "127.0.0.1:8080",
		AllowedOrigins:   "*",
		MaxMessageSize:   4096,
		SendBufferSize:   256,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     54 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		LogLevel:         "INFO",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path when path is not empty, then environment variables. The result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads a YAML config file and expands ${VAR} references before
// decoding it over the current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Origins returns the configured origin list split on commas.
func (c *Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
