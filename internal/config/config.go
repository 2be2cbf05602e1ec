// Package config loads hub/client configuration from environment variables
// (and an optional .env file), grounded on the teacher's config.go
// (caarlos0/env/v11 + joho/godotenv), generalized from a Kafka-consuming
// broadcast server to a PWS hub/client pair.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Hub holds configuration for the pws-hub process.
type Hub struct {
	Addr string `env:"PWS_HUB_ADDR" envDefault:":3002"`

	MaxConnections int `env:"PWS_MAX_CONNECTIONS" envDefault:"500"`
	MaxGoroutines  int `env:"PWS_MAX_GOROUTINES" envDefault:"1000"`

	CPURejectThreshold float64 `env:"PWS_CPU_REJECT_THRESHOLD" envDefault:"75.0"`

	IPBurst     int           `env:"PWS_IP_BURST" envDefault:"10"`
	IPRate      float64       `env:"PWS_IP_RATE" envDefault:"1.0"`
	IPTTL       time.Duration `env:"PWS_IP_TTL" envDefault:"5m"`
	GlobalBurst int           `env:"PWS_GLOBAL_BURST" envDefault:"300"`
	GlobalRate  float64       `env:"PWS_GLOBAL_RATE" envDefault:"50.0"`

	AllowPortForwarding bool `env:"PWS_ALLOW_PORT_FORWARDING" envDefault:"false"`

	NATSUrl string `env:"PWS_NATS_URL" envDefault:"nats://localhost:4222"`

	MetricsAddr string `env:"PWS_METRICS_ADDR" envDefault:":9102"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Client holds configuration for the pws-client process.
type Client struct {
	HubURL string `env:"PWS_HUB_URL" envDefault:"ws://localhost:3002/rpc1"`

	AllowPortForwarding bool `env:"PWS_ALLOW_PORT_FORWARDING" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadHub reads Hub configuration from .env/environment variables.
func LoadHub(logger *zerolog.Logger) (*Hub, error) {
	loadDotenv(logger)

	cfg := &Hub{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hub config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hub config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadClient reads Client configuration from .env/environment variables.
func LoadClient(logger *zerolog.Logger) (*Client, error) {
	loadDotenv(logger)

	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if cfg.HubURL == "" {
		return nil, fmt.Errorf("PWS_HUB_URL is required")
	}
	return cfg, nil
}

func loadDotenv(logger *zerolog.Logger) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
		return
	}
	if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}
}

// Validate checks Hub configuration for internally consistent values.
func (c *Hub) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("PWS_HUB_ADDR is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("PWS_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("PWS_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got %s)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got %s)", c.LogFormat)
	}
	return nil
}

// LogConfig logs Hub configuration as structured fields.
func (c *Hub) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Int("max_connections", c.MaxConnections).
		Int("max_goroutines", c.MaxGoroutines).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Bool("allow_port_forwarding", c.AllowPortForwarding).
		Str("nats_url", c.NATSUrl).
		Str("metrics_addr", c.MetricsAddr).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("hub configuration loaded")
}
