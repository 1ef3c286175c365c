// Package main provides the PatchWatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patchwatch/patchwatch/internal/cleanup"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Alerting AlertingConfig `yaml:"alerting"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Verbose  bool           `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Address   string `yaml:"address"`    // HTTP listen address (default: :8080)
	JWTSecret string `yaml:"jwt_secret"` // overridden by PATCHWATCH_JWT_SECRET
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database path

	// HistoryBackend selects where delivery history goes: "sqlite"
	// (default) or "clickhouse" for high-volume fleets.
	HistoryBackend string           `yaml:"history_backend"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig contains ClickHouse connection settings for the
// delivery history backend.
type ClickHouseConfig struct {
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	Compression   bool     `yaml:"compression"`
	RetentionDays int      `yaml:"retention_days"`
}

// AlertingConfig contains pipeline settings.
type AlertingConfig struct {
	Enabled         *bool         `yaml:"enabled"`           // global switch (default: true)
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`  // per-send timeout
	RetryAttempts   int           `yaml:"retry_attempts"`    // delivery attempts per channel
	RatePerMinute   int           `yaml:"rate_per_minute"`   // notification rate limit, <0 disables
}

// CleanupConfig contains scheduler settings.
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval"` // time between runs (default: 24h)

	// HistoryRetentionDays is how long delivery history is kept on the
	// SQLite backend (default: 90). Negative disables pruning.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MetricsConfig contains the Prometheus listener settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // metrics listen address (default: :9090)
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/patchwatch.db"
	}
	if c.Database.HistoryBackend == "" {
		c.Database.HistoryBackend = "sqlite"
	}
	if c.Alerting.Enabled == nil {
		enabled := true
		c.Alerting.Enabled = &enabled
	}
	if c.Alerting.DispatchTimeout == 0 {
		c.Alerting.DispatchTimeout = 10 * time.Second
	}
	if c.Alerting.RetryAttempts == 0 {
		c.Alerting.RetryAttempts = 3
	}
	if c.Alerting.RatePerMinute == 0 {
		c.Alerting.RatePerMinute = 60
	}
	if c.Cleanup.Interval == 0 {
		c.Cleanup.Interval = 24 * time.Hour
	}
	if c.Cleanup.HistoryRetentionDays == 0 {
		c.Cleanup.HistoryRetentionDays = cleanup.DefaultHistoryRetentionDays
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.HistoryBackend {
	case "sqlite":
	case "clickhouse":
		if len(c.Database.ClickHouse.Addresses) == 0 {
			return fmt.Errorf("database.clickhouse.addresses is required when history_backend is clickhouse")
		}
		if c.Database.ClickHouse.Database == "" {
			return fmt.Errorf("database.clickhouse.database is required when history_backend is clickhouse")
		}
	default:
		return fmt.Errorf("database.history_backend must be sqlite or clickhouse, got %q", c.Database.HistoryBackend)
	}
	if c.Alerting.DispatchTimeout < 0 {
		return fmt.Errorf("alerting.dispatch_timeout must not be negative")
	}
	if c.Alerting.RetryAttempts < 1 {
		return fmt.Errorf("alerting.retry_attempts must be at least 1")
	}
	if c.Cleanup.Interval < time.Minute {
		return fmt.Errorf("cleanup.interval must be at least 1 minute")
	}
	return nil
}

// JWTSecret returns the effective JWT secret, preferring the environment.
func (c *Config) JWTSecret() (string, error) {
	if env := os.Getenv("PATCHWATCH_JWT_SECRET"); env != "" {
		return env, nil
	}
	if c.Server.JWTSecret != "" {
		return c.Server.JWTSecret, nil
	}
	return "", fmt.Errorf("JWT secret is required: set PATCHWATCH_JWT_SECRET or server.jwt_secret")
}
