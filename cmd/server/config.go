// Package main provides the Guardrail server CLI.
package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Verbose    bool             `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	HTTPAddress    string `yaml:"http_address"`    // REST API listen address (default: :8080)
	MetricsAddress string `yaml:"metrics_address"` // Prometheus listen address (default: :9091)
	RateLimitPerIP int    `yaml:"rate_limit_per_ip"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// ClickHouseConfig contains the optional evaluation archive settings.
// Password comes from GUARDRAIL_CLICKHOUSE_PASSWORD.
type ClickHouseConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Compression   bool     `yaml:"compression"`
	RetentionDays int      `yaml:"retention_days"`
}

// DeliveryConfig shapes the notification dispatcher.
type DeliveryConfig struct {
	MaxConcurrent        int     `yaml:"max_concurrent"`
	SendTimeoutSeconds   int     `yaml:"send_timeout_seconds"`
	RatePerSecond        float64 `yaml:"rate_per_second"` // 0 disables rate limiting
	RateBurst            int     `yaml:"rate_burst"`
	SweepIntervalSeconds int     `yaml:"sweep_interval_seconds"` // suppression sweep cadence
}

// SMTPConfig contains settings for the email channel. Password comes
// from GUARDRAIL_SMTP_PASSWORD.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	From     string `yaml:"from"`
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
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9091"
	}
	if c.Server.RateLimitPerIP == 0 {
		c.Server.RateLimitPerIP = 600
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/guardrail.db"
	}
	if c.Delivery.MaxConcurrent == 0 {
		c.Delivery.MaxConcurrent = 16
	}
	if c.Delivery.SendTimeoutSeconds == 0 {
		c.Delivery.SendTimeoutSeconds = 10
	}
	if c.Delivery.RateBurst == 0 {
		c.Delivery.RateBurst = 1
	}
	if c.Delivery.SweepIntervalSeconds == 0 {
		c.Delivery.SweepIntervalSeconds = 60
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.ClickHouse.RetentionDays == 0 {
		c.ClickHouse.RetentionDays = 90
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Delivery.MaxConcurrent < 1 {
		return fmt.Errorf("delivery.max_concurrent must be at least 1")
	}
	if c.Delivery.SendTimeoutSeconds < 1 {
		return fmt.Errorf("delivery.send_timeout_seconds must be at least 1")
	}
	if c.Delivery.RatePerSecond < 0 {
		return fmt.Errorf("delivery.rate_per_second must not be negative")
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("clickhouse.addresses is required when clickhouse is enabled")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}
