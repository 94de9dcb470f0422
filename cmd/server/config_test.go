package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("http address = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.MetricsAddress != ":9091" {
		t.Errorf("metrics address = %q", cfg.Server.MetricsAddress)
	}
	if cfg.Database.Path != "data/guardrail.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Delivery.MaxConcurrent != 16 || cfg.Delivery.SendTimeoutSeconds != 10 {
		t.Errorf("delivery defaults = %+v", cfg.Delivery)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("smtp port = %d", cfg.SMTP.Port)
	}
	if cfg.ClickHouse.RetentionDays != 90 {
		t.Errorf("retention days = %d", cfg.ClickHouse.RetentionDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_address: ":9000"
  rate_limit_per_ip: 100
database:
  path: /var/lib/guardrail/guardrail.db
delivery:
  max_concurrent: 4
  rate_per_second: 2.5
smtp:
  host: smtp.example.com
  from: alerts@example.com
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9000" {
		t.Errorf("http address = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.RateLimitPerIP != 100 {
		t.Errorf("rate limit = %d", cfg.Server.RateLimitPerIP)
	}
	if cfg.Database.Path != "/var/lib/guardrail/guardrail.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Delivery.MaxConcurrent != 4 || cfg.Delivery.RatePerSecond != 2.5 {
		t.Errorf("delivery = %+v", cfg.Delivery)
	}
	// Unset fields still get defaults.
	if cfg.Delivery.SendTimeoutSeconds != 10 || cfg.Server.MetricsAddress != ":9091" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.SMTP.Host != "smtp.example.com" || cfg.SMTP.Port != 587 {
		t.Errorf("smtp = %+v", cfg.SMTP)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative rate", func(c *Config) { c.Delivery.RatePerSecond = -1 }, "rate_per_second"},
		{"zero concurrency", func(c *Config) { c.Delivery.MaxConcurrent = -2 }, "max_concurrent"},
		{"clickhouse without addresses", func(c *Config) { c.ClickHouse.Enabled = true }, "clickhouse.addresses"},
		{"smtp host without from", func(c *Config) { c.SMTP.Host = "smtp.example.com" }, "smtp.from"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
