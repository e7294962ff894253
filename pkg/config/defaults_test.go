package config

import (
	"testing"
	"time"

	"github.com/mkarlsen/tenantd/pkg/registry"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry should default to disabled")
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default OTLP endpoint, got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %g", cfg.Telemetry.SampleRate)
	}
	if cfg.Database.Type != registry.DatabaseTypeSQLite {
		t.Errorf("Expected default database type sqlite, got %q", cfg.Database.Type)
	}
	if cfg.Database.SQLite.Path == "" {
		t.Error("Expected a default sqlite path")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should default to disabled")
	}
	if cfg.Orchestrator.MaxActiveTenants != 10 {
		t.Errorf("Expected default active cap 10, got %d", cfg.Orchestrator.MaxActiveTenants)
	}
	if cfg.Checkpoint.Sweeper.SaveTimeout != time.Minute {
		t.Errorf("Expected default save timeout 1m, got %v", cfg.Checkpoint.Sweeper.SaveTimeout)
	}
	if cfg.Lock.PollInterval != 100*time.Millisecond {
		t.Errorf("Expected default poll interval 100ms, got %v", cfg.Lock.PollInterval)
	}
	if cfg.Router.Webhook.Timeout != 10*time.Second {
		t.Errorf("Expected default webhook timeout 10s, got %v", cfg.Router.Webhook.Timeout)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Redis.Addr = "redis.internal:6380"
	cfg.Orchestrator.MaxActiveTenants = 2
	cfg.Lock.DefaultTTL = 2 * time.Second

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level normalized to WARN, got %q", cfg.Logging.Level)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Explicit redis addr overwritten: %q", cfg.Redis.Addr)
	}
	if cfg.Orchestrator.MaxActiveTenants != 2 {
		t.Errorf("Explicit active cap overwritten: %d", cfg.Orchestrator.MaxActiveTenants)
	}
	if cfg.Lock.DefaultTTL != 2*time.Second {
		t.Errorf("Explicit lock TTL overwritten: %v", cfg.Lock.DefaultTTL)
	}

	// Untouched sections still get defaults.
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Lock.WaitTimeout != 30*time.Second {
		t.Errorf("Expected default wait timeout, got %v", cfg.Lock.WaitTimeout)
	}
}

func TestMetricsPortDefaultOnlyWhenEnabled(t *testing.T) {
	disabled := &Config{}
	ApplyDefaults(disabled)
	if disabled.Metrics.Port != 0 {
		t.Errorf("Disabled metrics should not get a port, got %d", disabled.Metrics.Port)
	}

	enabled := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(enabled)
	if enabled.Metrics.Port != 9090 {
		t.Errorf("Enabled metrics should default to port 9090, got %d", enabled.Metrics.Port)
	}
}
