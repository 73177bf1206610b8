package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Admin:              "0x00000000000000000000000000000000000000ad",
			VenueAuthority:     "0x00000000000000000000000000000000000000a1",
			PriceMultiplierBps: 5000,
			BuyIncrement:       "1000000",
			BurnIncrement:      "500000000",
			BurnDelayTicks:     10,
		},
		Shared: SharedConfig{
			VenuePool: "0x00000000000000000000000000000000000000f0",
		},
		Keeper: KeeperConfig{
			Caller: "0x0000000000000000000000000000000000000033",
		},
	}
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Log.Level != "info" {
		t.Fatalf("expected log level default, got %q", cfg.Log.Level)
	}
	if cfg.State.SQLitePath != "data/burnvault.db" {
		t.Fatalf("expected sqlite path default, got %q", cfg.State.SQLitePath)
	}
	if cfg.Engine.BurnSink != BurnSinkDefault {
		t.Fatalf("expected burn sink default, got %q", cfg.Engine.BurnSink)
	}
	if cfg.Ticks.Interval != time.Minute {
		t.Fatalf("expected tick interval default, got %v", cfg.Ticks.Interval)
	}
	if cfg.Journal.Path != "data/journal.db" {
		t.Fatalf("expected journal path default, got %q", cfg.Journal.Path)
	}
	if !cfg.Journal.EnabledValue() {
		t.Fatalf("expected journal enabled default")
	}
	if cfg.Venue.RouterMode != "sim" {
		t.Fatalf("expected sim router default, got %q", cfg.Venue.RouterMode)
	}
	if cfg.Venue.Timeout != 5*time.Second {
		t.Fatalf("expected venue timeout default, got %v", cfg.Venue.Timeout)
	}
	if cfg.Metrics.Address != "127.0.0.1:9090" || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics defaults, got %q %q", cfg.Metrics.Address, cfg.Metrics.Path)
	}
	if !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Keeper.Schedule == "" {
		t.Fatalf("expected keeper schedule default")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRequiresAddresses(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing admin", func(c *Config) { c.Engine.Admin = "" }},
		{"malformed admin", func(c *Config) { c.Engine.Admin = "0x123" }},
		{"missing authority", func(c *Config) { c.Engine.VenueAuthority = "" }},
		{"missing venue pool", func(c *Config) { c.Shared.VenuePool = "" }},
		{"malformed factory", func(c *Config) { c.Shared.Factory = "not-an-address" }},
		{"missing keeper caller", func(c *Config) { c.Keeper.Caller = "" }},
	} {
		cfg := validConfig()
		tc.mutate(cfg)
		applyDefaults(cfg)
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateRequiresDecimalIncrements(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.BuyIncrement = "0x10"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for non-decimal increment")
	}

	cfg = validConfig()
	cfg.Engine.BurnIncrement = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing burn increment")
	}
}

func TestValidateRouterMode(t *testing.T) {
	cfg := validConfig()
	cfg.Venue.RouterMode = "onchain"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown router mode")
	}

	cfg = validConfig()
	cfg.Venue.RouterMode = "http"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for http mode without url")
	}
	cfg.Venue.RouterURL = "http://127.0.0.1:8700"
	if err := validate(cfg); err != nil {
		t.Fatalf("http mode with url rejected: %v", err)
	}
}

func TestValidateGatedSections(t *testing.T) {
	cfg := validConfig()
	cfg.History.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for history without dsn")
	}

	cfg = validConfig()
	cfg.Feed.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for feed without url")
	}

	cfg = validConfig()
	cfg.Alerts.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for alerts without webhook url")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Path = "metrics"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsBadGenesis(t *testing.T) {
	cfg := validConfig()
	cfg.Ticks.Genesis = "last tuesday"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for malformed genesis timestamp")
	}
}

func TestKeeperDisabledSkipsCaller(t *testing.T) {
	disabled := false
	cfg := validConfig()
	cfg.Keeper = KeeperConfig{Enabled: &disabled}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		t.Fatalf("disabled keeper should not require a caller: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VAULT_HISTORY_DSN", "postgres://history")
	t.Setenv("VAULT_API_TOKEN", "secret-token")
	t.Setenv("VAULT_ALERT_WEBHOOK_URL", "https://hooks.example/vault")

	cfg := validConfig()
	cfg.History.DSN = "postgres://from-file"
	applyEnvOverrides(cfg)
	if cfg.History.DSN != "postgres://history" {
		t.Fatalf("expected dsn override, got %q", cfg.History.DSN)
	}
	if cfg.Server.APIToken != "secret-token" {
		t.Fatalf("expected token override, got %q", cfg.Server.APIToken)
	}
	if cfg.Alerts.WebhookURL != "https://hooks.example/vault" {
		t.Fatalf("expected webhook override, got %q", cfg.Alerts.WebhookURL)
	}
}

func TestLoadFullFile(t *testing.T) {
	content := `
log:
  level: debug
state:
  sqlite_path: /tmp/vault-test.db
engine:
  admin: "0x00000000000000000000000000000000000000ad"
  venue_authority: "0x00000000000000000000000000000000000000a1"
  price_multiplier_bps: 2500
  buy_increment: "1000000000000000000"
  burn_increment: "5000000000000000000"
  burn_delay_ticks: 12
shared:
  factory: "0x00000000000000000000000000000000000000fa"
  swap_router: "0x0000000000000000000000000000000000000050"
  venue_pool: "0x00000000000000000000000000000000000000f0"
ticks:
  interval: 30s
  genesis: "2026-01-01T00:00:00Z"
keeper:
  caller: "0x0000000000000000000000000000000000000033"
  sample_status: true
server:
  address: 127.0.0.1:8081
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level: got %q", cfg.Log.Level)
	}
	if cfg.Engine.PriceMultiplierBps != 2500 {
		t.Fatalf("multiplier: got %d", cfg.Engine.PriceMultiplierBps)
	}
	if cfg.Engine.BurnSink != BurnSinkDefault {
		t.Fatalf("burn sink default not applied: %q", cfg.Engine.BurnSink)
	}
	if cfg.Ticks.Interval != 30*time.Second {
		t.Fatalf("tick interval: got %v", cfg.Ticks.Interval)
	}
	if !cfg.Keeper.SampleStatus {
		t.Fatalf("keeper sample_status not parsed")
	}
	if cfg.Server.Address != "127.0.0.1:8081" {
		t.Fatalf("server address: got %q", cfg.Server.Address)
	}
	if cfg.Venue.RouterMode != "sim" {
		t.Fatalf("router mode default: got %q", cfg.Venue.RouterMode)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
