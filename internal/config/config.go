package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LoggingConfig `yaml:"log"`
	State   StateConfig   `yaml:"state"`
	Engine  EngineConfig  `yaml:"engine"`
	Shared  SharedConfig  `yaml:"shared"`
	Ticks   TicksConfig   `yaml:"ticks"`
	Journal JournalConfig `yaml:"journal"`
	History HistoryConfig `yaml:"history"`
	Venue   VenueConfig   `yaml:"venue"`
	Feed    FeedConfig    `yaml:"feed"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Server  ServerConfig  `yaml:"server"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// EngineConfig carries the vault's economic parameters. Increments are
// decimal strings because they are 256-bit token amounts.
type EngineConfig struct {
	Admin              string `yaml:"admin"`
	VenueAuthority     string `yaml:"venue_authority"`
	PriceMultiplierBps uint64 `yaml:"price_multiplier_bps"`
	BuyIncrement       string `yaml:"buy_increment"`
	BurnIncrement      string `yaml:"burn_increment"`
	BurnDelayTicks     uint64 `yaml:"burn_delay_ticks"`
	BurnSink           string `yaml:"burn_sink"`
}

// SharedConfig mirrors the address block published by the deployment: the
// authorizing factory, the swap router and the venue pool.
type SharedConfig struct {
	Factory    string `yaml:"factory"`
	SwapRouter string `yaml:"swap_router"`
	VenuePool  string `yaml:"venue_pool"`
}

type TicksConfig struct {
	Interval time.Duration `yaml:"interval"`
	Genesis  string        `yaml:"genesis"`
}

type JournalConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type VenueConfig struct {
	RouterMode  string        `yaml:"router_mode"`
	RouterURL   string        `yaml:"router_url"`
	RegistryURL string        `yaml:"registry_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type AlertsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type KeeperConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	Schedule     string `yaml:"schedule"`
	Caller       string `yaml:"caller"`
	SampleStatus bool   `yaml:"sample_status"`
}

type ServerConfig struct {
	Address  string `yaml:"address"`
	APIToken string `yaml:"api_token"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (c JournalConfig) EnabledValue() bool { return c.Enabled == nil || *c.Enabled }
func (c KeeperConfig) EnabledValue() bool  { return c.Enabled == nil || *c.Enabled }
func (c MetricsConfig) EnabledValue() bool { return c.Enabled == nil || *c.Enabled }

// BurnSinkDefault is where burned tokens go when no sink is configured.
const BurnSinkDefault = "0x000000000000000000000000000000000000dEaD"

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

// applyEnvOverrides lets deploy environments inject secrets without writing
// them into the config file.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("VAULT_HISTORY_DSN"); dsn != "" {
		cfg.History.DSN = dsn
	}
	if token := os.Getenv("VAULT_API_TOKEN"); token != "" {
		cfg.Server.APIToken = token
	}
	if url := os.Getenv("VAULT_ALERT_WEBHOOK_URL"); url != "" {
		cfg.Alerts.WebhookURL = url
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/burnvault.db"
	}
	if cfg.Engine.BurnSink == "" {
		cfg.Engine.BurnSink = BurnSinkDefault
	}
	if cfg.Ticks.Interval == 0 {
		cfg.Ticks.Interval = time.Minute
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = "data/journal.db"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.Venue.RouterMode == "" {
		cfg.Venue.RouterMode = "sim"
	}
	if cfg.Venue.Timeout == 0 {
		cfg.Venue.Timeout = 5 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 15 * time.Second
	}
	if cfg.Keeper.Schedule == "" {
		cfg.Keeper.Schedule = "*/30 * * * * *"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1:8080"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if err := requireAddress("engine.admin", cfg.Engine.Admin); err != nil {
		return err
	}
	if err := requireAddress("engine.venue_authority", cfg.Engine.VenueAuthority); err != nil {
		return err
	}
	if err := requireAddress("engine.burn_sink", cfg.Engine.BurnSink); err != nil {
		return err
	}
	if err := requireAmount("engine.buy_increment", cfg.Engine.BuyIncrement); err != nil {
		return err
	}
	if err := requireAmount("engine.burn_increment", cfg.Engine.BurnIncrement); err != nil {
		return err
	}
	if err := requireAddress("shared.venue_pool", cfg.Shared.VenuePool); err != nil {
		return err
	}
	if err := optionalAddress("shared.factory", cfg.Shared.Factory); err != nil {
		return err
	}
	if err := optionalAddress("shared.swap_router", cfg.Shared.SwapRouter); err != nil {
		return err
	}
	if cfg.Ticks.Interval <= 0 {
		return errors.New("ticks.interval must be positive")
	}
	if cfg.Ticks.Genesis != "" {
		if _, err := time.Parse(time.RFC3339, cfg.Ticks.Genesis); err != nil {
			return fmt.Errorf("ticks.genesis: %w", err)
		}
	}
	switch cfg.Venue.RouterMode {
	case "sim":
	case "http":
		if cfg.Venue.RouterURL == "" {
			return errors.New("venue.router_url is required for router_mode http")
		}
	default:
		return fmt.Errorf("venue.router_mode %q is not one of sim, http", cfg.Venue.RouterMode)
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	if cfg.Feed.Enabled && cfg.Feed.URL == "" {
		return errors.New("feed.url is required when the feed is enabled")
	}
	if cfg.Alerts.Enabled && cfg.Alerts.WebhookURL == "" {
		return errors.New("alerts.webhook_url is required when alerts are enabled")
	}
	if cfg.Keeper.EnabledValue() {
		if err := requireAddress("keeper.caller", cfg.Keeper.Caller); err != nil {
			return err
		}
	}
	if cfg.Metrics.EnabledValue() && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}

func requireAddress(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s: %q is not a hex address", key, value)
	}
	return nil
}

func optionalAddress(key, value string) error {
	if value == "" {
		return nil
	}
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%s: %q is not a hex address", key, value)
	}
	return nil
}

func requireAmount(key, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	if _, err := uint256.FromDecimal(value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
