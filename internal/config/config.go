package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when TRADEWISE_CONFIG is unset.
const DefaultPath = "config/tradewise.yaml"

// Source names accepted by Backtest.Source.
const (
	SourceStore  = "store"
	SourceAlpaca = "alpaca"
	SourceCached = "cached"
	SourceMock   = "mock"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tradewise.
type Config struct {
	Storage    Storage        `yaml:"storage"`
	Server     Server         `yaml:"server"`
	Alpaca     Alpaca         `yaml:"alpaca"`
	Logging    Logging        `yaml:"logging"`
	Backtest   BacktestConfig `yaml:"backtest"`
	Gather     GatherConfig   `yaml:"gather"`
	Strategies []Preset       `yaml:"strategies"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	BaseURL    string `yaml:"base_url"`
	DataURL    string `yaml:"data_url"`
	Feed       string `yaml:"feed"`
	Adjustment string `yaml:"adjustment"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig controls where bars come from and how much work a single
// request may ask for.
type BacktestConfig struct {
	Source          string `yaml:"source"`
	Market          string `yaml:"market"`
	Workers         int    `yaml:"workers"`
	MaxRangeDays    int    `yaml:"max_range_days"`
	MaxBars         int    `yaml:"max_bars"`
	MockSeed        uint64 `yaml:"mock_seed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// GatherConfig controls the daily bar gatherer.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// Preset is a named strategy configuration.
type Preset struct {
	Name     string         `yaml:"name"`
	Strategy string         `yaml:"strategy"`
	Params   map[string]any `yaml:"params"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration path from TRADEWISE_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("TRADEWISE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies defaults and then environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default plus environment overrides
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Backtest.Source {
	case SourceStore, SourceAlpaca, SourceCached, SourceMock:
	default:
		return fmt.Errorf("backtest.source %q: want store, alpaca, cached or mock", c.Backtest.Source)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 || c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server ports out of range: %d, %d", c.Server.Port, c.Server.GRPCPort)
	}
	seen := make(map[string]bool, len(c.Strategies))
	for i, p := range c.Strategies {
		if p.Name == "" || p.Strategy == "" {
			return fmt.Errorf("strategies[%d]: name and strategy are required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("strategies[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/tradewise.db"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9090
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.Adjustment == "" {
		cfg.Alpaca.Adjustment = "all"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Backtest.Source == "" {
		cfg.Backtest.Source = SourceStore
	}
	if cfg.Backtest.Market == "" {
		cfg.Backtest.Market = "us"
	}
	if cfg.Backtest.Workers <= 0 {
		cfg.Backtest.Workers = 4
	}
	if cfg.Backtest.MaxRangeDays <= 0 {
		cfg.Backtest.MaxRangeDays = 3650
	}
	if cfg.Backtest.MaxBars <= 0 {
		cfg.Backtest.MaxBars = 10000
	}
	if cfg.Backtest.MockSeed == 0 {
		cfg.Backtest.MockSeed = 42
	}
	if cfg.Backtest.RateLimitPerMin <= 0 {
		cfg.Backtest.RateLimitPerMin = 200
	}
	if cfg.Backtest.MaxRetries <= 0 {
		cfg.Backtest.MaxRetries = 3
	}
	if cfg.Gather.StartDate == "" {
		cfg.Gather.StartDate = "2020-01-01"
	}
	if cfg.Gather.MaxWorkers <= 0 {
		cfg.Gather.MaxWorkers = 4
	}
	if cfg.Gather.RateLimitPerMin <= 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("BACKTEST_SOURCE"); v != "" {
		cfg.Backtest.Source = strings.ToLower(v)
	}

	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	// Standard Alpaca env vars take precedence; they are the names the SDK uses.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
