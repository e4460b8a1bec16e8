// Package config loads the flowdash YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the flowdash backend.
type Config struct {
	Server   Server        `yaml:"server"`
	Upstream Upstream      `yaml:"upstream"`
	Alpaca   Alpaca        `yaml:"alpaca"`
	Storage  Storage       `yaml:"storage"`
	Logging  Logging       `yaml:"logging"`
	Stream   StreamConfig  `yaml:"stream"`
	Feed     FeedConfig    `yaml:"feed"`
	Archive  ArchiveConfig `yaml:"archive"`
}

// Server holds network listener configuration for the dashboard API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Upstream points at the live-data feed that the stream manager
// connects to, one endpoint per channel under the base URL.
type Upstream struct {
	BaseURL   string `yaml:"base_url"`
	AuthToken string `yaml:"auth_token"`
}

// Alpaca holds credentials and endpoint for the Alpaca brokerage API,
// used by the portfolio feed.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StreamConfig tunes the subscription manager.
type StreamConfig struct {
	ReconnectDelayMs int         `yaml:"reconnect_delay_ms"`
	DialTimeoutMs    int         `yaml:"dial_timeout_ms"` // 0 = no handshake timeout
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig is the automatic reconnection policy. Disabled by
// default: errored channels wait for a manual reconnect.
type RetryConfig struct {
	AutoRetry      bool `yaml:"auto_retry"`
	InitialDelayMs int  `yaml:"initial_delay_ms"`
	MaxDelayMs     int  `yaml:"max_delay_ms"`
	MaxAttempts    int  `yaml:"max_attempts"`
}

// FeedConfig configures the local upstream feed server.
type FeedConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	IntervalMs   int    `yaml:"interval_ms"`
	PollsPerMin  int    `yaml:"polls_per_min"`
	QuoteSymbols string `yaml:"quote_symbols"` // comma-separated watchlist
}

// ArchiveConfig controls the end-of-day Parquet export of recorded
// events. Schedule is a standard 5-field cron expression.
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it
// into a Config, fills defaults, and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Stream.ReconnectDelayMs == 0 {
		cfg.Stream.ReconnectDelayMs = 250
	}
	if cfg.Feed.Port == 0 {
		cfg.Feed.Port = 8091
	}
	if cfg.Feed.IntervalMs == 0 {
		cfg.Feed.IntervalMs = 1000
	}
	if cfg.Feed.PollsPerMin == 0 {
		cfg.Feed.PollsPerMin = 30
	}
	if cfg.Archive.Schedule == "" {
		// Weekdays shortly after the US close.
		cfg.Archive.Schedule = "10 16 * * 1-5"
	}
}

// applyEnvOverrides checks well-known environment variables and
// overrides the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("UPSTREAM_AUTH_TOKEN"); v != "" {
		cfg.Upstream.AuthToken = v
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

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
