package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	yamlContent := []byte(`
server:
  host: "0.0.0.0"
  port: 8090
upstream:
  base_url: "wss://feed.example.com"
  auth_token: "test-token"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
storage:
  data_dir: "/tmp/flowdash/data"
  sqlite_path: "/tmp/flowdash/flowdash.db"
logging:
  level: "info"
  format: "json"
stream:
  reconnect_delay_ms: 250
  dial_timeout_ms: 0
  retry:
    auto_retry: true
    initial_delay_ms: 500
    max_delay_ms: 30000
    max_attempts: 10
feed:
  host: "127.0.0.1"
  port: 8091
  interval_ms: 500
  quote_symbols: "SPY,QQQ,AAPL"
archive:
  enabled: true
  schedule: "10 16 * * 1-5"
`)

	tmpFile, err := os.CreateTemp("", "flowdash-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(yamlContent); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	// Clear any environment overrides that might interfere.
	os.Unsetenv("UPSTREAM_BASE_URL")
	os.Unsetenv("UPSTREAM_AUTH_TOKEN")
	os.Unsetenv("ALPACA_API_KEY")
	os.Unsetenv("APCA_API_KEY_ID")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Upstream.BaseURL != "wss://feed.example.com" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if !cfg.Stream.Retry.AutoRetry || cfg.Stream.Retry.MaxAttempts != 10 {
		t.Errorf("Stream.Retry = %+v", cfg.Stream.Retry)
	}
	if cfg.Feed.IntervalMs != 500 {
		t.Errorf("Feed.IntervalMs = %d, want 500", cfg.Feed.IntervalMs)
	}
	if cfg.Archive.Schedule != "10 16 * * 1-5" {
		t.Errorf("Archive.Schedule = %q", cfg.Archive.Schedule)
	}
}

func TestLoadDefaults(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "flowdash-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write([]byte("{}\n")); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("default Server.Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Stream.ReconnectDelayMs != 250 {
		t.Errorf("default ReconnectDelayMs = %d, want 250", cfg.Stream.ReconnectDelayMs)
	}
	if cfg.Stream.Retry.AutoRetry {
		t.Error("retry should be disabled by default")
	}
	if cfg.Archive.Schedule == "" {
		t.Error("default archive schedule is empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "flowdash-config-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.Write([]byte("upstream:\n  base_url: \"wss://file.example.com\"\n")); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("UPSTREAM_BASE_URL", "wss://env.example.com")
	t.Setenv("APCA_API_KEY_ID", "env-key")

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Upstream.BaseURL != "wss://env.example.com" {
		t.Errorf("env override lost: Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("APCA_API_KEY_ID override lost: APIKey = %q", cfg.Alpaca.APIKey)
	}
}
