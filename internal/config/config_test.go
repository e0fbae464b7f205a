// ABOUTME: Tests for configuration loading and parsing.
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

buffer:
  ttl: "15m"
  sweep_interval: "1m"

client:
  draft_save_debounce: "150ms"
  queue_persist_debounce: "150ms"
  queue_settle_delay: "75ms"
  queue_drain_delay: "75ms"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	if cfg.Buffer.TTL != 15*time.Minute {
		t.Errorf("Buffer.TTL = %v, want %v", cfg.Buffer.TTL, 15*time.Minute)
	}
	if cfg.Buffer.SweepInterval != time.Minute {
		t.Errorf("Buffer.SweepInterval = %v, want %v", cfg.Buffer.SweepInterval, time.Minute)
	}

	if cfg.Client.DraftSaveDebounce != 150*time.Millisecond {
		t.Errorf("Client.DraftSaveDebounce = %v, want %v", cfg.Client.DraftSaveDebounce, 150*time.Millisecond)
	}
	if cfg.Client.QueuePersistDebounce != 150*time.Millisecond {
		t.Errorf("Client.QueuePersistDebounce = %v, want %v", cfg.Client.QueuePersistDebounce, 150*time.Millisecond)
	}
	if cfg.Client.QueueSettleDelay != 75*time.Millisecond {
		t.Errorf("Client.QueueSettleDelay = %v, want %v", cfg.Client.QueueSettleDelay, 75*time.Millisecond)
	}
	if cfg.Client.QueueDrainDelay != 75*time.Millisecond {
		t.Errorf("Client.QueueDrainDelay = %v, want %v", cfg.Client.QueueDrainDelay, 75*time.Millisecond)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("RELAY_DB_PATH", "/var/lib/relay/relay.db")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "${RELAY_DB_PATH}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/relay/relay.db" {
		t.Errorf("Database.Path = %q, want expanded env var", cfg.Database.Path)
	}
}

func TestLoad_MissingHTTPAddr(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "server.http_addr") {
		t.Errorf("error = %v, want mention of server.http_addr", err)
	}
}

func TestLoad_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("error = %v, want mention of database.path", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

buffer:
  ttl: "fifteen minutes"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected duration parse error, got nil")
	}
	if !strings.Contains(err.Error(), "buffer.ttl") {
		t.Errorf("error = %v, want mention of buffer.ttl", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}
