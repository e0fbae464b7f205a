// ABOUTME: Configuration loading and parsing for the stream relay.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stream-relay configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Client   ClientConfig   `yaml:"client"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BufferConfig holds durable stream buffer configuration
type BufferConfig struct {
	TTL           time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TTLRaw           string `yaml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// ClientConfig holds client-side timing configuration
type ClientConfig struct {
	DraftSaveDebounce    time.Duration `yaml:"-"`
	QueuePersistDebounce time.Duration `yaml:"-"`
	QueueSettleDelay     time.Duration `yaml:"-"`
	QueueDrainDelay      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DraftSaveDebounceRaw    string `yaml:"draft_save_debounce"`
	QueuePersistDebounceRaw string `yaml:"queue_persist_debounce"`
	QueueSettleDelayRaw     string `yaml:"queue_settle_delay"`
	QueueDrainDelayRaw      string `yaml:"queue_drain_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"buffer.ttl", cfg.Buffer.TTLRaw, &cfg.Buffer.TTL},
		{"buffer.sweep_interval", cfg.Buffer.SweepIntervalRaw, &cfg.Buffer.SweepInterval},
		{"client.draft_save_debounce", cfg.Client.DraftSaveDebounceRaw, &cfg.Client.DraftSaveDebounce},
		{"client.queue_persist_debounce", cfg.Client.QueuePersistDebounceRaw, &cfg.Client.QueuePersistDebounce},
		{"client.queue_settle_delay", cfg.Client.QueueSettleDelayRaw, &cfg.Client.QueueSettleDelay},
		{"client.queue_drain_delay", cfg.Client.QueueDrainDelayRaw, &cfg.Client.QueueDrainDelay},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
