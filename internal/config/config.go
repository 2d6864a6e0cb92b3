// Package config loads Murmur's YAML configuration and watches it for
// changes. Precedence: defaults, then config.yaml, then environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig controls the database location and the retry envelope
// around store operations.
type StorageConfig struct {
	// DBFile is the database filename inside HomeDir, or an absolute path.
	DBFile string `yaml:"db_file"`

	// MaxRetries is the number of re-attempts for transient store failures.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelayMs is the first backoff delay; it doubles per attempt.
	BaseDelayMs int `yaml:"base_delay_ms"`

	// MaxDelayMs caps the backoff delay.
	MaxDelayMs int `yaml:"max_delay_ms"`
}

// RetentionConfig controls the periodic purge sweeps.
type RetentionConfig struct {
	// Schedule is a 5-field cron expression; empty disables sweeps.
	Schedule string `yaml:"schedule"`

	// RecordingTTLDays purges recordings older than this many days.
	RecordingTTLDays int `yaml:"recording_ttl_days"`

	// ArchivedNoteTTLDays hard-deletes notes archived longer than this.
	ArchivedNoteTTLDays int `yaml:"archived_note_ttl_days"`
}

// Config is the full Murmur configuration.
type Config struct {
	HomeDir   string          `yaml:"-"`
	LogLevel  string          `yaml:"log_level"`
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
}

// DBPath resolves the configured database file against the home directory.
func (c Config) DBPath() string {
	if filepath.IsAbs(c.Storage.DBFile) {
		return c.Storage.DBFile
	}
	return filepath.Join(c.HomeDir, c.Storage.DBFile)
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			DBFile:      "murmur.db",
			MaxRetries:  3,
			BaseDelayMs: 100,
			MaxDelayMs:  1000,
		},
		Retention: RetentionConfig{
			Schedule:            "0 3 * * *",
			RecordingTTLDays:    90,
			ArchivedNoteTTLDays: 30,
		},
	}
}

// HomeDir returns the Murmur data directory, honoring MURMUR_HOME.
func HomeDir() string {
	if dir := os.Getenv("MURMUR_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".murmur")
}

// ConfigPath returns the config file location under homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads configuration from the Murmur home, creating the directory if
// needed. A missing config.yaml is not an error; defaults apply.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create murmur home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// RetryBaseDelay returns the configured backoff base as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Storage.BaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the configured backoff cap as a duration.
func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Storage.MaxDelayMs) * time.Millisecond
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MURMUR_DB_FILE"); v != "" {
		cfg.Storage.DBFile = v
	}
	if v := os.Getenv("MURMUR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxRetries = n
		}
	}
}

func normalize(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Storage.DBFile == "" {
		cfg.Storage.DBFile = "murmur.db"
	}
	if cfg.Storage.MaxRetries <= 0 {
		cfg.Storage.MaxRetries = 3
	}
	if cfg.Storage.BaseDelayMs <= 0 {
		cfg.Storage.BaseDelayMs = 100
	}
	if cfg.Storage.MaxDelayMs < cfg.Storage.BaseDelayMs {
		cfg.Storage.MaxDelayMs = 1000
	}
	if cfg.Retention.RecordingTTLDays <= 0 {
		cfg.Retention.RecordingTTLDays = 90
	}
	if cfg.Retention.ArchivedNoteTTLDays <= 0 {
		cfg.Retention.ArchivedNoteTTLDays = 30
	}
}
