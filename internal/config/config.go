// Package config provides unified configuration loading for refback.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/refback/internal/backup"
	"github.com/nvandessel/refback/internal/pathutil"
	"github.com/nvandessel/refback/internal/sequence"
	"github.com/nvandessel/refback/internal/session"
	"github.com/nvandessel/refback/internal/trials"
)

// DirName is the per-user directory holding config, database and traces.
const DirName = ".refback"

// RefbackConfig contains all refback configuration settings.
type RefbackConfig struct {
	// Sequence configures the reference stream search.
	Sequence sequence.SearchConfig `json:"sequence" yaml:"sequence"`

	// Session configures multi-block sessions.
	Session SessionConfig `json:"session" yaml:"session"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures the session database.
	Store StoreConfig `json:"store" yaml:"store"`

	// Backup configures session database backups.
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// SessionConfig configures multi-block sessions.
type SessionConfig struct {
	// Blocks is the number of blocks; only the first shows feedback.
	Blocks int `json:"blocks" yaml:"blocks"`

	// ContinuousNumbering numbers trials across blocks.
	ContinuousNumbering bool `json:"continuous_numbering" yaml:"continuous_numbering"`

	// Alphabet is the number of stimulus symbols.
	Alphabet int `json:"alphabet" yaml:"alphabet"`

	// Seed fixes the random source. 0 picks a fresh seed per session.
	Seed uint64 `json:"seed" yaml:"seed"`
}

// LoggingConfig configures refback's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables search tracing to ~/.refback/searches.jsonl.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures the SQLite session store.
type StoreConfig struct {
	// DBPath is the database file. Supports ${VAR} syntax and a leading ~/.
	// Empty means ~/.refback/refback.db.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// BackupConfig configures backups of the session database.
type BackupConfig struct {
	Retention RetentionConfig `json:"retention" yaml:"retention"`
}

// RetentionConfig limits how many backups are kept. A backup survives if
// either limit keeps it.
type RetentionConfig struct {
	// MaxCount keeps the N newest backups. 0 disables the count limit.
	MaxCount int `json:"max_count" yaml:"max_count"`

	// MaxAge keeps backups younger than this, e.g. "30d", "2w" or "720h".
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// envOverrides mirrors the settings that can be overridden from the
// environment. Nil fields were not set.
type envOverrides struct {
	Trials              *int     `env:"REFBACK_TRIALS"`
	TargetProportion    *float64 `env:"REFBACK_TARGET_PROPORTION"`
	MaxIterations       *int     `env:"REFBACK_MAX_ITERATIONS"`
	Blocks              *int     `env:"REFBACK_BLOCKS"`
	ContinuousNumbering *bool    `env:"REFBACK_CONTINUOUS_NUMBERING"`
	Seed                *uint64  `env:"REFBACK_SEED"`
	LogLevel            *string  `env:"REFBACK_LOG_LEVEL"`
	DBPath              *string  `env:"REFBACK_DB_PATH"`
}

// Default returns a RefbackConfig with the task's defaults.
func Default() *RefbackConfig {
	return &RefbackConfig{
		Sequence: sequence.DefaultSearchConfig(),
		Session: SessionConfig{
			Blocks:   session.DefaultBlocks,
			Alphabet: trials.DefaultAlphabet,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backup: BackupConfig{
			Retention: RetentionConfig{MaxCount: 10},
		},
	}
}

// Dir returns ~/.refback.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.refback/config.yaml -> environment variables
func Load() (*RefbackConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*RefbackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.DBPath = expandEnvVars(config.Store.DBPath)

	return config, nil
}

// Save writes the configuration to ~/.refback/config.yaml.
func Save(config *RefbackConfig) error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	return SaveToFile(config, configPath)
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func SaveToFile(config *RefbackConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *RefbackConfig) Validate() error {
	if err := c.Sequence.Validate(); err != nil {
		return err
	}

	if c.Session.Blocks < 1 {
		return fmt.Errorf("session.blocks must be at least 1, got %d", c.Session.Blocks)
	}

	if c.Session.Alphabet < 2 {
		return fmt.Errorf("session.alphabet must be at least 2, got %d", c.Session.Alphabet)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Backup.Retention.MaxCount < 0 {
		return fmt.Errorf("backup.retention.max_count must not be negative, got %d", c.Backup.Retention.MaxCount)
	}
	if c.Backup.Retention.MaxAge != "" {
		if _, err := backup.ParseDuration(c.Backup.Retention.MaxAge); err != nil {
			return fmt.Errorf("backup.retention.max_age: %w", err)
		}
	}

	return nil
}

// DBPath resolves the database location.
func (c *RefbackConfig) DBPath() (string, error) {
	if c.Store.DBPath == "" {
		dir, err := Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "refback.db"), nil
	}
	return pathutil.ExpandHome(c.Store.DBPath)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *RefbackConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.Trials != nil {
		config.Sequence.Trials = *o.Trials
	}
	if o.TargetProportion != nil {
		config.Sequence.TargetProportion = *o.TargetProportion
	}
	if o.MaxIterations != nil {
		config.Sequence.MaxIterations = *o.MaxIterations
	}
	if o.Blocks != nil {
		config.Session.Blocks = *o.Blocks
	}
	if o.ContinuousNumbering != nil {
		config.Session.ContinuousNumbering = *o.ContinuousNumbering
	}
	if o.Seed != nil {
		config.Session.Seed = *o.Seed
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		config.Logging.Level = *o.LogLevel
	}
	if o.DBPath != nil && *o.DBPath != "" {
		config.Store.DBPath = expandEnvVars(*o.DBPath)
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
