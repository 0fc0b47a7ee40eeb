package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all readback configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Flight mode catalog and reference data
	Catalog CatalogConfig `yaml:"catalog"`

	// LLM collaborator configuration
	LLM LLMConfig `yaml:"llm"`

	// Session management
	Session SessionConfig `yaml:"session"`

	// SQLite storage
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CatalogConfig points at the flight mode catalog and airport reference
// data. Empty paths select the embedded defaults.
type CatalogConfig struct {
	Path         string `yaml:"path"`
	AirportsPath string `yaml:"airports_path"`
}

// LLMConfig configures the reasoning collaborator.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// SessionConfig configures session lifecycle policy.
type SessionConfig struct {
	// MaxActive caps concurrently active sessions per user. Zero disables
	// the ceiling.
	MaxActive int `yaml:"max_active"`
}

// StoreConfig configures the SQLite record store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "readback",
		Version: "0.3.0",

		LLM: LLMConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "60s",
		},

		Session: SessionConfig{
			MaxActive: 3,
		},

		Store: StoreConfig{
			DatabasePath: "data/readback.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "readback.log",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("READBACK_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("READBACK_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("READBACK_CATALOG"); path != "" {
		c.Catalog.Path = path
	}
	if path := os.Getenv("READBACK_AIRPORTS"); path != "" {
		c.Catalog.AirportsPath = path
	}
}

// GetLLMTimeout returns the collaborator timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.Session.MaxActive < 0 {
		return fmt.Errorf("session.max_active must not be negative: %d", c.Session.MaxActive)
	}
	return nil
}
