// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Evidence EvidenceConfig `yaml:"evidence"`
}

// ServerConfig configures the front door
type ServerConfig struct {
	// Addr is the listen address (default: ":8080")
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the record store
type DatabaseConfig struct {
	// Path is the SQLite database file path (default: ".triage/triage.db")
	Path string `yaml:"path"`
}

// AIConfig configures the inference client. The API key is never read from
// the file; it comes from ANTHROPIC_API_KEY only.
type AIConfig struct {
	Model              string  `yaml:"model"`
	MaxTokens          int64   `yaml:"max_tokens"`
	MaxConcurrentCalls int     `yaml:"max_concurrent_calls"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
}

// EvidenceConfig configures capability endpoints. An empty URL leaves the
// capability unbound; lookups for it then fail non-fatally.
type EvidenceConfig struct {
	CauseURL   string `yaml:"cause_url"`
	HistoryURL string `yaml:"history_url"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: ".triage/triage.db"},
		AI: AIConfig{
			MaxTokens:          4096,
			MaxConcurrentCalls: 3,
			RequestsPerSecond:  2,
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path skips the file and uses defaults; a named file
// that doesn't exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("TRIAGE_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("TRIAGE_DB"); path != "" {
		cfg.Database.Path = path
	}
	if model := os.Getenv("TRIAGE_MODEL"); model != "" {
		cfg.AI.Model = model
	}
	if url := os.Getenv("TRIAGE_CAUSE_URL"); url != "" {
		cfg.Evidence.CauseURL = url
	}
	if url := os.Getenv("TRIAGE_HISTORY_URL"); url != "" {
		cfg.Evidence.HistoryURL = url
	}
}

// Validate checks if the configuration has valid field values
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AI.MaxTokens < 0 {
		return fmt.Errorf("ai.max_tokens must not be negative")
	}
	if c.AI.RequestsPerSecond < 0 {
		return fmt.Errorf("ai.requests_per_second must not be negative")
	}
	return nil
}
