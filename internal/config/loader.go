package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a forgeline configuration from the given YAML file path.
// After parsing, it fills in defaults for any settings left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./forgeline.yaml, ~/.forgeline/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"forgeline.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".forgeline", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no forgeline config found (searched: %v)", candidates)
}

// Default returns a configuration with every field at its default value,
// as if an empty YAML file had been loaded.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in any settings the file left unset.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.Name == "" {
		cfg.Pipeline.Name = "forgeline"
	}
	if cfg.Pipeline.RunsDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.Pipeline.RunsDir = filepath.Join(home, ".forgeline", "runs")
		} else {
			cfg.Pipeline.RunsDir = ".forgeline/runs"
		}
	}
	if cfg.Pipeline.ScoreThreshold == 0 {
		cfg.Pipeline.ScoreThreshold = 80
	}

	if cfg.Breakers.FailureThreshold == 0 {
		cfg.Breakers.FailureThreshold = 5
	}
	if cfg.Breakers.RecoveryTimeout == "" {
		cfg.Breakers.RecoveryTimeout = "60s"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == "" {
		cfg.Retry.BaseDelay = "1s"
		cfg.Retry.Jitter = true
	}
	if cfg.Retry.MaxDelay == "" {
		cfg.Retry.MaxDelay = "60s"
	}

	if cfg.Recovery.MaxAttempts == 0 {
		cfg.Recovery.MaxAttempts = 5
	}
	if cfg.Recovery.ConfidenceThreshold == 0 {
		cfg.Recovery.ConfidenceThreshold = 30
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}

	if cfg.Checks.Build.Command == "" {
		cfg.Checks.Build.Command = "go build ./..."
	}
	if cfg.Checks.Build.Timeout == "" {
		cfg.Checks.Build.Timeout = "5m"
	}
	if cfg.Checks.Test.Command == "" {
		cfg.Checks.Test.Command = "go test ./..."
	}
	if cfg.Checks.Test.Timeout == "" {
		cfg.Checks.Test.Timeout = "10m"
	}
}

// BreakerFor returns the effective breaker settings for a stage: the
// per-stage override when present, otherwise the defaults.
func (c *Config) BreakerFor(stage string) BreakerConfig {
	if pc, ok := c.Breakers.PerStage[stage]; ok {
		if pc.FailureThreshold == 0 {
			pc.FailureThreshold = c.Breakers.FailureThreshold
		}
		if pc.RecoveryTimeout == "" {
			pc.RecoveryTimeout = c.Breakers.RecoveryTimeout
		}
		return pc
	}
	return BreakerConfig{
		FailureThreshold: c.Breakers.FailureThreshold,
		RecoveryTimeout:  c.Breakers.RecoveryTimeout,
	}
}

// ParseDuration parses a config duration string, returning the fallback when
// the string is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
