package config

// Config is the top-level configuration structure parsed from forgeline YAML.
type Config struct {
	Pipeline  Pipeline  `yaml:"pipeline"`
	Breakers  Breakers  `yaml:"breakers"`
	Retry     Retry     `yaml:"retry"`
	Recovery  Recovery  `yaml:"recovery"`
	LLM       LLM       `yaml:"llm"`
	Checks    Checks    `yaml:"checks"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Pipeline defines run-level settings: identity, thresholds, and gating.
type Pipeline struct {
	Name           string `yaml:"name"`
	Repo           string `yaml:"repo"`
	RunsDir        string `yaml:"runs_dir"`
	ScoreThreshold int    `yaml:"score_threshold"`
	Automation     bool   `yaml:"automation"`
}

// Breakers holds default circuit breaker settings applied to every stage
// breaker that doesn't carry a per-stage override.
type Breakers struct {
	FailureThreshold int                      `yaml:"failure_threshold"`
	RecoveryTimeout  string                   `yaml:"recovery_timeout"`
	PerStage         map[string]BreakerConfig `yaml:"per_stage"`
}

// BreakerConfig is a per-stage circuit breaker override.
type BreakerConfig struct {
	FailureThreshold int    `yaml:"failure_threshold"`
	RecoveryTimeout  string `yaml:"recovery_timeout"`
}

// Retry configures the retry executor used for transient operations.
type Retry struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
	MaxDelay    string `yaml:"max_delay"`
	Jitter      bool   `yaml:"jitter"`
}

// Recovery bounds the automated fix loop.
type Recovery struct {
	MaxAttempts         int `yaml:"max_attempts"`
	ConfidenceThreshold int `yaml:"confidence_threshold"`
}

// LLM configures the model backend used by generation stages.
type LLM struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Checks defines the deterministic build and test commands run between stages.
type Checks struct {
	Build   CheckCommand `yaml:"build"`
	Test    CheckCommand `yaml:"test"`
	WorkDir string       `yaml:"work_dir"`
}

// CheckCommand is a single shell command with a timeout.
type CheckCommand struct {
	Command string `yaml:"command"`
	Timeout string `yaml:"timeout"`
}

// Telemetry configures event emission.
type Telemetry struct {
	Log     bool   `yaml:"log"`
	Metrics bool   `yaml:"metrics"`
	DBPath  string `yaml:"db_path"`
}
