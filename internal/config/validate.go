package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Pipeline.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if cfg.Pipeline.ScoreThreshold < 0 || cfg.Pipeline.ScoreThreshold > 100 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.score_threshold",
			Message: fmt.Sprintf("must be between 0 and 100, got %d", cfg.Pipeline.ScoreThreshold),
		})
	}

	if cfg.Breakers.FailureThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "breakers.failure_threshold",
			Message: "must be at least 1",
		})
	}
	validateDuration("breakers.recovery_timeout", cfg.Breakers.RecoveryTimeout, &errs)
	for stage, pc := range cfg.Breakers.PerStage {
		if pc.FailureThreshold < 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("breakers.per_stage.%s.failure_threshold", stage),
				Message: "must not be negative",
			})
		}
		if pc.RecoveryTimeout != "" {
			validateDuration(fmt.Sprintf("breakers.per_stage.%s.recovery_timeout", stage), pc.RecoveryTimeout, &errs)
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "retry.max_attempts", Message: "must be at least 1"})
	}
	validateDuration("retry.base_delay", cfg.Retry.BaseDelay, &errs)
	validateDuration("retry.max_delay", cfg.Retry.MaxDelay, &errs)

	if cfg.Recovery.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "recovery.max_attempts", Message: "must be at least 1"})
	}
	if cfg.Recovery.ConfidenceThreshold < 0 || cfg.Recovery.ConfidenceThreshold > 100 {
		errs = append(errs, ValidationError{
			Field:   "recovery.confidence_threshold",
			Message: fmt.Sprintf("must be between 0 and 100, got %d", cfg.Recovery.ConfidenceThreshold),
		})
	}

	if cfg.Checks.Build.Command == "" {
		errs = append(errs, ValidationError{Field: "checks.build.command", Message: "is required"})
	}
	if cfg.Checks.Test.Command == "" {
		errs = append(errs, ValidationError{Field: "checks.test.command", Message: "is required"})
	}
	if cfg.Checks.Build.Timeout != "" {
		validateDuration("checks.build.timeout", cfg.Checks.Build.Timeout, &errs)
	}
	if cfg.Checks.Test.Timeout != "" {
		validateDuration("checks.test.timeout", cfg.Checks.Test.Timeout, &errs)
	}

	return errs
}

// validateDuration checks that a non-empty duration string parses.
func validateDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	if _, err := time.ParseDuration(value); err != nil {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration %q", value),
		})
	}
}
