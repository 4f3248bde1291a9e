package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coral-mesh/docteur/internal/collector"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// Validate validates Config.
func (c *Config) Validate() error {
	var errors []ValidationError

	if c.Profile.TopModules < 0 {
		errors = append(errors, ValidationError{
			Field:   "profile.top_modules",
			Message: "top modules must not be negative",
		})
	}

	if c.Profile.ThresholdMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "profile.threshold_ms",
			Message: "threshold must not be negative",
		})
	}

	if c.Profile.Where != "" {
		if _, err := collector.CompilePredicate(c.Profile.Where); err != nil {
			errors = append(errors, ValidationError{
				Field:   "profile.where",
				Message: err.Error(),
			})
		}
	}

	if c.Runtime.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Runtime.FallbackTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.fallback_timeout",
			Message: "fallback timeout must be positive",
		})
	} else if c.Runtime.Timeout > 0 && c.Runtime.FallbackTimeout >= c.Runtime.Timeout {
		errors = append(errors, ValidationError{
			Field:   "runtime.fallback_timeout",
			Message: fmt.Sprintf("fallback timeout must be shorter than timeout (%s)", c.Runtime.Timeout),
		})
	}

	if c.Runtime.KillGrace < 0 {
		errors = append(errors, ValidationError{
			Field:   "runtime.kill_grace",
			Message: "kill grace must not be negative",
		})
	}

	if c.Runtime.ReadyPattern == "" {
		errors = append(errors, ValidationError{
			Field:   "runtime.ready_pattern",
			Message: "ready pattern is required",
		})
	} else if _, err := regexp.Compile(c.Runtime.ReadyPattern); err != nil {
		errors = append(errors, ValidationError{
			Field:   "runtime.ready_pattern",
			Message: fmt.Sprintf("invalid regular expression: %v", err),
		})
	}

	if c.Conventions.DependencyDir == "" {
		errors = append(errors, ValidationError{
			Field:   "conventions.dependency_dir",
			Message: "dependency directory is required",
		})
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be one of: trace, debug, info, warn, error",
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}
