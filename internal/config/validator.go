package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "server.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateModel()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateServer validates the ServerConfig
func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Value:   c.Server.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if c.Server.ShutdownTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   c.Server.ShutdownTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateModel validates the ModelConfig
func (c *Config) validateModel() []ValidationError {
	var errors []ValidationError

	if c.Model.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "model.name",
			Value:   c.Model.Name,
			Message: "must not be empty",
		})
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "model.temperature",
			Value:   c.Model.Temperature,
			Message: "must be between 0 and 2",
		})
	}

	if c.Model.MaxOutputTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "model.max_output_tokens",
			Value:   c.Model.MaxOutputTokens,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePipeline validates the PipelineConfig
func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.StageTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.stage_timeout_seconds",
			Value:   c.Pipeline.StageTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	if c.Pipeline.MaxConcurrentSessions < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_concurrent_sessions",
			Value:   c.Pipeline.MaxConcurrentSessions,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	if c.Session.SubscriberBuffer < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.subscriber_buffer",
			Value:   c.Session.SubscriberBuffer,
			Message: "must be at least 1",
		})
	}

	if c.Session.SweepIntervalMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.sweep_interval_minutes",
			Value:   c.Session.SweepIntervalMinutes,
			Message: "must be at least 1",
		})
	}

	if c.Session.MaxAgeHours < 1 {
		errors = append(errors, ValidationError{
			Field:   "session.max_age_hours",
			Value:   c.Session.MaxAgeHours,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
