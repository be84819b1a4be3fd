package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coordination.poll_interval")
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

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateCoordination()...)
	errors = append(errors, c.validateAgents()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateStore validates the StoreConfig
func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Store.Backend) {
		errors = append(errors, ValidationError{
			Field:   "store.backend",
			Value:   c.Store.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Store.Backend == "mysql" && c.Store.MySQLDSN == "" {
		errors = append(errors, ValidationError{
			Field:   "store.mysql_dsn",
			Value:   c.Store.MySQLDSN,
			Message: "is required when store.backend is mysql",
		})
	}

	// Readers may race the pruning writer, so at least two versions must survive.
	if c.Store.KeepVersions < 0 || c.Store.KeepVersions == 1 {
		errors = append(errors, ValidationError{
			Field:   "store.keep_versions",
			Value:   c.Store.KeepVersions,
			Message: "must be 0 (keep all) or at least 2",
		})
	}

	return errors
}

// validateCoordination validates the CoordinationConfig
func (c *Config) validateCoordination() []ValidationError {
	var errors []ValidationError

	const minPollInterval = 10 * time.Millisecond
	if c.Coordination.PollInterval < minPollInterval {
		errors = append(errors, ValidationError{
			Field:   "coordination.poll_interval",
			Value:   c.Coordination.PollInterval,
			Message: fmt.Sprintf("must be at least %s", minPollInterval),
		})
	}

	if c.Coordination.MaxConflictRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "coordination.max_conflict_retries",
			Value:   c.Coordination.MaxConflictRetries,
			Message: "must be non-negative",
		})
	}

	if c.Coordination.DefaultTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "coordination.default_timeout",
			Value:   c.Coordination.DefaultTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateAgents validates the AgentsConfig
func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	for field, name := range map[string]string{
		"agents.submitter": c.Agents.Submitter,
		"agents.reviewer":  c.Agents.Reviewer,
	} {
		if !slices.Contains(ValidAgents(), name) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   name,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAgents(), ", ")),
			})
		}
	}

	// MaxRounds must be non-negative (0 means unlimited)
	if c.Agents.MaxRounds < 0 {
		errors = append(errors, ValidationError{
			Field:   "agents.max_rounds",
			Value:   c.Agents.MaxRounds,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	if c.Agents.Codex.ApprovalMode != "" && !slices.Contains(ValidApprovalModes(), c.Agents.Codex.ApprovalMode) {
		errors = append(errors, ValidationError{
			Field:   "agents.codex.approval_mode",
			Value:   c.Agents.Codex.ApprovalMode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
