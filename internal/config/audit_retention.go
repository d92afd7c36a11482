package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/steveyegge/steward/internal/events"
)

// AuditRetentionConfig holds configuration for audit trail retention and cleanup
type AuditRetentionConfig struct {
	// RetentionDays is the retention period for regular events (in days)
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// RetentionCriticalDays is the retention period for error/critical events (in days)
	// Must be >= RetentionDays
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `yaml:"retention_critical_days" json:"retention_critical_days"`

	// GlobalLimitEvents is the maximum total number of events to keep.
	// Oldest regular events go first, critical events last.
	// Default: 100000, Range: 0 (unlimited) or 1000-1000000
	GlobalLimitEvents int `yaml:"global_limit_events" json:"global_limit_events"`

	// CleanupBatchSize is the number of events to delete per statement
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size" json:"cleanup_batch_size"`

	// CleanupEnabled controls whether the cycle's cleanup step runs at all
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled" json:"cleanup_enabled"`
}

// DefaultAuditRetentionConfig returns the default audit retention configuration
func DefaultAuditRetentionConfig() AuditRetentionConfig {
	return AuditRetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		GlobalLimitEvents:     100000,
		CleanupBatchSize:      1000,
		CleanupEnabled:        true,
	}
}

// Validate checks if the configuration has valid values
func (c AuditRetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}
	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}

	if c.GlobalLimitEvents < 0 {
		return fmt.Errorf("global_limit_events cannot be negative (got %d)", c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 0 && c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be 0 (unlimited) or >= 1000 (got %d)",
			c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)",
			c.GlobalLimitEvents)
	}

	if c.CleanupBatchSize < 100 {
		return fmt.Errorf("cleanup_batch_size must be at least 100 (got %d)", c.CleanupBatchSize)
	}
	if c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size too large (got %d, max 10000)", c.CleanupBatchSize)
	}
	return nil
}

// Policy converts the configuration to the storage-level retention policy
func (c AuditRetentionConfig) Policy() events.RetentionPolicy {
	return events.RetentionPolicy{
		MaxAge:         time.Duration(c.RetentionDays) * 24 * time.Hour,
		CriticalMaxAge: time.Duration(c.RetentionCriticalDays) * 24 * time.Hour,
		GlobalLimit:    c.GlobalLimitEvents,
		BatchSize:      c.CleanupBatchSize,
	}
}

// String returns a human-readable representation of the config
func (c AuditRetentionConfig) String() string {
	return fmt.Sprintf(
		"AuditRetentionConfig{RetentionDays: %d, RetentionCriticalDays: %d, "+
			"GlobalLimit: %d, BatchSize: %d, Enabled: %t}",
		c.RetentionDays, c.RetentionCriticalDays, c.GlobalLimitEvents,
		c.CleanupBatchSize, c.CleanupEnabled,
	)
}

// applyAuditRetentionEnv overrides fields from the environment.
//
// Environment variables:
//   - STEWARD_AUDIT_RETENTION_DAYS: Retention period for regular events in days
//   - STEWARD_AUDIT_RETENTION_CRITICAL_DAYS: Retention period for critical events in days
//   - STEWARD_AUDIT_GLOBAL_LIMIT: Maximum total events, 0 for unlimited
//   - STEWARD_AUDIT_CLEANUP_BATCH_SIZE: Events to delete per statement
//   - STEWARD_AUDIT_CLEANUP_ENABLED: Enable the cleanup step
func applyAuditRetentionEnv(cfg *AuditRetentionConfig) error {
	if err := parseEnvInt("STEWARD_AUDIT_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return err
	}
	if err := parseEnvInt("STEWARD_AUDIT_RETENTION_CRITICAL_DAYS", &cfg.RetentionCriticalDays); err != nil {
		return err
	}
	if err := parseEnvInt("STEWARD_AUDIT_GLOBAL_LIMIT", &cfg.GlobalLimitEvents); err != nil {
		return err
	}
	if err := parseEnvInt("STEWARD_AUDIT_CLEANUP_BATCH_SIZE", &cfg.CleanupBatchSize); err != nil {
		return err
	}
	return parseEnvBool("STEWARD_AUDIT_CLEANUP_ENABLED", &cfg.CleanupEnabled)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a time.Duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
	return nil
}
