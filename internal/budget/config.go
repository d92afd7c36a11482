package budget

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds budget ledger configuration
type Config struct {
	// Enabled controls whether the ledger enforces limits.
	// A disabled ledger always reports NORMAL with unlimited remaining.
	// Default: true
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxTokensPerWindow is the token allowance for one window
	// 0 = unlimited
	// Default: 100000
	MaxTokensPerWindow int64 `json:"max_tokens_per_window" yaml:"max_tokens_per_window"`

	// MaxCostPerWindow is the USD allowance for one window
	// 0.0 = unlimited (use token limits instead)
	// Default: 1.50
	MaxCostPerWindow float64 `json:"max_cost_per_window" yaml:"max_cost_per_window"`

	// Window is how often usage counters reset
	// Default: 1 hour
	Window time.Duration `json:"window" yaml:"window"`

	// PersistStatePath is where ledger state is persisted (for restart recovery)
	// Empty disables persistence.
	// Default: .steward/budget_state.json
	PersistStatePath string `json:"persist_state_path" yaml:"persist_state_path"`

	// Breakpoints map usage percentage to throttle level
	// Default: 80/90/95
	Breakpoints Breakpoints `json:"breakpoints" yaml:"breakpoints"`
}

// DefaultConfig returns default budget configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		MaxTokensPerWindow: 100000,
		MaxCostPerWindow:   1.50,
		Window:             time.Hour,
		PersistStatePath:   ".steward/budget_state.json",
		Breakpoints:        DefaultBreakpoints(),
	}
}

// LoadFromEnv loads budget configuration from environment variables.
// Environment variables override values already in cfg (DefaultConfig when nil).
// Prefix: STEWARD_BUDGET_
func LoadFromEnv(cfg *Config) *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	fallback := *cfg

	if val := os.Getenv("STEWARD_BUDGET_ENABLED"); val != "" {
		cfg.Enabled = parseBool(val)
	}

	if val := os.Getenv("STEWARD_BUDGET_MAX_TOKENS"); val != "" {
		if tokens, err := strconv.ParseInt(val, 10, 64); err == nil && tokens >= 0 {
			cfg.MaxTokensPerWindow = tokens
		}
	}

	if val := os.Getenv("STEWARD_BUDGET_MAX_COST"); val != "" {
		if cost, err := strconv.ParseFloat(val, 64); err == nil && cost >= 0 {
			cfg.MaxCostPerWindow = cost
		}
	}

	if val := os.Getenv("STEWARD_BUDGET_WINDOW"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil && duration > 0 {
			cfg.Window = duration
		}
	}

	if val := os.Getenv("STEWARD_BUDGET_STATE_PATH"); val != "" {
		cfg.PersistStatePath = val
	}

	if val := os.Getenv("STEWARD_BUDGET_WARNING_PERCENT"); val != "" {
		if pct, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Breakpoints.Warning = pct
		}
	}

	if val := os.Getenv("STEWARD_BUDGET_REDUCE_PERCENT"); val != "" {
		if pct, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Breakpoints.Reduce = pct
		}
	}

	if val := os.Getenv("STEWARD_BUDGET_PAUSE_PERCENT"); val != "" {
		if pct, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Breakpoints.Pause = pct
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid budget config from environment, ignoring overrides", "err", err)
		*cfg = fallback
	}

	return cfg
}

// Validate checks that the configuration has safe and reasonable values
func (c *Config) Validate() error {
	if c.MaxTokensPerWindow < 0 {
		return fmt.Errorf("max_tokens_per_window must be non-negative, got %d", c.MaxTokensPerWindow)
	}

	if c.MaxCostPerWindow < 0 {
		return fmt.Errorf("max_cost_per_window must be non-negative, got %.2f", c.MaxCostPerWindow)
	}

	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}

	if err := c.Breakpoints.Validate(); err != nil {
		return fmt.Errorf("breakpoints: %w", err)
	}

	return nil
}

// parseBool parses a boolean string
func parseBool(val string) bool {
	switch val {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}
