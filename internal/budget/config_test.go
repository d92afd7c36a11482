package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STEWARD_BUDGET_MAX_TOKENS", "5000")
	t.Setenv("STEWARD_BUDGET_MAX_COST", "2.5")
	t.Setenv("STEWARD_BUDGET_WINDOW", "30m")
	t.Setenv("STEWARD_BUDGET_ENABLED", "false")
	t.Setenv("STEWARD_BUDGET_WARNING_PERCENT", "70")

	cfg := LoadFromEnv(nil)
	assert.Equal(t, int64(5000), cfg.MaxTokensPerWindow)
	assert.Equal(t, 2.5, cfg.MaxCostPerWindow)
	assert.Equal(t, 30*time.Minute, cfg.Window)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 70.0, cfg.Breakpoints.Warning)
}

func TestLoadFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("STEWARD_BUDGET_MAX_TOKENS", "lots")
	t.Setenv("STEWARD_BUDGET_WINDOW", "-5m")

	cfg := LoadFromEnv(nil)
	assert.Equal(t, DefaultConfig().MaxTokensPerWindow, cfg.MaxTokensPerWindow)
	assert.Equal(t, time.Hour, cfg.Window)
}

func TestLoadFromEnv_InvalidCombinationFallsBack(t *testing.T) {
	base := DefaultConfig()
	base.MaxTokensPerWindow = 42

	t.Setenv("STEWARD_BUDGET_WARNING_PERCENT", "99")

	cfg := LoadFromEnv(base)
	assert.Equal(t, 80.0, cfg.Breakpoints.Warning, "warning above pause is rejected")
	assert.Equal(t, int64(42), cfg.MaxTokensPerWindow, "fallback keeps caller values")
}
