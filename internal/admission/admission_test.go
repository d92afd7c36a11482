package admission

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/steward/internal/types"
)

var allLevels = []types.ThrottleLevel{
	types.LevelNormal, types.LevelWarning, types.LevelReduce, types.LevelPause,
}

func TestDecide_UserAlwaysAllowed(t *testing.T) {
	for _, level := range allLevels {
		for _, remaining := range []int64{0, 10, 1_000_000} {
			snap := types.BudgetSnapshot{Level: level, TokensRemaining: remaining}
			got := Decide(snap, 500_000, types.ClassUser)
			assert.True(t, got.Allowed, "level=%s remaining=%d", level, remaining)
			assert.Empty(t, got.Reason)
		}
	}
}

func TestDecide_Standard(t *testing.T) {
	tests := []struct {
		level   types.ThrottleLevel
		allowed bool
	}{
		{types.LevelNormal, true},
		{types.LevelWarning, true},
		{types.LevelReduce, true},
		{types.LevelPause, false},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := Decide(types.BudgetSnapshot{Level: tt.level}, 100, types.ClassStandard)
			assert.Equal(t, tt.allowed, got.Allowed)
			if !tt.allowed {
				assert.Contains(t, got.Reason, ReasonLevelTooHigh)
			}
		})
	}
}

func TestDecide_BackgroundDeniedAtReduceAndPause(t *testing.T) {
	for _, level := range []types.ThrottleLevel{types.LevelReduce, types.LevelPause} {
		for _, tokens := range []int64{0, 1, 1000} {
			t.Run(fmt.Sprintf("%s/%d", level, tokens), func(t *testing.T) {
				snap := types.BudgetSnapshot{Level: level, TokensRemaining: 1_000_000}
				got := Decide(snap, tokens, types.ClassBackground)
				assert.False(t, got.Allowed)
				assert.Contains(t, got.Reason, ReasonLevelTooHigh)
			})
		}
	}
}

func TestDecide_BackgroundInsufficientBudget(t *testing.T) {
	snap := types.BudgetSnapshot{Level: types.LevelNormal, TokensRemaining: 999}

	got := Decide(snap, 1000, types.ClassBackground)
	assert.False(t, got.Allowed)
	assert.Contains(t, got.Reason, ReasonInsufficientFunds)

	got = Decide(snap, 999, types.ClassBackground)
	assert.True(t, got.Allowed, "exact remaining budget should be admitted")
}

func TestDecide_BackgroundAllowedAtWarning(t *testing.T) {
	snap := types.BudgetSnapshot{Level: types.LevelWarning, TokensRemaining: 5000}
	assert.True(t, Decide(snap, 4000, types.ClassBackground).Allowed)
}

func TestDecide_UnknownClass(t *testing.T) {
	got := Decide(types.BudgetSnapshot{}, 1, types.PriorityClass(42))
	assert.False(t, got.Allowed)
	assert.Contains(t, got.Reason, "unknown priority class")
}
