package budget

import (
	"fmt"

	"github.com/steveyegge/steward/internal/types"
)

// Breakpoints are the usage percentages at which the throttle level steps up.
// A level is entered at its breakpoint (inclusive) and held until the next.
type Breakpoints struct {
	Warning float64 `json:"warning" yaml:"warning"`
	Reduce  float64 `json:"reduce" yaml:"reduce"`
	Pause   float64 `json:"pause" yaml:"pause"`
}

// DefaultBreakpoints returns the 80/90/95 breakpoints
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{Warning: 80, Reduce: 90, Pause: 95}
}

// Validate checks that breakpoints are positive and strictly increasing
func (b Breakpoints) Validate() error {
	if b.Warning <= 0 {
		return fmt.Errorf("warning breakpoint must be positive, got %.2f", b.Warning)
	}
	if b.Reduce <= b.Warning {
		return fmt.Errorf("reduce breakpoint (%.2f) must be greater than warning (%.2f)", b.Reduce, b.Warning)
	}
	if b.Pause <= b.Reduce {
		return fmt.Errorf("pause breakpoint (%.2f) must be greater than reduce (%.2f)", b.Pause, b.Reduce)
	}
	return nil
}

// LevelFor maps a usage percentage to a throttle level.
// The mapping is monotonic in usage and has no hysteresis.
func LevelFor(usagePercent float64, bp Breakpoints) types.ThrottleLevel {
	switch {
	case usagePercent >= bp.Pause:
		return types.LevelPause
	case usagePercent >= bp.Reduce:
		return types.LevelReduce
	case usagePercent >= bp.Warning:
		return types.LevelWarning
	default:
		return types.LevelNormal
	}
}

// Recommendation returns operator guidance for a level
func Recommendation(level types.ThrottleLevel) string {
	switch level {
	case types.LevelNormal:
		return "Budget healthy: all work allowed"
	case types.LevelWarning:
		return "Approaching budget limit: discovery frequency reduced"
	case types.LevelReduce:
		return "Budget nearly exhausted: essential work only"
	case types.LevelPause:
		return "Budget exhausted: user-initiated work only until the window resets"
	default:
		return ""
	}
}
