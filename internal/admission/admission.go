// Package admission decides whether a unit of work may proceed given the
// current budget snapshot and the work's priority class.
package admission

import (
	"fmt"

	"github.com/steveyegge/steward/internal/types"
)

// Denial reasons. Callers match on these to decide whether to defer work.
const (
	ReasonLevelTooHigh      = "throttle level too high"
	ReasonInsufficientFunds = "insufficient remaining budget"
)

// Decide answers a single admission question. It has no side effects and
// never retries; a denial is terminal for the current cycle.
//
// Rules:
//   - USER is always allowed, regardless of level or remaining tokens
//   - STANDARD is allowed unless the level is PAUSE
//   - BACKGROUND is allowed only at NORMAL or WARNING, and only when the
//     remaining token budget covers the estimate
func Decide(snap types.BudgetSnapshot, estimatedTokens int64, class types.PriorityClass) types.Admission {
	switch class {
	case types.ClassUser:
		return types.Admission{Allowed: true}

	case types.ClassStandard:
		if snap.Level >= types.LevelPause {
			return deny(ReasonLevelTooHigh, snap, class)
		}
		return types.Admission{Allowed: true}

	case types.ClassBackground:
		if snap.Level >= types.LevelReduce {
			return deny(ReasonLevelTooHigh, snap, class)
		}
		if snap.TokensRemaining < estimatedTokens {
			return types.Admission{
				Allowed: false,
				Reason: fmt.Sprintf("%s (%d tokens requested, %d remaining)",
					ReasonInsufficientFunds, estimatedTokens, snap.TokensRemaining),
			}
		}
		return types.Admission{Allowed: true}
	}

	return types.Admission{Allowed: false, Reason: fmt.Sprintf("unknown priority class %s", class)}
}

func deny(reason string, snap types.BudgetSnapshot, class types.PriorityClass) types.Admission {
	return types.Admission{
		Allowed: false,
		Reason:  fmt.Sprintf("%s (%s work not allowed at %s)", reason, class, snap.Level),
	}
}
