package priorities

import "github.com/steveyegge/steward/internal/types"

// Priority breakpoints used when an initiative carries no explicit risk.
const (
	HighRiskPriority   = 80
	MediumRiskPriority = 50
)

// RiskForPriority approximates risk from a 0-100 priority.
//
// This is a known approximation: priority measures importance, not danger.
// It is only used when a discovery source does not report a risk.
//   - priority >= 80: HIGH
//   - priority >= 50: MEDIUM
//   - otherwise: LOW
func RiskForPriority(priority int) types.Risk {
	switch {
	case priority >= HighRiskPriority:
		return types.RiskHigh
	case priority >= MediumRiskPriority:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// EffectiveRisk returns the initiative's explicit risk, falling back to
// RiskForPriority when the source left it unspecified.
func EffectiveRisk(i types.Initiative) types.Risk {
	if i.Risk != types.RiskUnspecified {
		return i.Risk
	}
	return RiskForPriority(i.Priority)
}
