// Package approval decides when work needs human sign-off and builds the
// requests that hold it for review. Resolving a request is out of scope:
// nothing in this package approves or rejects anything.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/steward/internal/priorities"
	"github.com/steveyegge/steward/internal/types"
)

// RequestTypeInitiative marks requests created for discovered initiatives
const RequestTypeInitiative = "initiative"

// Queue is a durable, append-only holding area for approval requests.
// Adding the same logical item twice is allowed; review tooling tolerates duplicates.
type Queue interface {
	AddApproval(ctx context.Context, req types.ApprovalRequest) error
}

// Lister is implemented by queues that support review tooling
type Lister interface {
	ListApprovals(ctx context.Context, limit int) ([]types.ApprovalRequest, error)
}

// Verdict is the outcome of RequiresApproval
type Verdict struct {
	Required bool
	Reason   string
}

// DefaultApprovalThreshold returns the thresholds used when none are configured
func DefaultApprovalThreshold() types.ApprovalThreshold {
	return types.ApprovalThreshold{
		MinCost:          0.50,
		MinRisk:          types.RiskHigh,
		MinFilesAffected: 10,
		TouchesSecurity:  true,
	}
}

// DefaultAutoExecuteThreshold returns the auto-execute limits used when none are configured
func DefaultAutoExecuteThreshold() types.AutoExecuteThreshold {
	return types.AutoExecuteThreshold{
		MaxCostPerTask:   0.50,
		MaxRisk:          types.RiskMedium,
		MaxFilesAffected: 5,
		MinPriority:      65,
	}
}

// RequiresApproval reports whether human sign-off is required. Any single
// triggered clause is enough. A non-positive MinCost or MinFilesAffected and
// an unspecified MinRisk disable their clause.
func RequiresApproval(cost float64, risk types.Risk, filesAffected int, touchesSecurity bool, th types.ApprovalThreshold) Verdict {
	var reasons []string

	if th.MinCost > 0 && cost >= th.MinCost {
		reasons = append(reasons, fmt.Sprintf("estimated cost $%.2f >= $%.2f", cost, th.MinCost))
	}
	if th.MinRisk != types.RiskUnspecified && risk >= th.MinRisk {
		reasons = append(reasons, fmt.Sprintf("risk %s >= %s", risk, th.MinRisk))
	}
	if th.MinFilesAffected > 0 && filesAffected >= th.MinFilesAffected {
		reasons = append(reasons, fmt.Sprintf("%d files affected >= %d", filesAffected, th.MinFilesAffected))
	}
	if touchesSecurity && th.TouchesSecurity {
		reasons = append(reasons, "touches security-sensitive code")
	}

	if len(reasons) == 0 {
		return Verdict{}
	}
	return Verdict{Required: true, Reason: strings.Join(reasons, "; ")}
}

// Evaluate applies RequiresApproval to an initiative
func Evaluate(i types.Initiative, th types.ApprovalThreshold) Verdict {
	return RequiresApproval(i.EstimatedCostUSD, priorities.EffectiveRisk(i), i.FilesAffected, i.TouchesSecurity, th)
}

// WithinAutoExecute checks an initiative against the auto-execute ceilings.
// Zero ceilings and an unspecified MaxRisk are unlimited. MinPriority is
// applied during partitioning, not here.
func WithinAutoExecute(i types.Initiative, th types.AutoExecuteThreshold) (bool, string) {
	if th.MaxCostPerTask > 0 && i.EstimatedCostUSD > th.MaxCostPerTask {
		return false, fmt.Sprintf("estimated cost $%.2f exceeds auto-execute limit $%.2f", i.EstimatedCostUSD, th.MaxCostPerTask)
	}
	risk := priorities.EffectiveRisk(i)
	if th.MaxRisk != types.RiskUnspecified && risk > th.MaxRisk {
		return false, fmt.Sprintf("risk %s exceeds auto-execute limit %s", risk, th.MaxRisk)
	}
	if th.MaxFilesAffected > 0 && i.FilesAffected > th.MaxFilesAffected {
		return false, fmt.Sprintf("%d files affected exceeds auto-execute limit %d", i.FilesAffected, th.MaxFilesAffected)
	}
	return true, ""
}

// NewRequest builds an approval request for an initiative
func NewRequest(i types.Initiative, reason string, now time.Time) types.ApprovalRequest {
	return types.ApprovalRequest{
		ID:               uuid.New().String(),
		SourceID:         i.ID,
		Type:             RequestTypeInitiative,
		Title:            i.Title,
		Description:      i.Description,
		Risk:             priorities.EffectiveRisk(i),
		EstimatedCostUSD: i.EstimatedCostUSD,
		EstimatedTokens:  i.EstimatedTokens,
		Reversible:       !i.TouchesSecurity,
		Reason:           reason,
		Metadata: map[string]interface{}{
			"category":         i.Category,
			"priority":         i.Priority,
			"files_affected":   i.FilesAffected,
			"touches_security": i.TouchesSecurity,
			"risk_explicit":    i.Risk != types.RiskUnspecified,
		},
		CreatedAt: now,
	}
}
