package budget

import (
	"context"
	"fmt"
	"sync"

	"github.com/steveyegge/steward/internal/admission"
	"github.com/steveyegge/steward/internal/types"
)

// ExternalSource is a Source fed a pre-computed usage percentage, for
// deployments where pricing is computed outside this process.
type ExternalSource struct {
	breakpoints Breakpoints

	mu        sync.RWMutex
	percent   float64
	used      int64
	remaining int64
}

var _ Source = (*ExternalSource)(nil)

// NewExternalSource creates a source that reports NORMAL until the first Report
func NewExternalSource(bp Breakpoints) (*ExternalSource, error) {
	if err := bp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid breakpoints: %w", err)
	}
	return &ExternalSource{breakpoints: bp, remaining: Unlimited}, nil
}

// Report replaces the current usage figures
func (s *ExternalSource) Report(usagePercent float64, tokensUsed, tokensRemaining int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.percent = usagePercent
	s.used = tokensUsed
	s.remaining = tokensRemaining
}

// Status returns a snapshot computed from the last report
func (s *ExternalSource) Status(ctx context.Context) (types.BudgetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level := LevelFor(s.percent, s.breakpoints)
	return types.BudgetSnapshot{
		Level:           level,
		UsagePercent:    s.percent,
		TokensUsed:      s.used,
		TokensRemaining: s.remaining,
		Recommendation:  Recommendation(level),
	}, nil
}

// CanProceed answers an admission question against the last report
func (s *ExternalSource) CanProceed(ctx context.Context, estimatedTokens int64, class types.PriorityClass) types.Admission {
	snap, _ := s.Status(ctx)
	return admission.Decide(snap, estimatedTokens, class)
}
