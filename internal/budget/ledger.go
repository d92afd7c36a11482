// Package budget tracks consumption against a rolling budget window and
// exposes it as a discrete throttle level plus remaining capacity.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/steward/internal/admission"
	"github.com/steveyegge/steward/internal/types"
)

// Unlimited is reported as TokensRemaining when no token limit is configured
const Unlimited int64 = math.MaxInt64

// Source is anything the poll loop can read a budget snapshot from
type Source interface {
	// Status returns the current snapshot. It must be safe to call every cycle.
	Status(ctx context.Context) (types.BudgetSnapshot, error)
	// CanProceed answers an admission question against the current snapshot.
	CanProceed(ctx context.Context, estimatedTokens int64, class types.PriorityClass) types.Admission
}

// State is the persisted ledger state
type State struct {
	// Current window
	WindowTokensUsed int64     `json:"window_tokens_used"`
	WindowCostUsed   float64   `json:"window_cost_used"`
	WindowStartTime  time.Time `json:"window_start_time"`

	// All-time totals
	TotalTokensUsed int64   `json:"total_tokens_used"`
	TotalCostUsed   float64 `json:"total_cost_used"`

	LastUpdated time.Time `json:"last_updated"`
}

// Stats contains ledger statistics for display
type Stats struct {
	Snapshot         types.BudgetSnapshot `json:"snapshot"`
	WindowTokensUsed int64                `json:"window_tokens_used"`
	WindowCostUsed   float64              `json:"window_cost_used"`
	TotalTokensUsed  int64                `json:"total_tokens_used"`
	TotalCostUsed    float64              `json:"total_cost_used"`
	WindowStartTime  time.Time            `json:"window_start_time"`
	WindowResetsAt   time.Time            `json:"window_resets_at"`
	LastUpdated      time.Time            `json:"last_updated"`
	Config           Config               `json:"config"`
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger tracks token and cost usage inside a rolling window
type Ledger struct {
	config *Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex // Protects state
	state *State
}

var _ Source = (*Ledger)(nil)

// NewLedger creates a ledger, restoring persisted state when present.
// A missing or unreadable state file starts a fresh window.
func NewLedger(cfg *Config, logger *slog.Logger, opts ...Option) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.state = &State{WindowStartTime: l.now(), LastUpdated: l.now()}

	if cfg.PersistStatePath != "" {
		if err := l.loadState(); err != nil {
			l.logger.Warn("failed to load budget state, starting fresh",
				"path", cfg.PersistStatePath, "err", err)
		}
	}

	l.mu.Lock()
	l.checkAndResetWindow()
	l.mu.Unlock()

	return l, nil
}

// RecordUsage adds consumed tokens and cost to the current window
func (l *Ledger) RecordUsage(ctx context.Context, tokens int64, costUSD float64) (types.BudgetSnapshot, error) {
	if tokens < 0 || costUSD < 0 {
		return types.BudgetSnapshot{}, fmt.Errorf("usage must be non-negative (tokens=%d cost=%.4f)", tokens, costUSD)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetWindow()

	l.state.WindowTokensUsed += tokens
	l.state.WindowCostUsed += costUSD
	l.state.TotalTokensUsed += tokens
	l.state.TotalCostUsed += costUSD
	l.state.LastUpdated = l.now()

	if err := l.persistState(); err != nil {
		l.logger.Warn("failed to persist budget state", "err", err)
	}

	snap := l.snapshotLocked()
	l.logger.Debug("recorded usage",
		"tokens", tokens, "cost_usd", costUSD,
		"level", snap.Level.String(), "usage_percent", snap.UsagePercent)

	return snap, nil
}

// Status returns the current snapshot. The only side effect is rolling an
// expired window over.
func (l *Ledger) Status(ctx context.Context) (types.BudgetSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetWindow()
	return l.snapshotLocked(), nil
}

// CanProceed checks whether work of the given size and class may proceed now
func (l *Ledger) CanProceed(ctx context.Context, estimatedTokens int64, class types.PriorityClass) types.Admission {
	snap, err := l.Status(ctx)
	if err != nil {
		return types.Admission{Allowed: class == types.ClassUser, Reason: err.Error()}
	}
	return admission.Decide(snap, estimatedTokens, class)
}

// Stats returns current ledger statistics
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.checkAndResetWindow()

	return Stats{
		Snapshot:         l.snapshotLocked(),
		WindowTokensUsed: l.state.WindowTokensUsed,
		WindowCostUsed:   l.state.WindowCostUsed,
		TotalTokensUsed:  l.state.TotalTokensUsed,
		TotalCostUsed:    l.state.TotalCostUsed,
		WindowStartTime:  l.state.WindowStartTime,
		WindowResetsAt:   l.state.WindowStartTime.Add(l.config.Window),
		LastUpdated:      l.state.LastUpdated,
		Config:           *l.config,
	}
}

// snapshotLocked builds a snapshot (must be called with mu held)
func (l *Ledger) snapshotLocked() types.BudgetSnapshot {
	if !l.config.Enabled {
		return types.BudgetSnapshot{
			Level:           types.LevelNormal,
			TokensUsed:      l.state.WindowTokensUsed,
			TokensRemaining: Unlimited,
			Recommendation:  Recommendation(types.LevelNormal),
		}
	}

	usage := l.usagePercentLocked()
	level := LevelFor(usage, l.config.Breakpoints)

	remaining := Unlimited
	if l.config.MaxTokensPerWindow > 0 {
		remaining = l.config.MaxTokensPerWindow - l.state.WindowTokensUsed
		if remaining < 0 {
			remaining = 0
		}
	}

	return types.BudgetSnapshot{
		Level:           level,
		UsagePercent:    usage,
		TokensUsed:      l.state.WindowTokensUsed,
		TokensRemaining: remaining,
		Recommendation:  Recommendation(level),
	}
}

// usagePercentLocked is the larger of token and cost usage; zero limits are ignored
func (l *Ledger) usagePercentLocked() float64 {
	var tokenPercent, costPercent float64
	if l.config.MaxTokensPerWindow > 0 {
		tokenPercent = float64(l.state.WindowTokensUsed) / float64(l.config.MaxTokensPerWindow) * 100
	}
	if l.config.MaxCostPerWindow > 0 {
		costPercent = l.state.WindowCostUsed / l.config.MaxCostPerWindow * 100
	}
	return math.Max(tokenPercent, costPercent)
}

// checkAndResetWindow resets window counters once the window has elapsed
// MUST be called with mu held
func (l *Ledger) checkAndResetWindow() {
	now := l.now()
	if now.Sub(l.state.WindowStartTime) < l.config.Window {
		return
	}

	l.state.WindowTokensUsed = 0
	l.state.WindowCostUsed = 0
	l.state.WindowStartTime = now
	l.logger.Info("budget window reset", "window", l.config.Window)

	if err := l.persistState(); err != nil {
		l.logger.Warn("failed to persist budget state", "err", err)
	}
}

// persistState saves the ledger state to disk
func (l *Ledger) persistState() error {
	if l.config.PersistStatePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.config.PersistStatePath), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if err := os.WriteFile(l.config.PersistStatePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// loadState loads the ledger state from disk
func (l *Ledger) loadState() error {
	data, err := os.ReadFile(l.config.PersistStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}

	l.state = &state
	return nil
}
