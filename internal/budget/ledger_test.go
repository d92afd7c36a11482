package budget

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/steward/internal/admission"
	"github.com/steveyegge/steward/internal/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger(t *testing.T, cfg *Config) (*Ledger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, err := NewLedger(cfg, nil, WithClock(clock.Now))
	require.NoError(t, err)
	return l, clock
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.MaxTokensPerWindow = 10000
	cfg.MaxCostPerWindow = 0
	cfg.PersistStatePath = filepath.Join(t.TempDir(), "budget_state.json")
	return cfg
}

func TestNewLedger_RequiresConfig(t *testing.T) {
	_, err := NewLedger(nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Window = 0
	_, err = NewLedger(cfg, nil)
	assert.Error(t, err)
}

func TestLedger_StatusTracksUsage(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, testConfig(t))

	snap, err := l.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.LevelNormal, snap.Level)
	assert.Equal(t, int64(10000), snap.TokensRemaining)

	snap, err = l.RecordUsage(ctx, 8200, 0)
	require.NoError(t, err)
	assert.Equal(t, types.LevelWarning, snap.Level)
	assert.InDelta(t, 82.0, snap.UsagePercent, 0.001)
	assert.Equal(t, int64(8200), snap.TokensUsed)
	assert.Equal(t, int64(1800), snap.TokensRemaining)

	snap, err = l.RecordUsage(ctx, 1400, 0)
	require.NoError(t, err)
	assert.Equal(t, types.LevelPause, snap.Level)

	snap, err = l.RecordUsage(ctx, 5000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TokensRemaining, "remaining never goes negative")
}

func TestLedger_UsageIsMaxOfTokensAndCost(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.MaxCostPerWindow = 1.00
	l, _ := newTestLedger(t, cfg)

	snap, err := l.RecordUsage(ctx, 1000, 0.91)
	require.NoError(t, err)
	assert.InDelta(t, 91.0, snap.UsagePercent, 0.001)
	assert.Equal(t, types.LevelReduce, snap.Level)
}

func TestLedger_RejectsNegativeUsage(t *testing.T) {
	l, _ := newTestLedger(t, testConfig(t))
	_, err := l.RecordUsage(context.Background(), -1, 0)
	assert.Error(t, err)
}

func TestLedger_WindowReset(t *testing.T) {
	ctx := context.Background()
	l, clock := newTestLedger(t, testConfig(t))

	_, err := l.RecordUsage(ctx, 9600, 0)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	snap, _ := l.Status(ctx)
	assert.Equal(t, types.LevelPause, snap.Level)

	clock.Advance(31 * time.Minute)
	snap, _ = l.Status(ctx)
	assert.Equal(t, types.LevelNormal, snap.Level)
	assert.Equal(t, int64(0), snap.TokensUsed)

	stats := l.Stats()
	assert.Equal(t, int64(9600), stats.TotalTokensUsed, "totals survive window reset")
}

func TestLedger_CanProceed(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, testConfig(t))

	_, err := l.RecordUsage(ctx, 9000, 0)
	require.NoError(t, err)

	// REDUCE: background denied, standard and user allowed
	bg := l.CanProceed(ctx, 10, types.ClassBackground)
	assert.False(t, bg.Allowed)
	assert.Contains(t, bg.Reason, admission.ReasonLevelTooHigh)
	assert.True(t, l.CanProceed(ctx, 10, types.ClassStandard).Allowed)
	assert.True(t, l.CanProceed(ctx, 1_000_000, types.ClassUser).Allowed)
}

func TestLedger_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Enabled = false
	l, _ := newTestLedger(t, cfg)

	snap, err := l.RecordUsage(ctx, 50000, 10)
	require.NoError(t, err)
	assert.Equal(t, types.LevelNormal, snap.Level)
	assert.Equal(t, Unlimited, snap.TokensRemaining)
	assert.True(t, l.CanProceed(ctx, 1_000_000, types.ClassBackground).Allowed)
}

func TestLedger_UnlimitedTokens(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTokensPerWindow = 0
	cfg.MaxCostPerWindow = 2.0
	l, _ := newTestLedger(t, cfg)

	snap, err := l.RecordUsage(context.Background(), 1_000_000, 1.0)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, snap.TokensRemaining)
	assert.InDelta(t, 50.0, snap.UsagePercent, 0.001)
}

func TestLedger_PersistAndRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	l, clock := newTestLedger(t, cfg)
	_, err := l.RecordUsage(ctx, 4200, 0.25)
	require.NoError(t, err)

	_, err = os.Stat(cfg.PersistStatePath)
	require.NoError(t, err, "state file should be written on usage")

	restored, err := NewLedger(cfg, nil, WithClock(clock.Now))
	require.NoError(t, err)
	stats := restored.Stats()
	assert.Equal(t, int64(4200), stats.WindowTokensUsed)
	assert.InDelta(t, 0.25, stats.TotalCostUsed, 0.0001)
}

func TestLedger_CorruptStateStartsFresh(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.PersistStatePath, []byte("{not json"), 0644))

	l, _ := newTestLedger(t, cfg)
	snap, err := l.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.TokensUsed)
}

func TestExternalSource(t *testing.T) {
	ctx := context.Background()
	src, err := NewExternalSource(DefaultBreakpoints())
	require.NoError(t, err)

	snap, err := src.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.LevelNormal, snap.Level)

	src.Report(96, 96000, 4000)
	snap, _ = src.Status(ctx)
	assert.Equal(t, types.LevelPause, snap.Level)
	assert.False(t, src.CanProceed(ctx, 1, types.ClassStandard).Allowed)
	assert.True(t, src.CanProceed(ctx, 1, types.ClassUser).Allowed)

	src.Report(82, 82000, 100)
	assert.False(t, src.CanProceed(ctx, 500, types.ClassBackground).Allowed)
	assert.True(t, src.CanProceed(ctx, 100, types.ClassBackground).Allowed)
}

func TestExternalSource_InvalidBreakpoints(t *testing.T) {
	_, err := NewExternalSource(Breakpoints{Warning: 90, Reduce: 80, Pause: 95})
	assert.Error(t, err)
}
