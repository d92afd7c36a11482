package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/steward/internal/events"
	"github.com/steveyegge/steward/internal/storage/migrations"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "nested", "steward.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewAppliesSchema(t *testing.T) {
	s := newTestStorage(t)

	version, err := migrations.SQLiteVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, migrations.NewManager(schemaMigrations...).Latest(), version)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "steward.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, types.Task{Title: "persisted", Class: types.ClassStandard})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "persisted", pending[0].Title)
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AddApproval(ctx, types.ApprovalRequest{ID: "a1", SourceID: "x", Type: "initiative", Title: "t"}))
	got, err := s.ListApprovals(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestApprovalsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	base := time.Date(2026, 4, 6, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AddApproval(ctx, types.ApprovalRequest{
			ID:               fmt.Sprintf("req-%d", i),
			SourceID:         "security-scan",
			Type:             "initiative",
			Title:            "Rotate keys",
			Risk:             types.RiskHigh,
			EstimatedCostUSD: 0.6,
			EstimatedTokens:  4000,
			Reversible:       false,
			Reason:           "estimated cost $0.60 >= $0.50",
			Metadata:         map[string]interface{}{"priority": 85},
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := s.ListApprovals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3, "duplicate logical items are kept")
	assert.Equal(t, "req-2", all[0].ID, "newest first")
	assert.Equal(t, types.RiskHigh, all[0].Risk)
	assert.False(t, all[0].Reversible)
	assert.Equal(t, float64(85), all[0].Metadata["priority"])
	assert.True(t, all[0].CreatedAt.Equal(base.Add(2*time.Minute)))

	limited, err := s.ListApprovals(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestTaskQueue(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	base := time.Date(2026, 4, 6, 12, 0, 0, 0, time.UTC)

	first, err := s.Enqueue(ctx, types.Task{Title: "first", Class: types.ClassUser, CreatedAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	second, err := s.Enqueue(ctx, types.Task{
		Title:           "second",
		Class:           types.ClassBackground,
		EstimatedTokens: 500,
		Payload:         map[string]interface{}{"path": "docs/"},
		CreatedAt:       base.Add(time.Second),
	})
	require.NoError(t, err)

	_, err = s.Enqueue(ctx, types.Task{Title: "bad", Class: types.PriorityClass(9)})
	assert.Error(t, err)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Title)
	assert.Equal(t, types.ClassBackground, pending[1].Class)
	assert.Equal(t, int64(500), pending[1].EstimatedTokens)
	assert.Equal(t, "docs/", pending[1].Payload["path"])

	require.NoError(t, s.Complete(ctx, first.ID))
	require.NoError(t, s.Fail(ctx, second.ID, "handler exploded"))

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = s.Complete(ctx, first.ID)
	assert.ErrorIs(t, err, tasks.ErrNotFound)
	assert.ErrorIs(t, s.Fail(ctx, "missing", "x"), tasks.ErrNotFound)
}

func storeEvent(t *testing.T, s *SQLiteStorage, id string, severity events.Severity, at time.Time) {
	t.Helper()
	require.NoError(t, s.StoreAuditEvent(context.Background(), &events.AuditEvent{
		ID:         id,
		Action:     events.ActionCycleError,
		Agent:      "steward",
		TrustLevel: events.TrustSystem,
		Severity:   severity,
		Details:    map[string]interface{}{"n": id},
		Timestamp:  at,
	}))
}

func TestAuditEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	now := time.Now()

	storeEvent(t, s, "old", events.SeverityInfo, now.Add(-time.Hour))
	storeEvent(t, s, "new", events.SeverityWarning, now)

	got, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, events.ActionCycleError, got[0].Action)
	assert.Equal(t, events.TrustSystem, got[0].TrustLevel)
	assert.Equal(t, "new", got[0].Details["n"])

	got, err = s.ListAuditEvents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCleanupAuditEventsByAge(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	now := time.Now()

	storeEvent(t, s, "info-old", events.SeverityInfo, now.Add(-48*time.Hour))
	storeEvent(t, s, "info-new", events.SeverityInfo, now.Add(-time.Hour))
	storeEvent(t, s, "error-mid", events.SeverityError, now.Add(-48*time.Hour))
	storeEvent(t, s, "error-ancient", events.SeverityCritical, now.Add(-30*24*time.Hour))

	result, err := s.CleanupAuditEvents(ctx, events.RetentionPolicy{
		MaxAge:         24 * time.Hour,
		CriticalMaxAge: 7 * 24 * time.Hour,
		BatchSize:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ByAge)
	assert.Equal(t, 0, result.ByLimit)

	remaining, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, e := range remaining {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"info-new", "error-mid"}, ids)
}

func TestCleanupAuditEventsGlobalLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	now := time.Now()

	storeEvent(t, s, "e1", events.SeverityError, now.Add(-5*time.Minute))
	storeEvent(t, s, "i1", events.SeverityInfo, now.Add(-4*time.Minute))
	storeEvent(t, s, "i2", events.SeverityInfo, now.Add(-3*time.Minute))
	storeEvent(t, s, "i3", events.SeverityInfo, now.Add(-2*time.Minute))

	result, err := s.CleanupAuditEvents(ctx, events.RetentionPolicy{
		MaxAge:         24 * time.Hour,
		CriticalMaxAge: 24 * time.Hour,
		GlobalLimit:    2,
		BatchSize:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ByLimit)
	assert.Equal(t, 2, result.Total())

	remaining, err := s.ListAuditEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "i3", remaining[0].ID)
	assert.Equal(t, "e1", remaining[1].ID, "critical events are deleted last")
}

func TestCleanupAuditEventsRejectsBadPolicy(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.CleanupAuditEvents(context.Background(), events.RetentionPolicy{})
	assert.Error(t, err)
}
