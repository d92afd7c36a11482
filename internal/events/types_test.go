package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		action Action
		want   Severity
	}{
		{ActionCycleError, SeverityError},
		{ActionSchedulerFailures, SeverityWarning},
		{ActionApprovalQueued, SeverityWarning},
		{ActionThrottleLevelChanged, SeverityWarning},
		{ActionInitiativesExecuted, SeverityInfo},
		{ActionInitiativesForUser, SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			if got := SeverityFor(tt.action); got != tt.want {
				t.Errorf("SeverityFor(%q) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func TestAuditEventJSONTagsSnakeCase(t *testing.T) {
	data, err := json.Marshal(AuditEvent{Action: ActionApprovalQueued, TrustLevel: TrustAutonomous})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "action", "agent", "trust_level", "severity", "details", "timestamp"} {
		assert.Contains(t, raw, key)
	}
}

type fakeStore struct {
	events []*AuditEvent
	err    error
}

func (f *fakeStore) StoreAuditEvent(ctx context.Context, e *AuditEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func TestRecorder_Stores(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	r.Record(context.Background(), ActionInitiativesExecuted, "steward", TrustAutonomous,
		map[string]interface{}{"discovered": 1, "executed": 1})

	require.Len(t, store.events, 1)
	e := store.events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, ActionInitiativesExecuted, e.Action)
	assert.Equal(t, SeverityInfo, e.Severity)
	assert.Equal(t, 1, e.Details["executed"])
}

func TestRecorder_StoreErrorIsSwallowed(t *testing.T) {
	r := NewRecorder(&fakeStore{err: errors.New("database is locked")}, nil)
	assert.NotPanics(t, func() {
		r.Record(context.Background(), ActionCycleError, "steward", TrustSystem, nil)
	})
}

func TestRecorder_SkipsCanceledContext(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, ActionAgentStopped, "steward", TrustSystem, nil)
	assert.Empty(t, store.events)
}

func TestMemorySink(t *testing.T) {
	m := &MemorySink{}
	ctx := context.Background()
	m.Record(ctx, ActionApprovalQueued, "steward", TrustAutonomous, nil)
	m.Record(ctx, ActionInitiativesExecuted, "steward", TrustAutonomous, nil)
	m.Record(ctx, ActionApprovalQueued, "steward", TrustAutonomous, nil)

	assert.Len(t, m.Events(), 3)
	assert.Len(t, m.ByAction(ActionApprovalQueued), 2)
}
