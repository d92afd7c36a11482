package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder is a Sink that writes events to a Store and mirrors them to the log
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

var _ Sink = (*Recorder)(nil)

// NewRecorder creates a recorder. A nil store only logs.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Record builds and stores an event. Store failures are logged, never returned.
func (r *Recorder) Record(ctx context.Context, action Action, agent string, trust TrustLevel, details map[string]interface{}) {
	event := &AuditEvent{
		ID:         uuid.New().String(),
		Action:     action,
		Agent:      agent,
		TrustLevel: trust,
		Severity:   SeverityFor(action),
		Details:    details,
		Timestamp:  r.now(),
	}

	r.logger.Info("audit", "action", string(action), "agent", agent, "trust", string(trust), "details", details)

	if r.store == nil {
		return
	}
	// Skip storing if context is canceled (e.g., during shutdown)
	if ctx.Err() != nil {
		return
	}
	if err := r.store.StoreAuditEvent(ctx, event); err != nil {
		r.logger.Warn("failed to store audit event", "action", string(action), "err", err)
	}
}

// MemorySink keeps events in memory; used in tests and by the status command
type MemorySink struct {
	mu     sync.Mutex
	events []AuditEvent
}

var _ Sink = (*MemorySink)(nil)

// Record appends an event
func (m *MemorySink) Record(ctx context.Context, action Action, agent string, trust TrustLevel, details map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, AuditEvent{
		ID:         uuid.New().String(),
		Action:     action,
		Agent:      agent,
		TrustLevel: trust,
		Severity:   SeverityFor(action),
		Details:    details,
		Timestamp:  time.Now(),
	})
}

// Events returns a copy of all recorded events
func (m *MemorySink) Events() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEvent(nil), m.events...)
}

// ByAction returns recorded events with the given action
func (m *MemorySink) ByAction(action Action) []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AuditEvent
	for _, e := range m.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
