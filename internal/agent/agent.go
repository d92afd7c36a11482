// Package agent is the poll loop: every cycle it reads the budget, picks a
// mode from the throttle level, and runs the scheduler, the primary queue,
// discovery and cleanup in that order.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyegge/steward/internal/approval"
	"github.com/steveyegge/steward/internal/budget"
	"github.com/steveyegge/steward/internal/discovery"
	"github.com/steveyegge/steward/internal/events"
	"github.com/steveyegge/steward/internal/notify"
	"github.com/steveyegge/steward/internal/scheduler"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/telemetry"
	"github.com/steveyegge/steward/internal/types"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Scheduler runs due time-triggered handlers
type Scheduler interface {
	CheckAndRun(ctx context.Context, opts scheduler.Options) scheduler.Report
}

// AuditCleaner prunes the audit trail
type AuditCleaner interface {
	CleanupAuditEvents(ctx context.Context, policy events.RetentionPolicy) (events.CleanupResult, error)
}

// Publisher receives a copy of every scan report
type Publisher interface {
	Publish(report discovery.ScanReport) bool
}

// Service is a companion started after the loop and stopped after it exits
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config holds the loop's tunables
type Config struct {
	// Name is the agent name written to audit events
	Name         string
	PollInterval time.Duration
	// StatePath is the run state file (empty disables persistence)
	StatePath   string
	AutoExecute types.AutoExecuteThreshold
	Approval    types.ApprovalThreshold
	// Per-cycle initiative execution caps
	MaxExecutionsNormal  int
	MaxExecutionsWarning int
	// ErrorNotifyEvery sends a "too many errors" advisory on every Nth cycle error (0 = never)
	ErrorNotifyEvery int
	Retention        events.RetentionPolicy
}

// DefaultConfig returns the default loop configuration
func DefaultConfig() Config {
	return Config{
		Name:                 "steward",
		PollInterval:         time.Minute,
		StatePath:            ".steward/agent_state.json",
		AutoExecute:          approval.DefaultAutoExecuteThreshold(),
		Approval:             approval.DefaultApprovalThreshold(),
		MaxExecutionsNormal:  2,
		MaxExecutionsWarning: 1,
		ErrorNotifyEvery:     10,
		Retention: events.RetentionPolicy{
			MaxAge:         30 * 24 * time.Hour,
			CriticalMaxAge: 90 * 24 * time.Hour,
			GlobalLimit:    100000,
			BatchSize:      1000,
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive (got %s)", c.PollInterval)
	}
	if c.MaxExecutionsNormal < 0 || c.MaxExecutionsWarning < 0 {
		return errors.New("execution caps cannot be negative")
	}
	if c.ErrorNotifyEvery < 0 {
		return errors.New("error notification modulus cannot be negative")
	}
	if c.AutoExecute.MinPriority < 0 || c.AutoExecute.MinPriority > 100 {
		return fmt.Errorf("auto-execute min priority must be between 0 and 100 (got %d)", c.AutoExecute.MinPriority)
	}
	return nil
}

// Deps are the collaborators of the loop. Budget is required; everything
// else is optional and the matching step is skipped when absent.
type Deps struct {
	Budget    budget.Source
	Sources   discovery.WorkSource
	Approvals approval.Queue
	Notifier  notify.Notifier
	Audit     events.Sink
	Scheduler Scheduler
	Tasks     tasks.Queue
	Handler   tasks.Handler
	Cleaner   AuditCleaner

	// Gates default to RateGate with the default probabilities
	DiscoveryGate discovery.Gate
	CleanupGate   discovery.Gate
	// Recent suppresses repeats of the same initiative id; nil disables it
	Recent     *discovery.RecentSet
	Feed       Publisher
	Companions []Service

	Meter  metric.Meter
	Tracer trace.Tracer
	Clock  func() time.Time
	Logger *slog.Logger
}

// Status is a point-in-time view of the loop
type Status struct {
	types.RunState
	Level     types.ThrottleLevel `json:"level"`
	LastCycle *time.Time          `json:"lastCycle,omitempty"`
	LastError string              `json:"lastError,omitempty"`
}

// Agent runs the poll loop
type Agent struct {
	cfg Config

	budget        budget.Source
	sources       discovery.WorkSource
	approvals     approval.Queue
	notifier      notify.Notifier
	audit         events.Sink
	scheduler     Scheduler
	tasks         tasks.Queue
	handler       tasks.Handler
	cleaner       AuditCleaner
	discoveryGate discovery.Gate
	cleanupGate   discovery.Gate
	recent        *discovery.RecentSet
	feed          Publisher
	companions    []Service

	metrics *metrics
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger

	// cycleMu keeps at most one cycle in flight
	cycleMu sync.Mutex
	// persistMu serializes state file writes
	persistMu sync.Mutex

	mu        sync.Mutex
	state     types.RunState
	running   bool
	level     types.ThrottleLevel
	lastCycle *time.Time
	lastError string
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates an agent and restores persisted counters
func New(cfg Config, deps Deps) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if deps.Budget == nil {
		return nil, errors.New("budget source is required")
	}
	if deps.Sources != nil && deps.Approvals == nil {
		return nil, errors.New("approval queue is required when a work source is configured")
	}
	if (deps.Tasks == nil) != (deps.Handler == nil) {
		return nil, errors.New("task queue and task handler must be configured together")
	}
	if deps.Cleaner != nil {
		if err := cfg.Retention.Validate(); err != nil {
			return nil, fmt.Errorf("invalid retention policy: %w", err)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	audit := deps.Audit
	if audit == nil {
		audit = events.NewRecorder(nil, logger)
	}

	discoveryGate := deps.DiscoveryGate
	if discoveryGate == nil && deps.Sources != nil {
		g, err := discovery.NewRateGate(discovery.DefaultDiscoveryProbabilities(), cfg.PollInterval, now)
		if err != nil {
			return nil, err
		}
		discoveryGate = g
	}
	cleanupGate := deps.CleanupGate
	if cleanupGate == nil && deps.Cleaner != nil {
		g, err := discovery.NewRateGate(discovery.DefaultCleanupProbabilities(), cfg.PollInterval, now)
		if err != nil {
			return nil, err
		}
		cleanupGate = g
	}

	meter := deps.Meter
	if meter == nil {
		meter = telemetry.Meter("steward/agent")
	}
	m, err := newMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("steward/agent")
	}

	state := loadRunState(cfg.StatePath, logger)
	// A crashed process leaves running=true behind
	state.Running = false

	return &Agent{
		cfg:           cfg,
		budget:        deps.Budget,
		sources:       deps.Sources,
		approvals:     deps.Approvals,
		notifier:      deps.Notifier,
		audit:         audit,
		scheduler:     deps.Scheduler,
		tasks:         deps.Tasks,
		handler:       deps.Handler,
		cleaner:       deps.Cleaner,
		discoveryGate: discoveryGate,
		cleanupGate:   cleanupGate,
		recent:        deps.Recent,
		feed:          deps.Feed,
		companions:    deps.Companions,
		metrics:       m,
		tracer:        tracer,
		now:           now,
		logger:        logger,
		state:         state,
	}, nil
}

// Start marks the agent running, starts companions and launches the loop.
// The first cycle runs immediately.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("agent is already running")
	}
	startedAt := a.now()
	a.running = true
	a.state.Running = true
	a.state.StartedAt = &startedAt
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	stopCh, doneCh := a.stopCh, a.doneCh
	processed := a.state.TasksProcessed
	a.mu.Unlock()
	a.persist()

	for i, svc := range a.companions {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = a.companions[j].Stop(ctx)
			}
			a.mu.Lock()
			a.running = false
			a.state.Running = false
			close(a.stopCh)
			close(a.doneCh)
			a.mu.Unlock()
			a.persist()
			return fmt.Errorf("failed to start companion %d: %w", i, err)
		}
	}

	a.audit.Record(ctx, events.ActionAgentStarted, a.cfg.Name, events.TrustSystem, map[string]interface{}{
		"tasks_processed": processed,
		"poll_interval":   a.cfg.PollInterval.String(),
	})
	a.logger.Info("agent started", "poll_interval", a.cfg.PollInterval, "tasks_processed", processed)

	go a.loop(ctx, stopCh, doneCh)
	return nil
}

// loop runs a cycle, then schedules the next one only after it completes,
// so cycles never overlap and a slow cycle delays the next.
func (a *Agent) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
		}

		a.RunCycle(ctx)

		if !a.IsRunning() {
			return
		}
		timer.Reset(a.cfg.PollInterval)
	}
}

// Stop clears the running flag and waits for the in-flight cycle, if any,
// to finish. Companions are stopped after the loop exits.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return errors.New("agent is not running")
	}
	a.running = false
	a.state.Running = false
	close(a.stopCh)
	doneCh := a.doneCh
	a.mu.Unlock()

	var errs []error
	select {
	case <-doneCh:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for poll loop: %w", ctx.Err()))
	}

	for i := len(a.companions) - 1; i >= 0; i-- {
		if err := a.companions[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop companion %d: %w", i, err))
		}
	}

	a.persist()
	a.audit.Record(ctx, events.ActionAgentStopped, a.cfg.Name, events.TrustSystem, nil)
	a.logger.Info("agent stopped")
	return errors.Join(errs...)
}

// Done is closed when the loop goroutine exits. Nil before Start.
func (a *Agent) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doneCh
}

// IsRunning returns true if the loop has been started and not stopped
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Status returns a copy of the run state and the last observed level
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		RunState:  a.state,
		Level:     a.level,
		LastCycle: a.lastCycle,
		LastError: a.lastError,
	}
}

func (a *Agent) persist() {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	if err := saveRunState(a.cfg.StatePath, state); err != nil {
		a.logger.Warn("failed to persist run state", "path", a.cfg.StatePath, "err", err)
	}
}
