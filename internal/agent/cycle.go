package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/steward/internal/approval"
	"github.com/steveyegge/steward/internal/discovery"
	"github.com/steveyegge/steward/internal/events"
	"github.com/steveyegge/steward/internal/notify"
	"github.com/steveyegge/steward/internal/scheduler"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CycleReport describes what one cycle did. Skipped steps leave their
// fields nil or zero.
type CycleReport struct {
	StartedAt     time.Time
	Duration      time.Duration
	Budget        types.BudgetSnapshot
	LevelChanged  bool
	PreviousLevel types.ThrottleLevel
	// LevelAdvisory is the REDUCE/PAUSE advisory sent on a level change
	LevelAdvisory notify.Result
	Scheduler     *scheduler.Report
	Tasks         tasks.DrainResult
	Discovery     *discovery.ScanReport
	Approvals     []types.ApprovalRequest
	Cleanup       *events.CleanupResult
	// Err is the failure that ended the cycle early, if any
	Err error
	// ErrorAdvisory is the "too many errors" advisory, sent on every Nth error
	ErrorAdvisory notify.Result
}

// RunCycle runs one poll cycle. It never panics: failures end the cycle
// early, are counted, and are reported in CycleReport.Err. Run state is
// persisted before it returns.
func (a *Agent) RunCycle(ctx context.Context) (report CycleReport) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	ctx, span := a.tracer.Start(ctx, "agent.cycle")
	defer span.End()

	report.StartedAt = a.now()
	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("cycle panicked: %v", r)
		}
		if report.Err != nil {
			report.ErrorAdvisory = a.recordCycleError(ctx, report.Err)
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Error())
		}

		finished := a.now()
		report.Duration = finished.Sub(report.StartedAt)
		a.mu.Lock()
		a.lastCycle = &finished
		a.mu.Unlock()

		a.persist()
		a.metrics.cycles.Add(ctx, 1)
		span.SetAttributes(
			attribute.String("steward.level", report.Budget.Level.String()),
			attribute.Float64("steward.usage_percent", report.Budget.UsagePercent),
		)
	}()

	report.Err = a.cycle(ctx, &report)
	return report
}

func (a *Agent) cycle(ctx context.Context, report *CycleReport) error {
	snap, err := a.budget.Status(ctx)
	if err != nil {
		return fmt.Errorf("reading budget status: %w", err)
	}
	report.Budget = snap
	a.metrics.observeBudget(snap.UsagePercent, int(snap.Level))
	a.checkLevelChange(ctx, snap, report)

	// Scheduler: skipped when paused, essential handlers only when reducing
	if a.scheduler != nil && snap.Level != types.LevelPause {
		res := a.scheduler.CheckAndRun(ctx, scheduler.Options{EssentialOnly: snap.Level == types.LevelReduce})
		report.Scheduler = &res
		if len(res.Failed) > 0 {
			a.audit.Record(ctx, events.ActionSchedulerFailures, a.cfg.Name, events.TrustSystem, map[string]interface{}{
				"handlers": res.Failed,
				"level":    snap.Level.String(),
			})
		}
	}

	// Primary queue: admission per task class decides what runs at each level
	if a.tasks != nil {
		res, err := tasks.Drain(ctx, a.tasks, a.budget, a.handler, a.logger, a.onTaskHandled)
		report.Tasks = res
		if err != nil {
			return fmt.Errorf("draining task queue: %w", err)
		}
	}

	if snap.Level != types.LevelNormal && snap.Level != types.LevelWarning {
		return nil
	}

	if a.sources != nil && a.discoveryGate.Allow(snap.Level) {
		if err := a.discover(ctx, snap.Level, report); err != nil {
			return err
		}
	}

	if a.cleaner != nil && a.cleanupGate.Allow(snap.Level) {
		a.cleanup(ctx, report)
	}
	return nil
}

// checkLevelChange emits an audit event when the level differs from the
// previous cycle's. Entering REDUCE or PAUSE also sends one advisory.
// The level before the first cycle is NORMAL.
func (a *Agent) checkLevelChange(ctx context.Context, snap types.BudgetSnapshot, report *CycleReport) {
	a.mu.Lock()
	prev := a.level
	a.level = snap.Level
	a.mu.Unlock()

	if prev == snap.Level {
		return
	}
	report.LevelChanged = true
	report.PreviousLevel = prev

	a.logger.Info("throttle level changed", "from", prev.String(), "to", snap.Level.String(), "usage_percent", snap.UsagePercent)
	a.audit.Record(ctx, events.ActionThrottleLevelChanged, a.cfg.Name, events.TrustSystem, map[string]interface{}{
		"from":           prev.String(),
		"to":             snap.Level.String(),
		"usage_percent":  snap.UsagePercent,
		"recommendation": snap.Recommendation,
	})

	if snap.Level != types.LevelReduce && snap.Level != types.LevelPause {
		return
	}
	title := fmt.Sprintf("Budget throttle: %s", snap.Level)
	body := fmt.Sprintf("Budget usage is %.1f%%. %s", snap.UsagePercent, snap.Recommendation)
	report.LevelAdvisory = notify.Send(ctx, a.notifier, title, body, snap.Level == types.LevelPause)
	if report.LevelAdvisory.Err != nil {
		a.logger.Warn("throttle advisory not delivered", "level", snap.Level.String(), "err", report.LevelAdvisory.Err)
	}
}

func (a *Agent) onTaskHandled(task types.Task, err error) {
	now := a.now()
	a.mu.Lock()
	a.state.TasksProcessed++
	a.state.LastActivity = &now
	a.mu.Unlock()
	a.persist()

	a.metrics.tasks.Add(context.Background(), 1, outcome(err == nil))
}

// discover scans, filters and handles initiatives for one cycle. Only a scan
// that fails without returning anything ends the cycle.
func (a *Agent) discover(ctx context.Context, level types.ThrottleLevel, report *CycleReport) error {
	now := a.now()
	scan := &discovery.ScanReport{At: now, Level: level}
	report.Discovery = scan

	items, err := a.sources.Scan(ctx)
	if err != nil {
		if len(items) == 0 {
			return fmt.Errorf("discovery scan: %w", err)
		}
		scan.Errors = append(scan.Errors, err.Error())
		a.logger.Warn("discovery scan partially failed", "found", len(items), "err", err)
	}
	scan.Discovered = len(items)

	fresh := make([]types.Initiative, 0, len(items))
	for _, item := range items {
		if a.recent != nil && a.recent.Seen(item.ID, now) {
			scan.Suppressed++
			continue
		}
		item.Status = types.InitiativeDiscovered
		fresh = append(fresh, item)
	}

	limit := a.cfg.MaxExecutionsNormal
	if level == types.LevelWarning {
		limit = a.cfg.MaxExecutionsWarning
	}
	parts := discovery.Partition(fresh, a.cfg.AutoExecute.MinPriority, limit)
	a.logger.Debug("initiatives partitioned",
		"discovered", scan.Discovered,
		"suppressed", scan.Suppressed,
		"candidates", len(parts.Autonomous),
		"for_user", len(parts.ForUser),
		"discarded", parts.Discarded,
		"overflow", parts.Overflow,
	)

	for _, candidate := range parts.Autonomous {
		a.handleCandidate(ctx, candidate, scan, report)
	}

	if scan.Executed > 0 {
		a.audit.Record(ctx, events.ActionInitiativesExecuted, a.cfg.Name, events.TrustAutonomous, map[string]interface{}{
			"discovered": scan.Discovered,
			"executed":   scan.Executed,
			"failed":     scan.Failed,
			"escalated":  scan.Escalated,
		})
	}

	if len(parts.ForUser) > 0 {
		for _, item := range parts.ForUser {
			scan.ForUser = append(scan.ForUser, discovery.ForUserItem{Title: item.Title, Category: item.Category})
			if a.recent != nil {
				a.recent.Mark(item.ID, now)
			}
		}
		a.audit.Record(ctx, events.ActionInitiativesForUser, a.cfg.Name, events.TrustAutonomous, map[string]interface{}{
			"count": len(scan.ForUser),
			"items": scan.ForUser,
		})
	}

	if a.feed != nil {
		a.feed.Publish(*scan)
	}
	return nil
}

// handleCandidate escalates a candidate that needs sign-off, exceeds the
// auto-execute limits or is denied by the budget, and executes it otherwise.
func (a *Agent) handleCandidate(ctx context.Context, c types.Initiative, scan *discovery.ScanReport, report *CycleReport) {
	logger := a.logger.With("initiative", c.ID)
	c.Status = types.InitiativeQueued

	if verdict := approval.Evaluate(c, a.cfg.Approval); verdict.Required {
		a.escalate(ctx, c, verdict.Reason, scan, report)
		return
	}
	if ok, reason := approval.WithinAutoExecute(c, a.cfg.AutoExecute); !ok {
		a.escalate(ctx, c, reason, scan, report)
		return
	}
	if admission := a.budget.CanProceed(ctx, c.EstimatedTokens, types.ClassBackground); !admission.Allowed {
		a.escalate(ctx, c, "budget denied: "+admission.Reason, scan, report)
		return
	}

	c.Status = types.InitiativeInProgress
	logger.Info("executing initiative", "title", c.Title, "priority", c.Priority)
	err := a.execute(ctx, c.ID)
	if a.recent != nil {
		a.recent.Mark(c.ID, a.now())
	}
	if err != nil {
		c.Status = types.InitiativeFailed
		scan.Failed++
		logger.Warn("initiative failed", "status", string(c.Status), "err", err)
		a.metrics.executed.Add(ctx, 1, outcome(false))
		return
	}

	c.Status = types.InitiativeCompleted
	scan.Executed++
	logger.Info("initiative completed", "status", string(c.Status))
	a.metrics.executed.Add(ctx, 1, outcome(true))

	now := a.now()
	a.mu.Lock()
	a.state.LastActivity = &now
	a.mu.Unlock()
	a.persist()
}

func (a *Agent) execute(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initiative %s panicked: %v", id, r)
		}
	}()
	return a.sources.Execute(ctx, id)
}

// escalate queues an approval request. A queue failure is logged and the
// item stays eligible for the next scan.
func (a *Agent) escalate(ctx context.Context, c types.Initiative, reason string, scan *discovery.ScanReport, report *CycleReport) {
	req := approval.NewRequest(c, reason, a.now())
	if err := a.approvals.AddApproval(ctx, req); err != nil {
		a.logger.Warn("failed to queue approval request", "initiative", c.ID, "err", err)
		scan.Errors = append(scan.Errors, fmt.Sprintf("queue approval for %s: %v", c.ID, err))
		return
	}
	if a.recent != nil {
		a.recent.Mark(c.ID, a.now())
	}

	scan.Escalated++
	report.Approvals = append(report.Approvals, req)
	a.metrics.approvals.Add(ctx, 1)
	a.logger.Info("initiative escalated for approval", "initiative", c.ID, "reason", reason, "risk", req.Risk.String())
	a.audit.Record(ctx, events.ActionApprovalQueued, a.cfg.Name, events.TrustAutonomous, map[string]interface{}{
		"approval_id": req.ID,
		"source_id":   req.SourceID,
		"title":       req.Title,
		"risk":        req.Risk.String(),
		"reason":      reason,
	})
}

func (a *Agent) cleanup(ctx context.Context, report *CycleReport) {
	res, err := a.cleaner.CleanupAuditEvents(ctx, a.cfg.Retention)
	if err != nil {
		a.logger.Warn("audit cleanup failed", "err", err)
		return
	}
	report.Cleanup = &res
	if res.Total() == 0 {
		return
	}
	a.audit.Record(ctx, events.ActionAuditCleanupCompleted, a.cfg.Name, events.TrustSystem, map[string]interface{}{
		"by_age":   res.ByAge,
		"by_limit": res.ByLimit,
	})
}

// recordCycleError counts a failed cycle. Every Nth error also sends a
// "too many errors" advisory.
func (a *Agent) recordCycleError(ctx context.Context, err error) notify.Result {
	a.mu.Lock()
	a.state.Errors++
	count := a.state.Errors
	a.lastError = err.Error()
	a.mu.Unlock()

	a.logger.Error("poll cycle failed", "err", err, "errors", count)
	a.metrics.cycleErrors.Add(ctx, 1)
	a.audit.Record(ctx, events.ActionCycleError, a.cfg.Name, events.TrustSystem, map[string]interface{}{
		"error":  err.Error(),
		"errors": count,
	})

	every := int64(a.cfg.ErrorNotifyEvery)
	if every <= 0 || count%every != 0 {
		return notify.Result{}
	}
	res := notify.Send(ctx, a.notifier, "Too many errors",
		fmt.Sprintf("%s has failed %d poll cycles. Last error: %v", a.cfg.Name, count, err), true)
	if res.Err != nil {
		a.logger.Warn("error advisory not delivered", "err", res.Err)
	}
	return res
}
