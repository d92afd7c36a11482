package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/steveyegge/steward/internal/agent"
	"github.com/steveyegge/steward/internal/budget"
	"github.com/steveyegge/steward/internal/config"
	"github.com/steveyegge/steward/internal/control"
	"github.com/steveyegge/steward/internal/discovery"
	"github.com/steveyegge/steward/internal/events"
	"github.com/steveyegge/steward/internal/notify"
	"github.com/steveyegge/steward/internal/scheduler"
	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/types"
)

// Built-in scheduled handlers, attached when the schedule file names them
const (
	handlerAuditCleanup   = "audit_cleanup"
	handlerBudgetReport   = "budget_report"
	handlerApprovalDigest = "approval_digest"
)

// statusView is the payload of the control "status" command
type statusView struct {
	Agent    agent.Status          `json:"agent"`
	Budget   types.BudgetSnapshot  `json:"budget"`
	LastScan *discovery.ScanReport `json:"last_scan,omitempty"`
}

// runtime is the fully wired process: storage, ledger, loop and companions
type runtime struct {
	store     storage.Storage
	ledger    *budget.Ledger
	scheduler *scheduler.Scheduler
	feed      *discovery.Feed
	control   *control.Server
	agent     *agent.Agent
}

// newRuntime wires every component from cfg. stop is called when a control
// client asks the process to shut down.
func newRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, stop func()) (*runtime, error) {
	store, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	rt := &runtime{store: store}
	ok := false
	defer func() {
		if !ok {
			_ = store.Close()
		}
	}()

	budgetCfg := cfg.Budget
	rt.ledger, err = budget.NewLedger(&budgetCfg, logger.With("component", "budget"))
	if err != nil {
		return nil, fmt.Errorf("failed to create budget ledger: %w", err)
	}

	notifier := notify.Multi{notify.NewConsole(os.Stderr), notify.NewLog(logger)}
	audit := events.NewRecorder(store, logger)

	triggers, err := scheduler.LoadTriggers(cfg.SchedulePath)
	if err != nil {
		return nil, err
	}
	rt.scheduler, err = scheduler.New(scheduler.Config{
		Triggers:  triggers,
		StatePath: cfg.SchedulerStatePath,
		Logger:    logger.With("component", "scheduler"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := rt.registerHandlers(cfg, notifier, logger); err != nil {
		return nil, err
	}

	fileSource := discovery.NewFileSource(cfg.InitiativesPath, rt.meteredExecutor(discovery.CommandExecutor("", logger), logger), logger)
	sources, err := discovery.NewMultiSource(cfg.MaxConcurrentScans, logger,
		discovery.NamedSource{Name: "file", Source: fileSource},
	)
	if err != nil {
		return nil, err
	}

	discoveryGate, cleanupGate, err := cfg.Gates(nil)
	if err != nil {
		return nil, err
	}

	rt.feed = discovery.NewFeed(4, logger)
	rt.control, err = control.NewServer(cfg.ControlSocket, control.Routes{
		Status:    rt.status,
		Approvals: store,
		Stop:      stop,
	}.Handler(), logger)
	if err != nil {
		return nil, err
	}

	deps := agent.Deps{
		Budget:        rt.ledger,
		Sources:       sources,
		Approvals:     store,
		Notifier:      notifier,
		Audit:         audit,
		Scheduler:     rt.scheduler,
		Tasks:         store,
		Handler:       rt.taskHandler(logger),
		DiscoveryGate: discoveryGate,
		CleanupGate:   cleanupGate,
		Recent:        cfg.Recent(),
		Feed:          rt.feed,
		Companions:    []agent.Service{rt.feed, rt.control},
		Logger:        logger,
	}
	if cfg.AuditRetention.CleanupEnabled {
		deps.Cleaner = store
	}

	rt.agent, err = agent.New(cfg.Agent(), deps)
	if err != nil {
		return nil, err
	}

	ok = true
	return rt, nil
}

func (rt *runtime) status() interface{} {
	view := statusView{Agent: rt.agent.Status()}
	if snap, err := rt.ledger.Status(context.Background()); err == nil {
		view.Budget = snap
	}
	if scan, ok := rt.feed.Latest(); ok {
		view.LastScan = &scan
	}
	return view
}

func (rt *runtime) registerHandlers(cfg config.Config, notifier notify.Notifier, logger *slog.Logger) error {
	builtin := map[string]scheduler.HandlerFunc{
		handlerAuditCleanup: func(ctx context.Context) error {
			res, err := rt.store.CleanupAuditEvents(ctx, cfg.AuditRetention.Policy())
			if err != nil {
				return err
			}
			logger.Info("scheduled audit cleanup finished", "by_age", res.ByAge, "by_limit", res.ByLimit)
			return nil
		},
		handlerBudgetReport: func(ctx context.Context) error {
			stats := rt.ledger.Stats()
			logger.Info("budget report",
				"level", stats.Snapshot.Level.String(),
				"usage_percent", stats.Snapshot.UsagePercent,
				"window_tokens", stats.WindowTokensUsed,
				"window_cost_usd", stats.WindowCostUsed,
				"total_tokens", stats.TotalTokensUsed,
			)
			return nil
		},
		handlerApprovalDigest: func(ctx context.Context) error {
			pending, err := rt.store.ListApprovals(ctx, control.DefaultApprovalLimit)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return nil
			}
			res := notify.Send(ctx, notifier, "Approvals waiting",
				fmt.Sprintf("%d item(s) are waiting for review. Run 'steward approvals' to list them.", len(pending)), false)
			return res.Err
		},
	}

	for _, t := range rt.scheduler.Triggers() {
		fn, ok := builtin[t.Name]
		if !ok {
			logger.Warn("schedule names an unknown handler, ignoring", "handler", t.Name)
			continue
		}
		if err := rt.scheduler.RegisterHandler(t.Name, fn); err != nil {
			return err
		}
	}
	return nil
}

// meteredExecutor records an initiative's estimates against the ledger once it succeeds
func (rt *runtime) meteredExecutor(next discovery.ExecuteFunc, logger *slog.Logger) discovery.ExecuteFunc {
	return func(ctx context.Context, entry discovery.FileEntry) error {
		if err := next(ctx, entry); err != nil {
			return err
		}
		if _, err := rt.ledger.RecordUsage(ctx, entry.EstimatedTokens, entry.EstimatedCostUSD); err != nil {
			logger.Warn("failed to record initiative usage", "initiative", entry.ID, "err", err)
		}
		return nil
	}
}

// taskHandler runs a task's payload command, if any, and charges its
// estimated tokens to the ledger
func (rt *runtime) taskHandler(logger *slog.Logger) tasksHandler {
	return tasksHandler{ledger: rt.ledger, logger: logger}
}

type tasksHandler struct {
	ledger *budget.Ledger
	logger *slog.Logger
}

func (h tasksHandler) Handle(ctx context.Context, task types.Task) error {
	if argv := payloadCommand(task.Payload); len(argv) > 0 {
		out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("task command failed: %w (output: %s)", err, out)
		}
	}
	h.logger.Info("task handled", "task", task.ID, "title", task.Title, "class", task.Class.String())
	if _, err := h.ledger.RecordUsage(ctx, task.EstimatedTokens, 0); err != nil {
		h.logger.Warn("failed to record task usage", "task", task.ID, "err", err)
	}
	return nil
}

// payloadCommand extracts payload["command"] as an argv slice
func payloadCommand(payload map[string]interface{}) []string {
	switch raw := payload["command"].(type) {
	case []string:
		return raw
	case []interface{}:
		return stringSlice(raw)
	}
	return nil
}

func stringSlice(raw []interface{}) []string {
	argv := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		argv = append(argv, s)
	}
	return argv
}

// Close releases storage
func (rt *runtime) Close() error {
	return rt.store.Close()
}
