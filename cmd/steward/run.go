package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/agent"
	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll loop",
	Long: `Run the poll loop until interrupted (SIGINT/SIGTERM) or stopped with
'steward stop'. With --once, run a single cycle, print what it did and exit.

Only one steward process may run per data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		timeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		return runAgent(cmd.Context(), once, timeout)
	},
}

func init() {
	runCmd.Flags().Bool("once", false, "Run a single cycle and exit")
	runCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "How long to wait for the in-flight cycle on shutdown")
	rootCmd.AddCommand(runCmd)
}

func runAgent(parent context.Context, once bool, shutdownTimeout time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}

	lockPath, err := storage.AcquireLock(cfg.DataDir, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := storage.ReleaseLock(lockPath); err != nil {
			logger.Warn("failed to release lock", "path", lockPath, "err", err)
		}
	}()

	shutdownTelemetry, err := telemetry.Init(parent, cfg.Telemetry, "steward", version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, stop)
	if err != nil {
		return err
	}
	defer rt.Close()

	if once {
		report := rt.agent.RunCycle(ctx)
		printCycleReport(report)
		return report.Err
	}

	// The loop keeps running its in-flight cycle after a signal; Stop waits for it
	if err := rt.agent.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s steward running (poll every %s, control socket %s). Press Ctrl+C to stop.\n",
		cyan("→"), cfg.PollInterval, cfg.ControlSocket)

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.agent.Stop(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s steward stopped\n", green("✓"))
	return nil
}

func printCycleReport(r agent.CycleReport) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", bold("=== Cycle Report ==="))
	fmt.Printf("  Level:     %s (%.1f%%)\n", levelColor(r.Budget.Level).Sprint(r.Budget.Level.String()), r.Budget.UsagePercent)
	if r.LevelChanged {
		fmt.Printf("  Changed:   %s → %s\n", r.PreviousLevel, r.Budget.Level)
	}
	fmt.Printf("  Duration:  %s\n", r.Duration.Round(time.Millisecond))

	if r.Scheduler != nil {
		fmt.Printf("  Scheduler: ran %d, skipped %d, failed %d\n", len(r.Scheduler.Ran), len(r.Scheduler.Skipped), len(r.Scheduler.Failed))
	} else {
		fmt.Printf("  Scheduler: %s\n", gray("not run"))
	}
	fmt.Printf("  Tasks:     %d handled (%d ok, %d failed), %d deferred\n",
		r.Tasks.Handled, r.Tasks.Succeeded, r.Tasks.Failed, r.Tasks.Deferred)
	if r.Tasks.Unrecorded > 0 {
		fmt.Printf("  %s\n", color.YellowString("%d task outcomes not recorded, they stay queued", r.Tasks.Unrecorded))
	}

	if d := r.Discovery; d != nil {
		fmt.Printf("  Discovery: %d found, %d suppressed, %d executed, %d failed, %d escalated\n",
			d.Discovered, d.Suppressed, d.Executed, d.Failed, d.Escalated)
		for _, item := range d.ForUser {
			fmt.Printf("    • for you: %s %s\n", item.Title, gray("["+item.Category+"]"))
		}
	} else {
		fmt.Printf("  Discovery: %s\n", gray("not run"))
	}

	if r.Cleanup != nil {
		fmt.Printf("  Cleanup:   %d audit events removed\n", r.Cleanup.Total())
	}
	if r.Err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("  %s %v\n", red("✗ Error:"), r.Err)
	}
	fmt.Println()
}
