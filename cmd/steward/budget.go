package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/budget"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show budget usage and the current throttle level",
	Long:  `Display the budget ledger: usage in the current window, the throttle level it maps to, and all-time totals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		printBudget(ledger.Stats())
		return nil
	},
}

var budgetRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record token and cost usage against the budget",
	Long: `Add consumed tokens and USD cost to the current window.

Example:
  $ steward budget record --tokens 12000 --cost 0.18`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, _ := cmd.Flags().GetInt64("tokens")
		costUSD, _ := cmd.Flags().GetFloat64("cost")

		ledger, err := openLedger()
		if err != nil {
			return err
		}
		snap, err := ledger.RecordUsage(context.Background(), tokens, costUSD)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Recorded %s tokens, $%.4f\n", green("✓"), formatTokens(tokens), costUSD)
		fmt.Printf("  Level now %s (%.1f%%)\n", levelColor(snap.Level).Sprint(snap.Level.String()), snap.UsagePercent)
		return nil
	},
}

func init() {
	budgetRecordCmd.Flags().Int64("tokens", 0, "Tokens consumed")
	budgetRecordCmd.Flags().Float64("cost", 0, "USD cost incurred")
	budgetCmd.AddCommand(budgetRecordCmd)
	rootCmd.AddCommand(budgetCmd)
}

func openLedger() (*budget.Ledger, error) {
	budgetCfg := cfg.Budget
	ledger, err := budget.NewLedger(&budgetCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open budget ledger: %w", err)
	}
	return ledger, nil
}

func printBudget(stats budget.Stats) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Budget Status ==="))

	if !stats.Config.Enabled {
		fmt.Println("Budget enforcement is disabled")
		fmt.Println("Set STEWARD_BUDGET_ENABLED=true to enable it")
		fmt.Println()
	}

	snap := stats.Snapshot
	fmt.Printf("Throttle level: %s (%.1f%%)\n", levelColor(snap.Level).Sprint(snap.Level.String()), snap.UsagePercent)
	fmt.Printf("                %s\n", renderProgressBar(snap.UsagePercent, 40, snap.Level))
	fmt.Printf("                %s\n\n", snap.Recommendation)

	fmt.Printf("%s\n", yellow(fmt.Sprintf("Current window (%s):", stats.Config.Window)))
	if stats.Config.MaxTokensPerWindow > 0 {
		fmt.Printf("  Tokens:  %s / %s\n", formatTokens(stats.WindowTokensUsed), formatTokens(stats.Config.MaxTokensPerWindow))
	} else {
		fmt.Printf("  Tokens:  %s (unlimited)\n", formatTokens(stats.WindowTokensUsed))
	}
	if stats.Config.MaxCostPerWindow > 0 {
		fmt.Printf("  Cost:    $%.4f / $%.2f\n", stats.WindowCostUsed, stats.Config.MaxCostPerWindow)
	} else {
		fmt.Printf("  Cost:    $%.4f (unlimited)\n", stats.WindowCostUsed)
	}
	fmt.Printf("  Resets:  in %s\n", formatDuration(time.Until(stats.WindowResetsAt)))

	bp := stats.Config.Breakpoints
	fmt.Printf("  %s\n\n", gray(fmt.Sprintf("WARNING at %.0f%%, REDUCE at %.0f%%, PAUSE at %.0f%%", bp.Warning, bp.Reduce, bp.Pause)))

	fmt.Printf("%s\n", yellow("All time:"))
	fmt.Printf("  Tokens:  %s\n", formatTokens(stats.TotalTokensUsed))
	fmt.Printf("  Cost:    $%.4f\n\n", stats.TotalCostUsed)
}
