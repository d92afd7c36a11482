package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running agent's status",
	Long:  `Query the running agent over its control socket and show loop counters, the budget level and the latest discovery scan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		var view statusView
		if err := control.NewClient(cfg.ControlSocket).Status(&view); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		printStatus(view)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print raw JSON")
	rootCmd.AddCommand(statusCmd)
}

func printStatus(v statusView) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Steward Status ==="))

	state := gray("○ stopped")
	if v.Agent.Running {
		state = green("● running")
	}
	fmt.Printf("%s\n", yellow("Agent:"))
	fmt.Printf("  State:           %s\n", state)
	fmt.Printf("  Started:         %s\n", formatTime(v.Agent.StartedAt))
	fmt.Printf("  Last cycle:      %s\n", formatTime(v.Agent.LastCycle))
	fmt.Printf("  Last activity:   %s\n", formatTime(v.Agent.LastActivity))
	fmt.Printf("  Tasks processed: %d\n", v.Agent.TasksProcessed)
	fmt.Printf("  Errors:          %d\n", v.Agent.Errors)
	if v.Agent.LastError != "" {
		fmt.Printf("  Last error:      %s\n", color.RedString(v.Agent.LastError))
	}

	fmt.Printf("\n%s\n", yellow("Budget:"))
	fmt.Printf("  Level:   %s\n", levelColor(v.Budget.Level).Sprint(v.Budget.Level.String()))
	fmt.Printf("  Usage:   %.1f%% %s\n", v.Budget.UsagePercent, renderProgressBar(v.Budget.UsagePercent, 30, v.Budget.Level))
	fmt.Printf("  Advice:  %s\n", v.Budget.Recommendation)

	fmt.Printf("\n%s\n", yellow("Last discovery scan:"))
	if v.LastScan == nil {
		fmt.Printf("  %s\n\n", gray("none yet"))
		return
	}
	s := v.LastScan
	fmt.Printf("  At:        %s (%s)\n", s.At.Format("2006-01-02 15:04:05"), s.Level)
	fmt.Printf("  Found:     %d (%d suppressed)\n", s.Discovered, s.Suppressed)
	fmt.Printf("  Executed:  %d (%d failed)\n", s.Executed, s.Failed)
	fmt.Printf("  Escalated: %d\n", s.Escalated)
	for _, item := range s.ForUser {
		fmt.Printf("  • for you: %s %s\n", item.Title, gray("["+item.Category+"]"))
	}
	fmt.Println()
}
