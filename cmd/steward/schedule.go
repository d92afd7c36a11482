package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "List scheduled handlers and their last runs",
	Long: `List the triggers in the schedule file with their run history.
Essential handlers keep running when the budget is at REDUCE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		triggers, err := scheduler.LoadTriggers(cfg.SchedulePath)
		if err != nil {
			return err
		}
		sched, err := scheduler.New(scheduler.Config{
			Triggers:  triggers,
			StatePath: cfg.SchedulerStatePath,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(triggers) == 0 {
			fmt.Printf("%s\n", gray("No handlers scheduled ("+cfg.SchedulePath+")"))
			return nil
		}

		bold := color.New(color.Bold).SprintFunc()
		for _, t := range sched.Triggers() {
			essential := ""
			if t.Essential {
				essential = color.CyanString(" [essential]")
			}
			fmt.Printf("%s%s  %s\n", bold(t.Name), essential, t.Describe())

			rec, ok := sched.Record(t.Name)
			if !ok {
				fmt.Printf("  %s\n", gray("never run"))
				continue
			}
			fmt.Printf("  last run %s, %d runs, %d failures\n", formatTime(&rec.LastRun), rec.Runs, rec.Failures)
			if rec.Skips > 0 {
				fmt.Printf("  last skipped %s, %d skips\n", formatTime(&rec.LastSkipped), rec.Skips)
			}
			if rec.LastError != "" {
				fmt.Printf("  last error: %s\n", color.RedString(rec.LastError))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
