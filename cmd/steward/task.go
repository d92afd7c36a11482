package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage the primary task queue",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Queue a task",
	Long: `Queue a task on the primary queue. The poll loop admits it according to
its class: USER always runs, STANDARD runs unless the budget is paused,
BACKGROUND runs only at NORMAL or WARNING with enough tokens left.

Example:
  $ steward task add "Regenerate API docs" --class background --tokens 8000 -- make docs`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		className, _ := cmd.Flags().GetString("class")
		tokens, _ := cmd.Flags().GetInt64("tokens")

		class, err := types.ParsePriorityClass(className)
		if err != nil {
			return err
		}

		task := types.Task{
			Title:           args[0],
			Class:           class,
			EstimatedTokens: tokens,
		}
		if dash := cmd.ArgsLenAtDash(); dash >= 0 && dash < len(args) {
			task.Payload = map[string]interface{}{"command": args[dash:]}
			task.Title = strings.Join(args[:dash], " ")
		}
		if strings.TrimSpace(task.Title) == "" {
			return fmt.Errorf("task title is required")
		}

		ctx := context.Background()
		store, err := storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		queued, err := store.Enqueue(ctx, task)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Queued %s task %s: %s\n", green("✓"), queued.Class, queued.ID, queued.Title)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending tasks, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := storage.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		pending, err := store.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("No pending tasks"))
			return nil
		}
		for _, t := range pending {
			fmt.Printf("%-10s %s  %s %s\n", t.Class, shortID(t.ID), t.Title,
				color.New(color.FgHiBlack).Sprintf("(%s tokens, queued %s)", formatTokens(t.EstimatedTokens), formatTime(&t.CreatedAt)))
		}
		return nil
	},
}

func init() {
	taskAddCmd.Flags().String("class", "standard", "Priority class: user, standard or background")
	taskAddCmd.Flags().Int64("tokens", 0, "Estimated tokens")
	taskCmd.AddCommand(taskAddCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}
