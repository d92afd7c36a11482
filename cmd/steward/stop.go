package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/control"
	"github.com/steveyegge/steward/internal/storage"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop the running agent",
	Long: `Ask the running agent to stop over its control socket and wait for it to
release its lock. The in-flight cycle, if any, is allowed to finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		return stopAgent(timeout)
	},
}

func init() {
	stopCmd.Flags().Duration("timeout", 30*time.Second, "How long to wait for the agent to exit")
	rootCmd.AddCommand(stopCmd)
}

func stopAgent(timeout time.Duration) error {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	lockPath := storage.LockPath(cfg.DataDir)
	lock, lockErr := storage.ReadLock(lockPath)
	if lockErr == nil {
		fmt.Printf("Found running agent (PID %d on %s, started %s ago)\n",
			lock.PID, lock.Hostname, formatDuration(time.Since(lock.StartedAt)))
	}

	if err := control.NewClient(cfg.ControlSocket).Stop(); err != nil {
		if lockErr != nil {
			fmt.Printf("%s No running agent found\n", yellow("ℹ"))
			return nil
		}
		return err
	}
	fmt.Println("Sent stop request, waiting for shutdown...")

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := storage.ReadLock(lockPath); err != nil {
			fmt.Printf("%s Agent stopped\n", green("✓"))
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("agent did not stop within %s", timeout)
}
