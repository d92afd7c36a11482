package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/steward/internal/control"
	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/types"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "List work waiting for human approval",
	Long: `List approval requests, newest first. Requests are created when an
initiative needs sign-off, exceeds the auto-execute limits, or is denied by
the budget. steward never approves or rejects them itself.

The running agent is asked first; without one the database is read directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		reqs, err := listApprovals(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reqs)
		}
		printApprovals(reqs)
		return nil
	},
}

func init() {
	approvalsCmd.Flags().Int("limit", control.DefaultApprovalLimit, "Maximum requests to show")
	approvalsCmd.Flags().Bool("json", false, "Print raw JSON")
	rootCmd.AddCommand(approvalsCmd)
}

func listApprovals(ctx context.Context, limit int) ([]types.ApprovalRequest, error) {
	var reqs []types.ApprovalRequest
	if err := control.NewClient(cfg.ControlSocket).Approvals(limit, &reqs); err == nil {
		return reqs, nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	store, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	return store.ListApprovals(ctx, limit)
}

func printApprovals(reqs []types.ApprovalRequest) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if len(reqs) == 0 {
		fmt.Printf("%s\n", gray("No approval requests"))
		return
	}

	fmt.Printf("\n%s\n\n", bold(fmt.Sprintf("%d approval request(s):", len(reqs))))
	for _, r := range reqs {
		riskColor := color.New(color.FgGreen)
		switch r.Risk {
		case types.RiskMedium:
			riskColor = color.New(color.FgYellow)
		case types.RiskHigh:
			riskColor = color.New(color.FgRed, color.Bold)
		}

		fmt.Printf("%s %s\n", riskColor.Sprintf("[%s]", r.Risk), bold(r.Title))
		fmt.Printf("  ID:       %s %s\n", r.ID, gray("(source "+r.SourceID+")"))
		fmt.Printf("  Reason:   %s\n", r.Reason)
		fmt.Printf("  Estimate: $%.2f, %s tokens\n", r.EstimatedCostUSD, formatTokens(r.EstimatedTokens))
		if !r.Reversible {
			fmt.Printf("  %s\n", color.YellowString("Not reversible"))
		}
		fmt.Printf("  Queued:   %s\n\n", formatTime(&r.CreatedAt))
	}
}
