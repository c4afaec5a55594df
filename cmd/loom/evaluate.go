package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate pending transactions",
		Long: `Run the decision pipeline over transactions that have no decision yet.

Each transaction is classified by rules, vendor-history similarity, and
optionally the LLM fallback; the calibrated confidence then decides whether
its journal entry auto-posts or lands in the review queue.

Examples:
  loom evaluate --tenant acme            # Evaluate all pending transactions
  loom evaluate --tenant acme --limit 50 # At most 50 transactions`,
		RunE: runEvaluate,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant to evaluate (required)")
	cmd.Flags().IntP("limit", "n", 0, "Maximum transactions to evaluate (0 = batch default)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, _ := cmd.Flags().GetString("tenant")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	eng, rules, err := buildEngine(store)
	if err != nil {
		return err
	}
	slog.Info("Evaluating pending transactions", "tenant", tenantID, "ruleset", rules.Version())

	pending, err := store.ListPendingTransactions(ctx, tenantID, limit)
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println(cli.FormatInfo("Nothing pending; all transactions are decided"))
		return nil
	}

	result := eng.EvaluateBatch(ctx, pending)

	var posted, review int
	reasonCounts := make(map[string]int)
	for _, decision := range result.Decisions {
		if decision == nil {
			continue
		}
		if decision.State == model.StateAutoPosted {
			posted++
		} else {
			review++
			reasonCounts[decision.ReasonString()]++
		}
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Evaluated %d transactions", len(pending))))
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Auto-posted: %d", posted)))
	fmt.Println(cli.FormatWarning(fmt.Sprintf("Routed to review: %d", review)))
	for reason, count := range reasonCounts {
		fmt.Printf("  %s: %d\n", reason, count)
	}

	if len(result.Failed) > 0 {
		fmt.Println(cli.FormatError(fmt.Sprintf("Failed: %d", len(result.Failed))))
		for id, evalErr := range result.Failed {
			slog.Error("Evaluation failed", "transaction_id", id, "error", evalErr)
		}
		return fmt.Errorf("%d of %d evaluations failed", len(result.Failed), len(pending))
	}

	if review > 0 {
		fmt.Println(cli.FormatInfo("Review the queue with: loom confirm --tenant " + tenantID))
	}
	return nil
}
