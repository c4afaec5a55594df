package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/coldstart"
	"github.com/ledgerloom/ledgerloom/internal/config"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/normalize"
	"github.com/ledgerloom/ledgerloom/internal/service"
	"github.com/ledgerloom/ledgerloom/internal/similarity"
)

func confirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Review queued decisions interactively",
		Long: `Walk through decisions that were routed to review and confirm or correct
the proposed account for each one.

Every confirmation becomes a labeled outcome: it feeds vendor memory (so
similar transactions classify better), cold-start eligibility, and the next
calibration training run.

Examples:
  loom confirm --tenant acme            # Review the last 30 days
  loom confirm --tenant acme --days 90  # Review a longer window`,
		RunE: runConfirm,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant to review (required)")
	cmd.Flags().IntP("days", "d", 30, "How many days back to look for queued decisions")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runConfirm(cmd *cobra.Command, _ []string) error {
	tenantID, _ := cmd.Flags().GetString("tenant")
	days, _ := cmd.Flags().GetInt("days")

	handler := cli.NewInterruptHandler(os.Stdout)
	ctx := handler.HandleInterrupts(cmd.Context(), "loom confirm --tenant "+tenantID)

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	queued, err := reviewQueue(ctx, store, tenantID, days)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		fmt.Println(cli.FormatInfo("Review queue is empty"))
		return nil
	}

	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	tracker := coldstart.NewTracker(store, similarity.NewTrigramEmbedder(), config.ColdStartRequiredN())
	prompter := cli.NewReviewPrompter(os.Stdin, os.Stdout)
	prompter.StartSession(len(queued))

	for _, item := range queued {
		action, account, reviewErr := prompter.Review(ctx, item.txn, item.decision, accounts)
		if reviewErr != nil {
			if errors.Is(reviewErr, cli.ErrReviewQuit) || handler.WasInterrupted() {
				break
			}
			return reviewErr
		}
		if action == cli.ReviewSkipped {
			continue
		}

		event := &model.ConfirmationEvent{
			TenantID:      tenantID,
			Vendor:        vendorKeyFor(item.txn),
			TransactionID: item.txn.ID,
			Account:       account,
			ConfirmedAt:   time.Now(),
		}
		if _, confirmErr := tracker.Confirm(ctx, event); confirmErr != nil {
			return fmt.Errorf("failed to record confirmation: %w", confirmErr)
		}
	}

	prompter.Summary()
	return nil
}

type reviewItem struct {
	txn      model.Transaction
	decision model.Decision
}

// reviewQueue lists routed-to-review decisions from the window that have no
// human label yet, oldest first.
func reviewQueue(ctx context.Context, store service.Storage, tenantID string, days int) ([]reviewItem, error) {
	end := time.Now().Add(24 * time.Hour)
	start := end.AddDate(0, 0, -days-1)

	decisions, err := store.ListDecisionsByWindow(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	var queue []reviewItem
	for _, decision := range decisions {
		if decision.State != model.StateRoutedToReview {
			continue
		}

		txn, txnErr := store.GetTransaction(ctx, decision.TransactionID)
		if txnErr != nil {
			slog.Warn("Skipping decision with missing transaction",
				"decision_id", decision.ID,
				"transaction_id", decision.TransactionID,
				"error", txnErr)
			continue
		}

		labeled, labelErr := hasLabel(ctx, store, tenantID, *txn)
		if labelErr != nil {
			return nil, labelErr
		}
		if labeled {
			continue
		}

		queue = append(queue, reviewItem{txn: *txn, decision: decision})
	}
	return queue, nil
}

func hasLabel(ctx context.Context, store service.Storage, tenantID string, txn model.Transaction) (bool, error) {
	labels, err := store.ListVendorLabels(ctx, tenantID, vendorKeyFor(txn))
	if err != nil {
		return false, fmt.Errorf("failed to list vendor labels: %w", err)
	}
	for _, label := range labels {
		if label.TransactionID == txn.ID {
			return true, nil
		}
	}
	return false, nil
}

func vendorKeyFor(txn model.Transaction) string {
	name := txn.MerchantName
	if name == "" {
		name = txn.RawDescription
	}
	return normalize.Vendor(name)
}
