package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/ingest"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync transactions from Plaid",
		Long: `Fetch transactions from a linked bank account via the Plaid API and store
them locally. Credentials come from the environment:

  PLAID_CLIENT_ID, PLAID_SECRET, PLAID_ACCESS_TOKEN

Examples:
  loom sync --tenant acme              # Last 30 days
  loom sync --tenant acme --days 90    # Longer backfill`,
		RunE: runSync,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant the account belongs to (required)")
	cmd.Flags().IntP("days", "d", 30, "How many days of history to fetch")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, _ := cmd.Flags().GetString("tenant")
	days, _ := cmd.Flags().GetInt("days")

	environment := viper.GetString("plaid.environment")
	if environment == "" {
		environment = "production"
	}

	client, err := ingest.NewPlaidClient(ingest.PlaidConfig{
		ClientID:    os.Getenv("PLAID_CLIENT_ID"),
		Secret:      os.Getenv("PLAID_SECRET"),
		AccessToken: os.Getenv("PLAID_ACCESS_TOKEN"),
		Environment: environment,
		TenantID:    tenantID,
	})
	if err != nil {
		return fmt.Errorf("failed to create Plaid client: %w", err)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)
	slog.Info("Syncing transactions from Plaid",
		"tenant", tenantID,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"))

	transactions, err := client.GetTransactions(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	if len(transactions) == 0 {
		fmt.Println(cli.FormatInfo("No transactions in the requested window"))
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := store.SaveTransactions(ctx, transactions); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Synced %d transactions", len(transactions))))
	fmt.Println(cli.FormatInfo("Evaluate them with: loom evaluate --tenant " + tenantID))
	return nil
}
