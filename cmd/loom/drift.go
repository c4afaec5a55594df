package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/drift"
)

func driftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compute distribution drift against a reference window",
		Long: `Compare the current transaction mix (amounts and vendors) against a
reference window and record the PSI and KS statistics as a snapshot.

A PSI above roughly 0.2 or a large KS statistic means the transaction
population has shifted and the calibration model likely needs retraining.

Examples:
  loom drift --tenant acme                      # 30d current vs prior 90d
  loom drift --tenant acme --ref-days 180       # Longer reference window`,
		RunE: runDrift,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant to analyze (required)")
	cmd.Flags().Int("ref-days", 90, "Reference window length, ending where the current window starts")
	cmd.Flags().Int("cur-days", 30, "Current window length, ending now")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runDrift(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, _ := cmd.Flags().GetString("tenant")
	refDays, _ := cmd.Flags().GetInt("ref-days")
	curDays, _ := cmd.Flags().GetInt("cur-days")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	now := time.Now()
	curStart := now.AddDate(0, 0, -curDays)
	refStart := curStart.AddDate(0, 0, -refDays)

	monitor := drift.NewMonitor(store, slog.Default())
	snapshot, err := monitor.Compute(ctx, tenantID, refStart, curStart, curStart, now)
	if err != nil {
		return fmt.Errorf("drift computation failed: %w", err)
	}

	fmt.Println(cli.FormatTitle("Drift Snapshot " + cli.ChartIcon))
	fmt.Printf("  Window:     %s to %s\n", snapshot.WindowStart.Format("2006-01-02"), snapshot.WindowEnd.Format("2006-01-02"))
	fmt.Printf("  PSI amount: %s\n", formatDriftStat(snapshot.PSIAmount, 0.2))
	fmt.Printf("  PSI vendor: %s\n", formatDriftStat(snapshot.PSIVendor, 0.2))
	fmt.Printf("  KS amount:  %s\n", formatDriftStat(snapshot.KSAmount, 0.3))
	fmt.Printf("  KS vendor:  %s\n", formatDriftStat(snapshot.KSVendor, 0.3))

	if snapshot.PSIAmount > 0.2 || snapshot.PSIVendor > 0.2 {
		fmt.Println(cli.FormatWarning("Significant drift; consider retraining: loom calibrate --tenant " + tenantID))
	}
	return nil
}

func formatDriftStat(v, warnAt float64) string {
	s := fmt.Sprintf("%.4f", v)
	if v > warnAt {
		return cli.WarningStyle.Render(s)
	}
	return cli.SuccessStyle.Render(s)
}
