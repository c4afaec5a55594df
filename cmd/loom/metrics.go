package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/metrics"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the operational summary for a decision window",
		Long: `Aggregate decisions, calibration quality, and the latest drift snapshot
into one operational summary.

Examples:
  loom metrics --tenant acme             # Last 30 days
  loom metrics --tenant acme --days 7    # Last week`,
		RunE: runMetrics,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant to summarize (required)")
	cmd.Flags().IntP("days", "d", 30, "Window length in days, ending now")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runMetrics(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, _ := cmd.Flags().GetString("tenant")
	days, _ := cmd.Flags().GetInt("days")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	rulesetVersion := "none"
	if set, rulesErr := loadRuleset(); rulesErr == nil {
		rulesetVersion = set.Version
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	snapshot, err := metrics.ComputeSnapshot(ctx, store, tenantID, rulesetVersion, start, end)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Metrics for %s (%s to %s) %s",
		tenantID, start.Format("2006-01-02"), end.Format("2006-01-02"), cli.ChartIcon)))

	if snapshot.Decisions == 0 {
		fmt.Println(cli.FormatInfo("No decisions in this window"))
		return nil
	}

	fmt.Printf("  Decisions:       %d\n", snapshot.Decisions)
	fmt.Printf("  Auto-post rate:  %.1f%%\n", snapshot.AutoPostRate*100)
	fmt.Printf("  Review rate:     %.1f%%\n", snapshot.ReviewRate*100)
	fmt.Printf("  LLM calls/txn:   %.3f\n", snapshot.LLMCallsPerTxn)
	fmt.Printf("  Ruleset:         %s\n", snapshot.RulesetVersion)

	fmt.Println(cli.BoldStyle.Render("  Review reasons:"))
	for _, reason := range orderedReasons(snapshot) {
		fmt.Printf("    %-16s %d\n", reason.name, reason.count)
	}

	if snapshot.CalibrationMethod != "" {
		fmt.Println(cli.BoldStyle.Render("  Calibration:"))
		fmt.Printf("    method %s v%d, Brier %.4f, ECE %.4f\n",
			snapshot.CalibrationMethod, snapshot.CalibrationVersion, snapshot.BrierScore, snapshot.ECE)
	} else {
		fmt.Println(cli.FormatWarning("No active calibration model; nothing will auto-post"))
	}

	if !snapshot.DriftComputedAt.IsZero() {
		fmt.Println(cli.BoldStyle.Render("  Drift (latest):"))
		fmt.Printf("    PSI amount %.4f, PSI vendor %.4f, KS amount %.4f, KS vendor %.4f\n",
			snapshot.PSIAmount, snapshot.PSIVendor, snapshot.KSAmount, snapshot.KSVendor)
	}
	return nil
}

type reasonCount struct {
	name  string
	count int
}

func orderedReasons(s *metrics.Snapshot) []reasonCount {
	out := make([]reasonCount, 0, len(model.AllReasons))
	for _, reason := range model.AllReasons {
		out = append(out, reasonCount{name: string(reason), count: s.ReasonCounts[reason]})
	}
	return out
}
