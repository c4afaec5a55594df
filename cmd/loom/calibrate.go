package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ledgerloom/ledgerloom/internal/calibrate"
	"github.com/ledgerloom/ledgerloom/internal/cli"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

func calibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Train and activate a calibration model",
		Long: `Fit a calibration model on confirmed outcomes and activate it atomically.

Calibration maps the engine's blended raw scores onto honest probabilities;
without an active model the engine refuses to auto-post. Training runs
offline and never touches the decision hot path.

Examples:
  loom calibrate --tenant acme                    # Isotonic fit for one tenant
  loom calibrate --method temperature             # Global temperature fit
  loom calibrate --tenant acme --method isotonic`,
		RunE: runCalibrate,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant scope (empty = global)")
	cmd.Flags().StringP("method", "m", "isotonic", "Calibration method (isotonic, temperature)")

	return cmd
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	tenantID, _ := cmd.Flags().GetString("tenant")
	methodName, _ := cmd.Flags().GetString("method")

	var method model.CalibrationMethod
	switch methodName {
	case "isotonic":
		method = model.MethodIsotonic
	case "temperature":
		method = model.MethodTemperature
	default:
		return fmt.Errorf("unknown calibration method %q (use isotonic or temperature)", methodName)
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

	trainer := calibrate.NewTrainer(store, slog.Default())
	artifact, err := trainer.Train(ctx, tenantID, method)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	scope := tenantID
	if scope == "" {
		scope = "global"
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Trained and activated %s model %d for %s", artifact.Method, artifact.ID, scope)))
	fmt.Printf("  Samples: %d\n", artifact.TrainedOnN)
	fmt.Printf("  Brier:   %.4f\n", artifact.BrierScore)
	fmt.Printf("  ECE:     %.4f\n", artifact.ECE)
	return nil
}
