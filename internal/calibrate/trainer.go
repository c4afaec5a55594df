package calibrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// TrainingStore is the storage surface the trainer needs.
type TrainingStore interface {
	ListOutcomes(ctx context.Context, tenantID string) ([]model.Outcome, error)
	SaveCalibrationModel(ctx context.Context, artifact *model.CalibrationModel) (int64, error)
	ActivateCalibrationModel(ctx context.Context, id int64) error
}

// MinTrainingSamples is the floor below which a fit is refused; a calibrator
// trained on a handful of outcomes is worse than none.
const MinTrainingSamples = 25

// Trainer fits calibration artifacts offline and swaps them in atomically.
// Training never runs on the decision hot path.
type Trainer struct {
	store  TrainingStore
	logger *slog.Logger
}

// NewTrainer creates a calibration trainer.
func NewTrainer(store TrainingStore, logger *slog.Logger) *Trainer {
	return &Trainer{store: store, logger: logger}
}

// Train fits a new artifact for the tenant scope (empty tenantID = global),
// stores it with its quality measures, and activates it. The previous active
// artifact is retained for rollback.
func (t *Trainer) Train(ctx context.Context, tenantID string, method model.CalibrationMethod) (*model.CalibrationModel, error) {
	outcomes, err := t.store.ListOutcomes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load training outcomes: %w", err)
	}
	if len(outcomes) < MinTrainingSamples {
		return nil, fmt.Errorf("only %d outcomes available, need at least %d", len(outcomes), MinTrainingSamples)
	}

	var params model.CalibrationParameters
	switch method {
	case model.MethodIsotonic:
		params, err = FitIsotonic(outcomes)
	case model.MethodTemperature:
		params, err = FitTemperature(outcomes)
	default:
		return nil, fmt.Errorf("unknown calibration method %q", method)
	}
	if err != nil {
		return nil, fmt.Errorf("fit failed: %w", err)
	}

	artifact := &model.CalibrationModel{
		TenantID:   tenantID,
		Method:     method,
		Parameters: params,
		TrainedOnN: len(outcomes),
		CreatedAt:  time.Now(),
	}

	calibrator, err := New(artifact)
	if err != nil {
		return nil, err
	}

	predictions := make([]float64, len(outcomes))
	for i, o := range outcomes {
		predictions[i] = calibrator.Calibrate(o.RawScore)
	}
	artifact.BrierScore = Brier(predictions, outcomes)
	artifact.ECE = ECE(predictions, outcomes)

	id, err := t.store.SaveCalibrationModel(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	artifact.ID = id

	if err := t.store.ActivateCalibrationModel(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to activate artifact: %w", err)
	}
	artifact.Active = true

	t.logger.Info("calibration model trained",
		"tenant_id", tenantID,
		"method", method,
		"trained_on", artifact.TrainedOnN,
		"brier", artifact.BrierScore,
		"ece", artifact.ECE,
		"artifact_id", id)

	return artifact, nil
}
