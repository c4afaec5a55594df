package calibrate

import (
	"context"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

func outcome(raw float64, confirmed bool) model.Outcome {
	return model.Outcome{RawScore: raw, Confirmed: confirmed}
}

func TestFitIsotonic_PoolsViolators(t *testing.T) {
	// Scores 0.2 and 0.4 have inverted observed rates; PAV must pool them.
	outcomes := []model.Outcome{
		outcome(0.2, true),
		outcome(0.4, false),
		outcome(0.8, true),
		outcome(0.9, true),
	}

	params, err := FitIsotonic(outcomes)
	require.NoError(t, err)

	cal, err := New(&model.CalibrationModel{Method: model.MethodIsotonic, Parameters: params})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cal.Calibrate(0.2), 1e-9)
	assert.InDelta(t, 0.5, cal.Calibrate(0.4), 1e-9)
	assert.InDelta(t, 1.0, cal.Calibrate(0.9), 1e-9)
}

func TestIsotonic_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	outcomes := make([]model.Outcome, 400)
	for i := range outcomes {
		raw := rng.Float64()
		outcomes[i] = outcome(raw, rng.Float64() < raw*raw) // miscalibrated truth
	}

	params, err := FitIsotonic(outcomes)
	require.NoError(t, err)
	cal, err := New(&model.CalibrationModel{Method: model.MethodIsotonic, Parameters: params})
	require.NoError(t, err)

	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.01 {
		p := cal.Calibrate(raw)
		assert.GreaterOrEqual(t, p, prev, "calibrated value decreased at raw=%v", raw)
		prev = p
	}
}

func TestFitTemperature_RecoversIdentityOnCalibratedData(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	outcomes := make([]model.Outcome, 2000)
	for i := range outcomes {
		raw := 0.05 + 0.9*rng.Float64()
		outcomes[i] = outcome(raw, rng.Float64() < raw)
	}

	params, err := FitTemperature(outcomes)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, params.Temperature, 0.25)
}

func TestTemperatureCalibrator_Monotone(t *testing.T) {
	cal, err := New(&model.CalibrationModel{
		Method:     model.MethodTemperature,
		Parameters: model.CalibrationParameters{Temperature: 2.5},
	})
	require.NoError(t, err)

	prev := -1.0
	for raw := 0.0; raw <= 1.0; raw += 0.01 {
		p := cal.Calibrate(raw)
		assert.Greater(t, p, prev)
		prev = p
	}

	// T > 1 softens extremes toward 0.5.
	assert.Greater(t, cal.Calibrate(0.1), 0.1)
	assert.Less(t, cal.Calibrate(0.95), 0.95)
}

func TestBrier(t *testing.T) {
	outcomes := []model.Outcome{outcome(0, true), outcome(0, false)}
	preds := []float64{1.0, 0.0}
	assert.InDelta(t, 0.0, Brier(preds, outcomes), 1e-9)

	preds = []float64{0.0, 1.0}
	assert.InDelta(t, 1.0, Brier(preds, outcomes), 1e-9)

	preds = []float64{0.5, 0.5}
	assert.InDelta(t, 0.25, Brier(preds, outcomes), 1e-9)
}

func TestECE(t *testing.T) {
	// All predictions 0.95, observed rate 0.5: ECE = 0.45.
	outcomes := []model.Outcome{outcome(0, true), outcome(0, false)}
	preds := []float64{0.95, 0.95}
	assert.InDelta(t, 0.45, ECE(preds, outcomes), 1e-9)

	bins := ECEBins(preds, outcomes)
	require.Len(t, bins, ECEBinCount)
	last := bins[ECEBinCount-1]
	assert.Equal(t, 2, last.Count)
	assert.InDelta(t, 0.95, last.AvgPredicted, 1e-9)
	assert.InDelta(t, 0.5, last.AvgObserved, 1e-9)
}

// fakeTrainingStore scripts outcomes and records saved artifacts.
type fakeTrainingStore struct {
	outcomes  []model.Outcome
	saved     []*model.CalibrationModel
	activated []int64
}

func (f *fakeTrainingStore) ListOutcomes(_ context.Context, _ string) ([]model.Outcome, error) {
	return f.outcomes, nil
}

func (f *fakeTrainingStore) SaveCalibrationModel(_ context.Context, artifact *model.CalibrationModel) (int64, error) {
	f.saved = append(f.saved, artifact)
	return int64(len(f.saved)), nil
}

func (f *fakeTrainingStore) ActivateCalibrationModel(_ context.Context, id int64) error {
	f.activated = append(f.activated, id)
	return nil
}

func TestTrainer_Train(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	store := &fakeTrainingStore{}
	for i := 0; i < 200; i++ {
		raw := rng.Float64()
		store.outcomes = append(store.outcomes, outcome(raw, rng.Float64() < raw))
	}

	trainer := NewTrainer(store, slog.Default())
	artifact, err := trainer.Train(context.Background(), "t1", model.MethodIsotonic)
	require.NoError(t, err)

	assert.Equal(t, model.MethodIsotonic, artifact.Method)
	assert.Equal(t, 200, artifact.TrainedOnN)
	assert.True(t, artifact.Active)
	assert.Greater(t, artifact.BrierScore, 0.0)
	assert.Len(t, store.activated, 1)
}

func TestTrainer_RefusesThinData(t *testing.T) {
	store := &fakeTrainingStore{outcomes: []model.Outcome{outcome(0.5, true)}}
	trainer := NewTrainer(store, slog.Default())

	_, err := trainer.Train(context.Background(), "t1", model.MethodIsotonic)
	assert.Error(t, err)
	assert.Empty(t, store.saved)
}

// fakeArtifactReader serves scoped artifacts.
type fakeArtifactReader struct {
	byScope map[string]*model.CalibrationModel
	reads   int
}

func (f *fakeArtifactReader) GetActiveCalibrationModel(_ context.Context, tenantID string) (*model.CalibrationModel, error) {
	f.reads++
	if artifact, ok := f.byScope[tenantID]; ok {
		return artifact, nil
	}
	return nil, common.ErrNotFound
}

func isotonicArtifact(id int64, tenant string) *model.CalibrationModel {
	return &model.CalibrationModel{
		ID:       id,
		TenantID: tenant,
		Method:   model.MethodIsotonic,
		Parameters: model.CalibrationParameters{
			Thresholds: []float64{0.0, 0.5},
			Values:     []float64{0.2, 0.9},
		},
		Active: true,
	}
}

func TestStore_TenantThenGlobalFallback(t *testing.T) {
	reader := &fakeArtifactReader{byScope: map[string]*model.CalibrationModel{
		"": isotonicArtifact(1, ""),
	}}
	store := NewStore(reader, time.Minute)

	cal, artifact, err := store.Active(context.Background(), "tenant-without-model")
	require.NoError(t, err)
	assert.Equal(t, int64(1), artifact.ID)
	assert.InDelta(t, 0.9, cal.Calibrate(0.8), 1e-9)
}

func TestStore_MissingModelFailsLoudly(t *testing.T) {
	store := NewStore(&fakeArtifactReader{byScope: map[string]*model.CalibrationModel{}}, time.Minute)

	_, _, err := store.Active(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCalibrationMissing)
}

func TestStore_CachesUntilInvalidate(t *testing.T) {
	reader := &fakeArtifactReader{byScope: map[string]*model.CalibrationModel{
		"t1": isotonicArtifact(1, "t1"),
	}}
	store := NewStore(reader, time.Minute)

	_, _, err := store.Active(context.Background(), "t1")
	require.NoError(t, err)
	_, _, err = store.Active(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.reads)

	store.Invalidate()
	_, _, err = store.Active(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.reads)
}
