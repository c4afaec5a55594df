package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/audit"
	"github.com/ledgerloom/ledgerloom/internal/calibrate"
	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

type fakeRules struct {
	opinion  *model.SourceOpinion
	conflict bool
}

func (f *fakeRules) Match(_, _ string) (*model.SourceOpinion, bool) {
	return f.opinion, f.conflict
}

type fakeSimilarity struct {
	opinion *model.SourceOpinion
	err     error
}

func (f *fakeSimilarity) Match(_ context.Context, _, _ string) (*model.SourceOpinion, error) {
	return f.opinion, f.err
}

type fakeFallback struct {
	opinion *model.SourceOpinion
	err     error
	cost    int64
	calls   atomic.Int32
}

func (f *fakeFallback) Classify(_ context.Context, _ model.Transaction, _ []model.Account) (*model.SourceOpinion, error) {
	f.calls.Add(1)
	return f.opinion, f.err
}

func (f *fakeFallback) CostCents() int64 { return f.cost }

type fakeColdStart struct {
	eligible bool
	err      error
}

func (f *fakeColdStart) Eligible(_ context.Context, _, _ string) (bool, *model.VendorMemory, error) {
	return f.eligible, nil, f.err
}

// stubCalibrator applies a fixed mapping function.
type stubCalibrator struct {
	fn func(float64) float64
}

func (s stubCalibrator) Method() model.CalibrationMethod { return model.MethodIsotonic }
func (s stubCalibrator) Calibrate(raw float64) float64   { return s.fn(raw) }

type fakeCalibrators struct {
	calibrator calibrate.Calibrator
	artifact   *model.CalibrationModel
	err        error
}

func (f *fakeCalibrators) Active(_ context.Context, _ string) (calibrate.Calibrator, *model.CalibrationModel, error) {
	return f.calibrator, f.artifact, f.err
}

type fakeDecisionWriter struct {
	mu    sync.Mutex
	saved []*model.Decision
}

func (f *fakeDecisionWriter) SaveDecision(_ context.Context, d *model.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, d)
	return nil
}

type fakeAccounts struct{}

func (fakeAccounts) ListAccounts(_ context.Context) ([]model.Account, error) {
	return []model.Account{
		{Code: "6000 Supplies", Name: "Office Supplies", Type: model.AccountTypeExpense, IsActive: true},
		{Code: "6100 Software", Name: "Software", Type: model.AccountTypeExpense, IsActive: true},
	}, nil
}

type fakeAnomalies struct {
	anomalous bool
	err       error
}

func (f *fakeAnomalies) Anomalous(_ context.Context, _, _ string, _ decimal.Decimal) (bool, error) {
	return f.anomalous, f.err
}

type fakeInstruments struct {
	mu        sync.Mutex
	decisions []*model.Decision
	llmCalls  int
}

func (f *fakeInstruments) ObserveDecision(d *model.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
}

func (f *fakeInstruments) ObserveLLMCall(_ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.llmCalls++
}

// harness wires an engine with passing defaults that individual tests
// override.
type harness struct {
	rules       *fakeRules
	similarity  *fakeSimilarity
	fallback    *fakeFallback
	breaker     *Breaker
	calibrators *fakeCalibrators
	coldstart   *fakeColdStart
	anomalies   *fakeAnomalies
	writer      *fakeDecisionWriter
	metrics     *fakeInstruments
	cfg         Config
}

func newHarness() *harness {
	return &harness{
		rules:      &fakeRules{},
		similarity: &fakeSimilarity{},
		fallback:   &fakeFallback{cost: 2},
		breaker:    NewBreaker(0, 0, time.Minute),
		calibrators: &fakeCalibrators{
			calibrator: stubCalibrator{fn: func(raw float64) float64 { return raw }},
			artifact:   &model.CalibrationModel{ID: 7, Method: model.MethodIsotonic},
		},
		coldstart: &fakeColdStart{eligible: true},
		anomalies: &fakeAnomalies{},
		writer:    &fakeDecisionWriter{},
		metrics:   &fakeInstruments{},
		cfg:       DefaultConfig(),
	}
}

func (h *harness) build(t *testing.T) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := New(h.cfg, Deps{
		Rules:       h.rules,
		Similarity:  h.similarity,
		Fallback:    h.fallback,
		Breaker:     h.breaker,
		Calibrators: h.calibrators,
		ColdStart:   h.coldstart,
		Anomalies:   h.anomalies,
		Recorder:    audit.NewRecorder(h.writer, logger),
		Accounts:    fakeAccounts{},
		Metrics:     h.metrics,
	}, logger)
	require.NoError(t, err)
	return e
}

func txn(id string) model.Transaction {
	return model.Transaction{
		ID:             id,
		TenantID:       "tenant-a",
		RawDescription: "OFFICE DEPOT #1234",
		AccountID:      "1000 Checking",
		Hash:           "hash-" + id,
		Amount:         decimal.NewFromFloat(-52.18),
		Date:           time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_RuleMatchAutoPosts(t *testing.T) {
	h := newHarness()
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.93 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-1"))
	require.NoError(t, err)

	assert.Equal(t, model.StateAutoPosted, d.State)
	assert.Nil(t, d.NotAutoPostReason)
	assert.True(t, d.AutoPostEligible)
	assert.Equal(t, "6000 Supplies", d.ProposedAccount)
	assert.InDelta(t, 1.0, d.BlendedRaw, 0.0001)
	assert.InDelta(t, 0.93, d.CalibratedP, 0.0001)
	assert.Equal(t, model.MethodIsotonic, d.CalibrationMethod)
	assert.Equal(t, int64(7), d.CalibrationVersion)
	assert.InDelta(t, 0.90, d.ThresholdUsed, 0.0001)
	assert.Equal(t, int32(0), h.fallback.calls.Load(), "LLM must not be consulted when a rule matched")
	require.Len(t, h.writer.saved, 1)
	require.Len(t, h.metrics.decisions, 1)
}

func TestEvaluate_NewVendorRoutedColdStart(t *testing.T) {
	h := newHarness()
	h.coldstart.eligible = false
	h.fallback.opinion = &model.SourceOpinion{
		Source: model.SourceLLM, ProposedAccount: "6100 Software", RawConfidence: 0.92,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.92 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-2"))
	require.NoError(t, err)

	assert.Equal(t, model.StateRoutedToReview, d.State)
	assert.Equal(t, "cold_start", d.ReasonString())
	assert.False(t, d.ColdStartEligible)
	// High confidence does not override cold start.
	assert.GreaterOrEqual(t, d.CalibratedP, d.ThresholdUsed)
	assert.Equal(t, int32(1), h.fallback.calls.Load())
}

func TestEvaluate_BelowThresholdRouted(t *testing.T) {
	h := newHarness()
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6300 Fees", RawConfidence: 0.9,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.86 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-3"))
	require.NoError(t, err)

	assert.Equal(t, model.StateRoutedToReview, d.State)
	assert.Equal(t, "below_threshold", d.ReasonString())
}

func TestEvaluate_ConfidentSimilaritySkipsLLM(t *testing.T) {
	h := newHarness()
	h.similarity.opinion = &model.SourceOpinion{
		Source: model.SourceSimilarity, ProposedAccount: "6000 Supplies", RawConfidence: 0.90,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-4"))
	require.NoError(t, err)

	assert.Equal(t, int32(0), h.fallback.calls.Load())
	assert.Equal(t, model.StateAutoPosted, d.State)
	require.Len(t, d.Sources, 1)
	assert.Equal(t, model.SourceSimilarity, d.Sources[0].Source)
}

func TestEvaluate_WeakSimilarityConsultsLLM(t *testing.T) {
	h := newHarness()
	h.similarity.opinion = &model.SourceOpinion{
		Source: model.SourceSimilarity, ProposedAccount: "6000 Supplies", RawConfidence: 0.60,
	}
	h.fallback.opinion = &model.SourceOpinion{
		Source: model.SourceLLM, ProposedAccount: "6000 Supplies", RawConfidence: 0.85,
	}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-5"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.fallback.calls.Load())
	assert.Len(t, d.Sources, 2)
	// Agreement: similarity and LLM weights redistribute over 0.45.
	want := (0.35*0.60 + 0.10*0.85) / 0.45
	assert.InDelta(t, want, d.BlendedRaw, 0.0001)
}

func TestEvaluate_OpenBreakerSkipsLLMAndBlocksAutoPost(t *testing.T) {
	h := newHarness()
	h.breaker = NewBreaker(1, 0, time.Minute)
	h.breaker.Allow() // consume the only call
	h.breaker.Allow() // trips the breaker
	h.similarity.opinion = &model.SourceOpinion{
		Source: model.SourceSimilarity, ProposedAccount: "6000 Supplies", RawConfidence: 0.60,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-6"))
	require.NoError(t, err)

	assert.Equal(t, int32(0), h.fallback.calls.Load())
	assert.Equal(t, model.StateRoutedToReview, d.State)
	assert.Equal(t, "budget_fallback", d.ReasonString())
	// The decision still carries the similarity opinion.
	require.Len(t, d.Sources, 1)
	assert.Equal(t, model.SourceSimilarity, d.Sources[0].Source)
}

func TestEvaluate_LLMSpendTripsBreakerForLaterCalls(t *testing.T) {
	h := newHarness()
	h.breaker = NewBreaker(0, 2, time.Minute)
	h.fallback.cost = 2
	h.fallback.opinion = &model.SourceOpinion{
		Source: model.SourceLLM, ProposedAccount: "6100 Software", RawConfidence: 0.8,
	}
	// Weak similarity keeps the consult gate open and keeps the score above
	// the auto-post bar once calibrated.
	h.similarity.opinion = &model.SourceOpinion{
		Source: model.SourceSimilarity, ProposedAccount: "6100 Software", RawConfidence: 0.60,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	_, err := e.Evaluate(context.Background(), txn("txn-7"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fallback.calls.Load())
	assert.True(t, h.breaker.Open(), "spend limit reached after the first call")

	d, err := e.Evaluate(context.Background(), txn("txn-8"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.fallback.calls.Load(), "second evaluation must not call the LLM")
	assert.Equal(t, "budget_fallback", d.ReasonString())
}

func TestEvaluate_UnavailableLLMIsAbsence(t *testing.T) {
	h := newHarness()
	h.fallback.err = fmt.Errorf("%w: call timed out", common.ErrSourceUnavailable)
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-9"))
	require.NoError(t, err, "an unavailable source is not an evaluation failure")

	assert.Empty(t, d.Sources)
	assert.Empty(t, d.ProposedAccount)
	assert.Equal(t, model.StateRoutedToReview, d.State)
	assert.Equal(t, "below_threshold", d.ReasonString())
}

func TestEvaluate_AnomalyRoutesToReview(t *testing.T) {
	h := newHarness()
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	h.anomalies.anomalous = true
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-10"))
	require.NoError(t, err)

	assert.Equal(t, "anomaly", d.ReasonString())
}

func TestEvaluate_RuleConflictRoutesToReview(t *testing.T) {
	h := newHarness()
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.rules.conflict = true
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-11"))
	require.NoError(t, err)

	assert.Equal(t, "rule_conflict", d.ReasonString())
}

func TestEvaluate_MissingCalibrationFailsLoudly(t *testing.T) {
	h := newHarness()
	h.calibrators.err = common.ErrCalibrationMissing
	e := h.build(t)

	_, err := e.Evaluate(context.Background(), txn("txn-12"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCalibrationMissing)
	assert.Empty(t, h.writer.saved, "no decision may be recorded with uncalibrated scores")
}

func TestEvaluate_TenantThresholdOverride(t *testing.T) {
	h := newHarness()
	h.cfg.TenantThresholds = map[string]float64{"tenant-a": 0.80}
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.85 }}
	e := h.build(t)

	d, err := e.Evaluate(context.Background(), txn("txn-13"))
	require.NoError(t, err)

	assert.InDelta(t, 0.80, d.ThresholdUsed, 0.0001)
	assert.Equal(t, model.StateAutoPosted, d.State)
}

func TestEvaluate_MalformedTransactionRejected(t *testing.T) {
	e := newHarness().build(t)

	_, err := e.Evaluate(context.Background(), model.Transaction{RawDescription: "no id"})
	require.Error(t, err)
}

func TestEvaluateBatch_IsolatesFailures(t *testing.T) {
	h := newHarness()
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	txns := []model.Transaction{txn("txn-a"), {RawDescription: "malformed"}, txn("txn-b")}
	result := e.EvaluateBatch(context.Background(), txns)

	assert.Len(t, result.Decisions, 2)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed, "")
	require.Len(t, h.writer.saved, 2)
}

func TestEvaluateBatch_Concurrent(t *testing.T) {
	h := newHarness()
	h.cfg.BatchWorkers = 8
	h.rules.opinion = &model.SourceOpinion{
		Source: model.SourceRule, ProposedAccount: "6000 Supplies", RawConfidence: 1.0,
	}
	h.calibrators.calibrator = stubCalibrator{fn: func(float64) float64 { return 0.95 }}
	e := h.build(t)

	txns := make([]model.Transaction, 50)
	for i := range txns {
		txns[i] = txn(fmt.Sprintf("txn-%d", i))
	}
	result := e.EvaluateBatch(context.Background(), txns)

	assert.Len(t, result.Decisions, 50)
	assert.Empty(t, result.Failed)
	assert.Len(t, h.writer.saved, 50)
	assert.Len(t, h.metrics.decisions, 50)
}

func TestEvaluate_SimilarityStorageErrorPropagates(t *testing.T) {
	h := newHarness()
	h.similarity.err = errors.New("database locked")
	e := h.build(t)

	_, err := e.Evaluate(context.Background(), txn("txn-14"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database locked")
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := New(DefaultConfig(), Deps{}, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
