package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/audit"
	"github.com/ledgerloom/ledgerloom/internal/calibrate"
	"github.com/ledgerloom/ledgerloom/internal/coldstart"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/normalize"
	"github.com/ledgerloom/ledgerloom/internal/rule"
	"github.com/ledgerloom/ledgerloom/internal/similarity"
	"github.com/ledgerloom/ledgerloom/internal/testutil"
)

const integrationRuleset = `
version: "2026-03"
rules:
  - name: coffee shops
    pattern: starbucks
    account: "6200 Meals"
    confidence: 0.95
    priority: 10
    regex: true
`

// Wires the whole pipeline over real SQLite storage: ruleset, vendor
// memory, cold-start tracker, calibration artifact, gate, audit log.
func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	logger := slog.Default()

	set, err := rule.Parse([]byte(integrationRuleset))
	require.NoError(t, err)
	rules, err := rule.NewMatcher(set)
	require.NoError(t, err)

	// Identity calibration so raw scores pass through unchanged.
	artifactID, err := db.Storage.SaveCalibrationModel(ctx, &model.CalibrationModel{
		Method:     model.MethodTemperature,
		Parameters: model.CalibrationParameters{Temperature: 1.0},
		TrainedOnN: 100,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Storage.ActivateCalibrationModel(ctx, artifactID))

	embedder := similarity.NewTrigramEmbedder()
	tracker := coldstart.NewTracker(db.Storage, embedder, 3)

	eng, err := New(DefaultConfig(), Deps{
		Rules:       rules,
		Similarity:  similarity.NewMatcher(db.Storage, embedder, similarity.DefaultConfig()),
		Breaker:     NewBreaker(0, 0, time.Minute),
		Calibrators: calibrate.NewStore(db.Storage, time.Minute),
		ColdStart:   tracker,
		Anomalies:   NewMedianAnomalyChecker(db.Storage, 5.0),
		Recorder:    audit.NewRecorder(db.Storage, logger),
		Accounts:    db.Storage,
	}, logger)
	require.NoError(t, err)

	first := testutil.Transaction{
		ID:     "txn-starbucks-1",
		Vendor: "STARBUCKS STORE #1234",
		Amount: "-25.50",
	}
	second := testutil.Transaction{
		ID:     "txn-starbucks-2",
		Vendor: "STARBUCKS STORE #1234",
		Amount: "-31.00",
	}
	db.MustSaveTransactions(ctx, first, second)
	txn := first.Build()

	// Fresh vendor: the rule is confident but cold start blocks auto-post.
	decision, err := eng.Evaluate(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, model.StateRoutedToReview, decision.State)
	assert.Equal(t, "cold_start", decision.ReasonString())
	assert.Equal(t, "6200 Meals", decision.ProposedAccount)
	assert.InDelta(t, 0.95, decision.CalibratedP, 1e-9)

	// Three consistent confirmations earn eligibility.
	vendor := normalize.Vendor("STARBUCKS STORE #1234")
	for i := 0; i < 3; i++ {
		_, err = tracker.Confirm(ctx, &model.ConfirmationEvent{
			TenantID:      "tenant-1",
			Vendor:        vendor,
			TransactionID: txn.ID,
			Account:       "6200 Meals",
			ConfirmedAt:   time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	decision, err = eng.Evaluate(ctx, second.Build())
	require.NoError(t, err)
	assert.Equal(t, model.StateAutoPosted, decision.State)
	assert.True(t, decision.AutoPostEligible)

	// The decision trail is persisted and immutable.
	saved, err := db.Storage.GetDecision(ctx, "txn-starbucks-2")
	require.NoError(t, err)
	assert.Equal(t, decision.ID, saved.ID)
	assert.Equal(t, "6200 Meals", saved.ProposedAccount)
	// Both the rule and the now-remembered vendor agree.
	require.Len(t, saved.Sources, 2)
	assert.Equal(t, model.SourceRule, saved.Sources[0].Source)
	assert.Equal(t, model.SourceSimilarity, saved.Sources[1].Source)
}

func TestPipelineUnknownVendorRoutesToReview(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	logger := slog.Default()

	rules, err := rule.NewMatcher(&rule.Set{Version: "empty"})
	require.NoError(t, err)

	artifactID, err := db.Storage.SaveCalibrationModel(ctx, &model.CalibrationModel{
		Method:     model.MethodTemperature,
		Parameters: model.CalibrationParameters{Temperature: 1.0},
		TrainedOnN: 100,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, db.Storage.ActivateCalibrationModel(ctx, artifactID))

	embedder := similarity.NewTrigramEmbedder()
	eng, err := New(DefaultConfig(), Deps{
		Rules:       rules,
		Similarity:  similarity.NewMatcher(db.Storage, embedder, similarity.DefaultConfig()),
		Breaker:     NewBreaker(0, 0, time.Minute),
		Calibrators: calibrate.NewStore(db.Storage, time.Minute),
		ColdStart:   coldstart.NewTracker(db.Storage, embedder, 3),
		Recorder:    audit.NewRecorder(db.Storage, logger),
		Accounts:    db.Storage,
	}, logger)
	require.NoError(t, err)

	fixture := testutil.Transaction{ID: "txn-mystery", Vendor: "TOTALLY NEW VENDOR"}
	db.MustSaveTransactions(ctx, fixture)
	decision, err := eng.Evaluate(ctx, fixture.Build())
	require.NoError(t, err)
	assert.Equal(t, model.StateRoutedToReview, decision.State)
	assert.Equal(t, "below_threshold", decision.ReasonString())
	assert.Empty(t, decision.ProposedAccount)
}
