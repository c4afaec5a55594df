// Package audit assembles and persists immutable Decision records. The
// recorder is the only component that writes decisions, and the stored
// record is the only interface for answering "why" about a classification.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// DecisionWriter is the storage surface the recorder needs.
type DecisionWriter interface {
	SaveDecision(ctx context.Context, decision *model.Decision) error
}

// Evidence is everything the evaluation produced for one transaction,
// handed to the recorder for assembly.
type Evidence struct {
	Transaction        model.Transaction
	ProposedAccount    string
	Sources            []model.SourceOpinion
	AppliedWeights     map[model.Source]float64
	BlendedRaw         float64
	CalibratedP        float64
	CalibrationMethod  model.CalibrationMethod
	CalibrationVersion int64
	ThresholdUsed      float64
	ColdStartEligible  bool
	State              model.DecisionState
	NotAutoPostReason  *model.NotAutoPostReason
}

// Recorder builds decisions from evaluation evidence and persists them.
type Recorder struct {
	store  DecisionWriter
	logger *slog.Logger
}

// NewRecorder creates a decision recorder.
func NewRecorder(store DecisionWriter, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record assembles the immutable Decision and persists it. The returned
// decision is fully populated; callers must not mutate it afterward.
func (r *Recorder) Record(ctx context.Context, ev Evidence) (*model.Decision, error) {
	decision := &model.Decision{
		ID:                 uuid.New().String(),
		TransactionID:      ev.Transaction.ID,
		TenantID:           ev.Transaction.TenantID,
		ProposedAccount:    ev.ProposedAccount,
		State:              ev.State,
		NotAutoPostReason:  ev.NotAutoPostReason,
		Sources:            ev.Sources,
		AppliedWeights:     ev.AppliedWeights,
		BlendedRaw:         ev.BlendedRaw,
		CalibratedP:        ev.CalibratedP,
		CalibrationMethod:  ev.CalibrationMethod,
		CalibrationVersion: ev.CalibrationVersion,
		ThresholdUsed:      ev.ThresholdUsed,
		ColdStartEligible:  ev.ColdStartEligible,
		AutoPostEligible:   ev.State == model.StateAutoPosted,
		CreatedAt:          time.Now(),
	}

	if !decision.Valid() {
		return nil, fmt.Errorf("decision for transaction %s violates state/reason pairing (state=%s, reason=%q)",
			ev.Transaction.ID, decision.State, decision.ReasonString())
	}

	if err := r.store.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	r.logger.Debug("decision recorded",
		"decision_id", decision.ID,
		"transaction_id", decision.TransactionID,
		"state", decision.State,
		"reason", decision.ReasonString(),
		"calibrated_p", decision.CalibratedP)

	return decision, nil
}
