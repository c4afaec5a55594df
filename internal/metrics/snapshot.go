package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// SnapshotStore is the storage surface the snapshot reads.
type SnapshotStore interface {
	ListDecisionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Decision, error)
	GetActiveCalibrationModel(ctx context.Context, tenantID string) (*model.CalibrationModel, error)
	ListDriftSnapshots(ctx context.Context, tenantID string, limit int) ([]model.DriftSnapshot, error)
}

// Snapshot is an operational summary over a decision window. AutoPostRate
// and ReviewRate always sum to 1.0 when any decisions exist.
type Snapshot struct {
	TenantID           string
	WindowStart        time.Time
	WindowEnd          time.Time
	Decisions          int
	AutoPostRate       float64
	ReviewRate         float64
	ReasonCounts       map[model.NotAutoPostReason]int
	LLMCallsPerTxn     float64
	BrierScore         float64
	ECE                float64
	CalibrationMethod  model.CalibrationMethod
	CalibrationVersion int64
	RulesetVersion     string
	PSIVendor          float64
	PSIAmount          float64
	KSVendor           float64
	KSAmount           float64
	DriftComputedAt    time.Time
}

// ComputeSnapshot aggregates decisions, the active calibration artifact, and
// the latest drift snapshot into one summary. Missing calibration or drift
// data leaves those fields zeroed rather than failing the snapshot.
func ComputeSnapshot(ctx context.Context, store SnapshotStore, tenantID, rulesetVersion string, start, end time.Time) (*Snapshot, error) {
	decisions, err := store.ListDecisionsByWindow(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}

	s := &Snapshot{
		TenantID:       tenantID,
		WindowStart:    start,
		WindowEnd:      end,
		Decisions:      len(decisions),
		ReasonCounts:   make(map[model.NotAutoPostReason]int, len(model.AllReasons)),
		RulesetVersion: rulesetVersion,
	}
	for _, r := range model.AllReasons {
		s.ReasonCounts[r] = 0
	}

	var autoPosted, llmCalls int
	for i := range decisions {
		d := &decisions[i]
		if d.AutoPostEligible {
			autoPosted++
		} else if d.NotAutoPostReason != nil {
			s.ReasonCounts[*d.NotAutoPostReason]++
		}
		for _, op := range d.Sources {
			if op.Source == model.SourceLLM {
				llmCalls++
			}
		}
	}
	if len(decisions) > 0 {
		s.AutoPostRate = float64(autoPosted) / float64(len(decisions))
		s.ReviewRate = 1.0 - s.AutoPostRate
		s.LLMCallsPerTxn = float64(llmCalls) / float64(len(decisions))
	}

	artifact, err := store.GetActiveCalibrationModel(ctx, tenantID)
	switch {
	case err == nil:
		s.BrierScore = artifact.BrierScore
		s.ECE = artifact.ECE
		s.CalibrationMethod = artifact.Method
		s.CalibrationVersion = artifact.ID
	case errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrCalibrationMissing):
		// No active model yet; the snapshot still reports decision rates.
	default:
		return nil, fmt.Errorf("failed to load calibration model: %w", err)
	}

	drifts, err := store.ListDriftSnapshots(ctx, tenantID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to load drift snapshots: %w", err)
	}
	if len(drifts) > 0 {
		s.PSIVendor = drifts[0].PSIVendor
		s.PSIAmount = drifts[0].PSIAmount
		s.KSVendor = drifts[0].KSVendor
		s.KSAmount = drifts[0].KSAmount
		s.DriftComputedAt = drifts[0].CreatedAt
	}
	return s, nil
}
