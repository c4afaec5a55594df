// Package engine orchestrates one evaluation per transaction: gather source
// opinions, blend, calibrate, and run the auto-post gate. The engine never
// mutates transactions or vendor memory; its only write is the Decision,
// persisted through the audit recorder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgerloom/ledgerloom/internal/audit"
	"github.com/ledgerloom/ledgerloom/internal/calibrate"
	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/normalize"
)

// RuleSource matches a transaction against the active ruleset. The second
// return reports whether the match landed in a conflicting rule group.
type RuleSource interface {
	Match(normalized, raw string) (*model.SourceOpinion, bool)
}

// SimilaritySource answers from vendor memory. A nil opinion with nil error
// means the source has nothing close enough to say.
type SimilaritySource interface {
	Match(ctx context.Context, tenantID, vendor string) (*model.SourceOpinion, error)
}

// FallbackSource is the LLM classifier. It reports ErrSourceUnavailable for
// timeouts, cancellations, and exhausted retries.
type FallbackSource interface {
	Classify(ctx context.Context, txn model.Transaction, accounts []model.Account) (*model.SourceOpinion, error)
	CostCents() int64
}

// ColdStartPolicy reports whether a vendor has earned auto-post eligibility.
type ColdStartPolicy interface {
	Eligible(ctx context.Context, tenantID, vendor string) (bool, *model.VendorMemory, error)
}

// CalibratorStore resolves the active calibrator for a tenant scope.
type CalibratorStore interface {
	Active(ctx context.Context, tenantID string) (calibrate.Calibrator, *model.CalibrationModel, error)
}

// Recorder persists assembled decisions.
type Recorder interface {
	Record(ctx context.Context, ev audit.Evidence) (*model.Decision, error)
}

// AccountReader supplies the candidate chart of accounts for the fallback
// classifier prompt.
type AccountReader interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

// Instruments receives observability events. Implementations must be safe
// for concurrent use.
type Instruments interface {
	ObserveDecision(d *model.Decision)
	ObserveLLMCall(costCents int64)
}

// Config holds the engine tunables.
type Config struct {
	// Threshold is the global auto-post bar on calibrated probability.
	Threshold float64
	// TenantThresholds override the global bar per tenant.
	TenantThresholds map[string]float64
	// ConsultThreshold gates the fallback classifier: it is consulted only
	// when rules are silent and similarity confidence is below this.
	ConsultThreshold float64
	Weights          Weights
	// BatchWorkers bounds batch evaluation concurrency.
	BatchWorkers int
}

// DefaultConfig returns the standard engine tunables.
func DefaultConfig() Config {
	return Config{
		Threshold:        0.90,
		ConsultThreshold: 0.70,
		Weights:          DefaultWeights(),
		BatchWorkers:     4,
	}
}

// Engine evaluates transactions. It is safe for concurrent use; all mutable
// state lives in the breaker's atomics.
type Engine struct {
	cfg         Config
	rules       RuleSource
	similarity  SimilaritySource
	fallback    FallbackSource
	breaker     *Breaker
	calibrators CalibratorStore
	coldstart   ColdStartPolicy
	anomalies   AnomalyChecker
	recorder    Recorder
	accounts    AccountReader
	metrics     Instruments
	logger      *slog.Logger
}

// Deps bundles the engine's collaborators. Fallback, Anomalies, and Metrics
// are optional; the rest are required.
type Deps struct {
	Rules       RuleSource
	Similarity  SimilaritySource
	Fallback    FallbackSource
	Breaker     *Breaker
	Calibrators CalibratorStore
	ColdStart   ColdStartPolicy
	Anomalies   AnomalyChecker
	Recorder    Recorder
	Accounts    AccountReader
	Metrics     Instruments
}

// New creates an evaluation engine.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	if deps.Rules == nil || deps.Similarity == nil || deps.Calibrators == nil ||
		deps.ColdStart == nil || deps.Recorder == nil || deps.Breaker == nil {
		return nil, fmt.Errorf("%w: engine requires rules, similarity, calibrators, coldstart, recorder, and breaker", common.ErrMissingConfig)
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in (0, 1], got %v", common.ErrInvalidConfig, cfg.Threshold)
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 1
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights()
	}
	return &Engine{
		cfg:         cfg,
		rules:       deps.Rules,
		similarity:  deps.Similarity,
		fallback:    deps.Fallback,
		breaker:     deps.Breaker,
		calibrators: deps.Calibrators,
		coldstart:   deps.ColdStart,
		anomalies:   deps.Anomalies,
		recorder:    deps.Recorder,
		accounts:    deps.Accounts,
		metrics:     deps.Metrics,
		logger:      logger,
	}, nil
}

// Evaluate classifies one transaction and records the resulting decision.
func (e *Engine) Evaluate(ctx context.Context, txn model.Transaction) (*model.Decision, error) {
	if txn.ID == "" || txn.TenantID == "" {
		return nil, fmt.Errorf("transaction must have an ID and tenant (id=%q, tenant=%q)", txn.ID, txn.TenantID)
	}

	vendor := vendorKey(txn)
	var opinions []model.SourceOpinion

	ruleOpinion, ruleConflict := e.rules.Match(vendor, txn.RawDescription)
	if ruleOpinion != nil {
		opinions = append(opinions, *ruleOpinion)
	}

	simOpinion, err := e.similarity.Match(ctx, txn.TenantID, vendor)
	if err != nil {
		if !errors.Is(err, common.ErrSourceUnavailable) {
			return nil, fmt.Errorf("similarity match failed for %s: %w", txn.ID, err)
		}
		simOpinion = nil
	}
	if simOpinion != nil {
		opinions = append(opinions, *simOpinion)
	}

	// The fallback classifier is the most expensive source and is consulted
	// last, and only when the cheap sources have nothing confident to say.
	breakerOpen := e.breaker.Open()
	needFallback := ruleOpinion == nil &&
		(simOpinion == nil || simOpinion.RawConfidence < e.cfg.ConsultThreshold)
	if needFallback && e.fallback != nil {
		if !e.breaker.Allow() {
			breakerOpen = true
			e.logger.Debug("fallback classifier skipped, breaker open", "transaction_id", txn.ID)
		} else if opinion, err := e.consultFallback(ctx, txn); err != nil {
			return nil, err
		} else if opinion != nil {
			opinions = append(opinions, *opinion)
		}
	}

	account, raw, applied := Blend(opinions, e.cfg.Weights)

	calibrator, artifact, err := e.calibrators.Active(ctx, txn.TenantID)
	if err != nil {
		// Includes ErrCalibrationMissing: an uncalibrated score is not
		// comparable to the threshold, so the evaluation fails loudly.
		return nil, fmt.Errorf("calibration unavailable for tenant %s: %w", txn.TenantID, err)
	}
	calibratedP := calibrator.Calibrate(raw)

	eligible, _, err := e.coldstart.Eligible(ctx, txn.TenantID, vendor)
	if err != nil {
		return nil, fmt.Errorf("cold-start lookup failed for %s: %w", txn.ID, err)
	}

	entry := model.ProposeEntry(txn, account)

	anomalous := false
	if e.anomalies != nil && account != "" {
		anomalous, err = e.anomalies.Anomalous(ctx, txn.TenantID, vendor, txn.Amount)
		if err != nil {
			return nil, fmt.Errorf("anomaly check failed for %s: %w", txn.ID, err)
		}
	}

	threshold := e.threshold(txn.TenantID)
	state, reason := Decide(GateInput{
		CalibratedP:       calibratedP,
		Threshold:         threshold,
		ColdStartEligible: eligible,
		Balanced:          entry.Balanced(),
		BreakerOpen:       breakerOpen,
		Anomalous:         anomalous,
		RuleConflict:      ruleConflict,
	})

	decision, err := e.recorder.Record(ctx, audit.Evidence{
		Transaction:        txn,
		ProposedAccount:    account,
		Sources:            opinions,
		AppliedWeights:     applied,
		BlendedRaw:         raw,
		CalibratedP:        calibratedP,
		CalibrationMethod:  artifact.Method,
		CalibrationVersion: artifact.ID,
		ThresholdUsed:      threshold,
		ColdStartEligible:  eligible,
		State:              state,
		NotAutoPostReason:  reason,
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.ObserveDecision(decision)
	}
	e.logger.Info("transaction evaluated",
		"transaction_id", txn.ID,
		"vendor", vendor,
		"account", account,
		"state", decision.State,
		"reason", decision.ReasonString(),
		"calibrated_p", calibratedP)

	return decision, nil
}

// consultFallback calls the LLM source and charges the breaker. Source
// unavailability is absence, not an evaluation failure.
func (e *Engine) consultFallback(ctx context.Context, txn model.Transaction) (*model.SourceOpinion, error) {
	var candidates []model.Account
	if e.accounts != nil {
		var err error
		candidates, err = e.accounts.ListAccounts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list candidate accounts: %w", err)
		}
	}

	opinion, err := e.fallback.Classify(ctx, txn, candidates)
	e.breaker.RecordSpend(e.fallback.CostCents())
	if e.metrics != nil {
		e.metrics.ObserveLLMCall(e.fallback.CostCents())
	}
	if err != nil {
		if errors.Is(err, common.ErrSourceUnavailable) {
			e.logger.Warn("fallback classifier unavailable",
				"transaction_id", txn.ID,
				"error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("fallback classification failed for %s: %w", txn.ID, err)
	}
	return opinion, nil
}

// BatchResult reports a batch evaluation: decisions for the transactions
// that evaluated, and per-transaction errors for those that did not.
type BatchResult struct {
	Decisions []*model.Decision
	Failed    map[string]error
}

// EvaluateBatch evaluates transactions concurrently with a bounded worker
// pool. One bad transaction never aborts the batch; its error is collected
// in the result instead.
func (e *Engine) EvaluateBatch(ctx context.Context, txns []model.Transaction) BatchResult {
	decisions := make([]*model.Decision, len(txns))
	errs := make([]error, len(txns))

	sem := make(chan struct{}, e.cfg.BatchWorkers)
	var wg sync.WaitGroup
	for i := range txns {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			decisions[i], errs[i] = e.Evaluate(ctx, txns[i])
		}(i)
	}
	wg.Wait()

	result := BatchResult{Failed: make(map[string]error)}
	for i, txn := range txns {
		if errs[i] != nil {
			result.Failed[txn.ID] = errs[i]
			continue
		}
		result.Decisions = append(result.Decisions, decisions[i])
	}
	return result
}

func (e *Engine) threshold(tenantID string) float64 {
	if t, ok := e.cfg.TenantThresholds[tenantID]; ok {
		return t
	}
	return e.cfg.Threshold
}

// vendorKey normalizes the transaction's best vendor string.
func vendorKey(txn model.Transaction) string {
	name := txn.MerchantName
	if name == "" {
		name = txn.RawDescription
	}
	return normalize.Vendor(name)
}
