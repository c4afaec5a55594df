package model

import "time"

// DecisionState is the terminal state of the auto-post gate.
type DecisionState string

// Decision state constants.
const (
	StateAutoPosted     DecisionState = "AUTO_POSTED"
	StateRoutedToReview DecisionState = "ROUTED_TO_REVIEW"
)

// NotAutoPostReason explains why a decision was routed to review.
type NotAutoPostReason string

// Review routing reason codes, in gate precedence order except imbalance,
// which always wins.
const (
	ReasonBelowThreshold NotAutoPostReason = "below_threshold"
	ReasonColdStart      NotAutoPostReason = "cold_start"
	ReasonImbalance      NotAutoPostReason = "imbalance"
	ReasonBudgetFallback NotAutoPostReason = "budget_fallback"
	ReasonAnomaly        NotAutoPostReason = "anomaly"
	ReasonRuleConflict   NotAutoPostReason = "rule_conflict"
)

// AllReasons lists every reason code, used for exhaustive metrics counting.
var AllReasons = []NotAutoPostReason{
	ReasonBelowThreshold,
	ReasonColdStart,
	ReasonImbalance,
	ReasonBudgetFallback,
	ReasonAnomaly,
	ReasonRuleConflict,
}

// Decision is the engine's output, one per evaluated transaction. It is
// created once per evaluation and immutable thereafter; the audit log and
// review UI consume it. NotAutoPostReason is set if and only if
// AutoPostEligible is false.
type Decision struct {
	CreatedAt          time.Time
	ID                 string
	TransactionID      string
	TenantID           string
	ProposedAccount    string
	CalibrationMethod  CalibrationMethod
	State              DecisionState
	NotAutoPostReason  *NotAutoPostReason
	Sources            []SourceOpinion
	AppliedWeights     map[Source]float64
	CalibrationVersion int64
	BlendedRaw         float64
	CalibratedP        float64
	ThresholdUsed      float64
	ColdStartEligible  bool
	AutoPostEligible   bool
}

// ReasonString returns the reason code or empty when auto-posted.
func (d *Decision) ReasonString() string {
	if d.NotAutoPostReason == nil {
		return ""
	}
	return string(*d.NotAutoPostReason)
}

// Valid checks the decision's internal invariants.
func (d *Decision) Valid() bool {
	if d.AutoPostEligible {
		return d.NotAutoPostReason == nil && d.State == StateAutoPosted
	}
	return d.NotAutoPostReason != nil && d.State == StateRoutedToReview
}
