package engine

import "github.com/ledgerloom/ledgerloom/internal/model"

// GateInput is everything the auto-post gate examines for one evaluation.
type GateInput struct {
	CalibratedP       float64
	Threshold         float64
	ColdStartEligible bool
	Balanced          bool
	BreakerOpen       bool
	Anomalous         bool
	RuleConflict      bool
}

// Decide runs the auto-post gate. Every condition must pass for AUTO_POSTED;
// the first failing condition in precedence order names the reason, and an
// unbalanced entry outranks everything else, since it must never post.
func Decide(in GateInput) (model.DecisionState, *model.NotAutoPostReason) {
	reasons := []struct {
		failed bool
		reason model.NotAutoPostReason
	}{
		{!in.Balanced, model.ReasonImbalance},
		{in.CalibratedP < in.Threshold, model.ReasonBelowThreshold},
		{!in.ColdStartEligible, model.ReasonColdStart},
		{in.BreakerOpen, model.ReasonBudgetFallback},
		{in.Anomalous, model.ReasonAnomaly},
		{in.RuleConflict, model.ReasonRuleConflict},
	}
	for _, r := range reasons {
		if r.failed {
			reason := r.reason
			return model.StateRoutedToReview, &reason
		}
	}
	return model.StateAutoPosted, nil
}
