package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// passing is a gate input with every condition satisfied.
func passing() GateInput {
	return GateInput{
		CalibratedP:       0.95,
		Threshold:         0.90,
		ColdStartEligible: true,
		Balanced:          true,
	}
}

func TestDecide_AllConditionsPass(t *testing.T) {
	state, reason := Decide(passing())

	assert.Equal(t, model.StateAutoPosted, state)
	assert.Nil(t, reason)
}

func TestDecide_SingleFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GateInput)
		want   model.NotAutoPostReason
	}{
		{
			name:   "unbalanced entry",
			mutate: func(in *GateInput) { in.Balanced = false },
			want:   model.ReasonImbalance,
		},
		{
			name:   "below threshold",
			mutate: func(in *GateInput) { in.CalibratedP = 0.86 },
			want:   model.ReasonBelowThreshold,
		},
		{
			name:   "exactly at threshold passes, just under fails",
			mutate: func(in *GateInput) { in.CalibratedP = in.Threshold - 1e-9 },
			want:   model.ReasonBelowThreshold,
		},
		{
			name:   "cold start",
			mutate: func(in *GateInput) { in.ColdStartEligible = false },
			want:   model.ReasonColdStart,
		},
		{
			name:   "breaker open",
			mutate: func(in *GateInput) { in.BreakerOpen = true },
			want:   model.ReasonBudgetFallback,
		},
		{
			name:   "anomalous amount",
			mutate: func(in *GateInput) { in.Anomalous = true },
			want:   model.ReasonAnomaly,
		},
		{
			name:   "conflicting rules",
			mutate: func(in *GateInput) { in.RuleConflict = true },
			want:   model.ReasonRuleConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := passing()
			tt.mutate(&in)

			state, reason := Decide(in)

			assert.Equal(t, model.StateRoutedToReview, state)
			require.NotNil(t, reason)
			assert.Equal(t, tt.want, *reason)
		})
	}
}

func TestDecide_AtThresholdPasses(t *testing.T) {
	in := passing()
	in.CalibratedP = in.Threshold

	state, reason := Decide(in)

	assert.Equal(t, model.StateAutoPosted, state)
	assert.Nil(t, reason)
}

func TestDecide_ImbalanceOutranksEverything(t *testing.T) {
	in := GateInput{
		CalibratedP:       0.10,
		Threshold:         0.90,
		ColdStartEligible: false,
		Balanced:          false,
		BreakerOpen:       true,
		Anomalous:         true,
		RuleConflict:      true,
	}

	_, reason := Decide(in)

	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonImbalance, *reason)
}

func TestDecide_PrecedenceIsDeterministic(t *testing.T) {
	// With balance intact, below_threshold outranks cold_start, which
	// outranks budget_fallback, and so on down the chain.
	in := passing()
	in.CalibratedP = 0.5
	in.ColdStartEligible = false
	in.BreakerOpen = true
	in.Anomalous = true
	in.RuleConflict = true

	_, reason := Decide(in)
	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonBelowThreshold, *reason)

	in.CalibratedP = 0.95
	_, reason = Decide(in)
	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonColdStart, *reason)

	in.ColdStartEligible = true
	_, reason = Decide(in)
	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonBudgetFallback, *reason)

	in.BreakerOpen = false
	_, reason = Decide(in)
	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonAnomaly, *reason)

	in.Anomalous = false
	_, reason = Decide(in)
	require.NotNil(t, reason)
	assert.Equal(t, model.ReasonRuleConflict, *reason)
}

func TestDecide_ReasonAlwaysFromKnownSet(t *testing.T) {
	known := make(map[model.NotAutoPostReason]bool, len(model.AllReasons))
	for _, r := range model.AllReasons {
		known[r] = true
	}

	// Exercise every single-failure combination and confirm the reason is
	// always one of the enumerated codes.
	for i := 0; i < 1<<6; i++ {
		in := passing()
		if i&1 != 0 {
			in.Balanced = false
		}
		if i&2 != 0 {
			in.CalibratedP = 0.1
		}
		if i&4 != 0 {
			in.ColdStartEligible = false
		}
		if i&8 != 0 {
			in.BreakerOpen = true
		}
		if i&16 != 0 {
			in.Anomalous = true
		}
		if i&32 != 0 {
			in.RuleConflict = true
		}

		state, reason := Decide(in)
		if i == 0 {
			assert.Equal(t, model.StateAutoPosted, state)
			assert.Nil(t, reason)
			continue
		}
		require.NotNil(t, reason, "combination %06b must produce a reason", i)
		assert.True(t, known[*reason], "combination %06b produced unknown reason %q", i, *reason)
	}
}
