// Package metrics exposes prometheus instruments for the decision hot path
// and an on-demand operational snapshot computed from storage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Metrics holds the prometheus instruments updated by the engine. It
// implements the engine's Instruments interface and is safe for concurrent
// use.
type Metrics struct {
	decisionsTotal *prometheus.CounterVec
	calibratedP    prometheus.Histogram
	llmCallsTotal  prometheus.Counter
	llmSpentCents  prometheus.Counter
}

// New creates the instruments and registers them with the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerloom",
			Name:      "decisions_total",
			Help:      "Decisions by terminal state and review reason.",
		}, []string{"state", "reason"}),
		calibratedP: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledgerloom",
			Name:      "calibrated_probability",
			Help:      "Distribution of calibrated probabilities.",
			Buckets:   prometheus.LinearBuckets(0.05, 0.05, 19),
		}),
		llmCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerloom",
			Name:      "llm_calls_total",
			Help:      "Fallback classifier invocations.",
		}),
		llmSpentCents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerloom",
			Name:      "llm_spent_cents_total",
			Help:      "Estimated fallback classifier spend in cents.",
		}),
	}
	reg.MustRegister(m.decisionsTotal, m.calibratedP, m.llmCallsTotal, m.llmSpentCents)

	// Pre-register every state/reason pair so rates are computable from
	// zero-valued series before the first decision arrives.
	m.decisionsTotal.WithLabelValues(string(model.StateAutoPosted), "")
	for _, r := range model.AllReasons {
		m.decisionsTotal.WithLabelValues(string(model.StateRoutedToReview), string(r))
	}
	return m
}

// ObserveDecision records one terminal decision.
func (m *Metrics) ObserveDecision(d *model.Decision) {
	m.decisionsTotal.WithLabelValues(string(d.State), d.ReasonString()).Inc()
	m.calibratedP.Observe(d.CalibratedP)
}

// ObserveLLMCall records one fallback classifier invocation and its cost.
func (m *Metrics) ObserveLLMCall(costCents int64) {
	m.llmCallsTotal.Inc()
	m.llmSpentCents.Add(float64(costCents))
}
