package model

import "time"

// DriftSnapshot records population-stability and distribution-shift
// statistics between a reference window and the current rolling window.
// Snapshots form an append-only time series and are never mutated.
type DriftSnapshot struct {
	WindowStart time.Time
	WindowEnd   time.Time
	CreatedAt   time.Time
	TenantID    string
	ID          int64
	PSIVendor   float64
	PSIAmount   float64
	KSVendor    float64
	KSAmount    float64
}

// LLMUsage is one fallback-classifier call's cost and latency, logged for
// the external budget tracker.
type LLMUsage struct {
	CreatedAt     time.Time
	TransactionID string
	Provider      string
	Model         string
	LatencyMS     int64
	CostCents     int64
}
