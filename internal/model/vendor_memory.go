package model

import "time"

// VendorMemory holds the confirmed labeling history for one normalized
// vendor within a tenant. Counters are recomputed only from confirmation
// events; the decision hot path reads it snapshot-style.
type VendorMemory struct {
	LastConfirmedAt time.Time
	TenantID        string
	Vendor          string // normalized vendor key
	Account         string // most recently confirmed account
	Embedding       []float32
	LabelCount      int // total confirmed labels ever seen
	Streak          int // consecutive labels agreeing with Account
	Consistent      bool
}

// ConfirmationEvent is a human confirmation or correction of a posted entry.
// It is the only inbound mutation trigger for vendor memory, stored
// append-only.
type ConfirmationEvent struct {
	ConfirmedAt   time.Time
	TenantID      string
	Vendor        string
	TransactionID string
	Account       string
}
