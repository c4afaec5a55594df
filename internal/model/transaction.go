// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single bank transaction from any ingestion source.
// It is immutable input to the decision engine: created by the ingestion
// layer and never mutated during evaluation.
type Transaction struct {
	Date           time.Time
	ID             string
	TenantID       string
	RawDescription string // Raw transaction description as received
	MerchantName   string // Cleaned merchant name if the source provides one
	AccountID      string // Bank account the transaction posted against
	Hash           string
	Type           string // e.g. DEBIT, CHECK, PAYMENT, ATM
	Amount         decimal.Decimal
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.TenantID,
		t.Date.Format("2006-01-02"),
		t.Amount.String(),
		t.RawDescription,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
