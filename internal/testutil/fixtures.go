package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Transaction describes a fixture transaction in test-friendly terms.
// Zero-valued fields get sensible defaults from Build.
type Transaction struct {
	ID       string
	TenantID string
	Vendor   string
	Amount   string // decimal string, e.g. "-25.50"
	Date     time.Time
}

var fixtureEpoch = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

// Build fills defaults and converts to the domain model.
func (f Transaction) Build() model.Transaction {
	if f.ID == "" {
		f.ID = fmt.Sprintf("txn-%s-%s", f.Vendor, f.Amount)
	}
	if f.TenantID == "" {
		f.TenantID = "tenant-1"
	}
	if f.Vendor == "" {
		f.Vendor = "ACME SUPPLIES"
	}
	if f.Amount == "" {
		f.Amount = "-25.00"
	}
	if f.Date.IsZero() {
		f.Date = fixtureEpoch
	}

	txn := model.Transaction{
		ID:             f.ID,
		TenantID:       f.TenantID,
		Date:           f.Date,
		RawDescription: f.Vendor,
		MerchantName:   f.Vendor,
		AccountID:      "checking-1",
		Type:           "DEBIT",
		Amount:         decimal.RequireFromString(f.Amount),
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

// Transactions builds a batch of fixtures.
func Transactions(fixtures ...Transaction) []model.Transaction {
	txns := make([]model.Transaction, 0, len(fixtures))
	for _, f := range fixtures {
		txns = append(txns, f.Build())
	}
	return txns
}
