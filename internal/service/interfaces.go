// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Transaction operations. Transactions are written by the ingestion
	// layer and read-only to the decision engine.
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListPendingTransactions(ctx context.Context, tenantID string, limit int) ([]model.Transaction, error)
	ListTransactionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)

	// Chart of accounts.
	ListAccounts(ctx context.Context) ([]model.Account, error)
	GetAccount(ctx context.Context, code string) (*model.Account, error)
	SaveAccount(ctx context.Context, account *model.Account) error

	// Vendor memory operations. Counters are mutated only through
	// confirmation events; the label log is append-only.
	GetVendorMemory(ctx context.Context, tenantID, vendor string) (*model.VendorMemory, error)
	ListVendorMemory(ctx context.Context, tenantID string) ([]model.VendorMemory, error)
	SaveVendorMemory(ctx context.Context, mem *model.VendorMemory) error
	AppendVendorLabel(ctx context.Context, event *model.ConfirmationEvent) error
	ListVendorLabels(ctx context.Context, tenantID, vendor string) ([]model.ConfirmationEvent, error)

	// Decision operations. Decisions are immutable once saved.
	SaveDecision(ctx context.Context, decision *model.Decision) error
	GetDecision(ctx context.Context, transactionID string) (*model.Decision, error)
	ListDecisionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Decision, error)

	// Calibration artifacts. One active model per tenant scope; activation
	// swaps atomically.
	SaveCalibrationModel(ctx context.Context, artifact *model.CalibrationModel) (int64, error)
	ActivateCalibrationModel(ctx context.Context, id int64) error
	GetActiveCalibrationModel(ctx context.Context, tenantID string) (*model.CalibrationModel, error)

	// Drift snapshots, append-only.
	SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error
	ListDriftSnapshots(ctx context.Context, tenantID string, limit int) ([]model.DriftSnapshot, error)

	// LLM usage log consumed by the budget tracker.
	RecordLLMUsage(ctx context.Context, usage *model.LLMUsage) error

	// Training outcomes: blended raw scores joined against human
	// confirmations of the proposed account.
	ListOutcomes(ctx context.Context, tenantID string) ([]model.Outcome, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
