package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// RecordLLMUsage appends one fallback classifier call to the usage log.
func (s *SQLiteStorage) RecordLLMUsage(ctx context.Context, usage *model.LLMUsage) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if usage == nil {
		return fmt.Errorf("%w: usage", ErrNilParameter)
	}

	createdAt := usage.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (transaction_id, provider, model, latency_ms, cost_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, usage.TransactionID, usage.Provider, usage.Model, usage.LatencyMS,
		usage.CostCents, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record llm usage: %w", err)
	}
	return nil
}
