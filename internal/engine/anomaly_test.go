package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

type fakeTxnReader struct {
	txns []model.Transaction
}

func (f *fakeTxnReader) ListTransactionsByWindow(_ context.Context, _ string, _, _ time.Time) ([]model.Transaction, error) {
	return f.txns, nil
}

func history(vendor string, amounts ...float64) []model.Transaction {
	txns := make([]model.Transaction, len(amounts))
	for i, a := range amounts {
		txns[i] = model.Transaction{
			ID:             fmt.Sprintf("h-%d", i),
			RawDescription: vendor,
			Amount:         decimal.NewFromFloat(a),
		}
	}
	return txns
}

func TestMedianAnomalyChecker(t *testing.T) {
	reader := &fakeTxnReader{txns: history("OFFICE DEPOT #1234", 40, 45, 50, 55, 60)}
	checker := NewMedianAnomalyChecker(reader, 5.0)

	tests := []struct {
		name   string
		amount float64
		want   bool
	}{
		{"typical amount", 52.18, false},
		{"at the limit", 250.00, false},
		{"just past the limit", 250.01, true},
		{"large negative amount compares by magnitude", -900.00, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checker.Anomalous(context.Background(), "tenant-a", "office depot",
				decimal.NewFromFloat(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMedianAnomalyChecker_ThinHistoryNeverFlags(t *testing.T) {
	reader := &fakeTxnReader{txns: history("OFFICE DEPOT #1234", 40, 45)}
	checker := NewMedianAnomalyChecker(reader, 5.0)

	got, err := checker.Anomalous(context.Background(), "tenant-a", "office depot",
		decimal.NewFromFloat(100000))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestMedianAnomalyChecker_IgnoresOtherVendors(t *testing.T) {
	txns := append(history("OFFICE DEPOT #1234", 40, 45, 50, 55, 60),
		history("STRIPE PAYOUT", 100000, 100000, 100000, 100000, 100000)...)
	checker := NewMedianAnomalyChecker(&fakeTxnReader{txns: txns}, 5.0)

	got, err := checker.Anomalous(context.Background(), "tenant-a", "office depot",
		decimal.NewFromFloat(300))
	require.NoError(t, err)
	assert.True(t, got, "the other vendor's amounts must not dilute the median")
}
