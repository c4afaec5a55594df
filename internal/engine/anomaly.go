package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// AnomalyChecker flags transactions whose amount is out of line with the
// vendor's history.
type AnomalyChecker interface {
	Anomalous(ctx context.Context, tenantID, vendor string, amount decimal.Decimal) (bool, error)
}

// TransactionReader is the storage surface the median checker reads.
type TransactionReader interface {
	ListTransactionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)
}

const (
	// anomalyMinSamples is the history size below which nothing is flagged;
	// thin history is the cold-start tracker's problem, not an anomaly.
	anomalyMinSamples = 5
	anomalyLookback   = 180 * 24 * time.Hour
)

// MedianAnomalyChecker flags an amount further than a configured multiple
// from the vendor's historical median.
type MedianAnomalyChecker struct {
	store    TransactionReader
	multiple float64
	now      func() time.Time
}

// NewMedianAnomalyChecker creates a checker flagging amounts beyond
// multiple times the vendor's median.
func NewMedianAnomalyChecker(store TransactionReader, multiple float64) *MedianAnomalyChecker {
	return &MedianAnomalyChecker{store: store, multiple: multiple, now: time.Now}
}

// Anomalous reports whether the amount exceeds the configured multiple of
// the vendor's historical median absolute amount.
func (c *MedianAnomalyChecker) Anomalous(ctx context.Context, tenantID, vendor string, amount decimal.Decimal) (bool, error) {
	end := c.now()
	txns, err := c.store.ListTransactionsByWindow(ctx, tenantID, end.Add(-anomalyLookback), end)
	if err != nil {
		return false, fmt.Errorf("failed to load vendor history: %w", err)
	}

	amounts := make([]decimal.Decimal, 0, 16)
	for _, t := range txns {
		if vendorKey(t) == vendor {
			amounts = append(amounts, t.Amount.Abs())
		}
	}
	if len(amounts) < anomalyMinSamples {
		return false, nil
	}

	sort.Slice(amounts, func(i, j int) bool { return amounts[i].LessThan(amounts[j]) })
	median := amounts[len(amounts)/2]
	if len(amounts)%2 == 0 {
		median = amounts[len(amounts)/2-1].Add(amounts[len(amounts)/2]).Div(decimal.NewFromInt(2))
	}
	if median.IsZero() {
		return false, nil
	}

	limit := median.Mul(decimal.NewFromFloat(c.multiple))
	return amount.Abs().GreaterThan(limit), nil
}
