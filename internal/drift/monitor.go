// Package drift computes population-stability and distribution-shift
// statistics over rolling transaction windows. It observes and reports;
// it never blocks decisions.
package drift

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ledgerloom/ledgerloom/internal/model"
	"github.com/ledgerloom/ledgerloom/internal/normalize"
)

const (
	// amountBins is the number of quantile bins for the amount PSI.
	amountBins = 10
	// topVendors caps the vendor-identity buckets; everything else pools
	// into a remainder bucket.
	topVendors = 20
	// smoothing floor for empty PSI buckets.
	psiEps = 1e-4
)

// Store is the storage surface the monitor needs.
type Store interface {
	ListTransactionsByWindow(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)
	SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error
}

// Monitor computes DriftSnapshot records on a schedule external to the
// decision hot path.
type Monitor struct {
	store  Store
	logger *slog.Logger
}

// NewMonitor creates a drift monitor.
func NewMonitor(store Store, logger *slog.Logger) *Monitor {
	return &Monitor{store: store, logger: logger}
}

// Compute builds and persists a snapshot comparing the reference window to
// the current window, separately for vendor identity and amount.
func (m *Monitor) Compute(ctx context.Context, tenantID string, refStart, refEnd, curStart, curEnd time.Time) (*model.DriftSnapshot, error) {
	ref, err := m.store.ListTransactionsByWindow(ctx, tenantID, refStart, refEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference window: %w", err)
	}
	cur, err := m.store.ListTransactionsByWindow(ctx, tenantID, curStart, curEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load current window: %w", err)
	}
	if len(ref) == 0 || len(cur) == 0 {
		return nil, fmt.Errorf("drift windows must both contain transactions (ref=%d, cur=%d)", len(ref), len(cur))
	}

	refAmounts, refVendors := explode(ref)
	curAmounts, curVendors := explode(cur)

	snapshot := &model.DriftSnapshot{
		TenantID:    tenantID,
		WindowStart: curStart,
		WindowEnd:   curEnd,
		PSIAmount:   amountPSI(refAmounts, curAmounts),
		PSIVendor:   vendorPSI(refVendors, curVendors),
		KSAmount:    ksStatistic(refAmounts, curAmounts),
		KSVendor:    vendorKS(refVendors, curVendors),
		CreatedAt:   time.Now(),
	}

	if err := m.store.SaveDriftSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save drift snapshot: %w", err)
	}

	m.logger.Info("drift snapshot computed",
		"tenant_id", tenantID,
		"psi_vendor", snapshot.PSIVendor,
		"psi_amount", snapshot.PSIAmount,
		"ks_vendor", snapshot.KSVendor,
		"ks_amount", snapshot.KSAmount)

	return snapshot, nil
}

func explode(txns []model.Transaction) (amounts []float64, vendors []string) {
	amounts = make([]float64, len(txns))
	vendors = make([]string, len(txns))
	for i, t := range txns {
		amounts[i] = t.Amount.Abs().InexactFloat64()
		vendors[i] = normalize.Vendor(t.RawDescription)
	}
	return amounts, vendors
}

// amountPSI bins both samples by the reference quantiles and compares
// proportions.
func amountPSI(ref, cur []float64) float64 {
	edges := quantileEdges(ref, amountBins)
	return psi(binShares(ref, edges), binShares(cur, edges))
}

// vendorPSI buckets by the reference window's most frequent vendors, pooling
// the long tail.
func vendorPSI(ref, cur []string) float64 {
	buckets := topVendorBuckets(ref)
	return psi(vendorShares(ref, buckets), vendorShares(cur, buckets))
}

// vendorKS encodes each transaction's vendor as its reference-frequency rank
// and runs the two-sample KS over the encoded samples. Unknown vendors rank
// past the end, so an influx of new vendors shows up as shift.
func vendorKS(ref, cur []string) float64 {
	buckets := topVendorBuckets(ref)
	rank := make(map[string]float64, len(buckets))
	for i, v := range buckets {
		rank[v] = float64(i)
	}
	encode := func(vendors []string) []float64 {
		out := make([]float64, len(vendors))
		for i, v := range vendors {
			if r, ok := rank[v]; ok {
				out[i] = r
			} else {
				out[i] = float64(len(buckets))
			}
		}
		return out
	}
	return ksStatistic(encode(ref), encode(cur))
}

func topVendorBuckets(vendors []string) []string {
	counts := make(map[string]int)
	for _, v := range vendors {
		counts[v]++
	}
	unique := make([]string, 0, len(counts))
	for v := range counts {
		unique = append(unique, v)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})
	if len(unique) > topVendors {
		unique = unique[:topVendors]
	}
	return unique
}

func vendorShares(vendors []string, buckets []string) []float64 {
	idx := make(map[string]int, len(buckets))
	for i, v := range buckets {
		idx[v] = i
	}
	shares := make([]float64, len(buckets)+1) // +1 for the pooled tail
	for _, v := range vendors {
		if i, ok := idx[v]; ok {
			shares[i]++
		} else {
			shares[len(buckets)]++
		}
	}
	n := float64(len(vendors))
	for i := range shares {
		shares[i] /= n
	}
	return shares
}

func quantileEdges(sample []float64, bins int) []float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		pos := i * len(sorted) / bins
		if pos >= len(sorted) {
			pos = len(sorted) - 1
		}
		edges = append(edges, sorted[pos])
	}
	return edges
}

func binShares(sample []float64, edges []float64) []float64 {
	shares := make([]float64, len(edges)+1)
	for _, v := range sample {
		idx := sort.SearchFloat64s(edges, v)
		shares[idx]++
	}
	n := float64(len(sample))
	for i := range shares {
		shares[i] /= n
	}
	return shares
}

// psi computes the population stability index between expected and actual
// proportion vectors, flooring empty buckets to keep logs finite.
func psi(expected, actual []float64) float64 {
	var total float64
	for i := range expected {
		e := math.Max(expected[i], psiEps)
		a := math.Max(actual[i], psiEps)
		total += (a - e) * math.Log(a/e)
	}
	return total
}

// ksStatistic computes the two-sample Kolmogorov–Smirnov statistic: the
// maximum distance between the empirical CDFs.
func ksStatistic(a, b []float64) float64 {
	as := make([]float64, len(a))
	bs := make([]float64, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Float64s(as)
	sort.Float64s(bs)

	var i, j int
	var maxDist float64
	for i < len(as) && j < len(bs) {
		// Consume every occurrence of the smaller value from both samples
		// before measuring, so ties don't inflate the distance.
		v := as[i]
		if bs[j] < v {
			v = bs[j]
		}
		for i < len(as) && as[i] == v {
			i++
		}
		for j < len(bs) && bs[j] == v {
			j++
		}
		dist := math.Abs(float64(i)/float64(len(as)) - float64(j)/float64(len(bs)))
		if dist > maxDist {
			maxDist = dist
		}
	}
	return maxDist
}
