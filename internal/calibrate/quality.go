package calibrate

import "github.com/ledgerloom/ledgerloom/internal/model"

// ECEBinCount is the fixed number of equal-width probability bins.
const ECEBinCount = 10

// ECEBin summarizes one probability bin for the calibration report.
type ECEBin struct {
	Lower        float64 `json:"lower"`
	Upper        float64 `json:"upper"`
	AvgPredicted float64 `json:"avg_predicted"`
	AvgObserved  float64 `json:"avg_observed"`
	Count        int     `json:"count"`
}

// Brier computes the mean squared error of predicted probability versus
// outcome.
func Brier(predictions []float64, outcomes []model.Outcome) float64 {
	if len(predictions) == 0 {
		return 0
	}
	var total float64
	for i, p := range predictions {
		y := 0.0
		if outcomes[i].Confirmed {
			y = 1.0
		}
		total += (p - y) * (p - y)
	}
	return total / float64(len(predictions))
}

// ECE computes the expected calibration error: binned |predicted − observed|
// weighted by bin count.
func ECE(predictions []float64, outcomes []model.Outcome) float64 {
	bins := ECEBins(predictions, outcomes)
	total := 0
	var weighted float64
	for _, b := range bins {
		total += b.Count
		diff := b.AvgPredicted - b.AvgObserved
		if diff < 0 {
			diff = -diff
		}
		weighted += float64(b.Count) * diff
	}
	if total == 0 {
		return 0
	}
	return weighted / float64(total)
}

// ECEBins partitions predictions into equal-width bins and aggregates
// predicted versus observed frequency per bin.
func ECEBins(predictions []float64, outcomes []model.Outcome) []ECEBin {
	bins := make([]ECEBin, ECEBinCount)
	sums := make([]float64, ECEBinCount)
	hits := make([]float64, ECEBinCount)

	for i := range bins {
		bins[i].Lower = float64(i) / ECEBinCount
		bins[i].Upper = float64(i+1) / ECEBinCount
	}

	for i, p := range predictions {
		idx := int(p * ECEBinCount)
		if idx >= ECEBinCount {
			idx = ECEBinCount - 1
		}
		bins[idx].Count++
		sums[idx] += p
		if outcomes[i].Confirmed {
			hits[idx]++
		}
	}

	for i := range bins {
		if bins[i].Count == 0 {
			continue
		}
		n := float64(bins[i].Count)
		bins[i].AvgPredicted = sums[i] / n
		bins[i].AvgObserved = hits[i] / n
	}

	return bins
}
