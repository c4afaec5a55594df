package calibrate

import (
	"fmt"
	"sort"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// isotonicCalibrator applies a fitted monotonic step function.
type isotonicCalibrator struct {
	thresholds []float64
	values     []float64
}

func (c *isotonicCalibrator) Method() model.CalibrationMethod {
	return model.MethodIsotonic
}

// Calibrate maps raw to the step value of the last breakpoint at or below it.
func (c *isotonicCalibrator) Calibrate(raw float64) float64 {
	// First breakpoint covers everything below it.
	idx := sort.SearchFloat64s(c.thresholds, raw)
	if idx < len(c.thresholds) && c.thresholds[idx] == raw {
		return c.values[idx]
	}
	if idx == 0 {
		return c.values[0]
	}
	return c.values[idx-1]
}

// FitIsotonic fits a monotonic step function to (raw score, outcome) pairs
// using the pool-adjacent-violators algorithm.
func FitIsotonic(outcomes []model.Outcome) (model.CalibrationParameters, error) {
	if len(outcomes) == 0 {
		return model.CalibrationParameters{}, fmt.Errorf("no outcomes to fit")
	}

	sorted := make([]model.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RawScore < sorted[j].RawScore })

	type block struct {
		minRaw float64
		sum    float64
		weight float64
	}

	blocks := make([]block, 0, len(sorted))
	for _, o := range sorted {
		y := 0.0
		if o.Confirmed {
			y = 1.0
		}
		blocks = append(blocks, block{minRaw: o.RawScore, sum: y, weight: 1})

		// Pool adjacent violators: merge while the new block's mean sits
		// below its predecessor's.
		for len(blocks) >= 2 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if last.sum/last.weight >= prev.sum/prev.weight {
				break
			}
			merged := block{
				minRaw: prev.minRaw,
				sum:    prev.sum + last.sum,
				weight: prev.weight + last.weight,
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, merged)
		}
	}

	params := model.CalibrationParameters{
		Thresholds: make([]float64, len(blocks)),
		Values:     make([]float64, len(blocks)),
	}
	for i, b := range blocks {
		params.Thresholds[i] = b.minRaw
		params.Values[i] = b.sum / b.weight
	}

	return params, nil
}
