package calibrate

import (
	"fmt"
	"math"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// temperatureCalibrator rescales scores through a single-parameter logistic:
// p = sigmoid(logit(raw) / T). T > 1 softens overconfident scores, T < 1
// sharpens underconfident ones.
type temperatureCalibrator struct {
	temperature float64
}

func (c *temperatureCalibrator) Method() model.CalibrationMethod {
	return model.MethodTemperature
}

func (c *temperatureCalibrator) Calibrate(raw float64) float64 {
	return sigmoid(logit(clamp(raw)) / c.temperature)
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// FitTemperature finds the temperature minimizing negative log-likelihood on
// the outcomes, by golden-section search over a fixed bracket.
func FitTemperature(outcomes []model.Outcome) (model.CalibrationParameters, error) {
	if len(outcomes) == 0 {
		return model.CalibrationParameters{}, fmt.Errorf("no outcomes to fit")
	}

	nll := func(t float64) float64 {
		var total float64
		for _, o := range outcomes {
			p := clamp(sigmoid(logit(clamp(o.RawScore)) / t))
			if o.Confirmed {
				total -= math.Log(p)
			} else {
				total -= math.Log(1 - p)
			}
		}
		return total
	}

	const (
		lo    = 0.05
		hi    = 10.0
		ratio = 0.6180339887498949
		iters = 80
	)

	a, b := lo, hi
	c1 := b - ratio*(b-a)
	c2 := a + ratio*(b-a)
	f1, f2 := nll(c1), nll(c2)

	for i := 0; i < iters; i++ {
		if f1 < f2 {
			b, c2, f2 = c2, c1, f1
			c1 = b - ratio*(b-a)
			f1 = nll(c1)
		} else {
			a, c1, f1 = c1, c2, f2
			c2 = a + ratio*(b-a)
			f2 = nll(c2)
		}
	}

	return model.CalibrationParameters{Temperature: (a + b) / 2}, nil
}
