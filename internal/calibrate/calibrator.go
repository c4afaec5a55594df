// Package calibrate maps raw blended scores to calibrated probabilities
// using versioned, immutable model artifacts trained offline.
package calibrate

import (
	"fmt"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// Calibrator is pure and stateless at inference time: no learning happens on
// the hot path.
type Calibrator interface {
	Method() model.CalibrationMethod
	Calibrate(raw float64) float64
}

// New builds a calibrator from a stored artifact.
func New(artifact *model.CalibrationModel) (Calibrator, error) {
	switch artifact.Method {
	case model.MethodIsotonic:
		if len(artifact.Parameters.Thresholds) == 0 ||
			len(artifact.Parameters.Thresholds) != len(artifact.Parameters.Values) {
			return nil, fmt.Errorf("isotonic artifact %d has malformed breakpoints", artifact.ID)
		}
		return &isotonicCalibrator{
			thresholds: artifact.Parameters.Thresholds,
			values:     artifact.Parameters.Values,
		}, nil
	case model.MethodTemperature:
		if artifact.Parameters.Temperature <= 0 {
			return nil, fmt.Errorf("temperature artifact %d has non-positive temperature", artifact.ID)
		}
		return &temperatureCalibrator{temperature: artifact.Parameters.Temperature}, nil
	default:
		return nil, fmt.Errorf("unknown calibration method %q", artifact.Method)
	}
}

// clamp keeps a probability strictly inside (0,1) so logit stays finite.
func clamp(p float64) float64 {
	const eps = 1e-6
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
