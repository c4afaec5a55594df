package model

import "time"

// CalibrationMethod identifies how raw scores map to probabilities.
type CalibrationMethod string

// Calibration method constants.
const (
	MethodIsotonic    CalibrationMethod = "ISOTONIC"
	MethodTemperature CalibrationMethod = "TEMPERATURE"
)

// CalibrationParameters holds the fitted parameters for either method.
// Isotonic uses the step-function breakpoints; temperature uses the single
// scaling parameter.
type CalibrationParameters struct {
	Thresholds  []float64 `json:"thresholds,omitempty"`
	Values      []float64 `json:"values,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CalibrationModel is a versioned, immutable calibration artifact. Retraining
// produces a new artifact and activates it atomically; old versions are
// retained for rollback and reproducibility. TenantID is empty for the
// global scope.
type CalibrationModel struct {
	CreatedAt  time.Time
	TenantID   string
	Method     CalibrationMethod
	Parameters CalibrationParameters
	ID         int64
	TrainedOnN int
	BrierScore float64
	ECE        float64
	Active     bool
}

// Outcome pairs a blended raw score with whether the proposed account was
// ultimately confirmed by a human; the calibrator trains on these.
type Outcome struct {
	RawScore  float64
	Confirmed bool
}
