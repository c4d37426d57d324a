package model

import "math"

const (
	brierNeutral   = 0.25 // Brier score of an uninformed 0.5 predictor
	brierTrigger   = 0.30 // adjust only when recent calibration is worse than this
	minOutcomes    = 10
	underSampledCf = 0.5
)

// ShrinkageAdjuster pulls predicted win probabilities toward 0.5 when the
// model's recent calibration degrades. Calibration is measured as the Brier
// score over a rolling window of (prediction, outcome) pairs recorded as
// trades settle.
type ShrinkageAdjuster struct {
	enabled bool
	window  int
	factor  float64

	preds    []float64
	outcomes []float64
}

// NewShrinkageAdjuster builds an adjuster. When enabled is false the adjuster
// is a pass-through reporting full confidence.
func NewShrinkageAdjuster(enabled bool, window int, factor float64) *ShrinkageAdjuster {
	if window <= 0 {
		window = 100
	}
	return &ShrinkageAdjuster{enabled: enabled, window: window, factor: factor}
}

// Observe records a settled prediction: p was the predicted win probability,
// won whether the trade actually won.
func (a *ShrinkageAdjuster) Observe(p float64, won bool) {
	outcome := 0.0
	if won {
		outcome = 1.0
	}
	a.preds = append(a.preds, p)
	a.outcomes = append(a.outcomes, outcome)
	if len(a.preds) > a.window {
		a.preds = a.preds[len(a.preds)-a.window:]
		a.outcomes = a.outcomes[len(a.outcomes)-a.window:]
	}
}

// Brier returns the rolling Brier score, or NaN with fewer than the minimum
// number of observations.
func (a *ShrinkageAdjuster) Brier() float64 {
	if len(a.preds) < minOutcomes {
		return math.NaN()
	}
	sum := 0.0
	for i, p := range a.preds {
		d := p - a.outcomes[i]
		sum += d * d
	}
	return sum / float64(len(a.preds))
}

// Adjust maps a raw win probability to (adjusted probability, confidence).
// Disabled: identity with confidence 1. Under-sampled: identity with
// confidence 0.5. Otherwise probabilities shrink toward 0.5 in proportion to
// how far the Brier score sits above the neutral 0.25, and confidence decays
// over the same range.
func (a *ShrinkageAdjuster) Adjust(p float64) (float64, float64) {
	if !a.enabled {
		return p, 1.0
	}
	b := a.Brier()
	if math.IsNaN(b) {
		return p, underSampledCf
	}
	confidence := clamp01(1 - (b-brierNeutral)/brierNeutral)
	if b <= brierTrigger {
		return p, confidence
	}
	shrink := math.Min(1, a.factor*(b-brierNeutral)/brierNeutral)
	return p*(1-shrink) + 0.5*shrink, confidence
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
