package model

import (
	"errors"
	"fmt"
	"math"

	"edgesim/market"
)

// ErrMalformedProbabilities is returned when a predictor emits values outside
// [0, 1] or a pair that is not a distribution.
var ErrMalformedProbabilities = errors.New("malformed probabilities")

// Predictor estimates the directional probability distribution for the next
// move at a feature snapshot. Implementations must be deterministic: the same
// snapshot always yields the same pair.
type Predictor interface {
	// Predict returns (probDown, probUp). The pair must each lie in [0, 1]
	// and sum to 1 within tolerance.
	Predict(snap market.Snapshot) (down, up float64, err error)
}

// CheckProbabilities validates a (down, up) pair against the predictor
// contract.
func CheckProbabilities(down, up float64) error {
	if math.IsNaN(down) || math.IsNaN(up) {
		return fmt.Errorf("%w: NaN pair (%.4f, %.4f)", ErrMalformedProbabilities, down, up)
	}
	if down < 0 || down > 1 || up < 0 || up > 1 {
		return fmt.Errorf("%w: values outside [0,1]: (%.4f, %.4f)", ErrMalformedProbabilities, down, up)
	}
	if math.Abs(down+up-1) > 1e-6 {
		return fmt.Errorf("%w: pair sums to %.6f", ErrMalformedProbabilities, down+up)
	}
	return nil
}

// FixedModel returns the same probability pair for every snapshot. Useful as
// a baseline and in tests.
type FixedModel struct {
	Up float64
}

func (m FixedModel) Predict(market.Snapshot) (float64, float64, error) {
	if err := CheckProbabilities(1-m.Up, m.Up); err != nil {
		return 0, 0, err
	}
	return 1 - m.Up, m.Up, nil
}

// LogisticModel scores a snapshot's feature vector with a fixed linear model
// through a sigmoid. Missing or NaN features contribute zero, so warmup rows
// degrade toward the bias rather than poisoning the score.
type LogisticModel struct {
	Bias    float64
	Weights map[string]float64
}

// DefaultLogistic returns a mildly mean-reverting prior: stretched below VWAP
// leans up, stretched above leans down, with small momentum terms.
func DefaultLogistic() *LogisticModel {
	return &LogisticModel{
		Bias: 0,
		Weights: map[string]float64{
			"vwap_dist_atr": -0.35,
			"log_ret_1":     -8.0,
			"ema20_slope":   0.05,
			"ema50_slope":   0.03,
		},
	}
}

func (m *LogisticModel) Predict(snap market.Snapshot) (float64, float64, error) {
	z := m.Bias
	feats := snap.Features()
	for name, w := range m.Weights {
		v, ok := feats[name]
		if !ok || math.IsNaN(v) {
			continue
		}
		z += w * v
	}
	up := 1 / (1 + math.Exp(-z))
	down := 1 - up
	if err := CheckProbabilities(down, up); err != nil {
		return 0, 0, err
	}
	return down, up, nil
}
