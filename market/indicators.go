package market

import (
	"math"
	"sort"
)

// =============================================================================
// Indicator helpers. Pure functions, no external state.
// =============================================================================

// trueRange computes the true range of a bar given the prior close.
// NaN prevClose (first bar) degrades to high-low.
func trueRange(high, low, prevClose float64) float64 {
	hl := high - low
	if math.IsNaN(prevClose) {
		return hl
	}
	hc := math.Abs(high - prevClose)
	lc := math.Abs(low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// emaStep advances an exponential moving average by one observation.
// A NaN prior value seeds the EMA with the observation itself.
func emaStep(prev, value float64, period int) float64 {
	if math.IsNaN(prev) {
		return value
	}
	mult := 2.0 / float64(period+1)
	return (value-prev)*mult + prev
}

// Quantile returns the q-th quantile (0..1) of values using linear
// interpolation between closest ranks. Returns NaN for empty input.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// PercentileRank returns the percentage of values less than or equal to x.
// Returns NaN for empty input.
func PercentileRank(values []float64, x float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	le := 0
	for _, v := range values {
		if v <= x {
			le++
		}
	}
	return 100 * float64(le) / float64(len(values))
}
