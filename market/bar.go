package market

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptySeries is returned when a bar series has no rows.
	ErrEmptySeries = errors.New("empty bar series")
	// ErrNonMonotonic is returned when timestamps are not strictly increasing.
	ErrNonMonotonic = errors.New("bar timestamps not strictly increasing")
	// ErrMalformedBar is returned when OHLCV values violate bar invariants.
	ErrMalformedBar = errors.New("malformed bar")
)

// Bar is one immutable OHLCV observation for a fixed time interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the input contract for a bar series: non-empty, strictly
// increasing UTC timestamps, high >= max(open, close), low <= min(open, close)
// and non-negative volume. Violations fail the whole run, they are never
// silently coerced.
func Validate(bars []Bar) error {
	if len(bars) == 0 {
		return ErrEmptySeries
	}
	for i, b := range bars {
		if b.High < b.Open || b.High < b.Close {
			return fmt.Errorf("%w: bar %d high %.4f below open/close", ErrMalformedBar, i, b.High)
		}
		if b.Low > b.Open || b.Low > b.Close {
			return fmt.Errorf("%w: bar %d low %.4f above open/close", ErrMalformedBar, i, b.Low)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: bar %d negative volume %.2f", ErrMalformedBar, i, b.Volume)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d %s <= bar %d %s", ErrNonMonotonic,
				i, b.Timestamp.UTC().Format(time.RFC3339),
				i-1, bars[i-1].Timestamp.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
