package market

import (
	"math"
	"math/rand"
	"time"
)

// GenerateDemoBars builds a seeded synthetic 1-minute NQ-like series for demo
// runs and tests. The walk is a mild mean-reverting drift around a rising
// anchor with session-shaped volume, so candidate families all fire on it.
// Same seed, same series.
func GenerateDemoBars(days int, seed int64) []Bar {
	rng := rand.New(rand.NewSource(seed))
	loc, _ := time.LoadLocation("America/New_York")

	var bars []Bar
	price := 15000.0
	anchor := price
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, loc)

	for d := 0; d < days; d++ {
		dayStart := start.AddDate(0, 0, d)
		// Skip weekends so trading-day bookkeeping stays realistic.
		for dayStart.Weekday() == time.Saturday || dayStart.Weekday() == time.Sunday {
			dayStart = dayStart.AddDate(0, 0, 1)
			start = start.AddDate(0, 0, 1)
		}
		anchor += rng.NormFloat64() * 20

		minutes := 390 // 09:30 to 16:00
		for m := 0; m < minutes; m++ {
			ts := dayStart.Add(time.Duration(m) * time.Minute)

			// Mean revert toward the day's anchor with noise.
			drift := (anchor - price) * 0.01
			noise := rng.NormFloat64() * 3.0
			open := price
			close := price + drift + noise
			high := math.Max(open, close) + math.Abs(rng.NormFloat64())*1.5
			low := math.Min(open, close) - math.Abs(rng.NormFloat64())*1.5

			// U-shaped intraday volume.
			edge := math.Min(float64(m), float64(minutes-1-m))
			vol := 800 + 1200*math.Exp(-edge/60) + math.Abs(rng.NormFloat64())*100

			bars = append(bars, Bar{
				Timestamp: ts.UTC(),
				Open:      roundQuarter(open),
				High:      roundQuarter(high),
				Low:       roundQuarter(low),
				Close:     roundQuarter(close),
				Volume:    math.Round(vol),
			})
			price = close
		}
	}
	return bars
}

func roundQuarter(v float64) float64 {
	return math.Round(v*4) / 4
}
