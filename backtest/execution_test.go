package backtest

import (
	"testing"
	"time"

	"edgesim/market"
	"edgesim/strategy"
)

func execBars(rows [][4]float64) []market.Bar {
	base := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	bars := make([]market.Bar, 0, len(rows))
	for i, r := range rows {
		bars = append(bars, market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      r[0], High: r[1], Low: r[2], Close: r[3], Volume: 1000,
		})
	}
	return bars
}

func longBracket(entry, stop, target float64) strategy.Candidate {
	return strategy.Candidate{Side: strategy.Long, Entry: entry, Stop: stop, Target: target}
}

func shortBracket(entry, stop, target float64) strategy.Candidate {
	return strategy.Candidate{Side: strategy.Short, Entry: entry, Stop: stop, Target: target}
}

func TestSimulateExecution(t *testing.T) {
	t.Run("should fill a long at the limit when the entry bar trades through it", func(t *testing.T) {
		bars := execBars([][4]float64{
			{99.8, 101.5, 99.5, 100.2}, // entry bar covers entry 100, open below
			{100.2, 100.5, 98.9, 99},   // stop 99 hit
		})
		res, status := SimulateExecution(bars, longBracket(100, 99, 102))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.EntryFill != 100 {
			t.Errorf("entry fill = %.2f, want limit 100", res.EntryFill)
		}
		if res.ExitReason != "stop" || res.ExitFill != 99 {
			t.Errorf("exit = (%s, %.2f), want (stop, 99)", res.ExitReason, res.ExitFill)
		}
		if res.ExitBarIndex != 1 {
			t.Errorf("exit bar = %d, want 1", res.ExitBarIndex)
		}
	})

	t.Run("should not improve a long fill on a favorable open", func(t *testing.T) {
		// Opening below the limit is a better price; the fill stays at the
		// more adverse of the two.
		bars := execBars([][4]float64{
			{99.5, 100.1, 99, 99.2}, // opens below entry 100
			{99.2, 102.5, 99.1, 102.2},
		})
		res, status := SimulateExecution(bars, longBracket(100, 98, 102))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.EntryFill != 100 {
			t.Errorf("entry fill = %.2f, want 100 (more adverse of limit and open)", res.EntryFill)
		}
	})

	t.Run("should fill a long above the limit when the open is worse", func(t *testing.T) {
		bars := execBars([][4]float64{
			{100.5, 101, 99.9, 100.2}, // open 100.5 above the 100 limit, bar touches it
			{100.2, 102.5, 100, 102.2},
		})
		res, status := SimulateExecution(bars, longBracket(100, 98, 102))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.EntryFill != 100.5 {
			t.Errorf("entry fill = %.2f, want the worse open 100.5", res.EntryFill)
		}
		if res.ExitReason != "target" {
			t.Errorf("exit reason = %s, want target", res.ExitReason)
		}
	})

	t.Run("should book the stop when one bar touches both levels", func(t *testing.T) {
		bars := execBars([][4]float64{
			{100, 100.5, 99.8, 100},
			{100, 103, 98, 99}, // range covers stop 99 and target 102
		})
		res, status := SimulateExecution(bars, longBracket(100, 99, 102))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.ExitReason != "stop" {
			t.Errorf("exit reason = %s, stop must win the tie", res.ExitReason)
		}
	})

	t.Run("should fill a short at the limit on a gap up open", func(t *testing.T) {
		bars := execBars([][4]float64{
			{100.8, 101.2, 99.9, 100.1}, // opens above the 100.5 entry
			{100.1, 100.2, 98.4, 98.5},
		})
		res, status := SimulateExecution(bars, shortBracket(100.5, 102, 98.5))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.EntryFill != 100.5 {
			t.Errorf("entry fill = %.2f, want 100.5", res.EntryFill)
		}
		if res.ExitReason != "target" || res.ExitFill != 98.5 {
			t.Errorf("exit = (%s, %.2f), want (target, 98.5)", res.ExitReason, res.ExitFill)
		}
	})

	t.Run("should check the short stop before the target", func(t *testing.T) {
		bars := execBars([][4]float64{
			{100, 100.6, 99.9, 100.2},
			{100.2, 103, 97, 98}, // covers both stop 102 and target 98.5
		})
		res, status := SimulateExecution(bars, shortBracket(100.5, 102, 98.5))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.ExitReason != "stop" || res.ExitFill != 102 {
			t.Errorf("exit = (%s, %.2f), want (stop, 102)", res.ExitReason, res.ExitFill)
		}
	})

	t.Run("should discard the entry when the entry bar misses it", func(t *testing.T) {
		// Later bars trade through the entry price, but the order does not
		// rest: only the entry bar can fill it.
		bars := execBars([][4]float64{
			{105, 106, 104, 105.5}, // entry bar never reaches 100
			{104, 105, 99.5, 100},  // this bar would have filled it
			{100, 102.5, 99.8, 102.2},
		})
		if _, status := SimulateExecution(bars, longBracket(100, 99, 102)); status != ExecNoFill {
			t.Errorf("status = %v, want no fill despite the later touch", status)
		}
	})

	t.Run("should report unresolved when neither exit is hit", func(t *testing.T) {
		bars := execBars([][4]float64{
			{100, 100.5, 99.8, 100.1}, // entry fills
			{100.1, 100.6, 99.9, 100.3},
			{100.3, 100.8, 100, 100.5}, // never reaches 99 or 102
		})
		res, status := SimulateExecution(bars, longBracket(100, 99, 102))
		if status != ExecUnresolved {
			t.Fatalf("status = %v, want unresolved", status)
		}
		if res.EntryFill != 100 {
			t.Errorf("entry fill = %.2f, want 100 even without an exit", res.EntryFill)
		}
	})

	t.Run("should report no fill on an empty series", func(t *testing.T) {
		if _, status := SimulateExecution(nil, longBracket(100, 99, 102)); status != ExecNoFill {
			t.Errorf("status = %v, want no fill", status)
		}
	})

	t.Run("should not exit on the entry bar itself", func(t *testing.T) {
		// The entry bar's range covers the stop, but exits only scan later bars.
		bars := execBars([][4]float64{
			{100, 100.5, 98.5, 100.1},
			{100.1, 102.5, 100, 102.2},
		})
		res, status := SimulateExecution(bars, longBracket(100, 99, 102))
		if status != ExecFilled {
			t.Fatalf("status = %v, want filled", status)
		}
		if res.ExitReason != "target" {
			t.Errorf("exit reason = %s, want target from the later bar", res.ExitReason)
		}
	})
}
