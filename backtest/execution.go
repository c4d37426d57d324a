package backtest

import (
	"edgesim/market"
	"edgesim/strategy"
)

// ExecStatus classifies the outcome of one bracket simulation.
type ExecStatus int

const (
	// ExecNoFill means the entry bar never traded through the entry price.
	ExecNoFill ExecStatus = iota
	// ExecUnresolved means the entry filled but neither exit level was hit
	// before the data ended.
	ExecUnresolved
	// ExecFilled means the bracket ran to a stop or target exit.
	ExecFilled
)

// ExecutionResult is the simulated lifecycle of one bracket order.
type ExecutionResult struct {
	EntryFill    float64 `json:"entry_fill"`
	ExitFill     float64 `json:"exit_fill"`
	ExitBarIndex int     `json:"exit_bar_index"`
	ExitReason   string  `json:"exit_reason"` // "stop" or "target"
}

// SimulateExecution fills a bracket against bars, where bars[0] is the entry
// bar. The entry is attempted on that single bar only: it fills iff the bar's
// range covers the entry price, at the more adverse of the limit and the bar
// open, never a better price than the market offered. A miss discards the
// candidate; the order does not rest waiting for a later bar. Exits scan the
// following bars with the stop checked before the target, so a bar that
// touches both books the loss.
func SimulateExecution(bars []market.Bar, c strategy.Candidate) (ExecutionResult, ExecStatus) {
	if len(bars) == 0 {
		return ExecutionResult{}, ExecNoFill
	}
	entry := bars[0]
	if entry.Low > c.Entry || c.Entry > entry.High {
		return ExecutionResult{}, ExecNoFill
	}
	entryFill := max(c.Entry, entry.Open)
	if c.Side == strategy.Short {
		entryFill = min(c.Entry, entry.Open)
	}

	for i := 1; i < len(bars); i++ {
		b := bars[i]
		if c.Side == strategy.Long {
			if b.Low <= c.Stop {
				return ExecutionResult{EntryFill: entryFill, ExitFill: c.Stop, ExitBarIndex: i, ExitReason: "stop"}, ExecFilled
			}
			if b.High >= c.Target {
				return ExecutionResult{EntryFill: entryFill, ExitFill: c.Target, ExitBarIndex: i, ExitReason: "target"}, ExecFilled
			}
		} else {
			if b.High >= c.Stop {
				return ExecutionResult{EntryFill: entryFill, ExitFill: c.Stop, ExitBarIndex: i, ExitReason: "stop"}, ExecFilled
			}
			if b.Low <= c.Target {
				return ExecutionResult{EntryFill: entryFill, ExitFill: c.Target, ExitBarIndex: i, ExitReason: "target"}, ExecFilled
			}
		}
	}
	return ExecutionResult{EntryFill: entryFill}, ExecUnresolved
}
