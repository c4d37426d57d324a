package strategy

import (
	"fmt"
	"math"
	"strings"

	"edgesim/config"
	"edgesim/market"
)

// Rejection records which gate dropped a candidate and why, with the measured
// value in the reason so run logs are auditable.
type Rejection struct {
	Candidate Scored `json:"candidate"`
	Gate      string `json:"gate"`
	Reason    string `json:"reason"`
}

// Filter applies the rule gates to ranked candidates. Gates run in a fixed
// order (time of day, regime, volatility) and the first failing gate is the
// recorded rejection reason.
type Filter struct {
	cfg     config.RulesConfig
	session *market.SessionSpec

	atrHistory []float64
}

// NewFilter builds a rule filter bound to the session calendar.
func NewFilter(cfg config.RulesConfig, session *market.SessionSpec) *Filter {
	return &Filter{cfg: cfg, session: session}
}

// ObserveATR feeds the rolling ATR history used by the volatility gate. The
// engine calls it once per bar, before Apply, so the gate sees the current
// bar's ATR in its own window.
func (f *Filter) ObserveATR(atr float64) {
	if math.IsNaN(atr) {
		return
	}
	f.atrHistory = append(f.atrHistory, atr)
	if w := f.cfg.Volatility.Window; w > 0 && len(f.atrHistory) > w {
		f.atrHistory = f.atrHistory[len(f.atrHistory)-w:]
	}
}

// Apply runs the gates over candidates at one snapshot, returning survivors
// and per-candidate rejections.
func (f *Filter) Apply(snap market.Snapshot, cands []Scored) (kept []Scored, rejected []Rejection, err error) {
	for _, c := range cands {
		gate, reason, gateErr := f.check(snap, c)
		if gateErr != nil {
			return nil, nil, gateErr
		}
		if gate == "" {
			kept = append(kept, c)
			continue
		}
		rejected = append(rejected, Rejection{Candidate: c, Gate: gate, Reason: reason})
	}
	return kept, rejected, nil
}

func (f *Filter) check(snap market.Snapshot, c Scored) (gate, reason string, err error) {
	// Gate 1: time of day.
	if !snap.RTH {
		return "time_of_day", "outside regular trading hours", nil
	}
	m := snap.MinutesSinceOpen
	if math.IsNaN(m) {
		return "time_of_day", "before session open", nil
	}
	if m < f.cfg.AvoidFirstMinutes {
		return "time_of_day", fmt.Sprintf("%.1f min since open < avoid_first %.1f", m, f.cfg.AvoidFirstMinutes), nil
	}
	if remaining := f.session.RTHMinutes() - m; remaining < f.cfg.AvoidLastMinutes {
		return "time_of_day", fmt.Sprintf("%.1f min to close < avoid_last %.1f", remaining, f.cfg.AvoidLastMinutes), nil
	}
	inWindow, werr := f.session.InAnyWindow(snap.Timestamp, f.cfg.TradeWindows)
	if werr != nil {
		return "", "", werr
	}
	if !inWindow {
		return "time_of_day", "outside configured trade windows", nil
	}

	// Gate 2: regime. Mean-reversion setups sit out trending regimes.
	if f.cfg.DisableMeanReversionInTrend &&
		strings.Contains(c.Family, "vwap") && strings.Contains(snap.Regime, "trend") {
		return "regime", fmt.Sprintf("mean reversion disabled in regime %s", snap.Regime), nil
	}

	// Gate 3: volatility percentile band. Under-sampled history passes.
	v := f.cfg.Volatility
	if len(f.atrHistory) >= v.MinObservations && !math.IsNaN(snap.ATR) {
		pct := market.PercentileRank(f.atrHistory, snap.ATR)
		if pct < v.MinPercentile {
			return "volatility", fmt.Sprintf("atr percentile %.1f < min %.1f", pct, v.MinPercentile), nil
		}
		if pct > v.MaxPercentile {
			return "volatility", fmt.Sprintf("atr percentile %.1f > max %.1f", pct, v.MaxPercentile), nil
		}
	}

	return "", "", nil
}
