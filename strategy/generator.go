package strategy

import (
	"math"
	"strconv"

	"edgesim/config"
	"edgesim/market"
)

// Generator proposes bracket candidates from the current feature snapshot.
// Families run in a fixed order (VWAP reversion, opening-range retest,
// prior-session retest, swing fade) so downstream stable ranking is
// reproducible across runs.
type Generator struct {
	cfg      config.StrategyConfig
	tickSize float64
}

// NewGenerator builds a Generator. tickSize converts tick tolerances to price.
func NewGenerator(cfg config.StrategyConfig, tickSize float64) *Generator {
	return &Generator{cfg: cfg, tickSize: tickSize}
}

// Generate proposes candidates for the last snapshot in snaps. Earlier rows
// are visible history; nothing after the last row is ever read. Candidates
// with a reward-to-risk outside the configured band are dropped here, before
// scoring.
func (g *Generator) Generate(snaps []market.Snapshot) []Candidate {
	if len(snaps) == 0 {
		return nil
	}
	cur := snaps[len(snaps)-1]
	if math.IsNaN(cur.ATR) || cur.ATR <= 0 {
		return nil
	}

	var out []Candidate
	if g.cfg.VWAP.Enabled {
		out = append(out, g.vwapReversion(cur)...)
	}
	if g.cfg.OpeningRange.Enabled {
		out = append(out, g.rangeRetest(cur, "or_retest", cur.OpeningRangeLow, cur.OpeningRangeHigh, g.cfg.OpeningRange.ToleranceTicks)...)
	}
	if g.cfg.PriorSession.Enabled {
		out = append(out, g.rangeRetest(cur, "prior_retest", cur.PriorLow, cur.PriorHigh, g.cfg.PriorSession.ToleranceTicks)...)
	}
	if g.cfg.Swing.Enabled {
		out = append(out, g.swingFade(snaps)...)
	}

	kept := out[:0]
	for _, c := range out {
		if c.RiskPoints() <= 0 || c.RewardPoints() <= 0 {
			continue
		}
		rr := c.RR()
		if rr < g.cfg.MinRR || rr > g.cfg.MaxRR {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// vwapReversion fades stretches away from session VWAP. For each ATR
// multiplier k it places a limit k ATRs away from VWAP with a half-ATR stop
// and a target back through VWAP. A candidate is proposed only when price
// currently sits between its stop and target, so the limit is reachable
// without being already through either bracket leg.
func (g *Generator) vwapReversion(s market.Snapshot) []Candidate {
	if math.IsNaN(s.SessionVWAP) {
		return nil
	}
	var out []Candidate
	for _, k := range g.cfg.VWAP.ATRMultipliers {
		long := Candidate{
			Timestamp: s.Timestamp,
			Family:    "vwap_reversion",
			Label:     labelK("vwap_k", k, Long),
			Side:      Long,
			Entry:     s.SessionVWAP - k*s.ATR,
			Context:   map[string]float64{"vwap": s.SessionVWAP, "atr": s.ATR, "k": k},
		}
		long.Stop = long.Entry - 0.5*s.ATR
		long.Target = long.Entry + (k+1)*s.ATR
		if long.Stop < s.Close && s.Close < long.Target {
			out = append(out, long)
		}

		short := Candidate{
			Timestamp: s.Timestamp,
			Family:    "vwap_reversion",
			Label:     labelK("vwap_k", k, Short),
			Side:      Short,
			Entry:     s.SessionVWAP + k*s.ATR,
			Context:   map[string]float64{"vwap": s.SessionVWAP, "atr": s.ATR, "k": k},
		}
		short.Stop = short.Entry + 0.5*s.ATR
		short.Target = short.Entry - (k+1)*s.ATR
		if short.Target < s.Close && s.Close < short.Stop {
			out = append(out, short)
		}
	}
	return out
}

// rangeRetest proposes level retests against a low/high pair (opening range
// or prior session). When price is within tolerance of the low, go long at
// the low targeting the high; mirror for the high.
func (g *Generator) rangeRetest(s market.Snapshot, family string, low, high, tolTicks float64) []Candidate {
	if math.IsNaN(low) || math.IsNaN(high) || high <= low {
		return nil
	}
	tol := tolTicks * g.tickSize
	var out []Candidate
	if math.Abs(s.Close-low) <= tol {
		out = append(out, Candidate{
			Timestamp: s.Timestamp,
			Family:    family,
			Label:     family + "_long",
			Side:      Long,
			Entry:     low,
			Stop:      low - 0.5*s.ATR,
			Target:    high,
			Context:   map[string]float64{"level": low, "opposite": high, "atr": s.ATR, "tolerance": tol},
		})
	}
	if math.Abs(s.Close-high) <= tol {
		out = append(out, Candidate{
			Timestamp: s.Timestamp,
			Family:    family,
			Label:     family + "_short",
			Side:      Short,
			Entry:     high,
			Stop:      high + 0.5*s.ATR,
			Target:    low,
			Context:   map[string]float64{"level": high, "opposite": low, "atr": s.ATR, "tolerance": tol},
		})
	}
	return out
}

// swingFade fades confirmed swing pivots. A pivot high at index i is a bar
// whose high is the maximum over [i-L, i+L]; confirmation therefore lags L
// bars, which keeps the scan causal. Only pivots inside the last 3L rows are
// considered, and the swing must span at least MinSwingATR ATRs from the
// current close to be worth fading. The entry rests at the pivot itself, so
// the fade waits for a retest of the level with a fixed half-ATR of risk.
func (g *Generator) swingFade(snaps []market.Snapshot) []Candidate {
	cur := snaps[len(snaps)-1]
	L := g.cfg.Swing.PivotLookback
	if L <= 0 || len(snaps) < 3*L+1 {
		return nil
	}
	window := snaps[len(snaps)-3*L:]
	minSwing := g.cfg.Swing.MinSwingATR * cur.ATR

	var out []Candidate
	// Scan indexes with a full L-bar flank on both sides.
	for i := L; i < len(window)-L; i++ {
		if isPivotHigh(window, i, L) {
			pivot := window[i].High
			if pivot-cur.Close >= minSwing {
				out = append(out, Candidate{
					Timestamp: cur.Timestamp,
					Family:    "swing_fade",
					Label:     "swing_fade_short",
					Side:      Short,
					Entry:     pivot,
					Stop:      pivot + 0.5*cur.ATR,
					Target:    cur.Close - (pivot-cur.Close)*1.5,
					Context:   map[string]float64{"pivot": pivot, "atr": cur.ATR, "swing": pivot - cur.Close},
				})
				break
			}
		}
	}
	for i := L; i < len(window)-L; i++ {
		if isPivotLow(window, i, L) {
			pivot := window[i].Low
			if cur.Close-pivot >= minSwing {
				out = append(out, Candidate{
					Timestamp: cur.Timestamp,
					Family:    "swing_fade",
					Label:     "swing_fade_long",
					Side:      Long,
					Entry:     pivot,
					Stop:      pivot - 0.5*cur.ATR,
					Target:    cur.Close + (cur.Close-pivot)*1.5,
					Context:   map[string]float64{"pivot": pivot, "atr": cur.ATR, "swing": cur.Close - pivot},
				})
				break
			}
		}
	}
	return out
}

func isPivotHigh(rows []market.Snapshot, i, l int) bool {
	h := rows[i].High
	for j := i - l; j <= i+l; j++ {
		if rows[j].High > h {
			return false
		}
	}
	return true
}

func isPivotLow(rows []market.Snapshot, i, l int) bool {
	lo := rows[i].Low
	for j := i - l; j <= i+l; j++ {
		if rows[j].Low < lo {
			return false
		}
	}
	return true
}

func labelK(prefix string, k float64, side Side) string {
	return prefix + strconv.FormatFloat(k, 'g', -1, 64) + "_" + side.String()
}
