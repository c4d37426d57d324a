package strategy

import "time"

// Candidate is a fully-specified bracket setup proposed at one bar: a limit
// entry with a protective stop and a profit target. Prices are absolute, not
// offsets. A candidate is a proposal only; scoring, rules and risk sizing
// decide whether it trades.
type Candidate struct {
	Timestamp time.Time          `json:"timestamp"`
	Family    string             `json:"family"` // e.g. "vwap_reversion", "or_retest"
	Label     string             `json:"label"`  // family variant, e.g. "vwap_k1.0_long"
	Side      Side               `json:"side"`
	Entry     float64            `json:"entry"`
	Stop      float64            `json:"stop"`
	Target    float64            `json:"target"`
	Context   map[string]float64 `json:"context,omitempty"` // supporting values the rule keyed off
}

// Tags identifies the generating rule and its variant.
func (c Candidate) Tags() []string {
	return []string{c.Family, c.Label}
}

// RiskPoints is the per-contract risk of the bracket in price points.
func (c Candidate) RiskPoints() float64 {
	if c.Side == Long {
		return c.Entry - c.Stop
	}
	return c.Stop - c.Entry
}

// RewardPoints is the per-contract reward at the target in price points.
func (c Candidate) RewardPoints() float64 {
	if c.Side == Long {
		return c.Target - c.Entry
	}
	return c.Entry - c.Target
}

// RR is the reward-to-risk ratio of the bracket.
func (c Candidate) RR() float64 {
	risk := c.RiskPoints()
	if risk <= 0 {
		return 0
	}
	return c.RewardPoints() / risk
}

// Scored is a candidate with its model assessment attached.
type Scored struct {
	Candidate
	ProbWin    float64 `json:"prob_win"`
	EVR        float64 `json:"ev_r"` // expected value in R units
	Confidence float64 `json:"confidence"`
}
