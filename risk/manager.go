package risk

import (
	"fmt"
	"math"

	"edgesim/config"
)

// Decision is the sizing verdict for one candidate.
type Decision struct {
	Allow         bool    `json:"allow"`
	Reason        string  `json:"reason,omitempty"`
	Symbol        string  `json:"symbol,omitempty"`
	Qty           int     `json:"qty"`
	RiskDollars   float64 `json:"risk_dollars"`
	CostsEstimate float64 `json:"costs_estimate"`
}

// Manager sizes positions against a fixed dollar risk unit and the layered
// daily limits. SizePosition is pure with respect to limits state: calling it
// never mutates counters. Settlement and open/close notifications do.
type Manager struct {
	cfg    config.RiskConfig
	limits *LimitsState
}

// NewManager builds a risk manager for the given configuration.
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{cfg: cfg, limits: NewLimitsState(cfg.Limits)}
}

// Limits exposes the mutable limits state for settlement bookkeeping.
func (m *Manager) Limits() *LimitsState { return m.limits }

// SizePosition decides whether and how large to trade a bracket with the
// given per-contract risk, on the given trading day. Sizing runs first: a
// bracket whose full contract rounds to zero is rejected on size alone, the
// micro never rescues it. When the micro is preferred and sizes to at least
// one contract it replaces the full contract for finer granularity. The limit
// checks come last, in order, and the first failure is the decision reason.
// A non-positive risk is a local rejection, not an error; only an unknown
// symbol errors.
func (m *Manager) SizePosition(symbol, day string, riskPoints float64) (Decision, error) {
	if riskPoints <= 0 {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("invalid risk points %.4f", riskPoints),
		}, nil
	}
	spec, err := Contract(symbol)
	if err != nil {
		return Decision{}, err
	}

	qty := contractsFor(m.cfg.DollarsPerR, riskPoints, spec.PointValue)
	if qty < 1 {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("risk %.2f pts too large for $%.0f per R", riskPoints, m.cfg.DollarsPerR),
		}, nil
	}
	if m.cfg.PreferMicro && spec.Micro != "" {
		micro, err := Contract(spec.Micro)
		if err != nil {
			return Decision{}, err
		}
		if microQty := contractsFor(m.cfg.DollarsPerR, riskPoints, micro.PointValue); microQty >= 1 {
			spec, qty = micro, microQty
		}
	}

	if reason := m.limits.Check(day); reason != "" {
		return Decision{Allow: false, Reason: reason}, nil
	}

	return Decision{
		Allow:         true,
		Symbol:        spec.Symbol,
		Qty:           qty,
		RiskDollars:   riskPoints * spec.PointValue * float64(qty),
		CostsEstimate: m.EstimateCosts(spec, qty),
	}, nil
}

// EstimateCosts returns the round-trip transaction cost in dollars for qty
// contracts: slippage on both fills plus per-contract fees.
func (m *Manager) EstimateCosts(spec ContractSpec, qty int) float64 {
	c := m.cfg.Costs
	slippage := c.SlippageTicksPerSide * spec.TickValue * float64(qty) * 2
	fees := c.FeesPerContract * float64(qty)
	if c.RoundTripFees {
		fees *= 2
	}
	return slippage + fees
}

// SideCost returns the transaction cost of a single fill leg.
func (m *Manager) SideCost(spec ContractSpec, qty int) float64 {
	c := m.cfg.Costs
	fees := c.FeesPerContract * float64(qty)
	if !c.RoundTripFees {
		fees /= 2
	}
	return c.SlippageTicksPerSide*spec.TickValue*float64(qty) + fees
}

// Settle credits a closed trade against its trading day: the realized R, the
// trade count and the released open risk.
func (m *Manager) Settle(day string, r float64) {
	m.limits.AddRealizedR(day, r)
	m.limits.AddTrade(day)
	m.limits.ClosePosition()
}

func contractsFor(dollarsPerR, riskPoints, pointValue float64) int {
	perContract := riskPoints * pointValue
	if perContract <= 0 {
		return 0
	}
	return int(math.Floor(dollarsPerR / perContract))
}
