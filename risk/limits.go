package risk

import (
	"fmt"

	"edgesim/config"
)

// LimitsState tracks per-trading-day counters for the layered risk checks.
// State mutates only through settlement and open/close notifications, never
// through sizing itself.
type LimitsState struct {
	cfg config.LimitsConfig

	realizedR map[string]float64
	trades    map[string]int
	openRiskR float64
}

// NewLimitsState builds an empty limits tracker.
func NewLimitsState(cfg config.LimitsConfig) *LimitsState {
	return &LimitsState{
		cfg:       cfg,
		realizedR: make(map[string]float64),
		trades:    make(map[string]int),
	}
}

// AddRealizedR credits a settled trade's R multiple to its trading day.
func (l *LimitsState) AddRealizedR(day string, r float64) {
	l.realizedR[day] += r
}

// AddTrade counts one executed trade against its trading day.
func (l *LimitsState) AddTrade(day string) {
	l.trades[day]++
}

// OpenPosition reserves one R of open risk.
func (l *LimitsState) OpenPosition() {
	l.openRiskR += 1.0
}

// ClosePosition releases one R of open risk.
func (l *LimitsState) ClosePosition() {
	l.openRiskR -= 1.0
	if l.openRiskR < 0 {
		l.openRiskR = 0
	}
}

// RealizedR returns the day's settled R total.
func (l *LimitsState) RealizedR(day string) float64 { return l.realizedR[day] }

// Trades returns the day's executed trade count.
func (l *LimitsState) Trades(day string) int { return l.trades[day] }

// OpenRiskR returns the currently reserved open risk in R units.
func (l *LimitsState) OpenRiskR() float64 { return l.openRiskR }

// Check runs the layered limit checks in order and returns the first failure
// reason, or "" when all pass. The prospective trade counts as 1.0 R of
// additional open risk.
func (l *LimitsState) Check(day string) string {
	if realized := l.realizedR[day]; realized <= -l.cfg.DailyMaxR {
		return fmt.Sprintf("daily realized %.2fR <= limit -%.2fR", realized, l.cfg.DailyMaxR)
	}
	if n := l.trades[day]; n >= l.cfg.MaxTradesPerDay {
		return fmt.Sprintf("trades today %d >= max %d", n, l.cfg.MaxTradesPerDay)
	}
	if l.openRiskR+1.0 > l.cfg.MaxOpenRiskR {
		return fmt.Sprintf("open risk %.2fR + 1.0R > max %.2fR", l.openRiskR, l.cfg.MaxOpenRiskR)
	}
	return ""
}
