package backtest

import (
	"math"
	"time"

	"edgesim/strategy"
)

// Trade is one settled round trip.
type Trade struct {
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	TradingDay string        `json:"trading_day"`
	Family     string        `json:"family"`
	Label      string        `json:"label"`
	Tags       []string      `json:"tags,omitempty"`
	Side       strategy.Side `json:"side"`
	Symbol     string        `json:"symbol"`
	Qty        int           `json:"qty"`
	EntryFill  float64       `json:"entry_fill"`
	ExitFill   float64       `json:"exit_fill"`
	Stop       float64       `json:"stop"`
	Target     float64       `json:"target"`
	ExitReason string        `json:"exit_reason"`
	ProbWin    float64       `json:"prob_win"`
	EVR        float64       `json:"ev_r"`
	GrossPnL   float64       `json:"gross_pnl"`
	Costs      float64       `json:"costs"`
	NetPnL     float64       `json:"net_pnl"`
	RMultiple  float64       `json:"r_multiple"`
}

// Metrics summarizes a trade list.
type Metrics struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	GrossPnL     float64 `json:"gross_pnl"`
	Costs        float64 `json:"costs"`
	NetPnL       float64 `json:"net_pnl"`
	TotalR       float64 `json:"total_r"`
	AvgR         float64 `json:"avg_r"`
	AvgWinR      float64 `json:"avg_win_r"`
	AvgLossR     float64 `json:"avg_loss_r"`    // mean R of losing trades, <= 0
	ProfitFactor float64 `json:"profit_factor"` // +Inf when no losing trades
	MaxDrawdownR float64 `json:"max_drawdown_r"`
	Sharpe       float64 `json:"sharpe"` // annualized over daily R series
	ExpectancyR  float64 `json:"expectancy_r"`
}

// ComputeMetrics aggregates trades into summary statistics. Drawdown and
// Sharpe run over the R series in trade order; Sharpe uses the sample
// standard deviation of daily R totals annualized by sqrt(252). A trade list
// with no losers reports a +Inf profit factor, the JSON layer sanitizes it.
func ComputeMetrics(trades []Trade) Metrics {
	m := Metrics{Trades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var grossWins, grossLosses float64
	var winR, lossR float64
	dailyR := map[string]float64{}
	var dayOrder []string
	equity, peak, maxDD := 0.0, 0.0, 0.0

	for _, t := range trades {
		m.GrossPnL += t.GrossPnL
		m.Costs += t.Costs
		m.NetPnL += t.NetPnL
		m.TotalR += t.RMultiple

		if t.NetPnL > 0 {
			m.Wins++
			grossWins += t.NetPnL
			winR += t.RMultiple
		} else {
			m.Losses++
			grossLosses += -t.NetPnL
			lossR += t.RMultiple
		}

		if _, seen := dailyR[t.TradingDay]; !seen {
			dayOrder = append(dayOrder, t.TradingDay)
		}
		dailyR[t.TradingDay] += t.RMultiple

		equity += t.RMultiple
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDD {
			maxDD = dd
		}
	}

	m.WinRate = float64(m.Wins) / float64(m.Trades)
	m.AvgR = m.TotalR / float64(m.Trades)
	m.ExpectancyR = m.AvgR
	m.MaxDrawdownR = maxDD
	if m.Wins > 0 {
		m.AvgWinR = winR / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLossR = lossR / float64(m.Losses)
	}

	if grossLosses > 0 {
		m.ProfitFactor = grossWins / grossLosses
	} else if grossWins > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	if len(dayOrder) >= 2 {
		series := make([]float64, 0, len(dayOrder))
		for _, d := range dayOrder {
			series = append(series, dailyR[d])
		}
		mean := 0.0
		for _, v := range series {
			mean += v
		}
		mean /= float64(len(series))
		variance := 0.0
		for _, v := range series {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(series) - 1)
		if sd := math.Sqrt(variance); sd > 0 {
			m.Sharpe = math.Sqrt(252) * mean / sd
		}
	}

	return m
}
