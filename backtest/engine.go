package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"edgesim/config"
	"edgesim/market"
	"edgesim/model"
	"edgesim/risk"
	"edgesim/strategy"
)

// BarRecord is the per-bar diagnostic row written to the run sink.
type BarRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	TradingDay string    `json:"trading_day"`
	Close      float64   `json:"close"`
	ATR        float64   `json:"atr"`
	Regime     string    `json:"regime"`
	Candidates int       `json:"candidates"`
	Scored     int       `json:"scored"`
	Kept       int       `json:"kept"`
}

// RejectionRecord is one dropped candidate with the gate that dropped it.
type RejectionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
	Gate      string    `json:"gate"`
	Reason    string    `json:"reason"`
}

// Sink receives run diagnostics as they happen. Implementations must be safe
// to call from a single goroutine only; the engine never calls concurrently.
type Sink interface {
	Bar(rec BarRecord)
	Rejection(rec RejectionRecord)
	Trade(t Trade)
	Close() error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Bar(BarRecord)             {}
func (NopSink) Rejection(RejectionRecord) {}
func (NopSink) Trade(Trade)               {}
func (NopSink) Close() error              { return nil }

// Result is the outcome of one engine run.
type Result struct {
	Trades      []Trade   `json:"trades"`
	Metrics     Metrics   `json:"metrics"`
	Rejections  int       `json:"rejections"`
	EntryMisses int       `json:"entry_misses"` // entry price never touched on the entry bar
	Unresolved  int       `json:"unresolved"`   // brackets whose exit never hit before data end
	Bars        int       `json:"bars"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Engine drives one deterministic simulation pass: features, candidates,
// scoring, rules, sizing and bracket execution, bar by bar with no lookahead
// on the signal path.
type Engine struct {
	cfg       *config.Config
	session   *market.SessionSpec
	spec      risk.ContractSpec
	generator *strategy.Generator
	scorer    *strategy.Scorer
	filter    *strategy.Filter
	manager   *risk.Manager
	adjuster  *model.ShrinkageAdjuster
	sink      Sink
	log       zerolog.Logger
}

// NewEngine wires an engine from configuration and a probability model.
func NewEngine(cfg *config.Config, predictor model.Predictor, sink Sink, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	session, err := market.NewSessionSpec(cfg.Market)
	if err != nil {
		return nil, err
	}
	spec, err := risk.Contract(cfg.Market.Symbol)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = NopSink{}
	}
	adjuster := model.NewShrinkageAdjuster(
		cfg.Strategy.Scoring.UseShrinkage,
		cfg.Strategy.Scoring.ShrinkageWindow,
		cfg.Strategy.Scoring.ShrinkageFactor,
	)
	return &Engine{
		cfg:       cfg,
		session:   session,
		spec:      spec,
		generator: strategy.NewGenerator(cfg.Strategy, spec.TickSize),
		scorer:    strategy.NewScorer(cfg.Strategy.Scoring, predictor, adjuster),
		filter:    strategy.NewFilter(cfg.Strategy.Rules, session),
		manager:   risk.NewManager(cfg.Risk),
		adjuster:  adjuster,
		sink:      sink,
		log:       log,
	}, nil
}

// pendingTrade is an opened bracket waiting for its exit bar to arrive in the
// main loop, so settlement and limit bookkeeping happen in bar order.
type pendingTrade struct {
	exitIdx int
	trade   Trade
}

// Run executes the simulation over bars. The input series must validate; the
// first WarmupBars rows only feed indicators. The run is deterministic: same
// bars, same config, same model, same result.
func (e *Engine) Run(ctx context.Context, bars []market.Bar) (*Result, error) {
	started := time.Now()
	if err := market.Validate(bars); err != nil {
		return nil, err
	}

	feats := market.BuildFeatures(bars, e.session)
	res := &Result{Bars: len(bars), StartedAt: started}
	var pending []pendingTrade

	warmup := e.cfg.Backtest.WarmupBars
	if warmup >= len(bars) {
		return nil, fmt.Errorf("series too short: %d bars <= %d warmup", len(bars), warmup)
	}

	for i := warmup; i < len(bars); i++ {
		if i%1000 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		// Settle brackets whose exit bar has arrived, before any sizing at
		// this bar reads the limit counters.
		remaining := pending[:0]
		for _, p := range pending {
			if p.exitIdx <= i {
				e.settle(res, p.trade)
			} else {
				remaining = append(remaining, p)
			}
		}
		pending = remaining

		snap := feats[i]
		e.filter.ObserveATR(snap.ATR)

		cands := e.generator.Generate(feats[:i+1])
		scored, err := e.scorer.Score(snap, cands)
		if err != nil {
			return nil, err
		}
		ranked := e.scorer.Rank(scored)
		kept, rejections, err := e.filter.Apply(snap, ranked)
		if err != nil {
			return nil, err
		}
		for _, r := range rejections {
			res.Rejections++
			e.sink.Rejection(RejectionRecord{
				Timestamp: snap.Timestamp, Label: r.Candidate.Label,
				Gate: r.Gate, Reason: r.Reason,
			})
		}

		e.sink.Bar(BarRecord{
			Timestamp: snap.Timestamp, TradingDay: snap.TradingDay,
			Close: snap.Close, ATR: snap.ATR, Regime: snap.Regime,
			Candidates: len(cands), Scored: len(scored), Kept: len(kept),
		})

		// At most one bracket trades per bar: the top survivor of the
		// rule gates.
		if len(kept) > 0 {
			c := kept[0]
			dec, err := e.manager.SizePosition(e.cfg.Market.Symbol, snap.TradingDay, c.RiskPoints())
			if err != nil {
				return nil, err
			}
			switch {
			case !dec.Allow:
				res.Rejections++
				e.sink.Rejection(RejectionRecord{
					Timestamp: snap.Timestamp, Label: c.Label,
					Gate: "risk", Reason: dec.Reason,
				})
			default:
				exec, status := SimulateExecution(bars[i:], c.Candidate)
				switch status {
				case ExecNoFill:
					res.EntryMisses++
				case ExecUnresolved:
					res.Unresolved++
				case ExecFilled:
					exitIdx := i + exec.ExitBarIndex
					trade, err := e.buildTrade(c, dec, exec, bars, i, exitIdx)
					if err != nil {
						return nil, err
					}
					e.manager.Limits().OpenPosition()
					pending = append(pending, pendingTrade{exitIdx: exitIdx, trade: trade})
				}
			}
		}
	}

	// Exits landing on the final bar settle after the loop.
	for _, p := range pending {
		e.settle(res, p.trade)
	}

	res.Metrics = ComputeMetrics(res.Trades)
	res.FinishedAt = time.Now()
	e.log.Info().
		Int("bars", res.Bars).
		Int("trades", res.Metrics.Trades).
		Float64("total_r", res.Metrics.TotalR).
		Float64("net_pnl", res.Metrics.NetPnL).
		Int("rejections", res.Rejections).
		Msg("backtest run complete")
	return res, nil
}

// buildTrade converts a filled bracket into a settled Trade with cost and R
// accounting. Costs are two independent legs so partial-fee models stay
// consistent with the sizing estimate.
func (e *Engine) buildTrade(c strategy.Scored, dec risk.Decision, exec ExecutionResult, bars []market.Bar, entryIdx, exitIdx int) (Trade, error) {
	spec, err := risk.Contract(dec.Symbol)
	if err != nil {
		return Trade{}, fmt.Errorf("sized symbol: %w", err)
	}
	dir := 1.0
	if c.Side == strategy.Short {
		dir = -1.0
	}
	points := (exec.ExitFill - exec.EntryFill) * dir
	gross := points * spec.PointValue * float64(dec.Qty)
	costs := e.manager.SideCost(spec, dec.Qty) * 2
	net := gross - costs

	riskDollars := c.RiskPoints() * spec.PointValue * float64(dec.Qty)
	rMult := 0.0
	if riskDollars > 0 {
		rMult = net / riskDollars
	}

	exitTime := bars[exitIdx].Timestamp
	return Trade{
		EntryTime:  bars[entryIdx].Timestamp,
		ExitTime:   exitTime,
		TradingDay: e.session.TradingDay(exitTime),
		Family:     c.Family,
		Label:      c.Label,
		Tags:       c.Tags(),
		Side:       c.Side,
		Symbol:     dec.Symbol,
		Qty:        dec.Qty,
		EntryFill:  exec.EntryFill,
		ExitFill:   exec.ExitFill,
		Stop:       c.Stop,
		Target:     c.Target,
		ExitReason: exec.ExitReason,
		ProbWin:    c.ProbWin,
		EVR:        c.EVR,
		GrossPnL:   gross,
		Costs:      costs,
		NetPnL:     net,
		RMultiple:  rMult,
	}, nil
}

// settle credits one closed trade exactly once: risk counters, shrinkage
// feedback, the result list and the sink.
func (e *Engine) settle(res *Result, t Trade) {
	e.manager.Settle(t.TradingDay, t.RMultiple)
	e.adjuster.Observe(t.ProbWin, t.NetPnL > 0)
	res.Trades = append(res.Trades, t)
	e.sink.Trade(t)
}
