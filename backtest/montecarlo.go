package backtest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"edgesim/config"
	"edgesim/market"
)

// MonteCarloResult summarizes the bootstrap distributions of total R and of
// the per-path max drawdown. Drawdowns are magnitudes, >= 0.
type MonteCarloResult struct {
	Simulations int                `json:"simulations"`
	TradeCount  int                `json:"trade_count"`
	MeanR       float64            `json:"mean_r"`
	StdR        float64            `json:"std_r"`
	MinR        float64            `json:"min_r"`
	MaxR        float64            `json:"max_r"`
	MaxDDMean   float64            `json:"max_dd_mean"`
	MaxDDStd    float64            `json:"max_dd_std"`
	MaxDDMin    float64            `json:"max_dd_min"`
	MaxDDMax    float64            `json:"max_dd_max"`
	Percentiles map[string]float64 `json:"percentiles"` // "p05", "p25", "p50", "p75", "p95"
	Risk        map[string]float64 `json:"risk"`        // "var_95", "cvar_95", ...
	ProbProfit  float64            `json:"prob_profit"`
}

// RunMonteCarlo bootstraps the realized R series: each iteration resamples
// len(trades) R multiples with replacement, walks the cumulative equity to
// record both its final value and its deepest peak-to-trough drawdown.
// Iterations are farmed to a bounded worker pool, but each one derives its
// generator from seed+index and writes into its own slot, so the output is
// identical regardless of scheduling.
func RunMonteCarlo(ctx context.Context, trades []Trade, cfg config.MonteCarloConfig) (*MonteCarloResult, error) {
	if cfg.Simulations <= 0 {
		return nil, fmt.Errorf("simulations must be > 0, got %d", cfg.Simulations)
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("no trades to resample")
	}

	rs := make([]float64, len(trades))
	for i, t := range trades {
		rs[i] = t.RMultiple
	}

	totals := make([]float64, cfg.Simulations)
	drawdowns := make([]float64, cfg.Simulations)
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
				equity, peak, maxDD := 0.0, 0.0, 0.0
				for n := 0; n < len(rs); n++ {
					equity += rs[rng.Intn(len(rs))]
					if equity > peak {
						peak = equity
					}
					if dd := peak - equity; dd > maxDD {
						maxDD = dd
					}
				}
				totals[i] = equity
				drawdowns[i] = maxDD
			}
		}()
	}

	var ctxErr error
feed:
	for i := 0; i < cfg.Simulations; i++ {
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if ctxErr != nil {
		return nil, ctxErr
	}

	meanR, stdR, minR, maxR := distStats(totals)
	ddMean, ddStd, ddMin, ddMax := distStats(drawdowns)

	profitable := 0
	for _, v := range totals {
		if v > 0 {
			profitable++
		}
	}

	res := &MonteCarloResult{
		Simulations: cfg.Simulations,
		TradeCount:  len(trades),
		MeanR:       meanR,
		StdR:        stdR,
		MinR:        minR,
		MaxR:        maxR,
		MaxDDMean:   ddMean,
		MaxDDStd:    ddStd,
		MaxDDMin:    ddMin,
		MaxDDMax:    ddMax,
		Percentiles: map[string]float64{
			"p05": market.Quantile(totals, 0.05),
			"p25": market.Quantile(totals, 0.25),
			"p50": market.Quantile(totals, 0.50),
			"p75": market.Quantile(totals, 0.75),
			"p95": market.Quantile(totals, 0.95),
		},
		Risk:       map[string]float64{},
		ProbProfit: float64(profitable) / float64(len(totals)),
	}

	for _, cl := range cfg.ConfidenceLevels {
		v := market.Quantile(totals, 1-cl)
		key := fmt.Sprintf("%02.0f", cl*100)
		res.Risk["var_"+key] = v
		res.Risk["cvar_"+key] = cvar(totals, v)
	}
	return res, nil
}

// distStats returns the mean, population standard deviation, minimum and
// maximum of a non-empty sample.
func distStats(xs []float64) (mean, std, min, max float64) {
	min, max = xs[0], xs[0]
	for _, v := range xs {
		mean += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, v := range xs {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(xs))
	return mean, math.Sqrt(variance), min, max
}

// cvar is the mean of outcomes at or below the VaR threshold.
func cvar(totals []float64, threshold float64) float64 {
	sum, n := 0.0, 0
	for _, v := range totals {
		if v <= threshold {
			sum += v
			n++
		}
	}
	if n == 0 {
		return threshold
	}
	return sum / float64(n)
}
