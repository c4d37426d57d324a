//go:build metrics

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsStartedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_started_total",
		Help: "backtest.runs_started – simulation runs submitted",
	}, []string{"symbol"})

	runsFailedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_failed_total",
		Help: "backtest.runs_failed – simulation runs that ended in error",
	}, []string{"symbol"})

	runDurationGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtest_run_duration_ms",
		Help: "backtest.run_duration_ms – wall time of the latest completed run",
	}, []string{"symbol"})

	runTradesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtest_run_trades",
		Help: "backtest.run_trades – settled trade count of the latest run",
	}, []string{"symbol"})

	runTotalRGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtest_run_total_r",
		Help: "backtest.run_total_r – total realized R of the latest run",
	}, []string{"symbol"})

	runRejectionsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backtest_run_rejections",
		Help: "backtest.run_rejections – gate rejections of the latest run",
	}, []string{"symbol"})
)

func init() {
	prometheus.MustRegister(
		runsStartedCounter,
		runsFailedCounter,
		runDurationGauge,
		runTradesGauge,
		runTotalRGauge,
		runRejectionsGauge,
	)
}

func IncRunsStarted(symbol string) {
	runsStartedCounter.WithLabelValues(symbol).Inc()
}

func IncRunsFailed(symbol string) {
	runsFailedCounter.WithLabelValues(symbol).Inc()
}

func ObserveRunDuration(symbol string, duration time.Duration) {
	runDurationGauge.WithLabelValues(symbol).Set(duration.Seconds() * 1000)
}

func SetRunTrades(symbol string, trades int) {
	runTradesGauge.WithLabelValues(symbol).Set(float64(trades))
}

func SetRunTotalR(symbol string, totalR float64) {
	runTotalRGauge.WithLabelValues(symbol).Set(totalR)
}

func SetRunRejections(symbol string, rejections int) {
	runRejectionsGauge.WithLabelValues(symbol).Set(float64(rejections))
}
