package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgesim/backtest"
	"edgesim/strategy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string) RunRecord {
	return RunRecord{
		ID:        id,
		Symbol:    "NQ",
		Status:    "created",
		CreatedAt: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	t.Run("should round trip a run row", func(t *testing.T) {
		require.NoError(t, s.CreateRun(sampleRun("run-1")))
		rec, err := s.GetRun("run-1")
		require.NoError(t, err)
		assert.Equal(t, "NQ", rec.Symbol)
		assert.Equal(t, "created", rec.Status)
	})

	t.Run("should update the lifecycle state", func(t *testing.T) {
		require.NoError(t, s.CreateRun(sampleRun("run-2")))
		finished := time.Date(2024, 1, 2, 15, 5, 0, 0, time.UTC)
		require.NoError(t, s.UpdateRunStatus("run-2", "completed", "", finished))

		rec, err := s.GetRun("run-2")
		require.NoError(t, err)
		assert.Equal(t, "completed", rec.Status)
		assert.False(t, rec.FinishedAt.IsZero())
	})

	t.Run("should record the failure message", func(t *testing.T) {
		require.NoError(t, s.CreateRun(sampleRun("run-3")))
		require.NoError(t, s.UpdateRunStatus("run-3", "failed", "bad bars", time.Now()))

		rec, err := s.GetRun("run-3")
		require.NoError(t, err)
		assert.Equal(t, "failed", rec.Status)
		assert.Equal(t, "bad bars", rec.Error)
	})

	t.Run("should return ErrRunNotFound for unknown ids", func(t *testing.T) {
		_, err := s.GetRun("missing")
		assert.True(t, errors.Is(err, ErrRunNotFound))

		err = s.UpdateRunStatus("missing", "completed", "", time.Now())
		assert.True(t, errors.Is(err, ErrRunNotFound))
	})

	t.Run("should list runs", func(t *testing.T) {
		runs, err := s.ListRuns()
		require.NoError(t, err)
		assert.Len(t, runs, 3)
	})
}

func TestTradesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(sampleRun("run-1")))

	trades := []backtest.Trade{
		{
			EntryTime:  time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
			ExitTime:   time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC),
			TradingDay: "2024-01-02",
			Family:     "vwap_reversion",
			Label:      "vwap_k1_long",
			Side:       strategy.Long,
			Symbol:     "MNQ",
			Qty:        5,
			EntryFill:  15000.25,
			ExitFill:   15010.25,
			ExitReason: "target",
			NetPnL:     92.5,
			RMultiple:  1.85,
		},
		{
			TradingDay: "2024-01-02",
			Side:       strategy.Short,
			ExitReason: "stop",
			RMultiple:  -1.02,
		},
	}

	require.NoError(t, s.SaveTrades("run-1", trades))
	got, err := s.LoadTrades("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, trades[0].Label, got[0].Label)
	assert.Equal(t, trades[0].Side, got[0].Side)
	assert.Equal(t, trades[0].RMultiple, got[0].RMultiple)
	assert.Equal(t, trades[1].ExitReason, got[1].ExitReason)
}

func TestMetricsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(sampleRun("run-1")))

	t.Run("should round trip finite metrics", func(t *testing.T) {
		m := backtest.Metrics{Trades: 3, Wins: 2, Losses: 1, TotalR: 1.5, ProfitFactor: 2.5}
		require.NoError(t, s.SaveMetrics("run-1", m))
		got, err := s.LoadMetrics("run-1")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	})

	t.Run("should restore an infinite profit factor", func(t *testing.T) {
		m := backtest.Metrics{Trades: 1, Wins: 1, ProfitFactor: math.Inf(1)}
		require.NoError(t, s.SaveMetrics("run-1", m))
		got, err := s.LoadMetrics("run-1")
		require.NoError(t, err)
		assert.True(t, math.IsInf(got.ProfitFactor, 1))
	})

	t.Run("should miss metrics for unknown runs", func(t *testing.T) {
		_, err := s.LoadMetrics("missing")
		assert.True(t, errors.Is(err, ErrRunNotFound))
	})
}

func TestMonteCarloRoundTrip(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(sampleRun("run-1")))

	mc := &backtest.MonteCarloResult{
		Simulations: 1000,
		TradeCount:  42,
		MeanR:       1.2,
		StdR:        3.4,
		Percentiles: map[string]float64{"p05": -4.1, "p50": 1.3, "p95": 6.0},
		Risk:        map[string]float64{"var_95": -4.1, "cvar_95": -5.2},
		ProbProfit:  0.61,
	}
	require.NoError(t, s.SaveMonteCarlo("run-1", mc))
	got, err := s.LoadMonteCarlo("run-1")
	require.NoError(t, err)
	assert.Equal(t, mc, got)

	_, err = s.LoadMonteCarlo("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
