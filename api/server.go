package api

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"edgesim/backtest"
	"edgesim/config"
	"edgesim/manager"
	"edgesim/market"
	"edgesim/model"
)

// Server exposes the simulation engine over HTTP.
type Server struct {
	engine  *gin.Engine
	manager *manager.RunManager
	log     zerolog.Logger
}

// SubmitRequest starts a run. Exactly one bar source is used: a CSV path or
// a seeded demo series. Config, when present, overlays the defaults.
type SubmitRequest struct {
	BarsFile string         `json:"bars_file,omitempty"`
	DemoDays int            `json:"demo_days,omitempty"`
	DemoSeed int64          `json:"demo_seed,omitempty"`
	Config   *config.Config `json:"config,omitempty"`
}

// NewServer wires routes onto a fresh gin engine.
func NewServer(mgr *manager.RunManager, log zerolog.Logger) *Server {
	s := &Server{engine: gin.New(), manager: mgr, log: log}
	s.engine.Use(gin.Recovery())

	api := s.engine.Group("/api")
	api.POST("/backtest", s.submitBacktest)
	api.GET("/backtest", s.listBacktests)
	api.GET("/backtest/:id", s.getBacktest)
	api.GET("/backtest/:id/trades", s.getTrades)
	api.GET("/backtest/:id/metrics", s.getMetrics)
	api.GET("/backtest/:id/montecarlo", s.getMonteCarlo)
	return s
}

// Run starts the HTTP listener.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("api server listening")
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) submitBacktest(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}

	var bars []market.Bar
	switch {
	case req.BarsFile != "":
		var err error
		bars, err = market.LoadCSV(req.BarsFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_BARS",
			})
			return
		}
	case req.DemoDays > 0:
		seed := req.DemoSeed
		if seed == 0 {
			seed = 1
		}
		bars = market.GenerateDemoBars(req.DemoDays, seed)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "either bars_file or demo_days is required",
			"code":  "NO_BAR_SOURCE",
		})
		return
	}

	id, err := s.manager.Submit(cfg, model.DefaultLogistic(), bars)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_CONFIG",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listBacktests(c *gin.Context) {
	runs := s.manager.List()
	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		state, _ := r.Status()
		out = append(out, gin.H{
			"id":         r.ID,
			"symbol":     r.Symbol,
			"status":     string(state),
			"created_at": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) getBacktest(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	state, err := run.Status()
	resp := gin.H{
		"id":         run.ID,
		"symbol":     run.Symbol,
		"status":     string(state),
		"created_at": run.CreatedAt,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrades(c *gin.Context) {
	result, ok := s.completedResult(c)
	if !ok {
		return
	}
	trades := result.Trades
	if trades == nil {
		trades = []backtest.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getMetrics(c *gin.Context) {
	result, ok := s.completedResult(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sanitizeMetrics(result.Metrics))
}

func (s *Server) getMonteCarlo(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	_, mc, err := run.Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "montecarlo not ready yet",
			"code":  "MONTECARLO_NOT_READY",
		})
		return
	}
	if mc == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "run produced no trades to resample",
			"code":  "MONTECARLO_EMPTY",
		})
		return
	}
	c.JSON(http.StatusOK, mc)
}

func (s *Server) lookup(c *gin.Context) (*manager.Run, bool) {
	run, err := s.manager.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, manager.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": err.Error(),
				"code":  "RUN_NOT_FOUND",
			})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": err.Error(),
				"code":  "INTERNAL",
			})
		}
		return nil, false
	}
	return run, true
}

func (s *Server) completedResult(c *gin.Context) (*backtest.Result, bool) {
	run, ok := s.lookup(c)
	if !ok {
		return nil, false
	}
	result, _, err := run.Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "metrics not ready yet",
			"code":  "METRICS_NOT_READY",
		})
		return nil, false
	}
	return result, true
}

// sanitizeMetrics maps non-finite values to null, which JSON cannot carry.
func sanitizeMetrics(m backtest.Metrics) gin.H {
	var pf interface{}
	if !math.IsInf(m.ProfitFactor, 0) && !math.IsNaN(m.ProfitFactor) {
		pf = m.ProfitFactor
	}
	return gin.H{
		"trades":         m.Trades,
		"wins":           m.Wins,
		"losses":         m.Losses,
		"win_rate":       m.WinRate,
		"gross_pnl":      m.GrossPnL,
		"costs":          m.Costs,
		"net_pnl":        m.NetPnL,
		"total_r":        m.TotalR,
		"avg_r":          m.AvgR,
		"avg_win_r":      m.AvgWinR,
		"avg_loss_r":     m.AvgLossR,
		"expectancy_r":   m.ExpectancyR,
		"profit_factor":  pf,
		"max_drawdown_r": m.MaxDrawdownR,
		"sharpe":         m.Sharpe,
	}
}
