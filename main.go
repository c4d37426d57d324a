package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"edgesim/api"
	"edgesim/backtest"
	"edgesim/config"
	"edgesim/logger"
	"edgesim/manager"
	"edgesim/market"
	"edgesim/model"
	"edgesim/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "JSON config file, defaults apply when empty")
		barsPath   = flag.String("bars", "", "OHLCV CSV file to simulate")
		demoDays   = flag.Int("demo-days", 0, "generate a synthetic series of N trading days instead of loading bars")
		demoSeed   = flag.Int64("demo-seed", 1, "seed for the synthetic series")
		dbPath     = flag.String("db", "edgesim.db", "sqlite database path, empty disables persistence")
		logDir     = flag.String("log-dir", "runs", "directory for per-run JSONL diagnostics, empty disables")
		serve      = flag.String("serve", "", "serve the HTTP API on this address instead of running once")
	)
	flag.Parse()

	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && os.Getenv("LOG_LEVEL") != "" {
		level = lv
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg = loaded
	}

	var st *store.Store
	if *dbPath != "" {
		var err error
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open store")
		}
		defer st.Close()
	}

	var sinkFactory manager.SinkFactory
	if *logDir != "" {
		dir := *logDir
		sinkFactory = func(runID string) (backtest.Sink, error) {
			return logger.NewRunLogger(dir, runID)
		}
	}

	mgr := manager.NewRunManager(st, sinkFactory, log)
	defer mgr.Shutdown()

	if *serve != "" {
		if err := api.NewServer(mgr, log).Run(*serve); err != nil {
			log.Fatal().Err(err).Msg("api server")
		}
		return
	}

	var (
		bars []market.Bar
		err  error
	)
	switch {
	case *barsPath != "":
		bars, err = market.LoadCSV(*barsPath)
	case *demoDays > 0:
		bars = market.GenerateDemoBars(*demoDays, *demoSeed)
	default:
		err = fmt.Errorf("one of -bars or -demo-days is required (or -serve)")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}

	id, err := mgr.Submit(cfg, model.DefaultLogistic(), bars)
	if err != nil {
		log.Fatal().Err(err).Msg("submit run")
	}

	result, mc, err := mgr.Wait(context.Background(), id)
	if err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	// encoding/json cannot carry +Inf; mirror the storage sentinel.
	summary := result.Metrics
	if math.IsInf(summary.ProfitFactor, 1) {
		summary.ProfitFactor = -1
	}
	out := map[string]interface{}{
		"run_id":  id,
		"bars":    result.Bars,
		"metrics": summary,
	}
	if mc != nil {
		out["monte_carlo"] = mc
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
}
