package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"edgesim/backtest"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one persisted simulation run.
type RunRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ConfigJSON string    `json:"config_json,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Store persists runs, trades and metrics in SQLite. A single writer is
// assumed; the manager serializes writes per run.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	config_json TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS trades (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	trade_json TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS run_metrics (
	run_id       TEXT PRIMARY KEY REFERENCES runs(id),
	metrics_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS run_montecarlo (
	run_id  TEXT PRIMARY KEY REFERENCES runs(id),
	mc_json TEXT NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateRun inserts a new run row.
func (s *Store) CreateRun(rec RunRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, symbol, status, error, config_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Symbol, rec.Status, rec.Error, rec.ConfigJSON, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateRunStatus moves a run to a new lifecycle state.
func (s *Store) UpdateRunStatus(id, status, errMsg string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errMsg, finishedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads one run row.
func (s *Store) GetRun(id string) (RunRecord, error) {
	var rec RunRecord
	var finished sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, symbol, status, error, config_json, created_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Symbol, &rec.Status, &rec.Error, &rec.ConfigJSON, &rec.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	return rec, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, symbol, status, error, config_json, created_at, finished_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.Status, &rec.Error, &rec.ConfigJSON, &rec.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			rec.FinishedAt = finished.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveTrades persists a run's trade list in settlement order.
func (s *Store) SaveTrades(runID string, trades []backtest.Trade) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO trades (run_id, seq, trade_json) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range trades {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal trade %d: %w", i, err)
		}
		if _, err := stmt.Exec(runID, i, string(data)); err != nil {
			return fmt.Errorf("insert trade %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadTrades returns a run's trades in settlement order.
func (s *Store) LoadTrades(runID string) ([]backtest.Trade, error) {
	rows, err := s.db.Query(`SELECT trade_json FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades %s: %w", runID, err)
	}
	defer rows.Close()

	var out []backtest.Trade
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		var t backtest.Trade
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveMetrics persists a run's summary metrics. Infinite profit factors are
// stored as a sentinel because JSON has no Inf.
func (s *Store) SaveMetrics(runID string, m backtest.Metrics) error {
	stored := m
	if math.IsInf(stored.ProfitFactor, 1) {
		stored.ProfitFactor = -1 // sentinel: no losing trades
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO run_metrics (run_id, metrics_json) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET metrics_json = excluded.metrics_json`,
		runID, string(data),
	)
	if err != nil {
		return fmt.Errorf("save metrics %s: %w", runID, err)
	}
	return nil
}

// LoadMetrics returns a run's metrics, restoring the infinity sentinel.
func (s *Store) LoadMetrics(runID string) (backtest.Metrics, error) {
	var data string
	err := s.db.QueryRow(`SELECT metrics_json FROM run_metrics WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return backtest.Metrics{}, fmt.Errorf("%w: metrics for %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return backtest.Metrics{}, fmt.Errorf("load metrics %s: %w", runID, err)
	}
	var m backtest.Metrics
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return backtest.Metrics{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if m.ProfitFactor == -1 {
		m.ProfitFactor = math.Inf(1)
	}
	return m, nil
}

// SaveMonteCarlo persists a run's bootstrap summary.
func (s *Store) SaveMonteCarlo(runID string, mc *backtest.MonteCarloResult) error {
	data, err := json.Marshal(mc)
	if err != nil {
		return fmt.Errorf("marshal montecarlo: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO run_montecarlo (run_id, mc_json) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET mc_json = excluded.mc_json`,
		runID, string(data),
	)
	if err != nil {
		return fmt.Errorf("save montecarlo %s: %w", runID, err)
	}
	return nil
}

// LoadMonteCarlo returns a run's bootstrap summary.
func (s *Store) LoadMonteCarlo(runID string) (*backtest.MonteCarloResult, error) {
	var data string
	err := s.db.QueryRow(`SELECT mc_json FROM run_montecarlo WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: montecarlo for %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load montecarlo %s: %w", runID, err)
	}
	var mc backtest.MonteCarloResult
	if err := json.Unmarshal([]byte(data), &mc); err != nil {
		return nil, fmt.Errorf("unmarshal montecarlo: %w", err)
	}
	return &mc, nil
}
