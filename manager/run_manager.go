package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edgesim/backtest"
	"edgesim/config"
	"edgesim/market"
	"edgesim/metrics"
	"edgesim/model"
	"edgesim/store"
)

// RunState is a run's lifecycle state.
type RunState string

const (
	RunStateCreated   RunState = "created"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Run is one submitted simulation with its lifecycle and outputs.
type Run struct {
	ID        string
	Symbol    string
	CreatedAt time.Time

	statusMu   sync.RWMutex
	status     RunState
	err        error
	finishedAt time.Time

	doneCh chan struct{}

	result     *backtest.Result
	monteCarlo *backtest.MonteCarloResult
}

// Status returns the run's current state and, for failed runs, the error.
func (r *Run) Status() (RunState, error) {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status, r.err
}

// Done closes when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.doneCh }

// Result returns the run outputs once completed.
func (r *Run) Result() (*backtest.Result, *backtest.MonteCarloResult, error) {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	switch r.status {
	case RunStateCompleted:
		return r.result, r.monteCarlo, nil
	case RunStateFailed:
		return nil, nil, r.err
	default:
		return nil, nil, fmt.Errorf("run %s not finished: %s", r.ID, r.status)
	}
}

// SinkFactory builds the diagnostic sink for a run ID. Nil factories get a
// no-op sink.
type SinkFactory func(runID string) (backtest.Sink, error)

// RunManager owns the lifecycle of simulation runs: submission, async
// execution, persistence and lookup.
type RunManager struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string

	store    *store.Store
	newSink  SinkFactory
	log      zerolog.Logger
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

// NewRunManager builds a manager. st may be nil to skip persistence.
func NewRunManager(st *store.Store, newSink SinkFactory, log zerolog.Logger) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		runs:     make(map[string]*Run),
		store:    st,
		newSink:  newSink,
		log:      log,
		baseCtx:  ctx,
		cancelFn: cancel,
	}
}

// Shutdown cancels all in-flight runs.
func (m *RunManager) Shutdown() { m.cancelFn() }

// Submit registers a run over the given bars and starts it asynchronously,
// returning the run ID immediately.
func (m *RunManager) Submit(cfg *config.Config, predictor model.Predictor, bars []market.Bar) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	run := &Run{
		ID:        uuid.NewString(),
		Symbol:    cfg.Market.Symbol,
		CreatedAt: time.Now().UTC(),
		status:    RunStateCreated,
		doneCh:    make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.mu.Unlock()

	if m.store != nil {
		cfgJSON, _ := json.Marshal(cfg)
		if err := m.store.CreateRun(store.RunRecord{
			ID:         run.ID,
			Symbol:     run.Symbol,
			Status:     string(RunStateCreated),
			ConfigJSON: string(cfgJSON),
			CreatedAt:  run.CreatedAt,
		}); err != nil {
			return "", err
		}
	}

	metrics.IncRunsStarted(run.Symbol)
	go m.execute(run, cfg, predictor, bars)
	return run.ID, nil
}

func (m *RunManager) execute(run *Run, cfg *config.Config, predictor model.Predictor, bars []market.Bar) {
	defer close(run.doneCh)

	m.setStatus(run, RunStateRunning, nil)

	sink := backtest.Sink(backtest.NopSink{})
	if m.newSink != nil {
		s, err := m.newSink(run.ID)
		if err != nil {
			m.fail(run, fmt.Errorf("open sink: %w", err))
			return
		}
		sink = s
	}

	engine, err := backtest.NewEngine(cfg, predictor, sink, m.log.With().Str("run_id", run.ID).Logger())
	if err != nil {
		sink.Close()
		m.fail(run, err)
		return
	}

	started := time.Now()
	result, err := engine.Run(m.baseCtx, bars)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close sink: %w", cerr)
	}
	if err != nil {
		m.fail(run, err)
		return
	}

	var mc *backtest.MonteCarloResult
	if len(result.Trades) > 0 {
		mc, err = backtest.RunMonteCarlo(m.baseCtx, result.Trades, cfg.MonteCarlo)
		if err != nil {
			m.fail(run, err)
			return
		}
	}

	run.statusMu.Lock()
	run.result = result
	run.monteCarlo = mc
	run.statusMu.Unlock()

	if m.store != nil {
		if err := m.persist(run.ID, result, mc); err != nil {
			m.fail(run, err)
			return
		}
	}

	m.setStatus(run, RunStateCompleted, nil)
	metrics.ObserveRunDuration(run.Symbol, time.Since(started))
	metrics.SetRunTrades(run.Symbol, result.Metrics.Trades)
	metrics.SetRunTotalR(run.Symbol, result.Metrics.TotalR)
	metrics.SetRunRejections(run.Symbol, result.Rejections)
}

func (m *RunManager) persist(runID string, result *backtest.Result, mc *backtest.MonteCarloResult) error {
	if err := m.store.SaveTrades(runID, result.Trades); err != nil {
		return err
	}
	if err := m.store.SaveMetrics(runID, result.Metrics); err != nil {
		return err
	}
	if mc != nil {
		if err := m.store.SaveMonteCarlo(runID, mc); err != nil {
			return err
		}
	}
	return nil
}

func (m *RunManager) setStatus(run *Run, state RunState, err error) {
	run.statusMu.Lock()
	run.status = state
	run.err = err
	if state == RunStateCompleted || state == RunStateFailed {
		run.finishedAt = time.Now().UTC()
	}
	finished := run.finishedAt
	run.statusMu.Unlock()

	if m.store != nil {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if serr := m.store.UpdateRunStatus(run.ID, string(state), msg, finished); serr != nil {
			m.log.Error().Err(serr).Str("run_id", run.ID).Msg("persist run status failed")
		}
	}
}

func (m *RunManager) fail(run *Run, err error) {
	m.log.Error().Err(err).Str("run_id", run.ID).Msg("backtest run failed")
	metrics.IncRunsFailed(run.Symbol)
	m.setStatus(run, RunStateFailed, err)
}

// Get returns a run by ID.
func (m *RunManager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Wait blocks until the run finishes or ctx is done, then returns its outputs.
func (m *RunManager) Wait(ctx context.Context, id string) (*backtest.Result, *backtest.MonteCarloResult, error) {
	run, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-run.Done():
		return run.Result()
	}
}

// List returns all runs in submission order.
func (m *RunManager) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Run, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.runs[id])
	}
	return out
}
