package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"edgesim/backtest"
)

// RunLogger streams run diagnostics to a JSONL file, one object per line
// tagged with a record type. Bars, rejections and trades share the file so a
// run replays in order with a single scan.
type RunLogger struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	err error
}

var _ backtest.Sink = (*RunLogger)(nil)

type envelope struct {
	Type string      `json:"type"` // "bar", "rejection", "trade"
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// NewRunLogger creates the log directory if needed and opens one JSONL file
// per run ID.
func NewRunLogger(dir, runID string) (*RunLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &RunLogger{f: f, w: bufio.NewWriter(f)}, nil
}

func (l *RunLogger) write(typ string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return
	}
	enc, err := json.Marshal(envelope{Type: typ, At: time.Now().UTC(), Data: data})
	if err != nil {
		l.err = err
		return
	}
	if _, err := l.w.Write(append(enc, '\n')); err != nil {
		l.err = err
	}
}

// Bar implements backtest.Sink.
func (l *RunLogger) Bar(rec backtest.BarRecord) { l.write("bar", rec) }

// Rejection implements backtest.Sink.
func (l *RunLogger) Rejection(rec backtest.RejectionRecord) { l.write("rejection", rec) }

// Trade implements backtest.Sink.
func (l *RunLogger) Trade(t backtest.Trade) { l.write("trade", t) }

// Close flushes and closes the underlying file, reporting any write error
// swallowed during the run.
func (l *RunLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ferr := l.w.Flush(); ferr != nil && l.err == nil {
		l.err = ferr
	}
	if cerr := l.f.Close(); cerr != nil && l.err == nil {
		l.err = cerr
	}
	return l.err
}
