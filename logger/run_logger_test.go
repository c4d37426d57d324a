package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"edgesim/backtest"
)

func TestRunLogger(t *testing.T) {
	t.Run("should write one tagged line per record", func(t *testing.T) {
		dir := t.TempDir()
		l, err := NewRunLogger(dir, "run-1")
		if err != nil {
			t.Fatalf("NewRunLogger: %v", err)
		}

		l.Bar(backtest.BarRecord{Timestamp: time.Now(), Close: 15000, Candidates: 2})
		l.Rejection(backtest.RejectionRecord{Label: "vwap_k1_long", Gate: "regime", Reason: "trend"})
		l.Trade(backtest.Trade{Label: "vwap_k1_long", RMultiple: 1.2})
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		f, err := os.Open(filepath.Join(dir, "run-1.jsonl"))
		if err != nil {
			t.Fatalf("open log: %v", err)
		}
		defer f.Close()

		var types []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
				t.Fatalf("line not valid json: %v", err)
			}
			types = append(types, env.Type)
		}
		if err := scanner.Err(); err != nil {
			t.Fatalf("scan: %v", err)
		}

		want := []string{"bar", "rejection", "trade"}
		if len(types) != len(want) {
			t.Fatalf("got %d lines, want %d", len(types), len(want))
		}
		for i, w := range want {
			if types[i] != w {
				t.Errorf("line %d type = %s, want %s", i, types[i], w)
			}
		}
	})

	t.Run("should create the log directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "runs")
		l, err := NewRunLogger(dir, "run-2")
		if err != nil {
			t.Fatalf("NewRunLogger: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "run-2.jsonl")); err != nil {
			t.Errorf("log file missing: %v", err)
		}
	})
}
