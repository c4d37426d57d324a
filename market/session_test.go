package market

import (
	"testing"
	"time"

	"edgesim/config"
)

func testSession(t *testing.T) *SessionSpec {
	t.Helper()
	s, err := NewSessionSpec(config.Default().Market)
	if err != nil {
		t.Fatalf("NewSessionSpec: %v", err)
	}
	return s
}

func nyTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestTradingDay(t *testing.T) {
	s := testSession(t)

	tests := []struct {
		name string
		ts   string
		want string
	}{
		{"should keep a morning bar on its calendar day", "2024-01-02 10:00", "2024-01-02"},
		{"should keep a bar just before rollover on its calendar day", "2024-01-02 17:59", "2024-01-02"},
		{"should roll a bar at 18:00 into the next session", "2024-01-02 18:00", "2024-01-03"},
		{"should roll an evening bar into the next session", "2024-01-02 21:30", "2024-01-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.TradingDay(nyTime(t, tt.ts)); got != tt.want {
				t.Errorf("TradingDay(%s) = %s, want %s", tt.ts, got, tt.want)
			}
		})
	}
}

func TestIsRTH(t *testing.T) {
	s := testSession(t)

	tests := []struct {
		name string
		ts   string
		want bool
	}{
		{"should reject pre-open", "2024-01-02 09:29", false},
		{"should accept the open", "2024-01-02 09:30", true},
		{"should accept mid-session", "2024-01-02 12:00", true},
		{"should accept the close", "2024-01-02 16:00", true},
		{"should reject after close", "2024-01-02 16:01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsRTH(nyTime(t, tt.ts)); got != tt.want {
				t.Errorf("IsRTH(%s) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestMinutesSinceOpen(t *testing.T) {
	s := testSession(t)

	t.Run("should measure from the 09:30 open", func(t *testing.T) {
		m, ok := s.MinutesSinceOpen(nyTime(t, "2024-01-02 10:30"))
		if !ok {
			t.Fatal("expected ok")
		}
		if m != 60 {
			t.Errorf("got %.1f, want 60", m)
		}
	})

	t.Run("should report not-ok before the open", func(t *testing.T) {
		if _, ok := s.MinutesSinceOpen(nyTime(t, "2024-01-02 08:00")); ok {
			t.Error("expected !ok before the open")
		}
	})
}

func TestInAnyWindow(t *testing.T) {
	s := testSession(t)

	windows := []config.TradeWindow{{Start: "10:00", End: "11:30"}, {Start: "14:00", End: "15:00"}}

	tests := []struct {
		name string
		ts   string
		want bool
	}{
		{"should accept inside the first window", "2024-01-02 10:15", true},
		{"should accept inside the second window", "2024-01-02 14:30", true},
		{"should reject between windows", "2024-01-02 12:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.InAnyWindow(nyTime(t, tt.ts), windows)
			if err != nil {
				t.Fatalf("InAnyWindow: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("should allow everything with no windows configured", func(t *testing.T) {
		got, err := s.InAnyWindow(nyTime(t, "2024-01-02 03:00"), nil)
		if err != nil {
			t.Fatalf("InAnyWindow: %v", err)
		}
		if !got {
			t.Error("empty window list should allow all times")
		}
	})
}
