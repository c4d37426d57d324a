package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"edgesim/config"
)

// SessionSpec resolves timestamps against the market's session calendar:
// the Globex-style trading day (rollover at 18:00 local), regular trading
// hours and the opening-range window.
type SessionSpec struct {
	loc          *time.Location
	openMinutes  int // RTH open as minutes since midnight, market local time
	closeMinutes int
	rolloverHour int
	orMinutes    int
}

// NewSessionSpec builds a SessionSpec from the market configuration.
func NewSessionSpec(cfg config.MarketConfig) (*SessionSpec, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	open, err := parseClock(cfg.RTHOpen)
	if err != nil {
		return nil, fmt.Errorf("rth_open: %w", err)
	}
	cls, err := parseClock(cfg.RTHClose)
	if err != nil {
		return nil, fmt.Errorf("rth_close: %w", err)
	}
	if cls <= open {
		return nil, fmt.Errorf("rth close %s not after open %s", cfg.RTHClose, cfg.RTHOpen)
	}
	rollover := cfg.SessionRolloverHour
	if rollover <= 0 || rollover > 23 {
		rollover = 18
	}
	return &SessionSpec{
		loc:          loc,
		openMinutes:  open,
		closeMinutes: cls,
		rolloverHour: rollover,
		orMinutes:    cfg.OpeningRangeMinutes,
	}, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// TradingDay maps a timestamp to its session date key (YYYY-MM-DD).
// A bar at/after the rollover hour belongs to the next calendar day's session,
// so 19:00 ET on Jan 1 trades in the Jan 2 session.
func (s *SessionSpec) TradingDay(ts time.Time) string {
	local := ts.In(s.loc)
	if local.Hour() >= s.rolloverHour {
		local = local.AddDate(0, 0, 1)
	}
	return local.Format("2006-01-02")
}

// IsRTH reports whether ts falls within regular trading hours (inclusive).
func (s *SessionSpec) IsRTH(ts time.Time) bool {
	m := s.minutesOfDay(ts)
	return m >= float64(s.openMinutes) && m <= float64(s.closeMinutes)
}

// MinutesSinceOpen returns minutes elapsed since the RTH open, or ok=false
// when ts is before the open on its local day.
func (s *SessionSpec) MinutesSinceOpen(ts time.Time) (float64, bool) {
	m := s.minutesOfDay(ts)
	if m < float64(s.openMinutes) {
		return 0, false
	}
	return m - float64(s.openMinutes), true
}

// RTHMinutes is the RTH session length in minutes.
func (s *SessionSpec) RTHMinutes() float64 {
	return float64(s.closeMinutes - s.openMinutes)
}

// OpeningRangeMinutes is the opening-range accumulation window length.
func (s *SessionSpec) OpeningRangeMinutes() float64 {
	return float64(s.orMinutes)
}

// InAnyWindow reports whether ts (in market local time) falls inside one of
// the configured trade windows. An empty window list allows everything.
func (s *SessionSpec) InAnyWindow(ts time.Time, windows []config.TradeWindow) (bool, error) {
	if len(windows) == 0 {
		return true, nil
	}
	m := s.minutesOfDay(ts)
	for _, w := range windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return false, err
		}
		end, err := parseClock(w.End)
		if err != nil {
			return false, err
		}
		if m >= float64(start) && m <= float64(end) {
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionSpec) minutesOfDay(ts time.Time) float64 {
	local := ts.In(s.loc)
	return float64(local.Hour()*60+local.Minute()) + float64(local.Second())/60
}
