package market

import (
	"math"
	"time"
)

const (
	atrPeriod    = 14
	regimeWindow = 100
	regimeMinObs = 10
)

// Snapshot is a point-in-time row of derived indicators, computed only from
// bars up to and including its own index. Fields that are not yet defined
// (indicator warmup, first session) are NaN; consumers must treat NaN as
// "feature unavailable", never as zero.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	ATR         float64 `json:"atr"`
	SessionVWAP float64 `json:"session_vwap"`
	VWAPDistATR float64 `json:"vwap_dist_atr"`

	OpeningRangeHigh float64 `json:"opening_range_high"`
	OpeningRangeLow  float64 `json:"opening_range_low"`
	PriorHigh        float64 `json:"prior_high"`
	PriorLow         float64 `json:"prior_low"`
	PriorClose       float64 `json:"prior_close"`

	EMA20      float64 `json:"ema_20"`
	EMA50      float64 `json:"ema_50"`
	EMA20Slope float64 `json:"ema20_slope"`
	EMA50Slope float64 `json:"ema50_slope"`
	LogRet1    float64 `json:"log_ret_1"`

	Regime           string  `json:"regime"`
	RTH              bool    `json:"rth"`
	MinutesSinceOpen float64 `json:"minutes_since_open"` // NaN before open
	TradingDay       string  `json:"trading_day"`
}

// Features exposes the scalar feature vector consumed by probability models.
func (s Snapshot) Features() map[string]float64 {
	return map[string]float64{
		"log_ret_1":          s.LogRet1,
		"atr":                s.ATR,
		"vwap_dist_atr":      s.VWAPDistATR,
		"ema20_slope":        s.EMA20Slope,
		"ema50_slope":        s.EMA50Slope,
		"minutes_since_open": s.MinutesSinceOpen,
	}
}

// sessionState accumulates per-session running values.
type sessionState struct {
	day     string
	cumPV   float64
	cumVol  float64
	high    float64
	low     float64
	close   float64
	orHigh  float64
	orLow   float64
	started bool
}

// BuildFeatures derives one Snapshot per bar, strictly left-to-right: every
// value in row i depends only on bars [0..i]. Session VWAP, opening range and
// prior-session levels reset at the session rollover; the opening range is the
// running high/low accumulated so far inside the window, so rows inside the
// window never see its completed value.
func BuildFeatures(bars []Bar, session *SessionSpec) []Snapshot {
	snaps := make([]Snapshot, 0, len(bars))

	var (
		cur        sessionState
		priorHigh  = math.NaN()
		priorLow   = math.NaN()
		priorClose = math.NaN()
		trs        []float64
		atrs       []float64
		ema20      = math.NaN()
		ema50      = math.NaN()
		prevClose  = math.NaN()
		prevEMA20  = math.NaN()
		prevEMA50  = math.NaN()
	)

	cur.orHigh = math.NaN()
	cur.orLow = math.NaN()

	for _, b := range bars {
		day := session.TradingDay(b.Timestamp)
		if day != cur.day {
			if cur.started {
				priorHigh = cur.high
				priorLow = cur.low
				priorClose = cur.close
			}
			cur = sessionState{day: day, orHigh: math.NaN(), orLow: math.NaN()}
		}

		// Session accumulators.
		if !cur.started {
			cur.high = b.High
			cur.low = b.Low
			cur.started = true
		} else {
			cur.high = math.Max(cur.high, b.High)
			cur.low = math.Min(cur.low, b.Low)
		}
		cur.close = b.Close
		cur.cumPV += b.Close * b.Volume
		cur.cumVol += b.Volume

		vwap := math.NaN()
		if cur.cumVol > 0 {
			vwap = cur.cumPV / cur.cumVol
		}

		// ATR: simple moving average of true range over atrPeriod bars.
		tr := trueRange(b.High, b.Low, prevClose)
		trs = append(trs, tr)
		atr := math.NaN()
		if len(trs) >= atrPeriod {
			sum := 0.0
			for _, v := range trs[len(trs)-atrPeriod:] {
				sum += v
			}
			atr = sum / atrPeriod
		}

		// Opening range: running high/low during the first N RTH minutes.
		rth := session.IsRTH(b.Timestamp)
		minSinceOpen := math.NaN()
		if m, ok := session.MinutesSinceOpen(b.Timestamp); ok {
			minSinceOpen = m
		}
		if rth && !math.IsNaN(minSinceOpen) && minSinceOpen <= session.OpeningRangeMinutes() {
			if math.IsNaN(cur.orHigh) || b.High > cur.orHigh {
				cur.orHigh = b.High
			}
			if math.IsNaN(cur.orLow) || b.Low < cur.orLow {
				cur.orLow = b.Low
			}
		}

		logRet := math.NaN()
		if !math.IsNaN(prevClose) && prevClose > 0 && b.Close > 0 {
			logRet = math.Log(b.Close / prevClose)
		}

		prevEMA20, prevEMA50 = ema20, ema50
		ema20 = emaStep(ema20, b.Close, 20)
		ema50 = emaStep(ema50, b.Close, 50)
		slope20 := math.NaN()
		slope50 := math.NaN()
		if !math.IsNaN(prevEMA20) {
			slope20 = ema20 - prevEMA20
		}
		if !math.IsNaN(prevEMA50) {
			slope50 = ema50 - prevEMA50
		}

		if !math.IsNaN(atr) {
			atrs = append(atrs, atr)
		}
		regime := regimeLabel(atrs, atr, ema20, ema50, prevEMA20, prevEMA50, slope20)

		vwapDistATR := math.NaN()
		if !math.IsNaN(vwap) && !math.IsNaN(atr) && atr > 0 {
			vwapDistATR = (b.Close - vwap) / atr
		}

		snaps = append(snaps, Snapshot{
			Timestamp:        b.Timestamp,
			Open:             b.Open,
			High:             b.High,
			Low:              b.Low,
			Close:            b.Close,
			Volume:           b.Volume,
			ATR:              atr,
			SessionVWAP:      vwap,
			VWAPDistATR:      vwapDistATR,
			OpeningRangeHigh: cur.orHigh,
			OpeningRangeLow:  cur.orLow,
			PriorHigh:        priorHigh,
			PriorLow:         priorLow,
			PriorClose:       priorClose,
			EMA20:            ema20,
			EMA50:            ema50,
			EMA20Slope:       slope20,
			EMA50Slope:       slope50,
			LogRet1:          logRet,
			Regime:           regime,
			RTH:              rth,
			MinutesSinceOpen: minSinceOpen,
			TradingDay:       day,
		})

		prevClose = b.Close
	}

	return snaps
}

// regimeLabel combines a volatility tercile with a trend state, e.g.
// "high_vol_trend_up" or "normal_vol_choppy".
func regimeLabel(atrHistory []float64, atr, ema20, ema50, prevEMA20, prevEMA50, slope20 float64) string {
	vol := "normal_vol"
	if !math.IsNaN(atr) && len(atrHistory) >= regimeMinObs {
		window := atrHistory
		if len(window) > regimeWindow {
			window = window[len(window)-regimeWindow:]
		}
		lo := Quantile(window, 0.33)
		hi := Quantile(window, 0.67)
		switch {
		case atr < lo:
			vol = "low_vol"
		case atr > hi:
			vol = "high_vol"
		}
	}

	trend := "choppy"
	if !math.IsNaN(prevEMA20) && !math.IsNaN(prevEMA50) && !math.IsNaN(slope20) {
		alignedUp := ema20 > ema50 && prevEMA20 > prevEMA50
		switch {
		case alignedUp && slope20 > 0:
			trend = "trend_up"
		case !alignedUp && slope20 < 0:
			trend = "trend_down"
		}
	}

	return vol + "_" + trend
}
