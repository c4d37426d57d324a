package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// TradeWindow is a wall-clock interval in the market timezone during which
// entries are allowed. Start/End use "HH:MM" (24h).
type TradeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarketConfig describes the instrument and its session calendar.
type MarketConfig struct {
	Symbol              string `json:"symbol"`
	Timezone            string `json:"timezone"`              // session logic timezone, e.g. America/New_York
	RTHOpen             string `json:"rth_open"`              // "09:30"
	RTHClose            string `json:"rth_close"`             // "16:00"
	SessionRolloverHour int    `json:"session_rollover_hour"` // Globex: 18 → bars at/after 18:00 belong to next day's session
	OpeningRangeMinutes int    `json:"opening_range_minutes"`
}

// VWAPConfig controls the VWAP mean-reversion candidate family.
type VWAPConfig struct {
	Enabled        bool      `json:"enabled"`
	ATRMultipliers []float64 `json:"atr_multipliers"`
}

// RetestConfig controls the opening-range and prior-session retest families.
type RetestConfig struct {
	Enabled        bool    `json:"enabled"`
	ToleranceTicks float64 `json:"tolerance_ticks"`
}

// SwingConfig controls the pivot swing-fade family.
type SwingConfig struct {
	Enabled       bool    `json:"enabled"`
	PivotLookback int     `json:"pivot_lookback"`
	MinSwingATR   float64 `json:"min_swing_size_atr"`
}

// ScoringConfig controls probability gating and ranking.
type ScoringConfig struct {
	MinProb         float64 `json:"min_prob"`
	MaxProb         float64 `json:"max_prob"`
	TopK            int     `json:"top_k"`
	UseShrinkage    bool    `json:"use_shrinkage"`
	ShrinkageWindow int     `json:"shrinkage_window"`
	ShrinkageFactor float64 `json:"shrinkage_factor"`
}

// VolatilityConfig gates entries on the ATR percentile within a rolling window.
type VolatilityConfig struct {
	MinPercentile   float64 `json:"min_atr_percentile"`
	MaxPercentile   float64 `json:"max_atr_percentile"`
	Window          int     `json:"window"`
	MinObservations int     `json:"min_observations"`
}

// RulesConfig is the rule-filter configuration (4 gates, applied in order).
type RulesConfig struct {
	AvoidFirstMinutes           float64          `json:"avoid_first_minutes"`
	AvoidLastMinutes            float64          `json:"avoid_last_minutes"`
	TradeWindows                []TradeWindow    `json:"trade_windows,omitempty"`
	DisableMeanReversionInTrend bool             `json:"disable_mean_reversion_in_trend"`
	Volatility                  VolatilityConfig `json:"volatility"`
}

// StrategyConfig bundles candidate generation, scoring and rule settings.
type StrategyConfig struct {
	MinRR        float64       `json:"min_rr"`
	MaxRR        float64       `json:"max_rr"`
	VWAP         VWAPConfig    `json:"vwap"`
	OpeningRange RetestConfig  `json:"opening_range"`
	PriorSession RetestConfig  `json:"prior_session"`
	Swing        SwingConfig   `json:"swing"`
	Scoring      ScoringConfig `json:"scoring"`
	Rules        RulesConfig   `json:"rules"`
}

// LimitsConfig holds the layered risk limits checked at sizing time.
type LimitsConfig struct {
	DailyMaxR       float64 `json:"daily_max_r"`
	MaxTradesPerDay int     `json:"max_trades_day"`
	MaxOpenRiskR    float64 `json:"max_open_risk_r"`
}

// CostsConfig is the transaction cost model (per side unless noted).
type CostsConfig struct {
	SlippageTicksPerSide float64 `json:"slippage_ticks_per_side"`
	FeesPerContract      float64 `json:"fees_per_contract"`
	RoundTripFees        bool    `json:"round_trip_fees"`
}

// RiskConfig is the position sizing and limits configuration.
type RiskConfig struct {
	DollarsPerR float64      `json:"dollars_per_r"`
	PreferMicro bool         `json:"prefer_micro"`
	Limits      LimitsConfig `json:"limits"`
	Costs       CostsConfig  `json:"costs"`
}

// BacktestConfig controls the engine driver.
type BacktestConfig struct {
	WarmupBars int `json:"warmup_bars"`
}

// MonteCarloConfig controls the bootstrap resampler.
type MonteCarloConfig struct {
	Simulations      int       `json:"simulations"`
	ConfidenceLevels []float64 `json:"confidence_levels"`
	Seed             int64     `json:"seed"`
}

// Config is the full engine configuration. All components consume it read-only.
type Config struct {
	Market     MarketConfig     `json:"market"`
	Strategy   StrategyConfig   `json:"strategy"`
	Risk       RiskConfig       `json:"risk"`
	Backtest   BacktestConfig   `json:"backtest"`
	MonteCarlo MonteCarloConfig `json:"monte_carlo"`
}

// Default returns the baseline configuration for NQ 1-minute simulation.
func Default() *Config {
	return &Config{
		Market: MarketConfig{
			Symbol:              "NQ",
			Timezone:            "America/New_York",
			RTHOpen:             "09:30",
			RTHClose:            "16:00",
			SessionRolloverHour: 18,
			OpeningRangeMinutes: 30,
		},
		Strategy: StrategyConfig{
			MinRR: 1.5,
			MaxRR: 5.0,
			VWAP: VWAPConfig{
				Enabled:        true,
				ATRMultipliers: []float64{0.5, 1.0, 1.5, 2.0},
			},
			OpeningRange: RetestConfig{Enabled: true, ToleranceTicks: 2},
			PriorSession: RetestConfig{Enabled: true, ToleranceTicks: 2},
			Swing:        SwingConfig{Enabled: true, PivotLookback: 5, MinSwingATR: 1.0},
			Scoring: ScoringConfig{
				MinProb:         0.45,
				MaxProb:         0.95,
				TopK:            1,
				UseShrinkage:    false,
				ShrinkageWindow: 100,
				ShrinkageFactor: 0.1,
			},
			Rules: RulesConfig{
				AvoidFirstMinutes:           5,
				AvoidLastMinutes:            5,
				DisableMeanReversionInTrend: true,
				Volatility: VolatilityConfig{
					MinPercentile:   10,
					MaxPercentile:   90,
					Window:          100,
					MinObservations: 10,
				},
			},
		},
		Risk: RiskConfig{
			DollarsPerR: 100,
			PreferMicro: true,
			Limits: LimitsConfig{
				DailyMaxR:       5.0,
				MaxTradesPerDay: 10,
				MaxOpenRiskR:    3.0,
			},
			Costs: CostsConfig{
				SlippageTicksPerSide: 0.5,
				FeesPerContract:      0.50,
				RoundTripFees:        true,
			},
		},
		Backtest: BacktestConfig{WarmupBars: 100},
		MonteCarlo: MonteCarloConfig{
			Simulations:      1000,
			ConfidenceLevels: []float64{0.95, 0.99},
			Seed:             42,
		},
	}
}

// Load reads a JSON config file over the defaults, so a partial file only
// overrides the keys it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.Timezone == "" {
		return fmt.Errorf("market.timezone is required")
	}
	if c.Strategy.MinRR <= 0 || c.Strategy.MaxRR < c.Strategy.MinRR {
		return fmt.Errorf("invalid rr band [%.2f, %.2f]", c.Strategy.MinRR, c.Strategy.MaxRR)
	}
	if c.Strategy.Scoring.MinProb < 0 || c.Strategy.Scoring.MaxProb > 1 ||
		c.Strategy.Scoring.MinProb > c.Strategy.Scoring.MaxProb {
		return fmt.Errorf("invalid prob band [%.2f, %.2f]", c.Strategy.Scoring.MinProb, c.Strategy.Scoring.MaxProb)
	}
	if c.Strategy.Scoring.TopK <= 0 {
		return fmt.Errorf("scoring.top_k must be > 0")
	}
	if c.Risk.DollarsPerR <= 0 {
		return fmt.Errorf("risk.dollars_per_r must be > 0")
	}
	if c.Backtest.WarmupBars < 0 {
		return fmt.Errorf("backtest.warmup_bars must be >= 0")
	}
	if c.MonteCarlo.Simulations <= 0 {
		return fmt.Errorf("monte_carlo.simulations must be > 0")
	}
	for _, cl := range c.MonteCarlo.ConfidenceLevels {
		if cl <= 0 || cl >= 1 {
			return fmt.Errorf("confidence level %v outside (0, 1)", cl)
		}
	}
	for _, w := range c.Strategy.Rules.TradeWindows {
		if w.Start == "" || w.End == "" {
			return fmt.Errorf("trade window requires start and end")
		}
	}
	return nil
}
