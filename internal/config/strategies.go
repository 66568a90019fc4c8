package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY PARAMETERS - hot-reloaded from strategies.json
// ═══════════════════════════════════════════════════════════════════════════════

// AIConfig gates whale mirroring behind the external analyzer.
type AIConfig struct {
	Enabled                bool    `json:"enabled"`
	BlockOnNegative        bool    `json:"block_on_negative"`
	MinConfidenceThreshold float64 `json:"min_confidence_threshold"`
	MaxRequests            int     `json:"max_requests"`
	RateLimitRPS           float64 `json:"rate_limit_rps"`
	MaxConcurrentAI        int     `json:"max_concurrent_ai"`
	QueueTimeout           float64 `json:"queue_timeout"` // seconds
}

// CryptoMarketRules overrides the default risk band for crypto markets.
type CryptoMarketRules struct {
	Enabled                bool            `json:"enabled"`
	StopLossPct            float64         `json:"stop_loss_pct"`
	TakeProfitPct          float64         `json:"take_profit_pct"`
	TakeProfitHoldMinPrice decimal.Decimal `json:"take_profit_hold_min_price"`
	StopLossHoldMinPrice   decimal.Decimal `json:"stop_loss_hold_min_price"`
}

// SelectiveCriteria qualifies a sports market despite the filter: a clear
// favorite resolving soon.
type SelectiveCriteria struct {
	MaxDaysToResolution float64 `json:"max_days_to_resolution"`
	MinFavoriteOdds     float64 `json:"min_favorite_odds"`
}

// SportsFilter blocks (or selectively allows) sports markets.
type SportsFilter struct {
	Enabled              bool              `json:"enabled"`
	AllowSelectiveTrades bool              `json:"allow_selective_trades"`
	SelectiveCriteria    SelectiveCriteria `json:"selective_criteria"`
}

// WhaleMonitorConfig tunes the polling fan-out.
type WhaleMonitorConfig struct {
	BatchSize     int `json:"batch_size"`
	BatchDelayMs  int `json:"batch_delay_ms"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Strategies is the full strategy parameter set. Absent fields keep their
// defaults, so a minimal file with only watched_wallets is valid.
type Strategies struct {
	WatchedWallets []types.WalletTarget `json:"watched_wallets"`

	StopLossPct              float64         `json:"stop_loss_pct"`
	TakeProfitPct            float64         `json:"take_profit_pct"`
	MinSharePrice            decimal.Decimal `json:"min_share_price"`
	PortfolioLogIntervalMins int             `json:"portfolio_log_interval_minutes"`
	MaxBudget                decimal.Decimal `json:"max_budget"`
	MinPositionValue         decimal.Decimal `json:"min_position_value"`
	BlacklistedTokenIDs      []string        `json:"blacklisted_token_ids"`
	RiskCheckIntervalSecs    int             `json:"risk_check_interval_seconds"`
	TakeProfitHoldMinPrice   decimal.Decimal `json:"take_profit_hold_min_price"`
	StopLossHoldMinPrice     decimal.Decimal `json:"stop_loss_hold_min_price"`

	AIAnalysis        AIConfig           `json:"ai_analysis"`
	CryptoMarketRules CryptoMarketRules  `json:"crypto_market_rules"`
	SportsFilter      SportsFilter       `json:"sports_filter"`
	WhaleMonitor      WhaleMonitorConfig `json:"whale_monitor"`
}

// DefaultStrategies returns the parameter set used when strategies.json is
// absent or omits fields.
func DefaultStrategies() *Strategies {
	return &Strategies{
		StopLossPct:              0.20,
		TakeProfitPct:            0.90,
		MinSharePrice:            decimal.NewFromFloat(0.19),
		PortfolioLogIntervalMins: 60,
		MaxBudget:                decimal.NewFromFloat(100.0),
		MinPositionValue:         decimal.NewFromFloat(0.03),
		RiskCheckIntervalSecs:    10,
		TakeProfitHoldMinPrice:   decimal.Zero,
		StopLossHoldMinPrice:     decimal.Zero,
		AIAnalysis: AIConfig{
			Enabled:                false,
			BlockOnNegative:        true,
			MinConfidenceThreshold: 0.6,
			MaxRequests:            100,
			RateLimitRPS:           5.0,
			MaxConcurrentAI:        10,
			QueueTimeout:           120.0,
		},
		CryptoMarketRules: CryptoMarketRules{
			Enabled:                false,
			StopLossPct:            0.20,
			TakeProfitPct:          0.45,
			TakeProfitHoldMinPrice: decimal.NewFromFloat(0.75),
			StopLossHoldMinPrice:   decimal.NewFromFloat(0.75),
		},
		SportsFilter: SportsFilter{
			Enabled:              false,
			AllowSelectiveTrades: false,
			SelectiveCriteria: SelectiveCriteria{
				MaxDaysToResolution: 4.0,
				MinFavoriteOdds:     0.70,
			},
		},
		WhaleMonitor: WhaleMonitorConfig{
			BatchSize:     50,
			BatchDelayMs:  100,
			MaxConcurrent: 20,
		},
	}
}

// LoadStrategies parses the strategy file. A missing file returns defaults
// (the bot idles with no watched wallets); a corrupt file returns a
// ConfigError.
func LoadStrategies(path string) (*Strategies, error) {
	s := DefaultStrategies()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &types.ConfigError{Path: path, Err: err}
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, &types.ConfigError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	return s, nil
}
