package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

func TestDefaultStrategies(t *testing.T) {
	t.Parallel()
	s := DefaultStrategies()

	if s.StopLossPct != 0.20 {
		t.Errorf("stop loss = %v, want 0.20", s.StopLossPct)
	}
	if s.TakeProfitPct != 0.90 {
		t.Errorf("take profit = %v, want 0.90", s.TakeProfitPct)
	}
	if !s.MinSharePrice.Equal(decimal.NewFromFloat(0.19)) {
		t.Errorf("min share price = %v, want 0.19", s.MinSharePrice)
	}
	if !s.MaxBudget.Equal(decimal.NewFromFloat(100.0)) {
		t.Errorf("max budget = %v, want 100", s.MaxBudget)
	}
	if s.RiskCheckIntervalSecs != 10 {
		t.Errorf("risk interval = %d, want 10", s.RiskCheckIntervalSecs)
	}
	if len(s.WatchedWallets) != 0 {
		t.Errorf("default watched wallets = %d, want none", len(s.WatchedWallets))
	}
	if s.AIAnalysis.Enabled {
		t.Error("AI analysis should default to disabled")
	}
	if !s.AIAnalysis.BlockOnNegative {
		t.Error("block_on_negative should default to true")
	}
	if s.CryptoMarketRules.TakeProfitPct != 0.45 {
		t.Errorf("crypto take profit = %v, want 0.45", s.CryptoMarketRules.TakeProfitPct)
	}
	if s.WhaleMonitor.BatchSize != 50 {
		t.Errorf("batch size = %d, want 50", s.WhaleMonitor.BatchSize)
	}
}

func TestLoadStrategiesMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	s, err := LoadStrategies(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}
	if s.StopLossPct != 0.20 || len(s.WatchedWallets) != 0 {
		t.Errorf("missing file should yield defaults, got %+v", s)
	}
}

func TestLoadStrategiesPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "strategies.json")
	data := `{
		"watched_wallets": [{"address": "0xabc", "name": "whale-1"}],
		"max_budget": "250",
		"ai_analysis": {"enabled": true, "max_requests": 7}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadStrategies(path)
	if err != nil {
		t.Fatalf("LoadStrategies: %v", err)
	}

	if len(s.WatchedWallets) != 1 || s.WatchedWallets[0].Address != "0xabc" {
		t.Errorf("watched wallets = %+v", s.WatchedWallets)
	}
	if !s.MaxBudget.Equal(decimal.NewFromInt(250)) {
		t.Errorf("max budget = %v, want 250", s.MaxBudget)
	}
	if !s.AIAnalysis.Enabled || s.AIAnalysis.MaxRequests != 7 {
		t.Errorf("ai analysis = %+v", s.AIAnalysis)
	}

	// Everything the file omits keeps its default.
	if s.StopLossPct != 0.20 {
		t.Errorf("stop loss = %v, want the 0.20 default", s.StopLossPct)
	}
	if s.CryptoMarketRules.TakeProfitPct != 0.45 {
		t.Errorf("crypto take profit = %v, want the 0.45 default", s.CryptoMarketRules.TakeProfitPct)
	}
}

func TestLoadStrategiesCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "strategies.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadStrategies(path)
	if err == nil {
		t.Fatal("expected an error for a corrupt file")
	}
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %T, want *types.ConfigError", err)
	}
}
