package ai

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polywhale/types"
)

// MockAnalyzer returns canned verdicts. Used in dry runs when no API key is
// configured, and in tests.
type MockAnalyzer struct {
	DefaultApproval bool
}

// NewMockAnalyzer builds a mock that approves every trade when
// defaultApproval is true and rejects every trade otherwise.
func NewMockAnalyzer(defaultApproval bool) *MockAnalyzer {
	log.Info().Bool("default_approval", defaultApproval).Msg("🤖 Mock analyzer active")
	return &MockAnalyzer{DefaultApproval: defaultApproval}
}

func (m *MockAnalyzer) AnalyzeTrade(ctx context.Context, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (*types.TradeAnalysis, error) {
	log.Info().Str("market", metadata.Title).Msg("🤖 [MOCK] Analyzing trade")

	if m.DefaultApproval {
		return &types.TradeAnalysis{
			ShouldTrade:        true,
			Confidence:         1.0,
			Justification:      "Mock analyzer - automatically approved for testing",
			RiskFactors:        []string{},
			OpportunityFactors: []string{"Mock mode enabled", "Testing configuration"},
		}, nil
	}
	return &types.TradeAnalysis{
		ShouldTrade:        false,
		Confidence:         1.0,
		Justification:      "Mock analyzer - configured to reject all trades",
		RiskFactors:        []string{"Mock rejection mode enabled"},
		OpportunityFactors: []string{},
	}, nil
}

func (m *MockAnalyzer) IsSportsMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	return false, "mock classification", nil
}

func (m *MockAnalyzer) IsCryptoMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	return false, "mock classification", nil
}

func (m *MockAnalyzer) EvaluateSportsSelectivity(ctx context.Context, metadata *types.MarketMetadata, maxDaysToResolution, minFavoriteOdds float64) (*types.SportsSelectivityResult, error) {
	return &types.SportsSelectivityResult{
		Qualifies:     m.DefaultApproval,
		Confidence:    1.0,
		Justification: "mock selectivity verdict",
	}, nil
}
