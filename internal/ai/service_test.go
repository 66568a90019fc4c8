package ai

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

// scriptedAnalyzer returns a fixed verdict or error and counts calls.
type scriptedAnalyzer struct {
	calls    atomic.Int64
	analysis *types.TradeAnalysis
	err      error

	sports   bool
	crypto   bool
	classErr error
}

func (a *scriptedAnalyzer) AnalyzeTrade(ctx context.Context, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (*types.TradeAnalysis, error) {
	a.calls.Add(1)
	return a.analysis, a.err
}

func (a *scriptedAnalyzer) IsSportsMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	return a.sports, "scripted", a.classErr
}

func (a *scriptedAnalyzer) IsCryptoMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	return a.crypto, "scripted", a.classErr
}

func (a *scriptedAnalyzer) EvaluateSportsSelectivity(ctx context.Context, metadata *types.MarketMetadata, maxDays, minOdds float64) (*types.SportsSelectivityResult, error) {
	return &types.SportsSelectivityResult{Qualifies: false}, a.classErr
}

func newTestService(t *testing.T, analyzer Analyzer, maxRequests int) *Service {
	t.Helper()
	dir := t.TempDir()
	s, err := NewService(ServiceOptions{
		Analyzer:      analyzer,
		MaxRequests:   maxRequests,
		RPS:           100,
		MaxConcurrent: 4,
		QueueTimeout:  time.Second,
		CachePath:     filepath.Join(dir, "ai_analysis_cache.json"),
		StatePath:     filepath.Join(dir, "ai_state.json"),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func testEvent(tokenID string) *types.TradeEvent {
	return &types.TradeEvent{
		TokenID:      tokenID,
		SourceWallet: "0xwhale",
		WalletName:   "whale",
		Side:         types.SideBuy,
		Price:        decimal.NewFromFloat(0.42),
		UsdSize:      decimal.NewFromInt(5000),
	}
}

func testMetadata(tokenID string) *types.MarketMetadata {
	return &types.MarketMetadata{TokenID: tokenID, Title: "Test market", Question: "Will it?"}
}

func TestServiceCachesVerdictPerToken(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{analysis: &types.TradeAnalysis{ShouldTrade: true, Confidence: 0.9}}
	s := newTestService(t, analyzer, 10)
	ctx := context.Background()

	ok, _ := s.ShouldExecuteTrade(ctx, "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{})
	if !ok {
		t.Fatal("first verdict should approve")
	}
	ok, verdict := s.ShouldExecuteTrade(ctx, "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{})
	if !ok {
		t.Fatal("cached verdict should approve")
	}
	if verdict.Confidence != 0.9 {
		t.Errorf("cached confidence = %v, want 0.9", verdict.Confidence)
	}

	if got := analyzer.calls.Load(); got != 1 {
		t.Errorf("analyzer calls = %d, want 1 (second lookup from cache)", got)
	}
	if got := s.RequestCount(); got != 1 {
		t.Errorf("request count = %d, want 1 (cache hits are free)", got)
	}
}

func TestServiceRequestBudgetBlocks(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{analysis: &types.TradeAnalysis{ShouldTrade: true, Confidence: 0.9}}
	s := newTestService(t, analyzer, 1)
	ctx := context.Background()

	if ok, _ := s.ShouldExecuteTrade(ctx, "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{}); !ok {
		t.Fatal("first trade should pass within budget")
	}

	ok, verdict := s.ShouldExecuteTrade(ctx, "tok-2", testEvent("tok-2"), testMetadata("tok-2"), &types.MarketDepth{})
	if ok {
		t.Fatal("budget-exhausted verdict must block")
	}
	if verdict.ShouldTrade || verdict.Confidence != 0 {
		t.Errorf("fallback verdict = %+v, want blocking with zero confidence", verdict)
	}
	if got := analyzer.calls.Load(); got != 1 {
		t.Errorf("analyzer calls = %d, want 1 (budget blocks before the analyzer)", got)
	}

	// The cached token stays answerable after the budget is spent.
	if ok, _ := s.ShouldExecuteTrade(ctx, "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{}); !ok {
		t.Error("cache hit should still approve after budget exhaustion")
	}
}

func TestServiceCircuitBreakerTripsAndBlocks(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{err: errors.New("upstream down")}
	s := newTestService(t, analyzer, 0)
	s.UpdateCircuitBreakerConfig(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok := string(rune('a' + i))
		if ok, _ := s.ShouldExecuteTrade(ctx, tok, testEvent(tok), testMetadata(tok), &types.MarketDepth{}); ok {
			t.Fatalf("failure %d should block", i)
		}
	}
	if got := analyzer.calls.Load(); got != 3 {
		t.Fatalf("analyzer calls = %d, want 3 before the breaker opens", got)
	}

	// Breaker open: blocked without touching the analyzer.
	ok, verdict := s.ShouldExecuteTrade(ctx, "z", testEvent("z"), testMetadata("z"), &types.MarketDepth{})
	if ok {
		t.Fatal("open circuit must block")
	}
	if verdict.ShouldTrade {
		t.Error("open-circuit verdict must not approve")
	}
	if got := analyzer.calls.Load(); got != 3 {
		t.Errorf("analyzer calls = %d, want 3 (open circuit skips the analyzer)", got)
	}
}

func TestServiceCircuitBreakerClosesAfterCooldown(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{err: errors.New("upstream down")}
	s := newTestService(t, analyzer, 0)
	s.UpdateCircuitBreakerConfig(2, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		tok := string(rune('a' + i))
		s.ShouldExecuteTrade(ctx, tok, testEvent(tok), testMetadata(tok), &types.MarketDepth{})
	}
	before := analyzer.calls.Load()

	time.Sleep(80 * time.Millisecond)
	analyzer.err = nil
	analyzer.analysis = &types.TradeAnalysis{ShouldTrade: true, Confidence: 0.8}

	ok, _ := s.ShouldExecuteTrade(ctx, "fresh", testEvent("fresh"), testMetadata("fresh"), &types.MarketDepth{})
	if !ok {
		t.Fatal("trade after cooldown should reach the recovered analyzer")
	}
	if got := analyzer.calls.Load(); got != before+1 {
		t.Errorf("analyzer calls = %d, want %d (circuit closed after cooldown)", got, before+1)
	}
}

func TestServiceStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	opts := ServiceOptions{
		Analyzer:      &scriptedAnalyzer{analysis: &types.TradeAnalysis{ShouldTrade: true, Confidence: 0.7}},
		MaxRequests:   10,
		RPS:           100,
		MaxConcurrent: 4,
		QueueTimeout:  time.Second,
		CachePath:     filepath.Join(dir, "ai_analysis_cache.json"),
		StatePath:     filepath.Join(dir, "ai_state.json"),
	}
	s1, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	s1.ShouldExecuteTrade(context.Background(), "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{})

	failing := &scriptedAnalyzer{err: errors.New("should not be called")}
	opts.Analyzer = failing
	s2, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService reload: %v", err)
	}
	if got := s2.RequestCount(); got != 1 {
		t.Errorf("request count after restart = %d, want 1", got)
	}
	ok, _ := s2.ShouldExecuteTrade(context.Background(), "tok-1", testEvent("tok-1"), testMetadata("tok-1"), &types.MarketDepth{})
	if !ok {
		t.Error("restored cache should answer without the analyzer")
	}
	if failing.calls.Load() != 0 {
		t.Error("restored cache hit must not call the analyzer")
	}
}

func TestSportsFilterDisabledPassesEverything(t *testing.T) {
	t.Parallel()
	s := newTestService(t, &scriptedAnalyzer{sports: true}, 0)

	blocked, _ := s.CheckSportsFilter(context.Background(), "tok-1", testMetadata("tok-1"))
	if blocked {
		t.Error("disabled filter must not block")
	}
}

func TestSportsFilterBlocksSportsMarkets(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{sports: true}
	s := newTestService(t, analyzer, 0)
	s.UpdateSportsFilterConfig(true, false, 4, 0.7)

	blocked, reason := s.CheckSportsFilter(context.Background(), "tok-1", testMetadata("tok-1"))
	if !blocked {
		t.Fatal("sports market should be blocked")
	}
	if reason == "" {
		t.Error("expected a block reason")
	}

	// Non-sports market passes.
	analyzer2 := &scriptedAnalyzer{sports: false}
	s2 := newTestService(t, analyzer2, 0)
	s2.UpdateSportsFilterConfig(true, false, 4, 0.7)
	blocked, _ = s2.CheckSportsFilter(context.Background(), "tok-2", testMetadata("tok-2"))
	if blocked {
		t.Error("non-sports market must pass")
	}
}

func TestSportsFilterClassificationFailureDoesNotBlock(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{classErr: errors.New("model unavailable")}
	s := newTestService(t, analyzer, 0)
	s.UpdateSportsFilterConfig(true, false, 4, 0.7)

	blocked, _ := s.CheckSportsFilter(context.Background(), "tok-1", testMetadata("tok-1"))
	if blocked {
		t.Error("classification failure must not block (filter is an exclusion)")
	}
}

func TestCheckCryptoMarket(t *testing.T) {
	t.Parallel()
	analyzer := &scriptedAnalyzer{crypto: true}
	s := newTestService(t, analyzer, 0)

	// Disabled: always false.
	isCrypto, _ := s.CheckCryptoMarket(context.Background(), "tok-1", testMetadata("tok-1"))
	if isCrypto {
		t.Error("disabled crypto rules must report false")
	}

	s.UpdateCryptoMarketConfig(true)
	isCrypto, _ = s.CheckCryptoMarket(context.Background(), "tok-1", testMetadata("tok-1"))
	if !isCrypto {
		t.Error("crypto market should classify as crypto when enabled")
	}
}
