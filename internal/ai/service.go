package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polywhale/internal/statefile"
	"github.com/web3guy0/polywhale/types"
)

// Analyzer is the external model boundary. The Gemini client and the mock
// both satisfy it.
type Analyzer interface {
	AnalyzeTrade(ctx context.Context, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (*types.TradeAnalysis, error)
	IsSportsMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error)
	IsCryptoMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error)
	EvaluateSportsSelectivity(ctx context.Context, metadata *types.MarketMetadata, maxDaysToResolution, minFavoriteOdds float64) (*types.SportsSelectivityResult, error)
}

// MarketDataSource resolves metadata and order books when the caller did not
// supply them. The exchange provider satisfies it.
type MarketDataSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.MarketDepth, error)
	GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata
}

const (
	defaultCircuitThreshold = 3
	defaultCircuitCooldown  = 5 * time.Minute
)

// classification is one cached sports/crypto verdict.
type classification struct {
	Match  bool   `json:"match"`
	Reason string `json:"reason"`
}

// aiState is the persisted request counter (ai_state.json).
type aiState struct {
	RequestCount int `json:"request_count"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ANALYSIS SERVICE - cache, budget, circuit breaker, rate limiting
// ═══════════════════════════════════════════════════════════════════════════════

// Service decides whether a whale-mirroring BUY should proceed. Verdicts are
// cached per token, counted against a request budget, and guarded by a
// circuit breaker so a failing upstream stops being called for a cooldown.
// Every failure path returns a blocking verdict, never an approval.
type Service struct {
	analyzer Analyzer
	limiter  *RateLimiter
	market   MarketDataSource

	cacheStore *statefile.Store
	stateStore *statefile.Store

	mu           sync.Mutex
	cache        map[string]*types.TradeAnalysis
	requestCount int
	maxRequests  int

	consecutiveFailures int
	circuitThreshold    int
	circuitCooldown     time.Duration
	circuitOpenUntil    time.Time

	sportsEnabled       bool
	sportsSelective     bool
	maxDaysToResolution float64
	minFavoriteOdds     float64
	sportsCache         map[string]classification

	cryptoEnabled bool
	cryptoCache   map[string]classification
}

// ServiceOptions wires the service's collaborators and initial limits.
type ServiceOptions struct {
	Analyzer      Analyzer
	Market        MarketDataSource
	MaxRequests   int
	RPS           float64
	MaxConcurrent int
	QueueTimeout  time.Duration
	CachePath     string // ai_analysis_cache.json
	StatePath     string // ai_state.json
}

// NewService builds the analysis service and restores the verdict cache and
// request counter from disk.
func NewService(opts ServiceOptions) (*Service, error) {
	cacheStore, err := statefile.New(opts.CachePath)
	if err != nil {
		return nil, err
	}
	stateStore, err := statefile.New(opts.StatePath)
	if err != nil {
		return nil, err
	}

	s := &Service{
		analyzer:         opts.Analyzer,
		limiter:          NewRateLimiter(opts.RPS, opts.MaxConcurrent, opts.QueueTimeout),
		market:           opts.Market,
		cacheStore:       cacheStore,
		stateStore:       stateStore,
		cache:            make(map[string]*types.TradeAnalysis),
		maxRequests:      opts.MaxRequests,
		circuitThreshold: defaultCircuitThreshold,
		circuitCooldown:  defaultCircuitCooldown,
		sportsCache:      make(map[string]classification),
		cryptoCache:      make(map[string]classification),
	}

	if ok, err := cacheStore.Load(&s.cache); err != nil {
		log.Warn().Err(err).Msg("🤖 AI cache unreadable, starting empty")
		s.cache = make(map[string]*types.TradeAnalysis)
	} else if ok {
		log.Info().Int("entries", len(s.cache)).Msg("🤖 AI analysis cache loaded")
	}

	var st aiState
	if ok, err := stateStore.Load(&st); err != nil {
		log.Warn().Err(err).Msg("🤖 AI state unreadable, counter reset")
	} else if ok {
		s.requestCount = st.RequestCount
		log.Info().Int("request_count", st.RequestCount).Msg("🤖 AI request counter loaded")
	}

	return s, nil
}

// RateLimiter exposes the limiter for metrics logging.
func (s *Service) RateLimiter() *RateLimiter { return s.limiter }

// fallback is the blocking verdict used on every failure path.
func fallback(reason string) *types.TradeAnalysis {
	return &types.TradeAnalysis{
		ShouldTrade:   false,
		Confidence:    0.0,
		Justification: reason,
		RiskFactors:   []string{"AI analysis unavailable"},
	}
}

// ShouldExecuteTrade returns the verdict for mirroring the given whale BUY.
// Cache hits cost nothing; everything else goes through the request budget,
// the circuit breaker and the rate limiter before reaching the analyzer.
func (s *Service) ShouldExecuteTrade(ctx context.Context, tokenID string, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (bool, *types.TradeAnalysis) {
	// 1. Cache hit: free, no request counted.
	s.mu.Lock()
	if cached, ok := s.cache[tokenID]; ok {
		s.mu.Unlock()
		log.Info().
			Str("token", shortID(tokenID)).
			Bool("should_trade", cached.ShouldTrade).
			Float64("confidence", cached.Confidence).
			Msg("🤖 AI verdict from cache")
		return cached.ShouldTrade, cached
	}

	// 2. Request budget.
	if s.maxRequests > 0 && s.requestCount >= s.maxRequests {
		maxReq := s.maxRequests
		s.mu.Unlock()
		log.Warn().Int("max_requests", maxReq).Msg("🤖 AI request budget exhausted, blocking")
		return false, s.recordFailure(fallback("API request limit reached"))
	}

	// 3. Circuit breaker.
	now := time.Now()
	if now.Before(s.circuitOpenUntil) {
		until := s.circuitOpenUntil
		s.mu.Unlock()
		log.Warn().Time("open_until", until).Msg("🚨 AI circuit open, blocking without analyzer call")
		return false, fallback("circuit breaker open")
	}
	if !s.circuitOpenUntil.IsZero() {
		log.Info().Msg("🚨 AI circuit closed, failure counter reset")
		s.circuitOpenUntil = time.Time{}
		s.consecutiveFailures = 0
	}
	s.mu.Unlock()

	// 4. Resolve missing inputs.
	if metadata == nil && s.market != nil {
		metadata = s.market.GetMarketMetadata(ctx, tokenID)
	}
	if depth == nil && s.market != nil {
		d, err := s.market.GetOrderBook(ctx, tokenID)
		if err != nil {
			log.Warn().Err(err).Str("token", shortID(tokenID)).Msg("🤖 Order book fetch failed for analysis")
			return false, s.recordFailure(fallback(fmt.Sprintf("order book unavailable: %v", err)))
		}
		depth = d
	}
	if metadata == nil {
		metadata = &types.MarketMetadata{TokenID: tokenID, Question: "metadata unavailable"}
	}
	if depth == nil {
		depth = &types.MarketDepth{}
	}

	// 5. Rate-limited analyzer call.
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrQueueTimeout) {
			log.Warn().Msg("🤖 AI rate limiter queue timeout")
			return false, s.recordFailure(fallback("rate limiter queue timeout"))
		}
		return false, s.recordFailure(fallback(fmt.Sprintf("rate limiter: %v", err)))
	}
	analysis, err := s.analyzer.AnalyzeTrade(ctx, event, metadata, depth)
	release()

	// 7. Analyzer failure.
	if err != nil {
		log.Warn().Err(err).Str("token", shortID(tokenID)).Msg("🤖 AI analysis failed")
		return false, s.recordFailure(fallback(fmt.Sprintf("analysis failed: %v", err)))
	}

	// 6. Success: count, cache, persist, reset failures.
	s.mu.Lock()
	s.requestCount++
	count := s.requestCount
	s.cache[tokenID] = analysis
	s.consecutiveFailures = 0
	cacheCopy := make(map[string]*types.TradeAnalysis, len(s.cache))
	for k, v := range s.cache {
		cacheCopy[k] = v
	}
	s.mu.Unlock()

	if err := s.stateStore.Save(aiState{RequestCount: count}); err != nil {
		log.Warn().Err(err).Msg("💾 AI state persist failed")
	}
	if err := s.cacheStore.Save(cacheCopy); err != nil {
		log.Warn().Err(err).Msg("💾 AI cache persist failed")
	}

	log.Info().
		Str("token", shortID(tokenID)).
		Bool("should_trade", analysis.ShouldTrade).
		Float64("confidence", analysis.Confidence).
		Int("requests_used", count).
		Str("justification", analysis.Justification).
		Msg("🤖 AI analysis complete")

	return analysis.ShouldTrade, analysis
}

// recordFailure counts one blocking fallback toward the circuit breaker and
// returns the verdict unchanged.
func (s *Service) recordFailure(analysis *types.TradeAnalysis) *types.TradeAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFailures++
	if s.consecutiveFailures >= s.circuitThreshold && !time.Now().Before(s.circuitOpenUntil) {
		s.circuitOpenUntil = time.Now().Add(s.circuitCooldown)
		log.Error().
			Int("consecutive_failures", s.consecutiveFailures).
			Dur("cooldown", s.circuitCooldown).
			Msg("🚨 AI circuit breaker tripped")
	}
	return analysis
}

// ═══════════════════════════════════════════════════════════════════════════════
// CATEGORY FILTERS
// ═══════════════════════════════════════════════════════════════════════════════

// CheckSportsFilter reports whether the sports filter blocks this market and
// why. Classifications are cached per token; a classification failure never
// blocks (the filter is an exclusion, not a gate).
func (s *Service) CheckSportsFilter(ctx context.Context, tokenID string, metadata *types.MarketMetadata) (bool, string) {
	s.mu.Lock()
	enabled := s.sportsEnabled
	selective := s.sportsSelective
	maxDays := s.maxDaysToResolution
	minOdds := s.minFavoriteOdds
	cached, hit := s.sportsCache[tokenID]
	s.mu.Unlock()

	if !enabled {
		return false, "sports filter disabled"
	}

	var cls classification
	if hit {
		cls = cached
	} else {
		isSports, reason, err := s.analyzer.IsSportsMarket(ctx, metadata)
		if err != nil {
			log.Warn().Err(err).Str("token", shortID(tokenID)).Msg("🏈 Sports classification failed, not blocking")
			return false, "classification unavailable"
		}
		cls = classification{Match: isSports, Reason: reason}
		s.mu.Lock()
		s.sportsCache[tokenID] = cls
		s.mu.Unlock()
	}

	if !cls.Match {
		return false, cls.Reason
	}
	if !selective {
		log.Info().Str("token", shortID(tokenID)).Str("reason", cls.Reason).Msg("🏈 Sports market blocked")
		return true, "sports market: " + cls.Reason
	}

	// Selective mode: a heavy favorite resolving soon still qualifies.
	result, err := s.analyzer.EvaluateSportsSelectivity(ctx, metadata, maxDays, minOdds)
	if err != nil {
		log.Warn().Err(err).Str("token", shortID(tokenID)).Msg("🏈 Selectivity evaluation failed, blocking")
		return true, "sports market: selectivity evaluation failed"
	}
	if result.Qualifies {
		log.Info().
			Str("token", shortID(tokenID)).
			Str("favorite", result.FavoriteEntity).
			Float64("odds", result.FavoriteOdds).
			Float64("hours_to_resolution", result.HoursToResolution).
			Msg("🏈 Sports market qualifies for selective trade")
		return false, "selective qualification: " + result.Justification
	}
	return true, "sports market does not qualify: " + result.Justification
}

// CheckCryptoMarket classifies a market as a crypto price bet. Purely
// informational: the portfolio manager uses it to pick the crypto risk band.
func (s *Service) CheckCryptoMarket(ctx context.Context, tokenID string, metadata *types.MarketMetadata) (bool, string) {
	s.mu.Lock()
	enabled := s.cryptoEnabled
	cached, hit := s.cryptoCache[tokenID]
	s.mu.Unlock()

	if !enabled {
		return false, "crypto rules disabled"
	}
	if hit {
		return cached.Match, cached.Reason
	}

	isCrypto, reason, err := s.analyzer.IsCryptoMarket(ctx, metadata)
	if err != nil {
		log.Warn().Err(err).Str("token", shortID(tokenID)).Msg("🪙 Crypto classification failed")
		return false, "classification unavailable"
	}
	s.mu.Lock()
	s.cryptoCache[tokenID] = classification{Match: isCrypto, Reason: reason}
	s.mu.Unlock()
	return isCrypto, reason
}

// ═══════════════════════════════════════════════════════════════════════════════
// LIVE RECONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// UpdateSportsFilterConfig applies new sports filter parameters.
func (s *Service) UpdateSportsFilterConfig(enabled, allowSelective bool, maxDaysToResolution, minFavoriteOdds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sportsEnabled = enabled
	s.sportsSelective = allowSelective
	s.maxDaysToResolution = maxDaysToResolution
	s.minFavoriteOdds = minFavoriteOdds
}

// UpdateCryptoMarketConfig toggles crypto market classification.
func (s *Service) UpdateCryptoMarketConfig(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cryptoEnabled = enabled
}

// UpdateMaxRequests replaces the request budget. Zero disables the cap.
func (s *Service) UpdateMaxRequests(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n != s.maxRequests {
		log.Info().Int("max_requests", n).Msg("🤖 AI request budget updated")
		s.maxRequests = n
	}
}

// UpdateRateLimitConfig forwards new limits to the rate limiter.
func (s *Service) UpdateRateLimitConfig(rps float64, maxConcurrent int, queueTimeout time.Duration) {
	s.limiter.UpdateConfig(rps, maxConcurrent, queueTimeout)
}

// UpdateCircuitBreakerConfig replaces breaker parameters. Non-positive
// values leave the current setting unchanged.
func (s *Service) UpdateCircuitBreakerConfig(threshold int, cooldown time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if threshold > 0 {
		s.circuitThreshold = threshold
	}
	if cooldown > 0 {
		s.circuitCooldown = cooldown
	}
}

// RequestCount returns how many analyzer calls have been spent.
func (s *Service) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount
}

func shortID(tokenID string) string {
	if len(tokenID) <= 16 {
		return tokenID
	}
	return tokenID[:16] + "..."
}
