// Package portfolio orchestrates the copy-trading control plane: the entry
// pipeline that mirrors whale BUYs and the periodic risk scan that
// liquidates positions through stop-loss and take-profit bands.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/exchange"
	"github.com/web3guy0/polywhale/internal/statefile"
	"github.com/web3guy0/polywhale/internal/tradelog"
	"github.com/web3guy0/polywhale/types"
)

// minOrderUSD is the target notional for one mirrored BUY.
var minOrderUSD = decimal.NewFromInt(2)

// minTradableBalance is the balance floor below which entries are skipped.
var minTradableBalance = decimal.NewFromInt(1)

// stopLossFloor is the SELL floor used for full stop-loss liquidation.
var stopLossFloor = decimal.NewFromFloat(0.01)

// tpFloorFactor discounts the current price to build the take-profit floor.
var tpFloorFactor = decimal.NewFromFloat(0.9)

// AIGate is the slice of the analysis service the manager needs.
type AIGate interface {
	ShouldExecuteTrade(ctx context.Context, tokenID string, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (bool, *types.TradeAnalysis)
	CheckSportsFilter(ctx context.Context, tokenID string, metadata *types.MarketMetadata) (bool, string)
	CheckCryptoMarket(ctx context.Context, tokenID string, metadata *types.MarketMetadata) (bool, string)
}

// ExitExecutor drains a position down to a price floor.
type ExitExecutor interface {
	ExitPosition(ctx context.Context, tokenID string, totalSize, minPrice decimal.Decimal, marketName string) (decimal.Decimal, error)
}

// TradeRecorder persists executed trades to the history database.
type TradeRecorder interface {
	RecordTrade(tokenID, market, side, action string, size, price, notional decimal.Decimal) error
}

// RiskParams are the live-reloadable risk thresholds.
type RiskParams struct {
	StopLossPct       float64
	TakeProfitPct     float64
	MinSharePrice     decimal.Decimal
	MaxBudget         decimal.Decimal
	MinPositionValue  decimal.Decimal
	Blacklist         []string
	RiskCheckInterval time.Duration
	TPHoldMinPrice    decimal.Decimal
	SLHoldMinPrice    decimal.Decimal
}

// AIPolicy controls the AI gate in the entry pipeline.
type AIPolicy struct {
	Enabled         bool
	BlockOnNegative bool
	MinConfidence   float64
}

// CryptoRules is the alternate risk band for crypto price markets.
type CryptoRules struct {
	Enabled        bool
	StopLossPct    float64
	TakeProfitPct  float64
	TPHoldMinPrice decimal.Decimal
	SLHoldMinPrice decimal.Decimal
}

// TradeAlert is pushed to the notification callback after every executed
// trade.
type TradeAlert struct {
	Action   string // OPEN, TAKE_PROFIT, STOP_LOSS
	Market   string
	Outcome  string
	TokenID  string
	Side     types.Side
	Size     decimal.Decimal
	Price    decimal.Decimal
	Notional decimal.Decimal
	Whale    string
	ROI      float64
}

// Snapshot is the manager's state for status displays.
type Snapshot struct {
	TradingEnabled  bool
	CumulativeSpend decimal.Decimal
	MaxBudget       decimal.Decimal
	ManagedTokens   int
	DryRun          bool
}

// Manager consumes whale TradeEvents, runs the entry pipeline, and scans
// every open position for exits on a fixed interval.
type Manager struct {
	provider exchange.Provider
	aiSvc    AIGate
	executor ExitExecutor
	tradeLog *tradelog.Logger
	recorder TradeRecorder

	events <-chan types.TradeEvent
	dryRun bool

	overrideDir    string
	overrideWindow time.Duration

	stateStore *statefile.Store

	mu             sync.Mutex
	risk           RiskParams
	aiPolicy       AIPolicy
	cryptoRules    CryptoRules
	blacklist      map[string]bool
	cumulative     decimal.Decimal
	managed        map[string]bool
	tradingEnabled bool
	logInterval    time.Duration

	onTrade func(TradeAlert)

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Options wires the manager's collaborators.
type Options struct {
	Provider  exchange.Provider
	AI        AIGate // nil disables the AI gate and category filters
	Executor  ExitExecutor
	TradeLog  *tradelog.Logger
	Recorder  TradeRecorder // nil skips DB history
	Events    <-chan types.TradeEvent
	StatePath string // bot_state.json
	DryRun    bool

	Risk        RiskParams
	AIPolicy    AIPolicy
	CryptoRules CryptoRules
	LogInterval time.Duration

	OverrideDir    string        // manual-override marker dir (default /tmp/polybot_override)
	OverrideWindow time.Duration // manual-override approval window (default 10s)
}

// NewManager restores the spend ledger and builds the manager.
func NewManager(opts Options) (*Manager, error) {
	store, err := statefile.New(opts.StatePath)
	if err != nil {
		return nil, err
	}
	st := loadBotState(store)

	if opts.Risk.RiskCheckInterval <= 0 {
		opts.Risk.RiskCheckInterval = 10 * time.Second
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = time.Hour
	}
	if opts.OverrideDir == "" {
		opts.OverrideDir = defaultOverrideDir
	}
	if opts.OverrideWindow <= 0 {
		opts.OverrideWindow = defaultOverrideWindow
	}

	m := &Manager{
		provider:       opts.Provider,
		aiSvc:          opts.AI,
		executor:       opts.Executor,
		tradeLog:       opts.TradeLog,
		recorder:       opts.Recorder,
		events:         opts.Events,
		dryRun:         opts.DryRun,
		overrideDir:    opts.OverrideDir,
		overrideWindow: opts.OverrideWindow,
		stateStore:     store,
		risk:           opts.Risk,
		aiPolicy:       opts.AIPolicy,
		cryptoRules:    opts.CryptoRules,
		blacklist:      make(map[string]bool),
		cumulative:     st.CumulativeSpend,
		managed:        managedSet(st.ManagedTokens),
		tradingEnabled: true,
		logInterval:    opts.LogInterval,
		stopCh:         make(chan struct{}),
	}
	for _, id := range opts.Risk.Blacklist {
		m.blacklist[id] = true
	}
	return m, nil
}

// SetTradeCallback registers the notification hook (Telegram).
func (m *Manager) SetTradeCallback(fn func(TradeAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrade = fn
}

// Start launches the event consumer, the risk scan loop and the portfolio
// log loop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(3)
	go m.consumeEvents()
	go m.riskLoop()
	go m.portfolioLogLoop()
	log.Info().Msg("📈 Portfolio manager started")
}

// Stop terminates all loops.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	log.Info().Msg("📈 Portfolio manager stopped")
}

// SetTradingEnabled pauses or resumes entries (/pause and /resume). The
// risk scan keeps protecting existing positions either way.
func (m *Manager) SetTradingEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradingEnabled = enabled
}

// GetSnapshot reports the manager's state for status displays.
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TradingEnabled:  m.tradingEnabled,
		CumulativeSpend: m.cumulative,
		MaxBudget:       m.risk.MaxBudget,
		ManagedTokens:   len(m.managed),
		DryRun:          m.dryRun,
	}
}

// UpdateRiskParams applies new thresholds from a config reload.
func (m *Manager) UpdateRiskParams(p RiskParams) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.RiskCheckInterval <= 0 {
		p.RiskCheckInterval = m.risk.RiskCheckInterval
	}
	m.risk = p
	m.blacklist = make(map[string]bool, len(p.Blacklist))
	for _, id := range p.Blacklist {
		m.blacklist[id] = true
	}
}

// UpdateAIPolicy applies a new AI gate policy.
func (m *Manager) UpdateAIPolicy(p AIPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aiPolicy = p
}

// UpdateCryptoRules applies the crypto risk band.
func (m *Manager) UpdateCryptoRules(r CryptoRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cryptoRules = r
}

// UpdateLogInterval applies the portfolio log cadence.
func (m *Manager) UpdateLogInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.logInterval = d
	}
}

func (m *Manager) consumeEvents() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.events:
			if !ok {
				return
			}
			m.OnTradeEvent(context.Background(), event)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// ENTRY PIPELINE
// ═══════════════════════════════════════════════════════════════════════════════

// OnTradeEvent runs the entry pipeline for one whale trade. Every failure
// converts to "skip this event"; the monitor keeps running regardless.
func (m *Manager) OnTradeEvent(ctx context.Context, event types.TradeEvent) {
	if event.Side != types.SideBuy {
		log.Debug().Str("wallet", event.WalletName).Msg("📈 Ignoring whale SELL")
		return
	}

	m.mu.Lock()
	enabled := m.tradingEnabled
	blacklisted := m.blacklist[event.TokenID]
	aiPolicy := m.aiPolicy
	minSharePrice := m.risk.MinSharePrice
	maxBudget := m.risk.MaxBudget
	m.mu.Unlock()

	if !enabled {
		log.Info().Str("wallet", event.WalletName).Msg("⏸️ Trading paused, skipping whale signal")
		return
	}

	// 1. Metadata for logging and the category filters.
	metadata := m.provider.GetMarketMetadata(ctx, event.TokenID)
	market := metadata.Title
	if market == "" {
		market = event.MarketSlug
	}

	// 2. Blacklist.
	if blacklisted {
		log.Info().Str("market", market).Msg("🚫 Token blacklisted, skipping")
		return
	}

	// 3. Sports filter.
	if m.aiSvc != nil {
		if blocked, reason := m.aiSvc.CheckSportsFilter(ctx, event.TokenID, metadata); blocked {
			log.Info().Str("market", market).Str("reason", reason).Msg("🏈 Sports filter blocked trade")
			return
		}
	}

	// 4. Order book.
	depth, err := m.provider.GetOrderBook(ctx, event.TokenID)
	if err != nil {
		log.Warn().Err(err).Str("market", market).Msg("📊 Order book unavailable, skipping")
		return
	}

	// 5. AI gate.
	aiApproved, analysis, overridden := m.runAIGate(ctx, event, metadata, depth, aiPolicy, market)
	if !aiApproved {
		return
	}

	// 6. Balance.
	balance, err := m.provider.GetBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("💰 Balance check failed, skipping")
		return
	}
	if balance.LessThan(minTradableBalance) {
		log.Warn().Str("balance", balance.StringFixed(2)).Msg("💰 Balance too low, skipping")
		return
	}

	// 7. Best ask against the minimum share price.
	ask, ok := depth.BestAsk()
	if !ok {
		log.Info().Str("market", market).Msg("📊 No asks, skipping")
		return
	}
	if ask.Price.LessThan(minSharePrice) {
		log.Info().
			Str("market", market).
			Str("best_ask", ask.Price.String()).
			Str("min_share_price", minSharePrice.String()).
			Msg("📉 Best ask below minimum share price, skipping")
		return
	}

	// 8. Sizing: a ~$2 notional, floored at the exchange's 5-share minimum.
	limitPrice := exchange.Floor2(ask.Price)
	if !limitPrice.IsPositive() {
		return
	}
	size := exchange.Floor2(minOrderUSD.Div(limitPrice))
	if size.LessThan(exchange.MinOrderSize) {
		size = exchange.MinOrderSize
	}
	cost := exchange.Floor2(size.Mul(limitPrice))

	// 9. Cumulative budget. Spending exactly to the cap is allowed.
	m.mu.Lock()
	if m.cumulative.Add(cost).GreaterThan(maxBudget) {
		spent := m.cumulative
		m.mu.Unlock()
		log.Warn().
			Str("spent", spent.StringFixed(2)).
			Str("cost", cost.StringFixed(2)).
			Str("max_budget", maxBudget.StringFixed(2)).
			Msg("💰 Budget cap would be exceeded, skipping")
		return
	}
	m.mu.Unlock()

	// 10. Submit.
	order := &types.Order{
		TokenID:    event.TokenID,
		MarketName: market,
		Side:       types.SideBuy,
		Size:       size,
		PriceLimit: limitPrice,
		Status:     types.OrderPending,
	}
	if _, err := m.provider.PlaceOrder(ctx, order); err != nil {
		log.Error().Err(err).Str("market", market).Msg("❌ Mirror BUY failed")
		return
	}

	spend := size.Mul(limitPrice)
	m.mu.Lock()
	m.cumulative = m.cumulative.Add(spend)
	m.managed[event.TokenID] = true
	st := BotState{CumulativeSpend: m.cumulative, ManagedTokens: managedList(m.managed)}
	onTrade := m.onTrade
	risk := m.risk
	m.mu.Unlock()

	if err := m.stateStore.Save(st); err != nil {
		log.Warn().Err(err).Msg("💾 Bot state persist failed")
	}

	log.Info().
		Str("market", market).
		Str("size", size.String()).
		Str("price", limitPrice.String()).
		Str("cost", spend.StringFixed(2)).
		Str("whale", event.WalletName).
		Msg("✅ Whale BUY mirrored")

	m.recordTrade(tradelog.Entry{
		Timestamp:      time.Now().UTC(),
		Action:         "OPEN",
		TokenID:        event.TokenID,
		Market:         market,
		Outcome:        event.Outcome,
		Side:           string(types.SideBuy),
		Size:           size,
		Price:          limitPrice,
		Notional:       spend,
		WhaleWallet:    event.SourceWallet,
		AIShouldTrade:  analysisVerdict(analysis),
		AIConfidence:   analysisConfidence(analysis),
		ManualOverride: overridden,
		StopLossPct:    risk.StopLossPct,
		TakeProfitPct:  risk.TakeProfitPct,
		MinSharePrice:  risk.MinSharePrice,
		MaxBudget:      risk.MaxBudget,
		DryRun:         m.dryRun,
	}, "OPEN", event.TokenID, market, string(types.SideBuy), size, limitPrice, spend)

	if onTrade != nil {
		onTrade(TradeAlert{
			Action:   "OPEN",
			Market:   market,
			Outcome:  event.Outcome,
			TokenID:  event.TokenID,
			Side:     types.SideBuy,
			Size:     size,
			Price:    limitPrice,
			Notional: spend,
			Whale:    event.WalletName,
		})
	}
}

// runAIGate applies step 5 of the entry pipeline. Returns whether the trade
// may proceed, the analysis (may be nil when the gate is off) and whether a
// manual override pushed it through.
func (m *Manager) runAIGate(ctx context.Context, event types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth, policy AIPolicy, market string) (bool, *types.TradeAnalysis, bool) {
	if !policy.Enabled || m.aiSvc == nil {
		return true, nil, false
	}

	shouldTrade, analysis := m.aiSvc.ShouldExecuteTrade(ctx, event.TokenID, &event, metadata, depth)
	if shouldTrade {
		return true, analysis, false
	}
	if !policy.BlockOnNegative {
		log.Info().Str("market", market).Msg("🤖 AI negative but blocking disabled, proceeding")
		return true, analysis, false
	}

	if analysis != nil && analysis.Confidence >= policy.MinConfidence {
		// High-confidence rejection: the operator gets a short window to
		// push the trade through anyway.
		if awaitManualOverride(m.overrideDir, m.overrideWindow, market) {
			return true, analysis, true
		}
		log.Info().
			Str("market", market).
			Float64("confidence", analysis.Confidence).
			Msg("🤖 AI rejection upheld, skipping")
		return false, analysis, false
	}

	// Low-confidence rejection is a soft pass.
	log.Info().
		Str("market", market).
		Float64("confidence", analysisConfidence(analysis)).
		Float64("threshold", policy.MinConfidence).
		Msg("🤖 AI rejection below confidence threshold, proceeding")
	return true, analysis, false
}

// ═══════════════════════════════════════════════════════════════════════════════
// RISK SCAN
// ═══════════════════════════════════════════════════════════════════════════════

func (m *Manager) riskLoop() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		interval := m.risk.RiskCheckInterval
		m.mu.Unlock()

		select {
		case <-m.stopCh:
			return
		case <-time.After(interval):
			m.monitorRisks(context.Background())
		}
	}
}

// monitorRisks checks every open position concurrently. Per-position errors
// are isolated so one bad market cannot stall the scan.
func (m *Manager) monitorRisks(ctx context.Context) {
	m.mu.Lock()
	minValue := m.risk.MinPositionValue
	m.mu.Unlock()

	positions, err := m.provider.GetPositions(ctx, minValue)
	if err != nil {
		log.Warn().Err(err).Msg("📊 Position fetch failed, skipping risk scan")
		return
	}
	if len(positions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, pos := range positions {
		if !pos.Size.IsPositive() {
			continue
		}
		wg.Add(1)
		go func(p types.Position) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("token", p.TokenID).Msg("🚨 Risk check panicked")
				}
			}()
			m.checkPosition(ctx, p)
		}(pos)
	}
	wg.Wait()
}

// checkPosition marks one position to market and fires stop-loss or
// take-profit, respecting the hold bands.
func (m *Manager) checkPosition(ctx context.Context, pos types.Position) {
	metadata := m.provider.GetMarketMetadata(ctx, pos.TokenID)
	market := metadata.Title
	if market == "" {
		market = pos.Title
	}

	marketPrice := m.resolveMarketPrice(ctx, pos.TokenID, metadata)
	if !marketPrice.IsPositive() {
		log.Debug().Str("market", market).Msg("📊 Illiquid position, skipping check")
		return
	}
	if !pos.AvgEntryPrice.IsPositive() {
		return
	}

	entry, _ := pos.AvgEntryPrice.Float64()
	price, _ := marketPrice.Float64()
	roi := (price - entry) / entry

	slPct, tpPct, tpHold, slHold := m.selectRiskBand(ctx, pos.TokenID, metadata)

	managed := m.isManaged(pos.TokenID)
	kind := "pre-existing"
	if managed {
		kind = "managed"
	}

	// A positive hold threshold suppresses the trigger while the price is
	// at or above it, letting a winner ride toward resolution.
	tpTriggered := roi > tpPct && (tpHold.IsZero() || marketPrice.LessThan(tpHold))
	slTriggered := roi < -slPct && (slHold.IsZero() || marketPrice.LessThan(slHold))

	switch {
	case slTriggered:
		log.Warn().
			Str("market", market).
			Str("kind", kind).
			Float64("roi", roi).
			Float64("stop_loss", -slPct).
			Msg("🛑 Stop loss triggered")
		m.executeExit(ctx, pos, marketPrice, "STOP_LOSS", pos.Size, stopLossFloor, market, roi)

	case tpTriggered:
		log.Info().
			Str("market", market).
			Str("kind", kind).
			Float64("roi", roi).
			Float64("take_profit", tpPct).
			Msg("💰 Take profit triggered")
		// Sell half and leave a runner.
		half := pos.Size.Div(decimal.NewFromInt(2))
		floor := marketPrice.Mul(tpFloorFactor)
		m.executeExit(ctx, pos, marketPrice, "TAKE_PROFIT", half, floor, market, roi)
	}
}

// resolveMarketPrice prefers the metadata's outcome price (more accurate
// than a thin book), then the best bid, then zero for illiquid markets.
func (m *Manager) resolveMarketPrice(ctx context.Context, tokenID string, metadata *types.MarketMetadata) decimal.Decimal {
	if p, ok := metadata.QueriedPrice(); ok && p.IsPositive() {
		return p
	}
	depth, err := m.provider.GetOrderBook(ctx, tokenID)
	if err != nil {
		return decimal.Zero
	}
	if bid, ok := depth.BestBid(); ok {
		return bid.Price
	}
	return decimal.Zero
}

// selectRiskBand picks the crypto band when crypto rules are on and the
// market classifies as a crypto price bet, else the defaults.
func (m *Manager) selectRiskBand(ctx context.Context, tokenID string, metadata *types.MarketMetadata) (slPct, tpPct float64, tpHold, slHold decimal.Decimal) {
	m.mu.Lock()
	risk := m.risk
	crypto := m.cryptoRules
	m.mu.Unlock()

	if crypto.Enabled && m.aiSvc != nil {
		if isCrypto, _ := m.aiSvc.CheckCryptoMarket(ctx, tokenID, metadata); isCrypto {
			return crypto.StopLossPct, crypto.TakeProfitPct, crypto.TPHoldMinPrice, crypto.SLHoldMinPrice
		}
	}
	return risk.StopLossPct, risk.TakeProfitPct, risk.TPHoldMinPrice, risk.SLHoldMinPrice
}

func (m *Manager) executeExit(ctx context.Context, pos types.Position, marketPrice decimal.Decimal, action string, size, floor decimal.Decimal, market string, roi float64) {
	sold, err := m.executor.ExitPosition(ctx, pos.TokenID, size, floor, market)
	if err != nil {
		log.Error().Err(err).Str("market", market).Msg("❌ Exit failed")
		return
	}
	if !sold.IsPositive() {
		return
	}

	m.mu.Lock()
	risk := m.risk
	onTrade := m.onTrade
	m.mu.Unlock()

	proceeds := sold.Mul(floor)
	m.recordTrade(tradelog.Entry{
		Timestamp:     time.Now().UTC(),
		Action:        action,
		TokenID:       pos.TokenID,
		Market:        market,
		Side:          string(types.SideSell),
		Size:          sold,
		Price:         floor,
		Notional:      proceeds,
		StopLossPct:   risk.StopLossPct,
		TakeProfitPct: risk.TakeProfitPct,
		MinSharePrice: risk.MinSharePrice,
		MaxBudget:     risk.MaxBudget,
		DryRun:        m.dryRun,
	}, action, pos.TokenID, market, string(types.SideSell), sold, floor, proceeds)

	if onTrade != nil {
		onTrade(TradeAlert{
			Action:   action,
			Market:   market,
			TokenID:  pos.TokenID,
			Side:     types.SideSell,
			Size:     sold,
			Price:    floor,
			Notional: proceeds,
			ROI:      roi,
		})
	}
}

// recordTrade fans an executed trade out to the JSON trade log and the
// history database. Neither failure blocks trading.
func (m *Manager) recordTrade(entry tradelog.Entry, action, tokenID, market, side string, size, price, notional decimal.Decimal) {
	if m.tradeLog != nil {
		m.tradeLog.Append(entry)
	}
	if m.recorder != nil {
		if err := m.recorder.RecordTrade(tokenID, market, side, action, size, price, notional); err != nil {
			log.Warn().Err(err).Msg("💾 Trade history write failed")
		}
	}
}

func (m *Manager) isManaged(tokenID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.managed[tokenID]
}

// ═══════════════════════════════════════════════════════════════════════════════
// PORTFOLIO LOG
// ═══════════════════════════════════════════════════════════════════════════════

func (m *Manager) portfolioLogLoop() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		interval := m.logInterval
		m.mu.Unlock()

		select {
		case <-m.stopCh:
			return
		case <-time.After(interval):
			m.logPortfolio(context.Background())
		}
	}
}

// logPortfolio prints the periodic summary banner.
func (m *Manager) logPortfolio(ctx context.Context) {
	balance, err := m.provider.GetBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("📊 Portfolio log: balance unavailable")
		return
	}

	m.mu.Lock()
	minValue := m.risk.MinPositionValue
	spent := m.cumulative
	budget := m.risk.MaxBudget
	managedCount := len(m.managed)
	m.mu.Unlock()

	positions, err := m.provider.GetPositions(ctx, minValue)
	if err != nil {
		log.Warn().Err(err).Msg("📊 Portfolio log: positions unavailable")
		return
	}

	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msgf("║  PORTFOLIO  balance $%-19s ║", balance.StringFixed(2))
	log.Info().Msgf("║  spend $%s / budget $%s  managed %d ║", spent.StringFixed(2), budget.StringFixed(2), managedCount)
	for _, pos := range positions {
		entry, _ := pos.AvgEntryPrice.Float64()
		current, _ := pos.CurrentPrice.Float64()
		roi := 0.0
		if entry > 0 {
			roi = (current - entry) / entry * 100
		}
		log.Info().Msgf("║  %s %s @ %s → %s (%+.1f%%)", shortToken(pos.TokenID), pos.Size.StringFixed(2), pos.AvgEntryPrice.StringFixed(3), pos.CurrentPrice.StringFixed(3), roi)
	}
	log.Info().Msg("╚══════════════════════════════════════════╝")
}

func analysisVerdict(a *types.TradeAnalysis) *bool {
	if a == nil {
		return nil
	}
	v := a.ShouldTrade
	return &v
}

func analysisConfidence(a *types.TradeAnalysis) float64 {
	if a == nil {
		return 0
	}
	return a.Confidence
}

func shortToken(tokenID string) string {
	if len(tokenID) <= 12 {
		return tokenID
	}
	return tokenID[:12] + "…"
}
