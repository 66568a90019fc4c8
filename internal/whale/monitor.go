// Package whale watches a set of high-volume wallets and turns each newly
// observed trade into a TradeEvent for the portfolio manager.
package whale

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/polymarket"
	"github.com/web3guy0/polywhale/types"
)

const (
	pollInterval  = 3 * time.Second
	activityLimit = 3
	eventBuffer   = 256
)

// ActivitySource feeds the monitor with wallet activity. The pooled data
// API client satisfies it; tests substitute a fake.
type ActivitySource interface {
	RecentActivity(ctx context.Context, address string, limit int) ([]polymarket.ActivityItem, error)
}

// MetadataSource enriches event log lines. Enrichment failures are
// non-fatal; a nil source skips enrichment entirely.
type MetadataSource interface {
	GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata
}

// Monitor polls every target wallet in concurrency-capped batches and emits
// one TradeEvent per newly observed trade. Events for one wallet arrive in
// strict timestamp order; across wallets no order is guaranteed.
type Monitor struct {
	source   ActivitySource
	metadata MetadataSource

	mu             sync.Mutex
	targets        []types.WalletTarget
	lastTimestamps map[string]int64
	batchSize      int
	batchDelay     time.Duration
	maxConcurrent  int

	events  chan types.TradeEvent
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a monitor. metadata may be nil.
func New(source ActivitySource, metadata MetadataSource, batchSize, batchDelayMs, maxConcurrent int) *Monitor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}
	return &Monitor{
		source:         source,
		metadata:       metadata,
		lastTimestamps: make(map[string]int64),
		batchSize:      batchSize,
		batchDelay:     time.Duration(batchDelayMs) * time.Millisecond,
		maxConcurrent:  maxConcurrent,
		events:         make(chan types.TradeEvent, eventBuffer),
		stopCh:         make(chan struct{}),
	}
}

// Events is the outbound stream. The channel is buffered; on overflow the
// oldest event is dropped with a warning (whale activity is sampled, the
// newest timestamp always wins).
func (m *Monitor) Events() <-chan types.TradeEvent { return m.events }

// Start launches the poll loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	targets := len(m.targets)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop()
	log.Info().Int("wallets", targets).Msg("🐋 Whale monitor started")
}

// Stop terminates the poll loop and waits for in-flight checks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	if closer, ok := m.source.(interface{ Close() }); ok {
		closer.Close()
	}
	log.Info().Msg("🐋 Whale monitor stopped")
}

// UpdateTargets swaps the watch list. Cursors of surviving addresses are
// kept so no replays occur; new addresses start at zero and emit nothing
// until their second observation. Idempotent.
func (m *Monitor) UpdateTargets(targets []types.WalletTarget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := make(map[string]bool, len(targets))
	for _, t := range targets {
		keep[t.Address] = true
		if _, ok := m.lastTimestamps[t.Address]; !ok {
			m.lastTimestamps[t.Address] = 0
		}
	}
	for addr := range m.lastTimestamps {
		if !keep[addr] {
			delete(m.lastTimestamps, addr)
		}
	}
	m.targets = append([]types.WalletTarget(nil), targets...)
	log.Info().Int("wallets", len(targets)).Msg("🐋 Whale targets updated")
}

// UpdateBatching tunes the polling fan-out.
func (m *Monitor) UpdateBatching(batchSize, batchDelayMs, maxConcurrent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if batchSize > 0 {
		m.batchSize = batchSize
	}
	if batchDelayMs >= 0 {
		m.batchDelay = time.Duration(batchDelayMs) * time.Millisecond
	}
	if maxConcurrent > 0 {
		m.maxConcurrent = maxConcurrent
	}
}

func (m *Monitor) pollLoop() {
	defer m.wg.Done()

	for {
		m.pollAllTargets()

		select {
		case <-m.stopCh:
			return
		case <-time.After(pollInterval):
		}
	}
}

// pollAllTargets walks the target list in batches, one goroutine per wallet
// under a global concurrency cap. Individual wallet errors are logged and
// swallowed.
func (m *Monitor) pollAllTargets() {
	m.mu.Lock()
	targets := append([]types.WalletTarget(nil), m.targets...)
	batchSize := m.batchSize
	batchDelay := m.batchDelay
	sem := make(chan struct{}, m.maxConcurrent)
	m.mu.Unlock()

	for start := 0; start < len(targets); start += batchSize {
		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}

		var wg sync.WaitGroup
		for _, target := range targets[start:end] {
			wg.Add(1)
			go func(t types.WalletTarget) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				m.checkWallet(t)
			}(target)
		}
		wg.Wait()

		if end < len(targets) && batchDelay > 0 {
			select {
			case <-m.stopCh:
				return
			case <-time.After(batchDelay):
			}
		}
	}
}

// checkWallet compares the wallet's newest activity to the stored cursor.
// The cursor is advanced before the event is dispatched, so a slow consumer
// can never cause the same trade to be re-emitted.
func (m *Monitor) checkWallet(target types.WalletTarget) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	items, err := m.source.RecentActivity(ctx, target.Address, activityLimit)
	if err != nil {
		log.Warn().Err(err).Str("wallet", target.Name).Msg("🐋 Activity poll failed")
		return
	}
	if len(items) == 0 {
		return
	}
	newest := items[0]

	m.mu.Lock()
	last, known := m.lastTimestamps[target.Address]
	if !known || last == 0 {
		// First observation: set the cursor, emit nothing. This
		// intentionally skips the most recent pre-start trade so stale
		// signals are never replayed.
		m.lastTimestamps[target.Address] = newest.Timestamp
		m.mu.Unlock()
		return
	}
	if newest.Timestamp <= last {
		m.mu.Unlock()
		return
	}
	m.lastTimestamps[target.Address] = newest.Timestamp
	m.mu.Unlock()

	event, ok := m.buildEvent(target, newest)
	if !ok {
		return
	}
	m.enrichLog(ctx, &event)
	m.emit(event)
}

// buildEvent validates and converts one activity row. Only TRADE/MATCH rows
// with a numeric asset (the CLOB token id) become events.
func (m *Monitor) buildEvent(target types.WalletTarget, item polymarket.ActivityItem) (types.TradeEvent, bool) {
	if item.Type != "TRADE" && item.Type != "MATCH" {
		return types.TradeEvent{}, false
	}
	if _, err := strconv.ParseFloat(item.Asset, 64); err != nil {
		log.Debug().Str("asset", item.Asset).Msg("🐋 Skipping non-numeric asset")
		return types.TradeEvent{}, false
	}

	side := types.SideBuy
	if item.Side == "SELL" {
		side = types.SideSell
	}

	return types.TradeEvent{
		SourceWallet: target.Address,
		WalletName:   target.Name,
		TokenID:      item.Asset,
		MarketSlug:   item.Slug,
		Outcome:      item.Outcome,
		Side:         side,
		Price:        decimal.NewFromFloat(item.Price),
		UsdSize:      decimal.NewFromFloat(item.UsdcSize),
		Timestamp:    item.Timestamp,
	}, true
}

// enrichLog decorates the detection log line with market metadata.
// Best-effort: a metadata failure only loses log detail.
func (m *Monitor) enrichLog(ctx context.Context, event *types.TradeEvent) {
	entry := log.Info().
		Str("wallet", event.WalletName).
		Str("side", string(event.Side)).
		Str("outcome", event.Outcome).
		Str("usd_size", event.UsdSize.StringFixed(2)).
		Str("slug", event.MarketSlug)

	if m.metadata != nil {
		meta := m.metadata.GetMarketMetadata(ctx, event.TokenID)
		if meta != nil {
			entry = entry.
				Str("question", meta.Question).
				Str("category", meta.Category).
				Str("status", meta.Status).
				Str("volume", meta.Volume.StringFixed(0)).
				Str("end_date", meta.EndDate)
		}
	}
	entry.Msg("🐋 Whale trade detected")
}

// emit delivers the event, dropping the oldest buffered event on overflow.
func (m *Monitor) emit(event types.TradeEvent) {
	select {
	case m.events <- event:
		return
	default:
	}
	select {
	case dropped := <-m.events:
		log.Warn().
			Str("wallet", dropped.WalletName).
			Int64("timestamp", dropped.Timestamp).
			Msg("🐋 Event buffer full, dropping oldest")
	default:
	}
	select {
	case m.events <- event:
	default:
	}
}
