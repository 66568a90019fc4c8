package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/polymarket"
	"github.com/web3guy0/polywhale/internal/statefile"
	"github.com/web3guy0/polywhale/types"
)

// mockStartingBalance is the paper balance a fresh dry run begins with.
var mockStartingBalance = decimal.NewFromInt(1000)

// mockPosition is the persisted shape of one paper position.
type mockPosition struct {
	Size          decimal.Decimal `json:"size"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketName    string          `json:"market_name"`
}

// mockState is the persisted dry-run ledger (mock_state.json).
type mockState struct {
	Balance   decimal.Decimal         `json:"balance"`
	Positions map[string]mockPosition `json:"positions"`
}

// MockProvider is the dry-run exchange: fills every order instantly against
// a paper balance, persists its ledger across restarts, and serves books
// and metadata from the real read-only clients when wired.
type MockProvider struct {
	mu    sync.Mutex
	state mockState
	store *statefile.Store

	ws    *polymarket.WSClient
	gamma *polymarket.GammaClient

	orderSeq int
}

// NewMockProvider loads (or initializes) the paper ledger. ws and gamma are
// optional; without them books and metadata fall back to canned values.
func NewMockProvider(statePath string, ws *polymarket.WSClient, gamma *polymarket.GammaClient) (*MockProvider, error) {
	store, err := statefile.New(statePath)
	if err != nil {
		return nil, err
	}

	p := &MockProvider{
		state: mockState{
			Balance:   mockStartingBalance,
			Positions: make(map[string]mockPosition),
		},
		store: store,
		ws:    ws,
		gamma: gamma,
	}

	if ok, err := store.Load(&p.state); err != nil {
		log.Warn().Err(err).Msg("💾 Mock state unreadable, starting fresh")
		p.state = mockState{Balance: mockStartingBalance, Positions: make(map[string]mockPosition)}
	} else if ok {
		log.Info().
			Str("balance", p.state.Balance.StringFixed(2)).
			Int("positions", len(p.state.Positions)).
			Msg("💾 Mock exchange state loaded")
	}
	if p.state.Positions == nil {
		p.state.Positions = make(map[string]mockPosition)
	}

	return p, nil
}

// Start connects the streaming cache when wired.
func (p *MockProvider) Start(ctx context.Context) error {
	if p.ws == nil {
		return nil
	}
	if err := p.ws.Connect(); err != nil {
		log.Warn().Err(err).Msg("Market data stream unavailable in dry run")
	}
	return nil
}

// Stop closes the streaming cache.
func (p *MockProvider) Stop() {
	if p.ws != nil {
		p.ws.Close()
	}
}

// GetBalance returns the paper balance.
func (p *MockProvider) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Balance, nil
}

// GetPositions returns paper positions marked to the live book, with dust
// filtered out.
func (p *MockProvider) GetPositions(ctx context.Context, minValue decimal.Decimal) ([]types.Position, error) {
	p.mu.Lock()
	snapshot := make(map[string]mockPosition, len(p.state.Positions))
	for k, v := range p.state.Positions {
		snapshot[k] = v
	}
	p.mu.Unlock()

	positions := make([]types.Position, 0, len(snapshot))
	for tokenID, mp := range snapshot {
		current := mp.AvgEntryPrice
		if depth, err := p.GetOrderBook(ctx, tokenID); err == nil {
			if bid, ok := depth.BestBid(); ok {
				current = bid.Price
			}
		}
		value := mp.Size.Mul(current)
		if value.LessThan(minValue) {
			continue
		}
		positions = append(positions, types.Position{
			TokenID:       tokenID,
			Title:         mp.MarketName,
			Size:          mp.Size,
			AvgEntryPrice: mp.AvgEntryPrice,
			CurrentPrice:  current,
			CurrentValue:  value,
		})
	}
	return positions, nil
}

// PlaceOrder fills the order instantly against the paper ledger. BUYs pass
// through the same rounding contract as live orders; repeat BUYs average
// the entry price; a position is removed once fully sold.
func (p *MockProvider) PlaceOrder(ctx context.Context, order *types.Order) (string, error) {
	price := order.PriceLimit
	size := order.Size
	if order.Side == types.SideBuy {
		var err error
		price, size, err = RoundBuyOrder(order.PriceLimit, order.Size)
		if err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch order.Side {
	case types.SideBuy:
		cost := size.Mul(price)
		if cost.GreaterThan(p.state.Balance) {
			return "", &types.InsufficientFundsError{Required: cost, Available: p.state.Balance}
		}
		p.state.Balance = p.state.Balance.Sub(cost)

		pos, exists := p.state.Positions[order.TokenID]
		if exists {
			// Weighted-average entry across fills.
			totalCost := pos.Size.Mul(pos.AvgEntryPrice).Add(cost)
			pos.Size = pos.Size.Add(size)
			pos.AvgEntryPrice = totalCost.Div(pos.Size)
		} else {
			pos = mockPosition{Size: size, AvgEntryPrice: price, MarketName: order.MarketName}
		}
		if pos.MarketName == "" {
			pos.MarketName = order.MarketName
		}
		p.state.Positions[order.TokenID] = pos

	case types.SideSell:
		pos, exists := p.state.Positions[order.TokenID]
		if !exists {
			return "", &types.OrderError{TokenID: order.TokenID, Reason: "no position to sell"}
		}
		if size.GreaterThan(pos.Size) {
			return "", &types.InsufficientFundsError{Required: size, Available: pos.Size}
		}
		p.state.Balance = p.state.Balance.Add(size.Mul(price))
		pos.Size = pos.Size.Sub(size)
		if pos.Size.IsZero() {
			delete(p.state.Positions, order.TokenID)
		} else {
			p.state.Positions[order.TokenID] = pos
		}

	default:
		return "", &types.OrderError{TokenID: order.TokenID, Reason: fmt.Sprintf("unknown side %q", order.Side)}
	}

	p.orderSeq++
	orderID := fmt.Sprintf("mock-%d-%d", time.Now().Unix(), p.orderSeq)
	order.Status = types.OrderFilled
	order.OrderID = orderID

	if err := p.store.Save(p.state); err != nil {
		log.Warn().Err(err).Msg("💾 Mock state persist failed")
	}

	log.Info().
		Str("order_id", orderID).
		Str("side", string(order.Side)).
		Str("size", size.String()).
		Str("price", price.String()).
		Str("balance", p.state.Balance.StringFixed(2)).
		Msg("🧪 [DRY RUN] Order filled")
	return orderID, nil
}

// GetOrderBook serves the streaming cache when wired, else a canned book
// around 50c so the pipeline stays exercisable offline.
func (p *MockProvider) GetOrderBook(ctx context.Context, tokenID string) (*types.MarketDepth, error) {
	if p.ws != nil {
		if depth, ok := p.ws.Snapshot(tokenID); ok {
			return depth, nil
		}
		go func() {
			if err := p.ws.Subscribe(tokenID); err != nil {
				log.Debug().Err(err).Msg("📊 Dry-run book subscription failed")
			}
		}()
	}
	size := decimal.NewFromInt(1000)
	return &types.MarketDepth{
		Bids: []types.MarketDepthLevel{
			{Price: decimal.NewFromFloat(0.50), Size: size},
			{Price: decimal.NewFromFloat(0.49), Size: size},
		},
		Asks: []types.MarketDepthLevel{
			{Price: decimal.NewFromFloat(0.51), Size: size},
			{Price: decimal.NewFromFloat(0.52), Size: size},
		},
	}, nil
}

// GetMarketMetadata delegates to the gamma client when wired.
func (p *MockProvider) GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata {
	if p.gamma != nil {
		return p.gamma.MarketMetadata(ctx, tokenID)
	}
	return &types.MarketMetadata{
		TokenID:  tokenID,
		Title:    "Mock market",
		Question: "Mock market (no metadata client wired)",
		Status:   "active",
		Outcomes: map[string]decimal.Decimal{},
	}
}
