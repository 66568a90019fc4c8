package types

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus tracks an order through its lifecycle. Transitions are
// forward-only once FILLED.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// StrategyType of a watched wallet.
type StrategyType string

const (
	StrategyMirror  StrategyType = "MIRROR"
	StrategyInverse StrategyType = "INVERSE"
)

// MarketDepthLevel is one price level of an order book side.
type MarketDepthLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// MarketDepth is an L2 snapshot: bids sorted descending, asks ascending.
type MarketDepth struct {
	Bids         []MarketDepthLevel `json:"bids"`
	Asks         []MarketDepthLevel `json:"asks"`
	MinOrderSize decimal.Decimal    `json:"min_order_size"`
}

// BestBid returns the highest bid, or false when the bid side is empty.
func (d *MarketDepth) BestBid() (MarketDepthLevel, bool) {
	if len(d.Bids) == 0 {
		return MarketDepthLevel{}, false
	}
	return d.Bids[0], true
}

// BestAsk returns the lowest ask, or false when the ask side is empty.
func (d *MarketDepth) BestAsk() (MarketDepthLevel, bool) {
	if len(d.Asks) == 0 {
		return MarketDepthLevel{}, false
	}
	return d.Asks[0], true
}

// MarketMetadata describes one market as resolved from the metadata API.
// Lookups never fail hard: on any upstream problem the provider returns a
// sentinel whose Question carries the error text and whose Outcomes map is
// empty.
type MarketMetadata struct {
	TokenID        string                     `json:"token_id"`
	Title          string                     `json:"title"`
	Question       string                     `json:"question"`
	Category       string                     `json:"category"`
	Status         string                     `json:"status"`
	Volume         decimal.Decimal            `json:"volume"`
	EndDate        string                     `json:"end_date"`
	Outcomes       map[string]decimal.Decimal `json:"outcomes"`
	QueriedOutcome string                     `json:"queried_outcome"`
	Score          string                     `json:"score"`
}

// QueriedPrice returns the current price of the outcome the metadata was
// queried for, or false when the outcome is unknown.
func (m *MarketMetadata) QueriedPrice() (decimal.Decimal, bool) {
	if m.QueriedOutcome == "" {
		return decimal.Zero, false
	}
	p, ok := m.Outcomes[m.QueriedOutcome]
	return p, ok
}

// Position is an open holding in one outcome token. AvgEntryPrice is the
// size-weighted entry; CurrentValue is the exchange's mark-to-market total.
type Position struct {
	TokenID       string          `json:"token_id"`
	Title         string          `json:"title"`
	Size          decimal.Decimal `json:"size"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
}

// Order is a marketable-limit order. BUYs are good-til-cancel, SELLs are
// fill-or-kill; Size times PriceLimit must round to two decimals on BUYs.
type Order struct {
	TokenID    string
	MarketName string
	Side       Side
	Size       decimal.Decimal
	PriceLimit decimal.Decimal
	Status     OrderStatus
	OrderID    string
}

// WalletTarget is one whale wallet under watch.
type WalletTarget struct {
	Address       string           `json:"address"`
	Name          string           `json:"name"`
	StrategyType  StrategyType     `json:"strategy_type"`
	MaxCopyAmount *decimal.Decimal `json:"max_copy_amount"`
}

// TradeEvent is emitted by the whale monitor for each newly observed trade.
// TokenID is the numeric CLOB asset id of the traded outcome token.
type TradeEvent struct {
	SourceWallet string
	WalletName   string
	TokenID      string
	MarketSlug   string
	Outcome      string
	Side         Side
	Price        decimal.Decimal
	UsdSize      decimal.Decimal
	Timestamp    int64
}

// TradeAnalysis is the AI verdict for one token. JSON tags match the
// on-disk analysis cache format.
type TradeAnalysis struct {
	ShouldTrade             bool     `json:"should_trade"`
	Confidence              float64  `json:"confidence"`
	Justification           string   `json:"justification"`
	RiskFactors             []string `json:"risk_factors"`
	OpportunityFactors      []string `json:"opportunity_factors"`
	EstimatedResolutionTime string   `json:"estimated_resolution_time"`
	SubjectivityScore       float64  `json:"subjectivity_score"`
}

// SportsSelectivityResult is the verdict of the selective sports filter:
// a sports market qualifies only with a clear favorite resolving soon.
type SportsSelectivityResult struct {
	Qualifies         bool    `json:"qualifies"`
	Confidence        float64 `json:"confidence"`
	FavoriteOdds      float64 `json:"favorite_odds"`
	HoursToResolution float64 `json:"hours_to_resolution"`
	FavoriteEntity    string  `json:"favorite_entity"`
	Justification     string  `json:"justification"`
}
