// Package exchange is the trading boundary: a live Polymarket CLOB adapter
// and a mock for dry runs, both behind one Provider interface.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

// Provider is everything the trading control plane needs from an exchange.
//
// GetMarketMetadata never fails hard: on any upstream problem it returns a
// sentinel whose Question carries the error text. GetOrderBook may serve
// from a streaming cache, subscribing to the token as a side effect.
type Provider interface {
	// GetBalance returns available USD collateral.
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// GetPositions returns open positions with dust (value < minValue)
	// filtered out.
	GetPositions(ctx context.Context, minValue decimal.Decimal) ([]types.Position, error)

	// PlaceOrder submits a marketable-limit order. BUY is good-til-cancel,
	// SELL is fill-or-kill. Failures are APIError, OrderError or
	// InsufficientFundsError.
	PlaceOrder(ctx context.Context, order *types.Order) (string, error)

	// GetOrderBook returns a consistent L2 snapshot for the token.
	GetOrderBook(ctx context.Context, tokenID string) (*types.MarketDepth, error)

	// GetMarketMetadata resolves outcome labels, prices and market info.
	GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata

	// Start launches background machinery (streaming client). Stop tears it
	// down.
	Start(ctx context.Context) error
	Stop()
}
