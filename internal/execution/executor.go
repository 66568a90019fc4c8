// Package execution drains positions with floored partial sells instead of
// one large cross that would walk the book and crash the mark-to-market
// price the risk scanner reads on its next tick.
package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/exchange"
	"github.com/web3guy0/polywhale/types"
)

const (
	defaultMaxSweeps  = 6
	defaultSweepDelay = time.Second
)

// SmartExecutor liquidates positions in small aggressive limit orders
// bounded by a price floor.
type SmartExecutor struct {
	provider   exchange.Provider
	maxSweeps  int
	sweepDelay time.Duration
}

// New creates an executor with the default sweep cap and pacing.
func New(provider exchange.Provider) *SmartExecutor {
	return &SmartExecutor{
		provider:   provider,
		maxSweeps:  defaultMaxSweeps,
		sweepDelay: defaultSweepDelay,
	}
}

// ExitPosition sells up to totalSize shares without accepting any fill
// below minPrice. Each sweep sells only what the bids at or above the floor
// can absorb, then waits before the next pass. Returns the total sold; a
// partial result is logged, never retried past the sweep cap.
func (e *SmartExecutor) ExitPosition(ctx context.Context, tokenID string, totalSize, minPrice decimal.Decimal, marketName string) (decimal.Decimal, error) {
	remaining := totalSize
	sold := decimal.Zero

	log.Info().
		Str("market", marketName).
		Str("size", totalSize.String()).
		Str("min_price", minPrice.String()).
		Msg("📉 Smart exit started")

	for sweep := 1; sweep <= e.maxSweeps && remaining.IsPositive(); sweep++ {
		depth, err := e.provider.GetOrderBook(ctx, tokenID)
		if err != nil {
			log.Warn().Err(err).Int("sweep", sweep).Msg("📉 Book fetch failed, skipping sweep")
		} else {
			fillable := fillableAtFloor(depth.Bids, minPrice)
			chunk := exchange.Floor2(decimal.Min(remaining, fillable))

			if !chunk.IsPositive() {
				log.Info().
					Int("sweep", sweep).
					Str("remaining", remaining.String()).
					Msg("📉 No bids at or above floor this sweep")
			} else {
				order := &types.Order{
					TokenID:    tokenID,
					MarketName: marketName,
					Side:       types.SideSell,
					Size:       chunk,
					PriceLimit: minPrice, // the floor, not the best bid
					Status:     types.OrderPending,
				}
				if _, err := e.provider.PlaceOrder(ctx, order); err != nil {
					log.Warn().Err(err).Int("sweep", sweep).Str("chunk", chunk.String()).Msg("📉 Sweep sell failed")
				} else {
					sold = sold.Add(chunk)
					remaining = remaining.Sub(chunk)
					log.Info().
						Int("sweep", sweep).
						Str("chunk", chunk.String()).
						Str("remaining", remaining.String()).
						Msg("📉 Sweep filled")
				}
			}
		}

		if remaining.IsPositive() && sweep < e.maxSweeps {
			select {
			case <-ctx.Done():
				return sold, ctx.Err()
			case <-time.After(e.sweepDelay):
			}
		}
	}

	if remaining.IsPositive() {
		log.Warn().
			Str("market", marketName).
			Str("sold", sold.String()).
			Str("unsold", remaining.String()).
			Msg("📉 Smart exit partial: liquidity exhausted at floor")
	} else {
		log.Info().
			Str("market", marketName).
			Str("sold", sold.String()).
			Msg("📉 Smart exit complete")
	}
	return sold, nil
}

// fillableAtFloor sums the bid sizes at or above the floor price.
func fillableAtFloor(bids []types.MarketDepthLevel, minPrice decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bids {
		if b.Price.GreaterThanOrEqual(minPrice) {
			total = total.Add(b.Size)
		}
	}
	return total
}
