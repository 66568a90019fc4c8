package exchange

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

// MinOrderSize is the exchange's minimum share count per order.
var MinOrderSize = decimal.NewFromInt(5)

// maxBuyAdjustments bounds the decrement loop in RoundBuyOrder.
const maxBuyAdjustments = 10

// Floor2 truncates to two decimal places, toward zero.
func Floor2(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(2)
}

// fitsTwoDecimals reports whether d is exactly representable in two decimal
// places.
func fitsTwoDecimals(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// RoundBuyOrder shapes a BUY into the form the exchange accepts: price and
// size both at two decimals, and size*price itself representable in two
// decimals (the USDC maker amount is denominated in cents).
//
//  1. price = floor2(priceLimit)
//  2. size  = floor2(floor2(size*price) / price)
//  3. while size*price still needs more than 2dp, step size down by 0.01
//  4. a result under the 5-share minimum is bumped to exactly 5 shares,
//     with price recomputed from the floored cost so the cost stays clean
func RoundBuyOrder(priceLimit, size decimal.Decimal) (price, rounded decimal.Decimal, err error) {
	if priceLimit.LessThanOrEqual(decimal.Zero) || size.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, &types.OrderError{Reason: "non-positive price or size"}
	}

	price = Floor2(priceLimit)
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, &types.OrderError{Reason: "price rounds to zero"}
	}

	cost := Floor2(size.Mul(price))
	rounded = Floor2(cost.Div(price))

	step := decimal.New(1, -2) // 0.01
	for i := 0; i < maxBuyAdjustments && !fitsTwoDecimals(rounded.Mul(price)); i++ {
		rounded = rounded.Sub(step)
	}
	if rounded.LessThanOrEqual(decimal.Zero) || !fitsTwoDecimals(rounded.Mul(price)) {
		return decimal.Zero, decimal.Zero, &types.OrderError{Reason: "could not fit order into 2dp maker amount"}
	}

	if rounded.LessThan(MinOrderSize) {
		rounded = MinOrderSize
		// Recompute the price from the floored cost: 5 shares at a cost in
		// whole cents always yields a clean 2dp maker amount.
		cleanCost := Floor2(rounded.Mul(price))
		price = cleanCost.Div(rounded)
	}

	return price, rounded, nil
}
