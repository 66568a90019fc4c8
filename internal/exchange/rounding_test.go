package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRoundBuyOrderExact(t *testing.T) {
	t.Parallel()

	price, size, err := RoundBuyOrder(dec("0.50"), dec("10"))
	if err != nil {
		t.Fatalf("RoundBuyOrder: %v", err)
	}
	if !price.Equal(dec("0.50")) {
		t.Errorf("price = %v, want 0.50", price)
	}
	if !size.Equal(dec("10")) {
		t.Errorf("size = %v, want 10", size)
	}
}

func TestRoundBuyOrderFloorsPrice(t *testing.T) {
	t.Parallel()

	price, size, err := RoundBuyOrder(dec("0.567"), dec("10"))
	if err != nil {
		t.Fatalf("RoundBuyOrder: %v", err)
	}
	if !price.Equal(dec("0.56")) {
		t.Errorf("price = %v, want 0.56", price)
	}
	if !size.Equal(dec("10")) {
		t.Errorf("size = %v, want 10", size)
	}
}

func TestRoundBuyOrderDecrementsToCleanCost(t *testing.T) {
	t.Parallel()

	// floor2(6.66*0.30)=1.99; 1.99/0.30 floors to 6.63 whose cost 1.989
	// needs three 0.01 steps down to 6.60 (cost 1.98).
	price, size, err := RoundBuyOrder(dec("0.30"), dec("6.66"))
	if err != nil {
		t.Fatalf("RoundBuyOrder: %v", err)
	}
	if !price.Equal(dec("0.30")) {
		t.Errorf("price = %v, want 0.30", price)
	}
	if !size.Equal(dec("6.60")) {
		t.Errorf("size = %v, want 6.60", size)
	}
}

func TestRoundBuyOrderCostAlwaysTwoDecimals(t *testing.T) {
	t.Parallel()

	cases := []struct{ price, size string }{
		{"0.50", "10"},
		{"0.567", "10"},
		{"0.30", "6.66"},
		{"0.25", "10.03"},
		{"0.20", "7.77"},
		{"0.13", "100"},
	}
	for _, tc := range cases {
		price, size, err := RoundBuyOrder(dec(tc.price), dec(tc.size))
		if err != nil {
			t.Errorf("RoundBuyOrder(%s, %s): %v", tc.price, tc.size, err)
			continue
		}
		cost := size.Mul(price)
		if !cost.Equal(cost.Truncate(2)) {
			t.Errorf("RoundBuyOrder(%s, %s): cost %v not representable in 2dp", tc.price, tc.size, cost)
		}
		if size.GreaterThan(dec(tc.size)) {
			if size.LessThan(MinOrderSize) {
				t.Errorf("RoundBuyOrder(%s, %s): size grew to %v without hitting the minimum", tc.price, tc.size, size)
			}
		}
	}
}

func TestRoundBuyOrderBumpsToMinimum(t *testing.T) {
	t.Parallel()

	price, size, err := RoundBuyOrder(dec("0.50"), dec("2"))
	if err != nil {
		t.Fatalf("RoundBuyOrder: %v", err)
	}
	if !size.Equal(MinOrderSize) {
		t.Errorf("size = %v, want %v", size, MinOrderSize)
	}
	if !price.Equal(dec("0.50")) {
		t.Errorf("price = %v, want 0.50", price)
	}
	cost := size.Mul(price)
	if !cost.Equal(cost.Truncate(2)) {
		t.Errorf("cost %v not representable in 2dp after minimum bump", cost)
	}
}

func TestRoundBuyOrderRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, _, err := RoundBuyOrder(decimal.Zero, dec("10")); err == nil {
		t.Error("expected error for zero price")
	}
	if _, _, err := RoundBuyOrder(dec("0.50"), decimal.Zero); err == nil {
		t.Error("expected error for zero size")
	}
	if _, _, err := RoundBuyOrder(dec("0.005"), dec("10")); err == nil {
		t.Error("expected error for price flooring to zero")
	}
	// 0.19 yields a 2dp cost only on whole share counts; ten 0.01 steps
	// down from 10.47 never reach one.
	if _, _, err := RoundBuyOrder(dec("0.19"), dec("10.52")); err == nil {
		t.Error("expected error when no clean size is reachable")
	}
}

func TestFloor2(t *testing.T) {
	t.Parallel()

	if got := Floor2(dec("1.239")); !got.Equal(dec("1.23")) {
		t.Errorf("Floor2(1.239) = %v, want 1.23", got)
	}
	if got := Floor2(dec("1.2")); !got.Equal(dec("1.2")) {
		t.Errorf("Floor2(1.2) = %v, want 1.2", got)
	}
}
