package exchange

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

func newTestMock(t *testing.T) *MockProvider {
	t.Helper()
	p, err := NewMockProvider(filepath.Join(t.TempDir(), "mock_state.json"), nil, nil)
	if err != nil {
		t.Fatalf("NewMockProvider: %v", err)
	}
	return p
}

func TestMockStartsWithPaperBalance(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)

	balance, err := p.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %v, want 1000", balance)
	}
}

func TestMockBuyOpensPosition(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)
	ctx := context.Background()

	order := &types.Order{
		TokenID:    "tok-1",
		MarketName: "Test market",
		Side:       types.SideBuy,
		Size:       dec("10"),
		PriceLimit: dec("0.50"),
	}
	id, err := p.PlaceOrder(ctx, order)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if id == "" {
		t.Error("expected an order ID")
	}
	if order.Status != types.OrderFilled {
		t.Errorf("status = %v, want FILLED", order.Status)
	}

	balance, _ := p.GetBalance(ctx)
	if !balance.Equal(dec("995")) {
		t.Errorf("balance = %v, want 995", balance)
	}

	positions, err := p.GetPositions(ctx, decimal.Zero)
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if !positions[0].Size.Equal(dec("10")) {
		t.Errorf("size = %v, want 10", positions[0].Size)
	}
	if !positions[0].AvgEntryPrice.Equal(dec("0.50")) {
		t.Errorf("entry = %v, want 0.50", positions[0].AvgEntryPrice)
	}
}

func TestMockRepeatBuyAveragesEntry(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)
	ctx := context.Background()

	buy := func(price string) {
		t.Helper()
		_, err := p.PlaceOrder(ctx, &types.Order{
			TokenID: "tok-1", Side: types.SideBuy,
			Size: dec("10"), PriceLimit: dec(price),
		})
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
	}
	buy("0.40")
	buy("0.60")

	positions, _ := p.GetPositions(ctx, decimal.Zero)
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	if !positions[0].Size.Equal(dec("20")) {
		t.Errorf("size = %v, want 20", positions[0].Size)
	}
	// (10*0.40 + 10*0.60) / 20 = 0.50
	if !positions[0].AvgEntryPrice.Equal(dec("0.5")) {
		t.Errorf("entry = %v, want 0.50", positions[0].AvgEntryPrice)
	}
}

func TestMockBuyInsufficientFunds(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)

	_, err := p.PlaceOrder(context.Background(), &types.Order{
		TokenID: "tok-1", Side: types.SideBuy,
		Size: dec("10000"), PriceLimit: dec("0.50"),
	})
	var ife *types.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if !errors.Is(err, types.ErrExchange) {
		t.Error("InsufficientFundsError should match ErrExchange")
	}
}

func TestMockSellClosesPosition(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)
	ctx := context.Background()

	if _, err := p.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", Side: types.SideBuy,
		Size: dec("10"), PriceLimit: dec("0.50"),
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := p.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", Side: types.SideSell,
		Size: dec("10"), PriceLimit: dec("0.60"),
	}); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, _ := p.GetPositions(ctx, decimal.Zero)
	if len(positions) != 0 {
		t.Errorf("positions = %d, want 0 after full sell", len(positions))
	}
	balance, _ := p.GetBalance(ctx)
	// 1000 - 5.00 + 6.00
	if !balance.Equal(dec("1001")) {
		t.Errorf("balance = %v, want 1001", balance)
	}
}

func TestMockSellWithoutPosition(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)

	_, err := p.PlaceOrder(context.Background(), &types.Order{
		TokenID: "nope", Side: types.SideSell,
		Size: dec("5"), PriceLimit: dec("0.50"),
	})
	var oe *types.OrderError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want OrderError", err)
	}
}

func TestMockOversell(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)
	ctx := context.Background()

	if _, err := p.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", Side: types.SideBuy,
		Size: dec("10"), PriceLimit: dec("0.50"),
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err := p.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", Side: types.SideSell,
		Size: dec("11"), PriceLimit: dec("0.50"),
	})
	var ife *types.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
}

func TestMockStateSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mock_state.json")
	ctx := context.Background()

	p1, err := NewMockProvider(path, nil, nil)
	if err != nil {
		t.Fatalf("NewMockProvider: %v", err)
	}
	if _, err := p1.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", MarketName: "Persisted market", Side: types.SideBuy,
		Size: dec("10"), PriceLimit: dec("0.50"),
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	p2, err := NewMockProvider(path, nil, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	balance, _ := p2.GetBalance(ctx)
	if !balance.Equal(dec("995")) {
		t.Errorf("balance after reload = %v, want 995", balance)
	}
	positions, _ := p2.GetPositions(ctx, decimal.Zero)
	if len(positions) != 1 {
		t.Fatalf("positions after reload = %d, want 1", len(positions))
	}
	if positions[0].Title != "Persisted market" {
		t.Errorf("title = %q, want Persisted market", positions[0].Title)
	}
}

func TestMockDustFilter(t *testing.T) {
	t.Parallel()
	p := newTestMock(t)
	ctx := context.Background()

	if _, err := p.PlaceOrder(ctx, &types.Order{
		TokenID: "tok-1", Side: types.SideBuy,
		Size: dec("10"), PriceLimit: dec("0.50"),
	}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Canned book marks the position at 0.50, value 5.00.
	positions, _ := p.GetPositions(ctx, dec("6"))
	if len(positions) != 0 {
		t.Errorf("positions = %d, want 0 below min value", len(positions))
	}
	positions, _ = p.GetPositions(ctx, dec("5"))
	if len(positions) != 1 {
		t.Errorf("positions = %d, want 1 at min value", len(positions))
	}
}
