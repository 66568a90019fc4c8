package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeBook is a scriptable provider: a fixed book, recorded orders, and
// optional fill simulation that shrinks bids as chunks sell.
type fakeBook struct {
	mu       sync.Mutex
	depth    *types.MarketDepth
	orders   []types.Order
	bookErr  error
	orderErr error
	consume  bool // subtract sold size from the best bids
}

func (f *fakeBook) GetOrderBook(ctx context.Context, tokenID string) (*types.MarketDepth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	bids := append([]types.MarketDepthLevel(nil), f.depth.Bids...)
	asks := append([]types.MarketDepthLevel(nil), f.depth.Asks...)
	return &types.MarketDepth{Bids: bids, Asks: asks}, nil
}

func (f *fakeBook) PlaceOrder(ctx context.Context, order *types.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return "", f.orderErr
	}
	f.orders = append(f.orders, *order)
	if f.consume {
		remaining := order.Size
		for i := range f.depth.Bids {
			if !remaining.IsPositive() {
				break
			}
			level := &f.depth.Bids[i]
			if level.Price.LessThan(order.PriceLimit) {
				continue
			}
			take := decimal.Min(level.Size, remaining)
			level.Size = level.Size.Sub(take)
			remaining = remaining.Sub(take)
		}
	}
	return "fake-order", nil
}

func (f *fakeBook) GetBalance(ctx context.Context) (decimal.Decimal, error) { return decimal.Zero, nil }
func (f *fakeBook) GetPositions(ctx context.Context, minValue decimal.Decimal) ([]types.Position, error) {
	return nil, nil
}
func (f *fakeBook) GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata {
	return &types.MarketMetadata{TokenID: tokenID}
}
func (f *fakeBook) Start(ctx context.Context) error { return nil }
func (f *fakeBook) Stop()                           {}

func newFastExecutor(p *fakeBook) *SmartExecutor {
	e := New(p)
	e.sweepDelay = time.Millisecond
	return e
}

func TestExitPositionFullFillInOneSweep(t *testing.T) {
	t.Parallel()
	book := &fakeBook{depth: &types.MarketDepth{
		Bids: []types.MarketDepthLevel{
			{Price: dec("0.50"), Size: dec("200")},
		},
	}}
	e := newFastExecutor(book)

	sold, err := e.ExitPosition(context.Background(), "tok", dec("100"), dec("0.40"), "market")
	if err != nil {
		t.Fatalf("ExitPosition: %v", err)
	}
	if !sold.Equal(dec("100")) {
		t.Errorf("sold = %v, want 100", sold)
	}
	if len(book.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(book.orders))
	}
	if book.orders[0].Side != types.SideSell {
		t.Errorf("side = %v, want SELL", book.orders[0].Side)
	}
	// The order goes in at the floor, not the best bid.
	if !book.orders[0].PriceLimit.Equal(dec("0.40")) {
		t.Errorf("price limit = %v, want the 0.40 floor", book.orders[0].PriceLimit)
	}
}

func TestExitPositionDripsAgainstThinBook(t *testing.T) {
	t.Parallel()
	// 40 @ 0.32 and 30 @ 0.31 sit above the 0.30 floor; the 100 @ 0.29
	// below it never counts. Only 70 of the 100 shares can go.
	book := &fakeBook{
		consume: true,
		depth: &types.MarketDepth{
			Bids: []types.MarketDepthLevel{
				{Price: dec("0.32"), Size: dec("40")},
				{Price: dec("0.31"), Size: dec("30")},
				{Price: dec("0.29"), Size: dec("100")},
			},
		},
	}
	e := newFastExecutor(book)

	sold, err := e.ExitPosition(context.Background(), "tok", dec("100"), dec("0.30"), "market")
	if err != nil {
		t.Fatalf("ExitPosition: %v", err)
	}
	if !sold.Equal(dec("70")) {
		t.Errorf("sold = %v, want 70 (liquidity above the floor)", sold)
	}
	if len(book.orders) != 1 {
		t.Fatalf("orders = %d, want 1 (70 fillable in the first sweep)", len(book.orders))
	}
	if !book.orders[0].Size.Equal(dec("70")) {
		t.Errorf("chunk = %v, want 70", book.orders[0].Size)
	}
}

func TestExitPositionChunkCappedByRemaining(t *testing.T) {
	t.Parallel()
	book := &fakeBook{depth: &types.MarketDepth{
		Bids: []types.MarketDepthLevel{
			{Price: dec("0.50"), Size: dec("1000")},
		},
	}}
	e := newFastExecutor(book)

	sold, err := e.ExitPosition(context.Background(), "tok", dec("12.5"), dec("0.40"), "market")
	if err != nil {
		t.Fatalf("ExitPosition: %v", err)
	}
	if !sold.Equal(dec("12.5")) {
		t.Errorf("sold = %v, want 12.5", sold)
	}
}

func TestExitPositionNoBidsAboveFloor(t *testing.T) {
	t.Parallel()
	book := &fakeBook{depth: &types.MarketDepth{
		Bids: []types.MarketDepthLevel{
			{Price: dec("0.20"), Size: dec("500")},
		},
	}}
	e := newFastExecutor(book)

	sold, err := e.ExitPosition(context.Background(), "tok", dec("100"), dec("0.30"), "market")
	if err != nil {
		t.Fatalf("ExitPosition: %v", err)
	}
	if !sold.IsZero() {
		t.Errorf("sold = %v, want 0 with no bids above the floor", sold)
	}
	if len(book.orders) != 0 {
		t.Errorf("orders = %d, want 0", len(book.orders))
	}
}

func TestExitPositionSurvivesOrderFailures(t *testing.T) {
	t.Parallel()
	book := &fakeBook{
		orderErr: errors.New("FOK not filled"),
		depth: &types.MarketDepth{
			Bids: []types.MarketDepthLevel{
				{Price: dec("0.50"), Size: dec("100")},
			},
		},
	}
	e := newFastExecutor(book)

	sold, err := e.ExitPosition(context.Background(), "tok", dec("50"), dec("0.40"), "market")
	if err != nil {
		t.Fatalf("ExitPosition should not propagate sweep failures, got %v", err)
	}
	if !sold.IsZero() {
		t.Errorf("sold = %v, want 0 when every sweep fails", sold)
	}
}

func TestExitPositionContextCancel(t *testing.T) {
	t.Parallel()
	book := &fakeBook{depth: &types.MarketDepth{
		Bids: []types.MarketDepthLevel{
			{Price: dec("0.50"), Size: dec("10")},
		},
	}}
	e := New(book) // real 1s pacing so cancellation lands in the wait
	e.sweepDelay = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	sold, err := e.ExitPosition(ctx, "tok", dec("100"), dec("0.40"), "market")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The first sweep's 10 shares were already sold.
	if !sold.Equal(dec("10")) {
		t.Errorf("sold = %v, want 10 from the first sweep", sold)
	}
}
