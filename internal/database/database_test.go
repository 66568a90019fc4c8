package database

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "trades.db"))
	require.NoError(t, err)
	return db
}

func TestRecordAndRecentTrades(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.RecordTrade("111", "market-a", "BUY", "OPEN",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.42), decimal.NewFromFloat(2.10)))
	require.NoError(t, db.RecordTrade("111", "market-a", "SELL", "TAKE_PROFIT",
		decimal.NewFromFloat(2.5), decimal.NewFromFloat(0.80), decimal.NewFromFloat(2.00)))

	trades, err := db.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, "TAKE_PROFIT", trades[0].Action, "newest first")
	require.True(t, trades[1].Size.Equal(decimal.NewFromInt(5)))
}

func TestTradesByToken(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.RecordTrade("111", "market-a", "BUY", "OPEN",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.42), decimal.NewFromFloat(2.10)))
	require.NoError(t, db.RecordTrade("222", "market-b", "BUY", "OPEN",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.30), decimal.NewFromFloat(1.50)))

	trades, err := db.TradesByToken("222", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, "market-b", trades[0].Market)
}

func TestStats(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.RecordTrade("111", "m", "BUY", "OPEN",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.40), decimal.NewFromFloat(2.00)))
	require.NoError(t, db.RecordTrade("222", "m", "BUY", "OPEN",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.30), decimal.NewFromFloat(1.50)))
	require.NoError(t, db.RecordTrade("111", "m", "SELL", "STOP_LOSS",
		decimal.NewFromInt(5), decimal.NewFromFloat(0.20), decimal.NewFromFloat(1.00)))

	stats, err := db.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 3, stats["total_trades"])
	require.EqualValues(t, 2, stats["opened"])
	require.EqualValues(t, 1, stats["stop_losses"])
	require.EqualValues(t, 0, stats["take_profits"])

	spend := stats["gross_spend"].(decimal.Decimal)
	require.True(t, spend.Equal(decimal.NewFromFloat(3.50)), "gross spend = %v", spend)
	proceeds := stats["gross_proceeds"].(decimal.Decimal)
	require.True(t, proceeds.Equal(decimal.NewFromInt(1)), "gross proceeds = %v", proceeds)
}

func TestStatsEmpty(t *testing.T) {
	db := newTestDB(t)

	stats, err := db.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats["total_trades"])
	spend := stats["gross_spend"].(decimal.Decimal)
	require.True(t, spend.IsZero())
}
