// Package database persists trade history for the Telegram bot's /trades
// and /stats views. SQLite by default, PostgreSQL when DATABASE_URL carries
// a postgres scheme.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// CopyTrade is one executed mirror trade (entry or exit).
type CopyTrade struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	TokenID   string `gorm:"index"`
	Market    string
	Side      string          // BUY or SELL
	Action    string          `gorm:"index"` // OPEN, TAKE_PROFIT, STOP_LOSS
	Size      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Price     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Notional  decimal.Decimal `gorm:"type:decimal(20,6)"`
	DryRun    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New opens the database and migrates the schema. A postgres:// or
// postgresql:// URL selects PostgreSQL, anything else is a SQLite path.
func New(databaseURL string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(databaseURL)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(databaseURL), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", databaseURL).Msg("💾 Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&CopyTrade{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// RecordTrade appends one executed trade. Satisfies portfolio.TradeRecorder.
func (d *Database) RecordTrade(tokenID, market, side, action string, size, price, notional decimal.Decimal) error {
	return d.db.Create(&CopyTrade{
		TokenID:  tokenID,
		Market:   market,
		Side:     side,
		Action:   action,
		Size:     size,
		Price:    price,
		Notional: notional,
	}).Error
}

// RecentTrades returns the newest trades first.
func (d *Database) RecentTrades(limit int) ([]CopyTrade, error) {
	var trades []CopyTrade
	err := d.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// TradesByToken returns a token's trade history, newest first.
func (d *Database) TradesByToken(tokenID string, limit int) ([]CopyTrade, error) {
	var trades []CopyTrade
	err := d.db.Where("token_id = ?", tokenID).Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// Stats aggregates trade counts and gross flow for /stats.
func (d *Database) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var total int64
	d.db.Model(&CopyTrade{}).Count(&total)
	stats["total_trades"] = total

	var opened int64
	d.db.Model(&CopyTrade{}).Where("action = ?", "OPEN").Count(&opened)
	stats["opened"] = opened

	var stopped int64
	d.db.Model(&CopyTrade{}).Where("action = ?", "STOP_LOSS").Count(&stopped)
	stats["stop_losses"] = stopped

	var profits int64
	d.db.Model(&CopyTrade{}).Where("action = ?", "TAKE_PROFIT").Count(&profits)
	stats["take_profits"] = profits

	var spent struct {
		Total decimal.Decimal
	}
	d.db.Model(&CopyTrade{}).Where("side = ?", "BUY").
		Select("COALESCE(SUM(notional), 0) as total").Scan(&spent)
	stats["gross_spend"] = spent.Total

	var recovered struct {
		Total decimal.Decimal
	}
	d.db.Model(&CopyTrade{}).Where("side = ?", "SELL").
		Select("COALESCE(SUM(notional), 0) as total").Scan(&recovered)
	stats["gross_proceeds"] = recovered.Total

	return stats, nil
}
