// Package tradelog appends every real (non-skipped) BUY and SELL to an
// append-only JSON array so a run can be audited after the fact.
package tradelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Entry is one executed trade with the decision context that produced it.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"` // OPEN, TAKE_PROFIT, STOP_LOSS
	TokenID   string          `json:"token_id"`
	Market    string          `json:"market"`
	Outcome   string          `json:"outcome,omitempty"`
	Side      string          `json:"side"`
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Notional  decimal.Decimal `json:"notional"` // cost for BUYs, proceeds for SELLs

	WhaleWallet string `json:"whale_wallet,omitempty"`

	AIShouldTrade  *bool   `json:"ai_should_trade,omitempty"`
	AIConfidence   float64 `json:"ai_confidence,omitempty"`
	AIFromCache    bool    `json:"ai_from_cache,omitempty"`
	ManualOverride bool    `json:"manual_override,omitempty"`

	StopLossPct   float64         `json:"stop_loss_pct"`
	TakeProfitPct float64         `json:"take_profit_pct"`
	MinSharePrice decimal.Decimal `json:"min_share_price"`
	MaxBudget     decimal.Decimal `json:"max_budget"`

	DryRun bool `json:"dry_run"`
}

// Logger appends entries to one JSON array file (logs/trades.json).
// Writes are read-modify-write under a mutex with an atomic rename.
type Logger struct {
	mu   sync.Mutex
	path string
}

// New creates the logger and its parent directory.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trade log dir: %w", err)
	}
	return &Logger{path: path}, nil
}

// Append adds one entry. Failures are logged, never propagated: a broken
// audit log must not block trading.
func (l *Logger) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var entries []Entry
	if data, err := os.ReadFile(l.path); err == nil {
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Warn().Err(err).Str("file", l.path).Msg("💾 Trade log unreadable, starting a fresh array")
			entries = nil
		}
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("💾 Trade log marshal failed")
		return
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("💾 Trade log write failed")
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		log.Warn().Err(err).Msg("💾 Trade log rename failed")
	}
}

// Entries returns the logged trades, newest last.
func (l *Logger) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse trade log: %w", err)
	}
	return entries, nil
}
