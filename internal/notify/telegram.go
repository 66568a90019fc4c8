// Package notify pushes trade alerts to Telegram and answers a small set of
// operator commands. The whole package is optional: without a token the bot
// runs silent.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/database"
	"github.com/web3guy0/polywhale/internal/exchange"
	"github.com/web3guy0/polywhale/internal/portfolio"
	"github.com/web3guy0/polywhale/types"
)

// Notifier is the Telegram front end: trade alerts out, commands in.
type Notifier struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	provider exchange.Provider
	manager  *portfolio.Manager
	db       *database.Database

	stopCh chan struct{}
}

// New connects to Telegram and registers the trade callback on the manager.
// db may be nil; /trades and /stats then report unavailable.
func New(token string, chatID int64, provider exchange.Provider, manager *portfolio.Manager, db *database.Database) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot connected")

	n := &Notifier{
		api:      api,
		chatID:   chatID,
		provider: provider,
		manager:  manager,
		db:       db,
		stopCh:   make(chan struct{}),
	}

	if manager != nil && chatID != 0 {
		manager.SetTradeCallback(n.sendTradeAlert)
	}

	return n, nil
}

// Start begins the command listener and announces startup.
func (n *Notifier) Start() {
	go n.listenForCommands()

	if n.chatID != 0 {
		n.sendStartupMessage()
	}
}

// Stop stops the command listener.
func (n *Notifier) Stop() {
	close(n.stopCh)
}

func (n *Notifier) listenForCommands() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := n.api.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				go n.handleMessage(update.Message)
			}
		case <-n.stopCh:
			return
		}
	}
}

func (n *Notifier) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// Only the configured chat may drive the bot.
	if n.chatID != 0 && chatID != n.chatID {
		log.Warn().Int64("chat_id", chatID).Msg("🤖 Ignoring command from unknown chat")
		return
	}

	log.Debug().
		Int64("chat_id", chatID).
		Str("text", msg.Text).
		Msg("Received message")

	if !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start", "help":
		n.cmdHelp(chatID)
	case "status":
		n.cmdStatus(chatID)
	case "balance":
		n.cmdBalance(chatID)
	case "positions":
		n.cmdPositions(chatID)
	case "trades":
		n.cmdTrades(chatID)
	case "stats":
		n.cmdStats(chatID)
	case "pause":
		n.cmdPause(chatID)
	case "resume":
		n.cmdResume(chatID)
	case "ping":
		n.sendText(chatID, "🏓 pong")
	default:
		n.sendText(chatID, "❓ Unknown command. Use /help for available commands.")
	}
}

// Commands

func (n *Notifier) cmdHelp(chatID int64) {
	text := `🐋 *Polywhale Commands*

*📊 Monitoring:*
/status - Bot status and budget
/balance - Wallet USDC balance
/positions - Open positions with ROI
/trades - Recent executed trades
/stats - Aggregate trade statistics

*⚙️ Control:*
/pause - Stop opening new positions
/resume - Resume copy trading
/ping - Liveness check

The risk scanner keeps protecting open
positions even while entries are paused.`

	n.sendMarkdown(chatID, text)
}

func (n *Notifier) cmdStatus(chatID int64) {
	snap := n.manager.GetSnapshot()

	tradingStatus := "🟢 ACTIVE"
	if !snap.TradingEnabled {
		tradingStatus = "⏸️ PAUSED"
	}
	mode := "LIVE"
	if snap.DryRun {
		mode = "🧪 DRY RUN"
	}

	text := fmt.Sprintf(`📊 *Bot Status*

🤖 *Mode:* %s
🎯 *Trading:* %s

*Budget:*
• Spent: $%s
• Cap: $%s
• Managed positions: %d`,
		mode,
		tradingStatus,
		snap.CumulativeSpend.StringFixed(2),
		snap.MaxBudget.StringFixed(2),
		snap.ManagedTokens,
	)

	n.sendMarkdown(chatID, text)
}

func (n *Notifier) cmdBalance(chatID int64) {
	balance, err := n.provider.GetBalance(context.Background())
	if err != nil {
		n.sendText(chatID, fmt.Sprintf("❌ Balance unavailable: %s", err.Error()))
		return
	}
	n.sendMarkdown(chatID, fmt.Sprintf("💰 *Balance:* $%s USDC", balance.StringFixed(2)))
}

func (n *Notifier) cmdPositions(chatID int64) {
	positions, err := n.provider.GetPositions(context.Background(), decimal.Zero)
	if err != nil {
		n.sendText(chatID, fmt.Sprintf("❌ Positions unavailable: %s", err.Error()))
		return
	}
	if len(positions) == 0 {
		n.sendText(chatID, "📊 No open positions.")
		return
	}

	text := fmt.Sprintf("📊 *Open Positions* (%d)\n\n", len(positions))
	for i, p := range positions {
		if i >= 10 {
			text += fmt.Sprintf("\n_...and %d more_", len(positions)-10)
			break
		}

		entry, _ := p.AvgEntryPrice.Float64()
		current, _ := p.CurrentPrice.Float64()
		roi := 0.0
		if entry > 0 {
			roi = (current - entry) / entry * 100
		}
		emoji := "🟢"
		if roi < 0 {
			emoji = "🔴"
		}

		text += fmt.Sprintf(`%s *%s*
├ Size: %s
├ Entry: $%.3f → Now: $%.3f
└ ROI: %+.1f%%

`,
			emoji,
			escapeMarkdown(positionTitle(p)),
			p.Size.StringFixed(2),
			entry, current,
			roi,
		)
	}

	n.sendMarkdown(chatID, text)
}

func (n *Notifier) cmdTrades(chatID int64) {
	if n.db == nil {
		n.sendText(chatID, "❌ Trade history not enabled.")
		return
	}

	trades, err := n.db.RecentTrades(10)
	if err != nil {
		n.sendText(chatID, fmt.Sprintf("❌ Trade history unavailable: %s", err.Error()))
		return
	}
	if len(trades) == 0 {
		n.sendText(chatID, "📊 No trades recorded yet.")
		return
	}

	text := fmt.Sprintf("📜 *Recent Trades* (%d)\n\n", len(trades))
	for _, t := range trades {
		text += fmt.Sprintf(`%s *%s* %s
├ %s %s @ $%s
└ %s

`,
			actionEmoji(t.Action),
			t.Action,
			escapeMarkdown(truncate(t.Market, 40)),
			t.Side,
			t.Size.StringFixed(2),
			t.Price.StringFixed(3),
			t.CreatedAt.Format("Jan 02 15:04"),
		)
	}

	n.sendMarkdown(chatID, text)
}

func (n *Notifier) cmdStats(chatID int64) {
	if n.db == nil {
		n.sendText(chatID, "❌ Trade history not enabled.")
		return
	}

	stats, err := n.db.Stats()
	if err != nil {
		n.sendText(chatID, fmt.Sprintf("❌ Stats unavailable: %s", err.Error()))
		return
	}

	text := fmt.Sprintf(`📈 *Trading Statistics*

*Trades:*
├ Total: %v
├ Opened: %v
├ Take profits: %v
└ Stop losses: %v

*Flow:*
├ Gross spend: $%v
└ Gross proceeds: $%v`,
		stats["total_trades"],
		stats["opened"],
		stats["take_profits"],
		stats["stop_losses"],
		stats["gross_spend"],
		stats["gross_proceeds"],
	)

	n.sendMarkdown(chatID, text)
}

func (n *Notifier) cmdPause(chatID int64) {
	n.manager.SetTradingEnabled(false)
	n.sendText(chatID, "⏸️ Copy trading PAUSED. Open positions stay protected; use /resume to continue.")
}

func (n *Notifier) cmdResume(chatID int64) {
	n.manager.SetTradingEnabled(true)
	n.sendText(chatID, "🟢 Copy trading RESUMED.")
}

// Alerts

func (n *Notifier) sendTradeAlert(alert portfolio.TradeAlert) {
	if n.chatID == 0 {
		return
	}

	var text string
	switch alert.Action {
	case "OPEN":
		text = fmt.Sprintf(`🐋 *WHALE BUY MIRRORED*

*Market:* %s
*Outcome:* %s
*Size:* %s @ $%s
*Cost:* $%s
*Whale:* %s`,
			escapeMarkdown(alert.Market),
			escapeMarkdown(alert.Outcome),
			alert.Size.StringFixed(2),
			alert.Price.StringFixed(3),
			alert.Notional.StringFixed(2),
			escapeMarkdown(alert.Whale),
		)
	case "TAKE_PROFIT":
		text = fmt.Sprintf(`💰 *TAKE PROFIT*

*Market:* %s
*Sold:* %s @ $%s
*Proceeds:* $%s
*ROI:* %+.1f%%`,
			escapeMarkdown(alert.Market),
			alert.Size.StringFixed(2),
			alert.Price.StringFixed(3),
			alert.Notional.StringFixed(2),
			alert.ROI*100,
		)
	case "STOP_LOSS":
		text = fmt.Sprintf(`🛑 *STOP LOSS*

*Market:* %s
*Sold:* %s @ $%s
*Proceeds:* $%s
*ROI:* %+.1f%%`,
			escapeMarkdown(alert.Market),
			alert.Size.StringFixed(2),
			alert.Price.StringFixed(3),
			alert.Notional.StringFixed(2),
			alert.ROI*100,
		)
	default:
		return
	}

	if err := n.sendMarkdown(n.chatID, text); err != nil {
		log.Warn().Err(err).Msg("🤖 Trade alert delivery failed")
	}
}

func (n *Notifier) sendStartupMessage() {
	snap := n.manager.GetSnapshot()
	mode := "LIVE"
	if snap.DryRun {
		mode = "DRY RUN"
	}

	text := fmt.Sprintf(`🟢 *Polywhale Online*

Mode: %s
Spent: $%s / $%s

Use /status for details.`,
		mode,
		snap.CumulativeSpend.StringFixed(2),
		snap.MaxBudget.StringFixed(2),
	)

	n.sendMarkdown(n.chatID, text)
}

// Helpers

func (n *Notifier) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := n.api.Send(msg)
	return err
}

func (n *Notifier) sendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	_, err := n.api.Send(msg)
	return err
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}

func positionTitle(p types.Position) string {
	if p.Title != "" {
		return truncate(p.Title, 40)
	}
	return truncate(p.TokenID, 16)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func actionEmoji(action string) string {
	switch action {
	case "OPEN":
		return "🟢"
	case "TAKE_PROFIT":
		return "💰"
	case "STOP_LOSS":
		return "🛑"
	default:
		return "📊"
	}
}
