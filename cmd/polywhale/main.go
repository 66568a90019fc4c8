// Polywhale - Whale Copy-Trading Bot for Polymarket
//
// The bot watches a configurable set of high-volume wallets, mirrors their
// BUY trades with small fixed-notional orders, and manages the resulting
// positions with stop-loss and take-profit bands.
//
// Pipeline:
// 1. Poll watched wallets for new activity (data API)
// 2. Filter each whale BUY through blacklist, sports filter and AI gate
// 3. Mirror approved trades as ~$2 marketable-limit BUYs
// 4. Scan open positions every few seconds for SL/TP triggers
// 5. Exit through floored partial sells that respect book liquidity
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polywhale/internal/ai"
	"github.com/web3guy0/polywhale/internal/config"
	"github.com/web3guy0/polywhale/internal/database"
	"github.com/web3guy0/polywhale/internal/exchange"
	"github.com/web3guy0/polywhale/internal/execution"
	"github.com/web3guy0/polywhale/internal/notify"
	"github.com/web3guy0/polywhale/internal/polymarket"
	"github.com/web3guy0/polywhale/internal/portfolio"
	"github.com/web3guy0/polywhale/internal/tradelog"
	"github.com/web3guy0/polywhale/internal/whale"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	zerolog.SetGlobalLevel(logLevel(cfg))

	strategies, err := config.LoadStrategies(cfg.StrategiesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.StrategiesFile).Msg("Failed to load strategy parameters")
	}

	log.Info().
		Str("version", version).
		Bool("dry_run", cfg.DryRun).
		Int("watched_wallets", len(strategies.WatchedWallets)).
		Msg("🐋 Polywhale starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== CORE COMPONENTS ======

	// 1. Polymarket clients - order book stream, metadata, wallet activity
	wsClient := polymarket.NewWSClient(cfg.WSMarketURL)
	gammaClient := polymarket.NewGammaClient(cfg.GammaAPIURL)
	dataClient := polymarket.NewDataClient(cfg.DataAPIURL)

	// 2. Exchange provider - live CLOB or the paper-trading mock
	var provider exchange.Provider
	if cfg.DryRun {
		provider, err = exchange.NewMockProvider(
			filepath.Join(cfg.DataDir, "mock_state.json"), wsClient, gammaClient)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize mock exchange")
		}
		log.Info().Msg("🧪 DRY RUN mode - no real orders will be placed")
	} else {
		provider, err = exchange.NewLiveProvider(exchange.LiveConfig{
			CLOBURL:          cfg.CLOBAPIURL,
			WalletPrivateKey: cfg.WalletPrivateKey,
			FunderAddress:    cfg.FunderAddress,
			SignatureType:    cfg.SignatureType,
			ChainID:          cfg.ChainID,
			WS:               wsClient,
			Gamma:            gammaClient,
			Data:             dataClient,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize CLOB client")
		}
		log.Info().Msg("💳 CLOB client initialized")
	}
	if err := provider.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Order book stream unavailable at startup - will reconnect")
	}

	// 3. Database - trade history for the Telegram bot
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// 4. Trade log - append-only JSON audit trail
	tradeLog, err := tradelog.New(filepath.Join(cfg.DataDir, "logs", "trades.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize trade log")
	}

	// 5. AI analysis service - optional gate in front of every mirror trade.
	// Built whenever an analyzer is available so flipping ai_analysis.enabled
	// in strategies.json takes effect without a restart.
	var aiService *ai.Service
	{
		var analyzer ai.Analyzer
		switch {
		case cfg.GeminiAPIKey != "":
			analyzer = ai.NewGeminiAnalyzer(cfg.GeminiAPIKey, cfg.GeminiModel)
		case cfg.DryRun:
			analyzer = ai.NewMockAnalyzer(true)
		default:
			if strategies.AIAnalysis.Enabled {
				log.Warn().Msg("⚠️ AI analysis enabled but GEMINI_API_KEY is unset - gate disabled")
			}
		}
		if analyzer != nil {
			aiService, err = ai.NewService(ai.ServiceOptions{
				Analyzer:      analyzer,
				Market:        provider,
				MaxRequests:   strategies.AIAnalysis.MaxRequests,
				RPS:           strategies.AIAnalysis.RateLimitRPS,
				MaxConcurrent: strategies.AIAnalysis.MaxConcurrentAI,
				QueueTimeout:  time.Duration(strategies.AIAnalysis.QueueTimeout * float64(time.Second)),
				CachePath:     filepath.Join(cfg.DataDir, "ai_analysis_cache.json"),
				StatePath:     filepath.Join(cfg.DataDir, "ai_state.json"),
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize AI service")
			}
			aiService.UpdateSportsFilterConfig(
				strategies.SportsFilter.Enabled,
				strategies.SportsFilter.AllowSelectiveTrades,
				strategies.SportsFilter.SelectiveCriteria.MaxDaysToResolution,
				strategies.SportsFilter.SelectiveCriteria.MinFavoriteOdds,
			)
			aiService.UpdateCryptoMarketConfig(strategies.CryptoMarketRules.Enabled)
			log.Info().Int("used_requests", aiService.RequestCount()).Msg("🤖 AI analysis service ready")
		}
	}

	// 6. Whale monitor - polls watched wallets, emits trade events
	monitor := whale.New(
		dataClient,
		provider,
		strategies.WhaleMonitor.BatchSize,
		strategies.WhaleMonitor.BatchDelayMs,
		strategies.WhaleMonitor.MaxConcurrent,
	)
	monitor.UpdateTargets(strategies.WatchedWallets)

	// 7. Smart exit executor - drip liquidation with a price floor
	executor := execution.New(provider)

	// 8. Portfolio manager - entry pipeline + risk scan
	manager, err := portfolio.NewManager(portfolio.Options{
		Provider:  provider,
		AI:        aiGate(aiService),
		Executor:  executor,
		TradeLog:  tradeLog,
		Recorder:  db,
		Events:    monitor.Events(),
		StatePath: filepath.Join(cfg.DataDir, "bot_state.json"),
		DryRun:    cfg.DryRun,
		Risk:      riskParams(strategies),
		AIPolicy: portfolio.AIPolicy{
			Enabled:         aiService != nil && strategies.AIAnalysis.Enabled,
			BlockOnNegative: strategies.AIAnalysis.BlockOnNegative,
			MinConfidence:   strategies.AIAnalysis.MinConfidenceThreshold,
		},
		CryptoRules: cryptoRules(strategies),
		LogInterval: time.Duration(strategies.PortfolioLogIntervalMins) * time.Minute,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio manager")
	}

	// 9. Strategy file watcher - hot-reloads parameters on change
	watcher := config.NewWatcher(cfg.StrategiesFile, func(s *config.Strategies) {
		monitor.UpdateTargets(s.WatchedWallets)
		monitor.UpdateBatching(s.WhaleMonitor.BatchSize, s.WhaleMonitor.BatchDelayMs, s.WhaleMonitor.MaxConcurrent)
		manager.UpdateRiskParams(riskParams(s))
		manager.UpdateAIPolicy(portfolio.AIPolicy{
			Enabled:         aiService != nil && s.AIAnalysis.Enabled,
			BlockOnNegative: s.AIAnalysis.BlockOnNegative,
			MinConfidence:   s.AIAnalysis.MinConfidenceThreshold,
		})
		manager.UpdateCryptoRules(cryptoRules(s))
		manager.UpdateLogInterval(time.Duration(s.PortfolioLogIntervalMins) * time.Minute)
		if aiService != nil {
			aiService.UpdateMaxRequests(s.AIAnalysis.MaxRequests)
			aiService.UpdateRateLimitConfig(
				s.AIAnalysis.RateLimitRPS,
				s.AIAnalysis.MaxConcurrentAI,
				time.Duration(s.AIAnalysis.QueueTimeout*float64(time.Second)),
			)
			aiService.UpdateSportsFilterConfig(
				s.SportsFilter.Enabled,
				s.SportsFilter.AllowSelectiveTrades,
				s.SportsFilter.SelectiveCriteria.MaxDaysToResolution,
				s.SportsFilter.SelectiveCriteria.MinFavoriteOdds,
			)
			aiService.UpdateCryptoMarketConfig(s.CryptoMarketRules.Enabled)
		} else if s.AIAnalysis.Enabled {
			log.Warn().Msg("⚠️ ai_analysis enabled but no analyzer is available - set GEMINI_API_KEY and restart")
		}
	})

	// ====== TELEGRAM BOT ======
	var notifier *notify.Notifier
	if cfg.TelegramToken != "" {
		notifier, err = notify.New(cfg.TelegramToken, cfg.TelegramChatID, provider, manager, db)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
	} else {
		log.Info().Msg("🤖 Telegram disabled (no TELEGRAM_BOT_TOKEN)")
	}

	// ====== START ======
	manager.Start()
	monitor.Start()
	watcher.Start()
	if notifier != nil {
		notifier.Start()
	}

	mode := "LIVE TRADING"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║      WHALE COPY-TRADING ACTIVE           ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msgf("║  Mode: %-34s║", mode)
	log.Info().Msgf("║  Wallets watched: %-23d║", len(strategies.WatchedWallets))
	log.Info().Msgf("║  Budget: $%-31s║", strategies.MaxBudget.StringFixed(2))
	log.Info().Msg("║  → Mirror whale BUYs at ~$2 each         ║")
	log.Info().Msg("║  → Stop loss / take profit bands         ║")
	log.Info().Msg("║  → Drip exits with price floors          ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("🛑 Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("🛑 Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	if notifier != nil {
		notifier.Stop()
	}
	watcher.Stop()
	monitor.Stop()
	manager.Stop()
	provider.Stop()

	log.Info().Msg("👋 Goodbye!")
}

// logLevel derives the global verbosity: DEBUG wins, then LOG_LEVEL, then
// info.
func logLevel(cfg *config.Config) zerolog.Level {
	if cfg.Debug {
		return zerolog.DebugLevel
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}

// aiGate avoids storing a typed nil in the manager's interface field.
func aiGate(svc *ai.Service) portfolio.AIGate {
	if svc == nil {
		return nil
	}
	return svc
}

func riskParams(s *config.Strategies) portfolio.RiskParams {
	return portfolio.RiskParams{
		StopLossPct:       s.StopLossPct,
		TakeProfitPct:     s.TakeProfitPct,
		MinSharePrice:     s.MinSharePrice,
		MaxBudget:         s.MaxBudget,
		MinPositionValue:  s.MinPositionValue,
		Blacklist:         s.BlacklistedTokenIDs,
		RiskCheckInterval: time.Duration(s.RiskCheckIntervalSecs) * time.Second,
		TPHoldMinPrice:    s.TakeProfitHoldMinPrice,
		SLHoldMinPrice:    s.StopLossHoldMinPrice,
	}
}

func cryptoRules(s *config.Strategies) portfolio.CryptoRules {
	return portfolio.CryptoRules{
		Enabled:        s.CryptoMarketRules.Enabled,
		StopLossPct:    s.CryptoMarketRules.StopLossPct,
		TakeProfitPct:  s.CryptoMarketRules.TakeProfitPct,
		TPHoldMinPrice: s.CryptoMarketRules.TakeProfitHoldMinPrice,
		SLHoldMinPrice: s.CryptoMarketRules.StopLossHoldMinPrice,
	}
}
