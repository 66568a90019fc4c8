package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the process-level configuration loaded from environment
// variables. Strategy parameters live in the hot-reloaded strategies file
// (see strategies.go), not here.
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Polymarket endpoints
	CLOBAPIURL  string
	DataAPIURL  string
	GammaAPIURL string
	WSMarketURL string

	// Wallet
	WalletPrivateKey string
	FunderAddress    string // Address that holds funds (may differ from signing key)
	SignatureType    int    // 0=EOA, 1=Magic/Email, 2=Proxy
	ChainID          int64

	// AI
	GeminiAPIKey string
	GeminiModel  string

	// Telegram (optional; notifier disabled when unset)
	TelegramToken  string
	TelegramChatID int64

	// Storage
	DatabaseURL    string
	DataDir        string
	StrategiesFile string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		CLOBAPIURL:  getEnv("CLOB_API", "https://clob.polymarket.com"),
		DataAPIURL:  getEnv("DATA_API", "https://data-api.polymarket.com"),
		GammaAPIURL: getEnv("GAMMA_API", "https://gamma-api.polymarket.com"),
		WSMarketURL: getEnv("WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		FunderAddress:    getEnv("PROXY_ADDRESS", os.Getenv("FUNDER")),
		SignatureType:    getEnvInt("SIGNATURE_TYPE", 0),
		ChainID:          int64(getEnvInt("CHAIN_ID", 137)),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabaseURL:    getEnv("DATABASE_URL", "polywhale.db"),
		DataDir:        getEnv("DATA_DIR", "."),
		StrategiesFile: getEnv("STRATEGIES_FILE", "strategies.json"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Live trading needs a signing key; dry-run works without one.
	if !cfg.DryRun && cfg.WalletPrivateKey == "" {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required when DRY_RUN=false")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
