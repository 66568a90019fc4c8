package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

const (
	DefaultGeminiModel   = "gemini-2.0-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	generateAttempts = 3
	retryBaseDelay   = time.Second

	analysisTimeout = 30 * time.Second
	classifyTimeout = 15 * time.Second
)

// ═══════════════════════════════════════════════════════════════════════════════
// GEMINI WIRE FORMAT
// ═══════════════════════════════════════════════════════════════════════════════

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// ANALYZER
// ═══════════════════════════════════════════════════════════════════════════════

// GeminiAnalyzer asks Google's Gemini API for trade verdicts and market
// classifications. Any terminal HTTP or parse failure is returned as an
// error; the analysis service maps those to its blocking fallback.
type GeminiAnalyzer struct {
	http   *resty.Client
	apiKey string
	model  string
}

// NewGeminiAnalyzer builds an analyzer for the given API key. An empty
// model selects gemini-2.0-flash.
func NewGeminiAnalyzer(apiKey, model string) *GeminiAnalyzer {
	if model == "" {
		model = DefaultGeminiModel
	}
	client := resty.New().
		SetBaseURL(defaultGeminiBaseURL).
		SetTimeout(analysisTimeout).
		SetHeader("Content-Type", "application/json")
	return &GeminiAnalyzer{http: client, apiKey: apiKey, model: model}
}

// generate sends one prompt and returns the raw completion text. Transport
// errors and 429s are retried with exponential backoff (1s, 2s); other HTTP
// errors fail immediately.
func (g *GeminiAnalyzer) generate(ctx context.Context, prompt string, cfg geminiGenConfig) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini api key not configured")
	}

	body := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: cfg,
	}

	var lastErr error
	for attempt := 0; attempt < generateAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			log.Warn().
				Dur("backoff", delay).
				Int("attempt", attempt+1).
				Msg("🚦 Gemini retry")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		var out geminiResponse
		resp, err := g.http.R().
			SetContext(ctx).
			SetQueryParam("key", g.apiKey).
			SetBody(body).
			SetResult(&out).
			Post(fmt.Sprintf("/models/%s:generateContent", g.model))
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("gemini rate limited (429)")
			continue
		}
		if resp.IsError() {
			return "", &types.APIError{
				Op:         "gemini generate",
				StatusCode: resp.StatusCode(),
				Message:    snippet(resp.String()),
			}
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini returned no completion")
		}
		return out.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("gemini request failed after %d attempts: %w", generateAttempts, lastErr)
}

// AnalyzeTrade asks the model whether mirroring the whale trade is sound.
func (g *GeminiAnalyzer) AnalyzeTrade(ctx context.Context, event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) (*types.TradeAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	prompt := buildAnalysisPrompt(event, metadata, depth)
	text, err := g.generate(ctx, prompt, geminiGenConfig{
		Temperature:     0.3,
		TopP:            0.8,
		MaxOutputTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	var analysis types.TradeAnalysis
	if err := json.Unmarshal([]byte(stripFences(text)), &analysis); err != nil {
		log.Warn().Str("raw", snippet(text)).Msg("🤖 Unparseable analysis reply")
		return nil, fmt.Errorf("parse analysis reply: %w", err)
	}
	return &analysis, nil
}

// IsSportsMarket classifies a market as sports-related.
func (g *GeminiAnalyzer) IsSportsMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Analyze this prediction market and determine if it is related to sports.

Market Title: %s
Market Question: %s
Category: %s

A market is considered "sports-related" if it involves:
- Professional or amateur sports leagues (NFL, NBA, MLB, NHL, MLS, NCAA, etc.)
- Sporting events, games, matches, or competitions
- Athletes, teams, or sports organizations
- Sports betting outcomes (scores, winners, player performance)
- E-sports or competitive gaming tournaments
- College sports (NCAA basketball, football, etc.)

Respond with ONLY a JSON object in this format (no markdown, no code blocks):
{"is_sports": true or false, "reason": "brief explanation"}`,
		metadata.Title, metadata.Question, orUnknown(metadata.Category))

	text, err := g.generate(ctx, prompt, geminiGenConfig{Temperature: 0.1, MaxOutputTokens: 256})
	if err != nil {
		return false, "", err
	}

	var verdict struct {
		IsSports bool   `json:"is_sports"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &verdict); err != nil {
		return false, "", fmt.Errorf("parse sports classification: %w", err)
	}
	return verdict.IsSports, verdict.Reason, nil
}

// IsCryptoMarket classifies a market as a crypto price prediction bet.
func (g *GeminiAnalyzer) IsCryptoMarket(ctx context.Context, metadata *types.MarketMetadata) (bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Analyze this prediction market and determine if it is a cryptocurrency price prediction bet.

Market Title: %s
Market Question: %s
Category: %s

A market is a "crypto price prediction" if it bets on:
- The price of a cryptocurrency (Bitcoin, Ethereum, Solana, etc.) reaching, staying above, or staying below some level
- A crypto price range or close on a given date ("What price will BTC hit in August?")
- Up/down moves of a crypto asset over a time window

Markets that merely mention crypto companies, ETF approvals, regulation, or
adoption are NOT price prediction bets.

Respond with ONLY a JSON object in this format (no markdown, no code blocks):
{"is_crypto": true or false, "reason": "brief explanation"}`,
		metadata.Title, metadata.Question, orUnknown(metadata.Category))

	text, err := g.generate(ctx, prompt, geminiGenConfig{Temperature: 0.1, MaxOutputTokens: 256})
	if err != nil {
		return false, "", err
	}

	var verdict struct {
		IsCrypto bool   `json:"is_crypto"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &verdict); err != nil {
		return false, "", fmt.Errorf("parse crypto classification: %w", err)
	}
	return verdict.IsCrypto, verdict.Reason, nil
}

// EvaluateSportsSelectivity decides whether a sports market qualifies for
// the selective exception: a heavy favorite resolving soon.
func (g *GeminiAnalyzer) EvaluateSportsSelectivity(ctx context.Context, metadata *types.MarketMetadata, maxDaysToResolution, minFavoriteOdds float64) (*types.SportsSelectivityResult, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	now := time.Now().UTC().Format("2006-01-02 15:04 UTC")
	prompt := fmt.Sprintf(`You are evaluating whether a sports prediction market qualifies for a selective trading exception.

**The current date and time is %s. Use this to calculate hours until resolution.**

Market Title: %s
Market Question: %s
End Date: %s
Current Outcomes: %s
Current Score: %s

Qualification criteria (BOTH must hold):
1. The market resolves within %.1f days of now.
2. One side is a clear favorite priced at or above %.0f%%.

Respond with ONLY a JSON object in this format (no markdown, no code blocks):
{"qualifies": true or false, "confidence": 0.0 to 1.0, "favorite_odds": 0.0 to 1.0, "hours_to_resolution": number, "favorite_entity": "name of the favorite", "justification": "one sentence"}`,
		now, metadata.Title, metadata.Question, orUnknown(metadata.EndDate),
		formatOutcomes(metadata.Outcomes), orUnknown(metadata.Score),
		maxDaysToResolution, minFavoriteOdds*100)

	text, err := g.generate(ctx, prompt, geminiGenConfig{Temperature: 0.2, MaxOutputTokens: 512})
	if err != nil {
		return nil, err
	}

	var result types.SportsSelectivityResult
	if err := json.Unmarshal([]byte(stripFences(text)), &result); err != nil {
		return nil, fmt.Errorf("parse selectivity reply: %w", err)
	}
	return &result, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// PROMPT BUILDING
// ═══════════════════════════════════════════════════════════════════════════════

func buildAnalysisPrompt(event *types.TradeEvent, metadata *types.MarketMetadata, depth *types.MarketDepth) string {
	now := time.Now().UTC().Format("2006-01-02 15:04 UTC")

	bestBid := decimal.Zero
	if b, ok := depth.BestBid(); ok {
		bestBid = b.Price
	}
	bestAsk := decimal.NewFromInt(1)
	if a, ok := depth.BestAsk(); ok {
		bestAsk = a.Price
	}
	spread := bestAsk.Sub(bestBid)
	spreadPct := "n/a"
	if bestAsk.IsPositive() {
		spreadPct = spread.Div(bestAsk).Mul(decimal.NewFromInt(100)).StringFixed(2) + "% of ask"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert prediction market analyst. Analyze the following trade opportunity and provide a recommendation.\n\n")
	fmt.Fprintf(&b, "**IMPORTANT: The current date and time is %s. Use this to calculate how long until the market resolves. Do NOT use your training data cutoff date.**\n\n", now)
	fmt.Fprintf(&b, "## Market Information\n")
	fmt.Fprintf(&b, "- **Title**: %s\n", metadata.Title)
	fmt.Fprintf(&b, "- **Question**: %s\n", metadata.Question)
	fmt.Fprintf(&b, "- **Category**: %s\n", orUnknown(metadata.Category))
	fmt.Fprintf(&b, "- **Status**: %s\n", orUnknown(metadata.Status))
	fmt.Fprintf(&b, "- **End Date**: %s\n", orUnknown(metadata.EndDate))
	fmt.Fprintf(&b, "- **Volume**: %s\n", formatVolume(metadata.Volume))
	fmt.Fprintf(&b, "- **Current Outcomes**: %s\n\n", formatOutcomes(metadata.Outcomes))
	fmt.Fprintf(&b, "## Order Book Analysis\n")
	fmt.Fprintf(&b, "- **Best Bid**: $%s\n", bestBid.StringFixed(2))
	fmt.Fprintf(&b, "- **Best Ask**: $%s\n", bestAsk.StringFixed(2))
	fmt.Fprintf(&b, "- **Spread**: $%s (%s)\n", spread.StringFixed(4), spreadPct)
	fmt.Fprintf(&b, "- **Bid Liquidity**: $%s\n", notionalLiquidity(depth.Bids).StringFixed(2))
	fmt.Fprintf(&b, "- **Ask Liquidity**: $%s\n\n", notionalLiquidity(depth.Asks).StringFixed(2))
	fmt.Fprintf(&b, "## Trade Context\n")
	fmt.Fprintf(&b, "- **Signal Source**: Whale trader %q\n", orUnknown(event.WalletName))
	fmt.Fprintf(&b, "- **Whale Trade Size**: $%s\n", event.UsdSize.StringFixed(2))
	fmt.Fprintf(&b, "- **Outcome Being Traded**: %s\n", orUnknown(event.Outcome))
	fmt.Fprintf(&b, "- **Trade Direction**: BUY (mirroring whale)\n\n")
	fmt.Fprintf(&b, "## Analysis Requirements\nPlease analyze this trade opportunity considering:\n\n")
	fmt.Fprintf(&b, "1. **Subjectivity Assessment**: How subjective vs objective is the outcome? (Sports scores are objective, political opinions are subjective)\n")
	fmt.Fprintf(&b, "2. **Resolution Timeline**: Calculate the time from NOW (%s) until the end date. Is the timing favorable?\n", now)
	fmt.Fprintf(&b, "3. **Event Likelihood**: Based on current prices and any knowledge, how likely is the outcome being traded?\n")
	fmt.Fprintf(&b, "4. **Liquidity Risk**: Is there enough liquidity to enter and exit this position?\n")
	fmt.Fprintf(&b, "5. **Market Efficiency**: Does the current price seem efficient or is there potential mispricing?\n")
	fmt.Fprintf(&b, "6. **Whale Signal Strength**: Is following this whale likely to be profitable based on the trade size and market conditions?\n")
	fmt.Fprintf(&b, "7. **Risk Factors**: What could go wrong with this trade?\n")
	fmt.Fprintf(&b, "8. **Opportunity Factors**: What makes this trade attractive?\n\n")
	fmt.Fprintf(&b, "## Required Output Format\nRespond with a JSON object in exactly this format (no markdown, no code blocks, just JSON):\n")
	fmt.Fprintf(&b, `{
    "should_trade": true or false,
    "confidence": 0.0 to 1.0,
    "justification": "2-3 sentence summary of your recommendation",
    "risk_factors": ["risk 1", "risk 2"],
    "opportunity_factors": ["opportunity 1", "opportunity 2"],
    "estimated_resolution_time": "e.g., 2 hours, 2 days, 1 week, 3 months (calculate from current time %s)",
    "subjectivity_score": 0.0 (fully objective) to 1.0 (fully subjective)
}

Provide your analysis:`, now)
	return b.String()
}

func notionalLiquidity(levels []types.MarketDepthLevel) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size.Mul(l.Price))
	}
	return total
}

func formatOutcomes(outcomes map[string]decimal.Decimal) string {
	if len(outcomes) == 0 {
		return "Unknown"
	}
	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		pct := outcomes[name].Mul(decimal.NewFromInt(100)).StringFixed(1)
		parts = append(parts, fmt.Sprintf("%s: %s%%", name, pct))
	}
	return strings.Join(parts, ", ")
}

func formatVolume(v decimal.Decimal) string {
	if v.IsZero() {
		return "Unknown"
	}
	return "$" + v.StringFixed(2)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// stripFences removes a wrapping markdown code block, which the model
// sometimes adds despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
