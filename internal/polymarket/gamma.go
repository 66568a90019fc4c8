package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

const (
	DefaultGammaAPIURL = "https://gamma-api.polymarket.com"

	endDateLayout = "2006-01-02 15:04 UTC"
)

// gammaMarket mirrors the /markets response. The outcomes, outcomePrices
// and clobTokenIds fields usually arrive as JSON-encoded strings rather
// than plain arrays, so they are decoded leniently.
type gammaMarket struct {
	Question      string          `json:"question"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	EndDate       string          `json:"endDate"`
	Closed        bool            `json:"closed"`
	Volume        json.RawMessage `json:"volume"`
	Events        []struct {
		Title  string          `json:"title"`
		Score  json.RawMessage `json:"score"`
		Series []struct {
			Title string `json:"title"`
		} `json:"series"`
	} `json:"events"`
}

// GammaClient resolves market metadata from the gamma API.
type GammaClient struct {
	http *resty.Client
}

// NewGammaClient creates a metadata client.
func NewGammaClient(baseURL string) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaAPIURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &GammaClient{http: client}
}

// MarketMetadata resolves the metadata for one outcome token. It never
// fails hard: any upstream or parse problem yields a sentinel whose
// Question carries the error text.
func (c *GammaClient) MarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata {
	meta, err := c.fetch(ctx, tokenID)
	if err != nil {
		log.Warn().Err(err).Str("token", shortToken(tokenID)).Msg("Market metadata lookup failed")
		return &types.MarketMetadata{
			TokenID:  tokenID,
			Question: fmt.Sprintf("error fetching metadata: %v", err),
			Status:   "unknown",
			Outcomes: map[string]decimal.Decimal{},
		}
	}
	return meta
}

func (c *GammaClient) fetch(ctx context.Context, tokenID string) (*types.MarketMetadata, error) {
	var markets []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("clob_token_ids", tokenID).
		SetResult(&markets).
		Get("/markets")
	if err != nil {
		return nil, &types.APIError{Op: "markets", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.APIError{Op: "markets", StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no market found for token")
	}

	m := markets[0]

	outcomes := decodeStringArray(m.Outcomes)
	prices := decodeStringArray(m.OutcomePrices)
	tokenIDs := decodeStringArray(m.ClobTokenIDs)

	meta := &types.MarketMetadata{
		TokenID:  tokenID,
		Question: m.Question,
		Status:   "active",
		Volume:   decodeDecimal(m.Volume),
		Outcomes: map[string]decimal.Decimal{},
	}
	if m.Closed {
		meta.Status = "closed"
	}

	if len(m.Events) > 0 {
		meta.Title = m.Events[0].Title
		meta.Score = decodeString(m.Events[0].Score)
		if len(m.Events[0].Series) > 0 {
			meta.Category = m.Events[0].Series[0].Title
		}
	}
	if meta.Title == "" {
		meta.Title = m.Question
	}

	// Parallel arrays: outcomes[i] priced at prices[i], token tokenIDs[i].
	for i, outcome := range outcomes {
		if i < len(prices) {
			if p, err := decimal.NewFromString(prices[i]); err == nil {
				meta.Outcomes[outcome] = p
			}
		}
		if i < len(tokenIDs) && tokenIDs[i] == tokenID {
			meta.QueriedOutcome = outcome
		}
	}

	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			meta.EndDate = t.UTC().Format(endDateLayout)
		} else {
			meta.EndDate = m.EndDate
		}
	}

	return meta, nil
}

// decodeStringArray accepts either a JSON array of strings or a JSON string
// containing an encoded array (the gamma API serves both shapes).
func decodeStringArray(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &arr); err == nil {
			return arr
		}
	}
	return nil
}

// decodeDecimal accepts a JSON number or a quoted numeric string.
func decodeDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
		return decimal.Zero
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return decimal.NewFromFloat(f)
	}
	return decimal.Zero
}

// decodeString accepts a JSON string or renders anything else verbatim.
func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func shortToken(tokenID string) string {
	if len(tokenID) <= 16 {
		return tokenID
	}
	return tokenID[:16] + "..."
}
