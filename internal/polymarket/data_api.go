package polymarket

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/web3guy0/polywhale/types"
)

const (
	DefaultDataAPIURL = "https://data-api.polymarket.com"

	positionsPageSize = 100
)

// ActivityItem is one row of a wallet's activity feed. Asset is the numeric
// CLOB token id of the traded outcome token.
type ActivityItem struct {
	Timestamp int64   `json:"timestamp"`
	Type      string  `json:"type"`
	Side      string  `json:"side"`
	UsdcSize  float64 `json:"usdcSize"`
	Asset     string  `json:"asset"`
	Slug      string  `json:"slug"`
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
}

// PositionItem is one row of the positions endpoint. A position is open iff
// size > 0 and redeemable is false or absent.
type PositionItem struct {
	Asset        string  `json:"asset"`
	Title        string  `json:"title"`
	Size         float64 `json:"size"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	Redeemable   *bool   `json:"redeemable"`
}

// Open reports whether this row represents an open position.
func (p *PositionItem) Open() bool {
	return p.Size > 0 && (p.Redeemable == nil || !*p.Redeemable)
}

// DataClient talks to the Polymarket data API (wallet activity, positions).
// One pooled HTTP client is shared across all wallets the monitor polls.
type DataClient struct {
	http *resty.Client
}

// NewDataClient creates a client with a connection pool sized for the
// whale monitor's fan-out (100 connections, 50 keep-alive per host).
func NewDataClient(baseURL string) *DataClient {
	if baseURL == "" {
		baseURL = DefaultDataAPIURL
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	}

	client := resty.NewWithClient(&http.Client{Transport: transport}).
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &DataClient{http: client}
}

// RecentActivity returns a wallet's newest trades, newest first.
func (c *DataClient) RecentActivity(ctx context.Context, address string, limit int) ([]ActivityItem, error) {
	var items []ActivityItem
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user":          address,
			"limit":         strconv.Itoa(limit),
			"sortBy":        "timestamp",
			"sortDirection": "desc",
		}).
		SetResult(&items).
		Get("/activity")
	if err != nil {
		return nil, &types.APIError{Op: "activity", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &types.APIError{Op: "activity", StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return items, nil
}

// Positions returns every open position of a wallet, walking pagination
// until a short page arrives.
func (c *DataClient) Positions(ctx context.Context, address string) ([]PositionItem, error) {
	var all []PositionItem

	for offset := 0; ; offset += positionsPageSize {
		var page []PositionItem
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"user":          address,
				"sizeThreshold": "0",
				"limit":         strconv.Itoa(positionsPageSize),
				"offset":        strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/positions")
		if err != nil {
			return nil, &types.APIError{Op: "positions", Err: err}
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, &types.APIError{Op: "positions", StatusCode: resp.StatusCode(), Message: resp.String()}
		}

		for _, p := range page {
			if p.Open() {
				all = append(all, p)
			}
		}

		if len(page) < positionsPageSize {
			return all, nil
		}
		if offset > 100*positionsPageSize {
			return all, fmt.Errorf("positions pagination runaway for %s", address)
		}
	}
}

// Close releases idle pooled connections.
func (c *DataClient) Close() {
	c.http.GetClient().CloseIdleConnections()
}
