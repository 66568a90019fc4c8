// clob.go - live Polymarket CLOB adapter.
// L1 EIP-712 auth derives L2 API credentials at startup; every trading
// request afterwards carries L2 HMAC headers.
//
// Reference: https://docs.polymarket.com/
// Python client: https://github.com/Polymarket/py-clob-client
package exchange

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/internal/polymarket"
	"github.com/web3guy0/polywhale/types"
)

const DefaultCLOBURL = "https://clob.polymarket.com"

// sellFloorPrice is the generous minimum for SELL limit prices.
var sellFloorPrice = decimal.NewFromFloat(0.01)

// apiCreds are the derived L2 credentials.
type apiCreds struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// orderResponse is the CLOB reply to an order submission.
type orderResponse struct {
	OrderID   string `json:"orderID"`
	Status    string `json:"status"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// LiveProvider trades against the real CLOB. Order books are served from
// the streaming cache with a REST fallback; metadata comes from the gamma
// API; positions from the data API.
type LiveProvider struct {
	baseURL    string
	httpClient *http.Client

	apiKey     string
	apiSecret  string
	passphrase string

	privateKey    *ecdsa.PrivateKey
	address       common.Address // signing address
	funderAddress common.Address // holds collateral (proxy wallets differ)
	signatureType int
	chainID       int64
	signer        *OrderSigner

	ws    *polymarket.WSClient
	gamma *polymarket.GammaClient
	data  *polymarket.DataClient
}

// LiveConfig carries everything the live adapter needs.
type LiveConfig struct {
	CLOBURL          string
	WalletPrivateKey string
	FunderAddress    string
	SignatureType    int
	ChainID          int64

	WS    *polymarket.WSClient
	Gamma *polymarket.GammaClient
	Data  *polymarket.DataClient
}

// NewLiveProvider parses the wallet key and derives L2 API credentials.
// A failure here is an AuthError and aborts startup.
func NewLiveProvider(cfg LiveConfig) (*LiveProvider, error) {
	if cfg.CLOBURL == "" {
		cfg.CLOBURL = DefaultCLOBURL
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = PolygonChainID
	}

	p := &LiveProvider{
		baseURL:       cfg.CLOBURL,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		signatureType: cfg.SignatureType,
		chainID:       cfg.ChainID,
		ws:            cfg.WS,
		gamma:         cfg.Gamma,
		data:          cfg.Data,
	}

	key := strings.TrimPrefix(cfg.WalletPrivateKey, "0x")
	if key == "" {
		return nil, &types.AuthError{Reason: "wallet private key required for live trading"}
	}
	pk, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, &types.AuthError{Reason: "invalid wallet private key", Err: err}
	}
	p.privateKey = pk
	p.address = crypto.PubkeyToAddress(pk.PublicKey)
	p.funderAddress = p.address
	if cfg.FunderAddress != "" {
		p.funderAddress = common.HexToAddress(cfg.FunderAddress)
		log.Info().
			Str("signer", p.address.Hex()).
			Str("funder", p.funderAddress.Hex()).
			Int("sig_type", cfg.SignatureType).
			Msg("Wallet loaded (proxy mode)")
	} else {
		log.Info().Str("address", p.address.Hex()).Msg("Wallet loaded")
	}

	creds, err := p.deriveApiCreds()
	if err != nil {
		return nil, &types.AuthError{Reason: "deriving API credentials", Err: err}
	}
	p.apiKey = creds.ApiKey
	p.apiSecret = creds.Secret
	p.passphrase = creds.Passphrase
	p.signer = NewOrderSigner(pk, p.address, p.funderAddress, cfg.ChainID, cfg.SignatureType)

	log.Info().Str("api_key", snippetKey(creds.ApiKey)).Msg("✅ API credentials derived")
	return p, nil
}

// Start connects the market data stream.
func (p *LiveProvider) Start(ctx context.Context) error {
	if p.ws == nil {
		return nil
	}
	if err := p.ws.Connect(); err != nil {
		// Degrades to REST-only books until the cache's retry loop brings
		// the stream up.
		log.Warn().Err(err).Msg("Market data stream unavailable, using REST books")
	}
	return nil
}

// Stop closes the stream and the pooled HTTP clients.
func (p *LiveProvider) Stop() {
	if p.ws != nil {
		p.ws.Close()
	}
	p.httpClient.CloseIdleConnections()
}

// GetBalance returns the USDC collateral balance.
func (p *LiveProvider) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	endpoint := "/balance-allowance"
	url := fmt.Sprintf("%s%s?asset_type=COLLATERAL&signature_type=%d", p.baseURL, endpoint, p.signatureType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	p.signL2Request(req, http.MethodGet, endpoint, nil)

	body, status, err := p.do(req)
	if err != nil {
		return decimal.Zero, &types.APIError{Op: "balance", Err: err}
	}
	if status != http.StatusOK {
		return decimal.Zero, &types.APIError{Op: "balance", StatusCode: status, Message: string(body)}
	}

	var result struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, &types.APIError{Op: "balance", Err: fmt.Errorf("parse: %w", err)}
	}
	balance, err := decimal.NewFromString(result.Balance)
	if err != nil {
		return decimal.Zero, &types.APIError{Op: "balance", Err: fmt.Errorf("invalid balance %q", result.Balance)}
	}

	// USDC carries 6 decimals on chain.
	return balance.Shift(-6), nil
}

// GetPositions returns the funder wallet's open positions with dust
// (value < minValue) filtered out.
func (p *LiveProvider) GetPositions(ctx context.Context, minValue decimal.Decimal) ([]types.Position, error) {
	if p.data == nil {
		return nil, &types.APIError{Op: "positions", Message: "data API client not configured"}
	}

	items, err := p.data.Positions(ctx, p.funderAddress.Hex())
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(items))
	for _, item := range items {
		size := decimal.NewFromFloat(item.Size)
		if size.IsZero() {
			continue
		}
		value := decimal.NewFromFloat(item.CurrentValue)
		if value.LessThan(minValue) {
			continue
		}
		pos := types.Position{
			TokenID:       item.Asset,
			Title:         item.Title,
			Size:          size,
			AvgEntryPrice: decimal.NewFromFloat(item.InitialValue).Div(size),
			CurrentPrice:  value.Div(size),
			CurrentValue:  value,
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// PlaceOrder signs and submits a marketable-limit order. BUYs are shaped by
// the rounding contract and submitted GTC; SELLs go out at the raw floor
// price as FOK.
func (p *LiveProvider) PlaceOrder(ctx context.Context, order *types.Order) (string, error) {
	price := order.PriceLimit
	size := order.Size
	orderType := "FOK"

	if order.Side == types.SideBuy {
		var err error
		price, size, err = RoundBuyOrder(order.PriceLimit, order.Size)
		if err != nil {
			return "", err
		}
		orderType = "GTC"
	} else if price.LessThan(sellFloorPrice) {
		price = sellFloorPrice
	}

	signed, err := p.signer.CreateSignedOrder(order.TokenID, order.Side, price, size)
	if err != nil {
		return "", err
	}

	payload := signed.ToAPIPayload(p.apiKey, orderType)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.signL2Request(req, http.MethodPost, "/order", body)

	respBody, status, err := p.do(req)
	if err != nil {
		return "", &types.APIError{Op: "place order", Err: err}
	}

	var resp orderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &types.APIError{Op: "place order", StatusCode: status, Message: string(respBody)}
	}

	if status != http.StatusOK && status != http.StatusCreated {
		if strings.Contains(strings.ToLower(resp.ErrorCode+resp.Message), "balance") {
			return "", &types.InsufficientFundsError{Required: size.Mul(price)}
		}
		return "", &types.OrderError{TokenID: order.TokenID, Reason: fmt.Sprintf("%s - %s", resp.ErrorCode, resp.Message)}
	}

	order.Status = types.OrderFilled
	order.OrderID = resp.OrderID
	log.Info().
		Str("order_id", resp.OrderID).
		Str("side", string(order.Side)).
		Str("size", size.String()).
		Str("price", price.String()).
		Str("type", orderType).
		Msg("✅ Order submitted")
	return resp.OrderID, nil
}

// GetOrderBook serves from the streaming cache; a miss subscribes the token
// asynchronously and answers this call from REST.
func (p *LiveProvider) GetOrderBook(ctx context.Context, tokenID string) (*types.MarketDepth, error) {
	if p.ws != nil {
		if depth, ok := p.ws.Snapshot(tokenID); ok {
			return depth, nil
		}
		go func() {
			if err := p.ws.Subscribe(tokenID); err != nil {
				log.Warn().Err(err).Str("token", snippetKey(tokenID)).Msg("📊 Book subscription failed")
			}
		}()
	}
	return p.fetchBookREST(ctx, tokenID)
}

func (p *LiveProvider) fetchBookREST(ctx context.Context, tokenID string) (*types.MarketDepth, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", p.baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	body, status, err := p.do(req)
	if err != nil {
		return nil, &types.APIError{Op: "book", Err: err}
	}
	if status != http.StatusOK {
		return nil, &types.APIError{Op: "book", StatusCode: status, Message: string(body)}
	}

	var raw struct {
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
		MinOrderSize string `json:"min_order_size"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &types.APIError{Op: "book", Err: fmt.Errorf("parse: %w", err)}
	}

	depth := &types.MarketDepth{}
	for _, lvl := range raw.Bids {
		if l, ok := parseLevel(lvl.Price, lvl.Size); ok {
			depth.Bids = append(depth.Bids, l)
		}
	}
	for _, lvl := range raw.Asks {
		if l, ok := parseLevel(lvl.Price, lvl.Size); ok {
			depth.Asks = append(depth.Asks, l)
		}
	}
	// The REST book arrives worst-first; normalize to bids desc, asks asc.
	sortDepth(depth)
	if raw.MinOrderSize != "" {
		if m, err := decimal.NewFromString(raw.MinOrderSize); err == nil {
			depth.MinOrderSize = m
		}
	}
	return depth, nil
}

// GetMarketMetadata resolves metadata via the gamma API. Never fails hard.
func (p *LiveProvider) GetMarketMetadata(ctx context.Context, tokenID string) *types.MarketMetadata {
	if p.gamma == nil {
		return &types.MarketMetadata{TokenID: tokenID, Question: "metadata client not configured", Outcomes: map[string]decimal.Decimal{}}
	}
	return p.gamma.MarketMetadata(ctx, tokenID)
}

func (p *LiveProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// AUTH - L1 EIP-712 credential derivation, L2 HMAC request signing
// ═══════════════════════════════════════════════════════════════════════════════

// signL2Request adds the L2 HMAC headers. The signed message is
// timestamp + method + path + body, HMAC-SHA256 with the URL-safe base64
// decoded secret, result re-encoded URL-safe.
func (p *LiveProvider) signL2Request(req *http.Request, method, path string, body []byte) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	message := timestamp + method + path
	if len(body) > 0 {
		message += string(body)
	}

	secretBytes, err := base64.URLEncoding.DecodeString(p.apiSecret)
	if err != nil {
		padded := p.apiSecret
		if len(padded)%4 != 0 {
			padded += strings.Repeat("=", 4-len(padded)%4)
		}
		if secretBytes, err = base64.URLEncoding.DecodeString(padded); err != nil {
			secretBytes, _ = base64.StdEncoding.DecodeString(p.apiSecret)
		}
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(message))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	// Header names use underscores, not hyphens.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", p.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", p.passphrase)
	req.Header.Set("POLY_ADDRESS", p.address.Hex())
}

// deriveApiCreds signs the ClobAuth message and asks the API for existing
// credentials, creating fresh ones when none exist.
func (p *LiveProvider) deriveApiCreds() (*apiCreds, error) {
	timestamp := time.Now().Unix()
	nonce := int64(0)

	signature, err := p.signClobAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign auth message: %w", err)
	}

	polyAddress := p.funderAddress.Hex()
	headers := map[string]string{
		"POLY_ADDRESS":   polyAddress,
		"POLY_SIGNATURE": signature,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}

	// Derive existing credentials first.
	req, _ := http.NewRequest(http.MethodGet, p.baseURL+"/auth/derive-api-key", nil)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	body, status, err := p.do(req)
	if err != nil {
		return nil, fmt.Errorf("derive request: %w", err)
	}
	if status == http.StatusOK {
		var creds apiCreds
		if err := json.Unmarshal(body, &creds); err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		return &creds, nil
	}

	// None found: create new credentials.
	req, _ = http.NewRequest(http.MethodPost, p.baseURL+"/auth/api-key", nil)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	body, status, err = p.do(req)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("API error %d: %s", status, string(body))
	}

	var creds apiCreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &creds, nil
}

// signClobAuthMessage signs the ClobAuth typed data:
// Domain {name: "ClobAuthDomain", version: "1", chainId} and message
// {address, timestamp, nonce, message}.
func (p *LiveProvider) signClobAuthMessage(timestamp, nonce int64) (string, error) {
	domainTypeHash := crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	nameHash := crypto.Keccak256Hash([]byte("ClobAuthDomain"))
	versionHash := crypto.Keccak256Hash([]byte("1"))
	chainID := big.NewInt(p.chainID)

	domainSeparator := crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		nameHash.Bytes(),
		versionHash.Bytes(),
		common.LeftPadBytes(chainID.Bytes(), 32),
	)

	clobAuthTypeHash := crypto.Keccak256Hash([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))

	timestampStr := strconv.FormatInt(timestamp, 10)
	messageStr := "This message attests that I control the given wallet"

	structHash := crypto.Keccak256Hash(
		clobAuthTypeHash.Bytes(),
		common.LeftPadBytes(p.funderAddress.Bytes(), 32),
		crypto.Keccak256Hash([]byte(timestampStr)).Bytes(),
		common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32),
		crypto.Keccak256Hash([]byte(messageStr)).Bytes(),
	)

	rawData := append([]byte{0x19, 0x01}, domainSeparator.Bytes()...)
	rawData = append(rawData, structHash.Bytes()...)
	hash := crypto.Keccak256Hash(rawData)

	sig, err := crypto.Sign(hash.Bytes(), p.privateKey)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func parseLevel(price, size string) (types.MarketDepthLevel, bool) {
	pr, err := decimal.NewFromString(price)
	if err != nil {
		return types.MarketDepthLevel{}, false
	}
	sz, err := decimal.NewFromString(size)
	if err != nil || sz.IsZero() {
		return types.MarketDepthLevel{}, false
	}
	return types.MarketDepthLevel{Price: pr, Size: sz}, true
}

func sortDepth(depth *types.MarketDepth) {
	sortLevelsInPlace(depth.Bids, true)
	sortLevelsInPlace(depth.Asks, false)
}

func sortLevelsInPlace(levels []types.MarketDepthLevel, desc bool) {
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

func snippetKey(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "..."
}
