// eip712.go - EIP-712 order signing for the Polymarket CTF Exchange.
// Based on: https://github.com/Polymarket/py-order-utils
package exchange

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polywhale/types"
)

// Polymarket CTF Exchange contract addresses (Polygon mainnet).
const (
	PolygonChainID     = 137
	CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
	CollateralAddress  = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174" // USDC
	ZeroAddress        = "0x0000000000000000000000000000000000000000"
)

// Signature types accepted by the exchange.
const (
	SignatureTypeEOA        = 0
	SignatureTypePolyProxy  = 1 // email login
	SignatureTypeGnosisSafe = 2
)

// Wire encoding of order side.
const (
	wireSideBuy  = 0
	wireSideSell = 1
)

// CTFOrder is the typed-data struct the exchange verifies on-chain.
type CTFOrder struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// SignedCTFOrder pairs an order with its signature.
type SignedCTFOrder struct {
	Order     *CTFOrder
	Signature string
}

// OrderSigner builds and signs CTF orders. The signer address derives the
// API credentials; the funder address holds the collateral (they differ for
// proxy wallets).
type OrderSigner struct {
	privateKey    *ecdsa.PrivateKey
	signerAddress common.Address
	funderAddress common.Address
	chainID       int64
	exchangeAddr  common.Address
	signatureType int
}

// NewOrderSigner creates a signer for the CTF exchange.
func NewOrderSigner(privateKey *ecdsa.PrivateKey, signerAddr, funderAddr common.Address, chainID int64, signatureType int) *OrderSigner {
	if chainID == 0 {
		chainID = PolygonChainID
	}
	return &OrderSigner{
		privateKey:    privateKey,
		signerAddress: signerAddr,
		funderAddress: funderAddr,
		chainID:       chainID,
		exchangeAddr:  common.HexToAddress(CTFExchangeAddress),
		signatureType: signatureType,
	}
}

// CreateSignedOrder builds and signs an order in one call. Price and size
// must already satisfy the rounding contract; amounts are scaled to the
// token's 6 decimals with exact decimal arithmetic, never floats.
func (s *OrderSigner) CreateSignedOrder(tokenID string, side types.Side, price, size decimal.Decimal) (*SignedCTFOrder, error) {
	order, err := s.createOrder(tokenID, side, price, size)
	if err != nil {
		return nil, err
	}
	return s.signOrder(order)
}

func (s *OrderSigner) createOrder(tokenID string, side types.Side, price, size decimal.Decimal) (*CTFOrder, error) {
	tokenIDInt, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, &types.OrderError{TokenID: tokenID, Reason: "token id is not numeric"}
	}

	// BUY: maker gives USDC (size*price), taker side receives shares.
	// SELL: maker gives shares, taker side receives USDC.
	var makerAmount, takerAmount *big.Int
	usdc := size.Mul(price)
	if side == types.SideBuy {
		makerAmount = toUnits(usdc, 2)
		takerAmount = toUnits(size, 4)
	} else {
		makerAmount = toUnits(size, 4)
		takerAmount = toUnits(usdc, 4)
	}

	maker := s.funderAddress
	if maker == (common.Address{}) {
		maker = s.signerAddress
	}

	wireSide := wireSideBuy
	if side == types.SideSell {
		wireSide = wireSideSell
	}

	return &CTFOrder{
		Salt:          big.NewInt(rand.Int63()),
		Maker:         maker,
		Signer:        s.signerAddress,
		Taker:         common.HexToAddress(ZeroAddress), // public order
		TokenID:       tokenIDInt,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(1000),
		Side:          uint8(wireSide),
		SignatureType: uint8(s.signatureType),
	}, nil
}

// toUnits truncates amount to maxPlaces decimals and scales it to 6-decimal
// token units. Truncation (never rounding up) keeps amounts inside budget
// and avoids the exchange's "invalid amounts" rejection.
func toUnits(amount decimal.Decimal, maxPlaces int32) *big.Int {
	return amount.Truncate(maxPlaces).Shift(6).BigInt()
}

func (s *OrderSigner) signOrder(order *CTFOrder) (*SignedCTFOrder, error) {
	typedData := s.buildTypedData(order)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, messageHash...)
	hash := crypto.Keccak256Hash(rawData)

	signature, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return &SignedCTFOrder{
		Order:     order,
		Signature: fmt.Sprintf("0x%x", signature),
	}, nil
}

func (s *OrderSigner) buildTypedData(order *CTFOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.exchangeAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}
}

// ToAPIPayload converts a signed order to the REST payload. The signature
// travels inside the order object and owner must be the API key, not the
// maker address.
func (o *SignedCTFOrder) ToAPIPayload(apiKey, orderType string) map[string]interface{} {
	sideStr := "BUY"
	if o.Order.Side == wireSideSell {
		sideStr = "SELL"
	}
	return map[string]interface{}{
		"order": map[string]interface{}{
			"salt":          o.Order.Salt.Int64(),
			"maker":         o.Order.Maker.Hex(),
			"signer":        o.Order.Signer.Hex(),
			"taker":         o.Order.Taker.Hex(),
			"tokenId":       o.Order.TokenID.String(),
			"makerAmount":   o.Order.MakerAmount.String(),
			"takerAmount":   o.Order.TakerAmount.String(),
			"expiration":    o.Order.Expiration.String(),
			"nonce":         o.Order.Nonce.String(),
			"feeRateBps":    o.Order.FeeRateBps.String(),
			"side":          sideStr,
			"signatureType": int(o.Order.SignatureType),
			"signature":     o.Signature,
		},
		"owner":     apiKey,
		"orderType": orderType, // GTC for entries, FOK for exits
		"postOnly":  false,
	}
}
