package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TAXONOMY - every exchange failure maps to one of these kinds
// ═══════════════════════════════════════════════════════════════════════════════

// ErrExchange is the root marker for exchange provider failures.
// errors.Is(err, ErrExchange) matches any error in this taxonomy.
var ErrExchange = errors.New("exchange error")

// APIError is an HTTP 4xx/5xx or network failure talking to an exchange
// endpoint (REST or WebSocket).
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: api error %d: %s", e.Op, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: api error: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: api error: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool { return target == ErrExchange }

// AuthError is a credential derivation or permission failure. Fatal at
// startup; logged and blocking afterwards.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrExchange }

// OrderError is an order rejection: bad size, unknown market, or a
// generic refusal from the matching engine.
type OrderError struct {
	TokenID string
	Reason  string
}

func (e *OrderError) Error() string {
	if e.TokenID != "" {
		return fmt.Sprintf("order rejected for %s: %s", e.TokenID, e.Reason)
	}
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

func (e *OrderError) Is(target error) bool { return target == ErrExchange }

// InsufficientFundsError reports a balance or position too small for the
// requested operation.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %s, have %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrExchange }

// ConfigError reports an unparseable strategy file. The previous
// configuration stays in effect.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
