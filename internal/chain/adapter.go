// Package chain defines the blockchain network boundary: transaction
// submission and confirmation, with the error classes the engine's failure
// classifier depends on.
package chain

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Error classes surfaced by adapters. The retry classifier keys off these;
// anything else is treated as unknown.
var (
	// Transient: worth retrying with backoff.
	ErrTimeout     = errors.New("confirmation timed out")
	ErrUnavailable = errors.New("network node unavailable")
	ErrUnderpriced = errors.New("transaction underpriced")

	// Permanent: never retried.
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrRejected            = errors.New("transaction rejected")
)

// Receipt is the confirmation result for a submitted transaction.
type Receipt struct {
	GasUsed  int64
	GasPrice decimal.Decimal
}

// Adapter submits swaps to a blockchain network and awaits their
// confirmation. Submit returns as soon as the network assigns a transaction
// hash; the outcome arrives via AwaitConfirmation.
type Adapter interface {
	Submit(ctx context.Context, network, fromAddr, toAddr, fromToken, toToken string, amount decimal.Decimal) (string, error)
	AwaitConfirmation(ctx context.Context, network, txHash string, timeout time.Duration) (*Receipt, error)
	// RouterAddress is the DEX router the swap is sent to on a network.
	RouterAddress(network string) string
}

var addressPatterns = map[string]*regexp.Regexp{
	"SOL": regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`),
	"TON": regexp.MustCompile(`^[0-9a-zA-Z\-_]{48}$`),
}

// ValidAddress reports whether addr is well-formed for the network. Unknown
// networks never validate.
func ValidAddress(network, addr string) bool {
	pattern, ok := addressPatterns[network]
	if !ok {
		return false
	}
	return pattern.MatchString(addr)
}
