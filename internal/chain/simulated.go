package chain

import (
	"context"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// networkProfile models one chain's behaviour: latency window, router
// address, and failure odds.
type networkProfile struct {
	Name          string
	Router        string
	MinLatency    int // in milliseconds
	MaxLatency    int
	SubmitFailure float64 // probability a submission is refused
	ConfirmReject float64 // probability a submitted tx is rejected on-chain
	BaseGas       int64
}

var defaultProfiles = map[string]*networkProfile{
	"SOL": {
		Name:          "Solana",
		Router:        "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
		MinLatency:    5,
		MaxLatency:    40,
		SubmitFailure: 0.05,
		ConfirmReject: 0.03,
		BaseGas:       5000,
	},
	"TON": {
		Name:          "TON",
		Router:        "EQB3ncyBUTjZUA5EnFKR5_EnOMI9V1tTEAAPaiU71gc4TiUt",
		MinLatency:    10,
		MaxLatency:    80,
		SubmitFailure: 0.08,
		ConfirmReject: 0.04,
		BaseGas:       21000,
	},
}

// SimulatedAdapter is an in-process stand-in for real RPC clients, in the
// spirit of a paper-trading venue: random latency, occasional refusals and
// rejections, plausible gas numbers.
type SimulatedAdapter struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[string]*networkProfile
}

func NewSimulatedAdapter(seed int64) *SimulatedAdapter {
	return &SimulatedAdapter{
		rng:      rand.New(rand.NewSource(seed)),
		profiles: defaultProfiles,
	}
}

func (a *SimulatedAdapter) profile(network string) (*networkProfile, bool) {
	p, ok := a.profiles[network]
	return p, ok
}

// RouterAddress returns the simulated DEX router for a network, empty when
// the network is unknown.
func (a *SimulatedAdapter) RouterAddress(network string) string {
	if p, ok := a.profile(network); ok {
		return p.Router
	}
	return ""
}

func (a *SimulatedAdapter) sleep(ctx context.Context, p *networkProfile) error {
	a.mu.Lock()
	latency := a.rng.Intn(p.MaxLatency-p.MinLatency+1) + p.MinLatency
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
		return nil
	}
}

func (a *SimulatedAdapter) roll() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.Float64()
}

func (a *SimulatedAdapter) newHash() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf := make([]byte, 32)
	a.rng.Read(buf)
	return hex.EncodeToString(buf)
}

// Submit validates addresses, burns simulated latency, and either refuses
// the transaction or assigns it a hash.
func (a *SimulatedAdapter) Submit(ctx context.Context, network, fromAddr, toAddr, fromToken, toToken string, amount decimal.Decimal) (string, error) {
	logger := log.With().
		Str("component", "chain_adapter").
		Str("network", network).
		Logger()

	p, ok := a.profile(network)
	if !ok {
		return "", ErrUnavailable
	}
	if !ValidAddress(network, fromAddr) || !ValidAddress(network, toAddr) {
		return "", ErrInvalidAddress
	}

	if err := a.sleep(ctx, p); err != nil {
		return "", err
	}

	if roll := a.roll(); roll < p.SubmitFailure {
		// Split refusals between the transient and permanent classes.
		switch {
		case roll < p.SubmitFailure*0.5:
			logger.Warn().Msg("simulated node unavailable")
			return "", ErrUnavailable
		case roll < p.SubmitFailure*0.8:
			logger.Warn().Msg("simulated underpriced rejection")
			return "", ErrUnderpriced
		default:
			logger.Warn().Msg("simulated insufficient balance")
			return "", ErrInsufficientBalance
		}
	}

	hash := a.newHash()
	logger.Debug().
		Str("tx_hash", hash).
		Str("pair", fromToken+"/"+toToken).
		Str("amount", amount.String()).
		Msg("transaction submitted")
	return hash, nil
}

// AwaitConfirmation resolves a previously submitted hash. The timeout bound
// is honoured even when the simulated network stalls.
func (a *SimulatedAdapter) AwaitConfirmation(ctx context.Context, network, txHash string, timeout time.Duration) (*Receipt, error) {
	p, ok := a.profile(network)
	if !ok {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.sleep(ctx, p); err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, err
	}

	if a.roll() < p.ConfirmReject {
		return nil, ErrRejected
	}

	a.mu.Lock()
	gasUsed := p.BaseGas + a.rng.Int63n(p.BaseGas)
	gasPrice := decimal.NewFromFloat(0.000001 * (1 + a.rng.Float64()))
	a.mu.Unlock()

	return &Receipt{GasUsed: gasUsed, GasPrice: gasPrice}, nil
}
