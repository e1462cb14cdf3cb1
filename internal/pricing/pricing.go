// Package pricing defines the market data boundary the condition monitor
// evaluates trigger predicates against.
package pricing

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// Source supplies the current price of from_token quoted in to_token on the
// given network.
type Source interface {
	Quote(network, fromToken, toToken string) (decimal.Decimal, error)
}

// StaticSource is a fixed price table, settable at runtime. Used by tests
// and the simulation harness to steer trigger conditions deterministically.
type StaticSource struct {
	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
}

func NewStaticSource() *StaticSource {
	return &StaticSource{quotes: make(map[string]decimal.Decimal)}
}

func pairKey(network, fromToken, toToken string) string {
	return network + ":" + fromToken + "/" + toToken
}

// Set pins the quote for a pair.
func (s *StaticSource) Set(network, fromToken, toToken string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[pairKey(network, fromToken, toToken)] = price
}

func (s *StaticSource) Quote(network, fromToken, toToken string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.quotes[pairKey(network, fromToken, toToken)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for %s", pairKey(network, fromToken, toToken))
	}
	return price, nil
}

// RandomWalkSource drifts each pair's price a bounded step per quote, seeded
// from a base table. Good enough to exercise stop_loss/take_profit triggers
// in the simulation without a live feed.
type RandomWalkSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
	// maximum relative move per quote, e.g. 0.02 for 2%
	maxStep float64
}

func NewRandomWalkSource(seed int64, maxStep float64) *RandomWalkSource {
	return &RandomWalkSource{
		rng:     rand.New(rand.NewSource(seed)),
		prices:  make(map[string]decimal.Decimal),
		maxStep: maxStep,
	}
}

// Seed sets the starting price for a pair.
func (s *RandomWalkSource) Seed(network, fromToken, toToken string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[pairKey(network, fromToken, toToken)] = price
}

func (s *RandomWalkSource) Quote(network, fromToken, toToken string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(network, fromToken, toToken)
	price, ok := s.prices[key]
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for %s", key)
	}

	step := (s.rng.Float64()*2 - 1) * s.maxStep
	next := price.Mul(decimal.NewFromFloat(1 + step))
	s.prices[key] = next
	return next, nil
}
