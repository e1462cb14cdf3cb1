package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	s := NewStaticSource()

	_, err := s.Quote("SOL", "SOL", "USDT")
	assert.Error(t, err)

	s.Set("SOL", "SOL", "USDT", decimal.NewFromInt(150))
	price, err := s.Quote("SOL", "SOL", "USDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))

	// Pairs are keyed per network.
	_, err = s.Quote("TON", "SOL", "USDT")
	assert.Error(t, err)
}

func TestRandomWalkSourceStaysBounded(t *testing.T) {
	s := NewRandomWalkSource(1, 0.02)
	s.Seed("SOL", "SOL", "USDT", decimal.NewFromInt(100))

	prev := decimal.NewFromInt(100)
	lower := decimal.NewFromFloat(0.98)
	upper := decimal.NewFromFloat(1.02)

	for i := 0; i < 200; i++ {
		price, err := s.Quote("SOL", "SOL", "USDT")
		require.NoError(t, err)
		require.True(t, price.IsPositive())

		ratio := price.Div(prev)
		assert.True(t, ratio.GreaterThanOrEqual(lower) && ratio.LessThanOrEqual(upper),
			"step %d moved %s, beyond the 2%% bound", i, ratio)
		prev = price
	}
}

func TestRandomWalkSourceUnknownPair(t *testing.T) {
	s := NewRandomWalkSource(1, 0.02)
	_, err := s.Quote("SOL", "SOL", "USDT")
	assert.Error(t, err)
}
