package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderIsConditional(t *testing.T) {
	assert.False(t, (&Order{OrderType: OrderTypeMarket}).IsConditional())
	assert.True(t, (&Order{OrderType: OrderTypeStopLoss}).IsConditional())
	assert.True(t, (&Order{OrderType: OrderTypeTakeProfit}).IsConditional())
}

func TestOrderTerminal(t *testing.T) {
	assert.False(t, (&Order{Status: OrderStatusPending}).Terminal())
	assert.True(t, (&Order{Status: OrderStatusCompleted}).Terminal())
	assert.True(t, (&Order{Status: OrderStatusFailed}).Terminal())
	assert.True(t, (&Order{Status: OrderStatusCancelled}).Terminal())
}

func TestConditionsRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	encoded, err := EncodeConditions(&Conditions{
		TargetPrice: decimal.RequireFromString("142.50"),
		ExpiresAt:   &expiry,
	})
	require.NoError(t, err)

	order := &Order{OrderType: OrderTypeStopLoss, Conditions: encoded}
	cond, err := order.DecodeConditions()
	require.NoError(t, err)

	assert.True(t, cond.TargetPrice.Equal(decimal.RequireFromString("142.50")))
	require.NotNil(t, cond.ExpiresAt)
	assert.True(t, cond.ExpiresAt.Equal(expiry))
}

func TestDecodeConditionsMissingPayload(t *testing.T) {
	_, err := (&Order{OrderType: OrderTypeMarket}).DecodeConditions()
	assert.ErrorIs(t, err, ErrNoConditions)

	_, err = (&Order{Conditions: []byte("{not json")}).DecodeConditions()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoConditions)
}
