package engine

import (
	"testing"
	"time"

	"dexflow/internal/metrics"
	"dexflow/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMonitorFixture(t *testing.T) (*engineFixture, *Monitor) {
	f := newEngineFixture(t)
	m := NewMonitor(f.cfg, f.orders, f.coordinator, f.prices, metrics.Nop{})
	return f, m
}

func TestScanTriggersStopLoss(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeStopLoss, &types.Conditions{
		TargetPrice: decimal.NewFromInt(100),
	})

	// Above target: nothing fires.
	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(120))
	require.NoError(t, m.Scan())
	f.coordinator.Wait()
	assert.Equal(t, types.OrderStatusPending, f.reload(t, order.OrderID).Status)
	assert.Equal(t, 0, f.adapter.submitCalls)

	// At the target the trigger is inclusive.
	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(100))
	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	got := f.reload(t, order.OrderID)
	assert.Equal(t, types.OrderStatusCompleted, got.Status)
	assert.NotNil(t, got.ExecutedAt)
}

func TestScanTriggersTakeProfit(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeTakeProfit, &types.Conditions{
		TargetPrice: decimal.NewFromInt(200),
	})

	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(199))
	require.NoError(t, m.Scan())
	f.coordinator.Wait()
	assert.Equal(t, types.OrderStatusPending, f.reload(t, order.OrderID).Status)

	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(205))
	require.NoError(t, m.Scan())
	f.coordinator.Wait()
	assert.Equal(t, types.OrderStatusCompleted, f.reload(t, order.OrderID).Status)
}

func TestScanExpiresPastDeadline(t *testing.T) {
	f, m := newMonitorFixture(t)
	expiry := time.Now().Add(-time.Minute)
	order := f.createOrder(t, types.OrderTypeTakeProfit, &types.Conditions{
		TargetPrice: decimal.NewFromInt(200),
		ExpiresAt:   &expiry,
	})
	// Price past the target must not matter once expired.
	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(500))

	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	got := f.reload(t, order.OrderID)
	assert.Equal(t, types.OrderStatusFailed, got.Status)
	assert.Equal(t, "expired", got.Error)
	assert.NotNil(t, got.ExecutedAt)

	// Expiry never touches the network.
	assert.Equal(t, 0, f.adapter.submitCalls)
	txs, err := f.ledger.OrderTransactions(order.OrderID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestScanAppliesDefaultTTL(t *testing.T) {
	f, m := newMonitorFixture(t)
	// No explicit expiry: the system TTL counts from creation.
	order := f.createOrder(t, types.OrderTypeStopLoss, &types.Conditions{
		TargetPrice: decimal.NewFromInt(1),
	})

	m.now = func() time.Time { return time.Now().Add(f.cfg.Engine.OrderTTL + time.Hour) }
	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	got := f.reload(t, order.OrderID)
	assert.Equal(t, types.OrderStatusFailed, got.Status)
	assert.Equal(t, "expired", got.Error)
}

func TestScanSkipsWhenNoQuote(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeStopLoss, &types.Conditions{
		TargetPrice: decimal.NewFromInt(100),
	})
	order.Network = "TON"
	require.NoError(t, f.orders.Transition(order.OrderID,
		types.OrderStatusPending, types.OrderStatusPending,
		map[string]interface{}{"network": "TON"}))

	// No TON quote seeded; the order must simply wait.
	require.NoError(t, m.Scan())
	f.coordinator.Wait()
	assert.Equal(t, types.OrderStatusPending, f.reload(t, order.OrderID).Status)
}

func TestScanRedispatchesStaleMarketOrder(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeMarket, nil)

	// Backdate creation so the order falls behind the re-dispatch cutoff,
	// as if its immediate execution was deferred.
	require.NoError(t, f.db.Model(&types.Order{}).
		Where("order_id = ?", order.OrderID).
		Update("created_at", time.Now().Add(-time.Minute)).Error)

	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	assert.Equal(t, types.OrderStatusCompleted, f.reload(t, order.OrderID).Status)
}

func TestScanExpiresStaleMarketOrder(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeMarket, nil)

	require.NoError(t, f.db.Model(&types.Order{}).
		Where("order_id = ?", order.OrderID).
		Update("created_at", time.Now().Add(-f.cfg.Engine.OrderTTL-time.Hour)).Error)

	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	got := f.reload(t, order.OrderID)
	assert.Equal(t, types.OrderStatusFailed, got.Status)
	assert.Equal(t, "expired", got.Error)
	assert.Equal(t, 0, f.adapter.submitCalls)
}

func TestScanSkipsCancelledOrder(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeStopLoss, &types.Conditions{
		TargetPrice: decimal.NewFromInt(100),
	})
	require.NoError(t, f.orders.Transition(order.OrderID,
		types.OrderStatusPending, types.OrderStatusCancelled,
		map[string]interface{}{"cancelled_at": time.Now()}))

	// Deep under the target, but a cancelled order is out of the scan set.
	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(10))
	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	assert.Equal(t, 0, f.adapter.submitCalls)
	assert.Equal(t, types.OrderStatusCancelled, f.reload(t, order.OrderID).Status)
}

func TestScanSkipsClaimedOrder(t *testing.T) {
	f, m := newMonitorFixture(t)
	order := f.createOrder(t, types.OrderTypeStopLoss, &types.Conditions{
		TargetPrice: decimal.NewFromInt(100),
	})
	f.prices.Set("SOL", "SOL", "USDT", decimal.NewFromInt(90))

	// Another worker holds the order.
	_, ok := f.coordinator.Claims().Acquire(order.OrderID)
	require.True(t, ok)

	require.NoError(t, m.Scan())
	f.coordinator.Wait()

	assert.Equal(t, 0, f.adapter.submitCalls)
	assert.Equal(t, types.OrderStatusPending, f.reload(t, order.OrderID).Status)
}
