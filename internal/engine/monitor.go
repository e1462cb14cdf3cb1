package engine

import (
	"context"
	"time"

	"dexflow/internal/config"
	"dexflow/internal/metrics"
	"dexflow/internal/orders"
	"dexflow/internal/pricing"
	"dexflow/internal/types"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Monitor periodically evaluates pending conditional orders against current
// prices and hands triggered ones to the coordinator. Each scan pass is
// independent and idempotent: an already-claimed order is skipped, and a
// re-scan of an untriggered order just re-evaluates the predicate.
type Monitor struct {
	cfg         *config.Config
	orders      *orders.Database
	coordinator *Coordinator
	prices      pricing.Source
	emitter     metrics.Emitter
	logger      zerolog.Logger
	now         func() time.Time
}

func NewMonitor(cfg *config.Config, ordersDB *orders.Database, coordinator *Coordinator, prices pricing.Source, emitter metrics.Emitter) *Monitor {
	return &Monitor{
		cfg:         cfg,
		orders:      ordersDB,
		coordinator: coordinator,
		prices:      prices,
		emitter:     emitter,
		logger:      log.With().Str("component", "condition_monitor").Logger(),
		now:         time.Now,
	}
}

// Start begins the scan loop and blocks until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info().
		Dur("interval", m.cfg.Engine.MonitorInterval).
		Msg("starting condition monitor")

	ticker := time.NewTicker(m.cfg.Engine.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("shutting down condition monitor")
			return
		case <-ticker.C:
			if err := m.Scan(); err != nil {
				m.logger.Error().Err(err).Msg("scan pass failed")
			}
		}
	}
}

// Scan runs one monitor pass. Exported so tests and the simulation can step
// the monitor deterministically.
func (m *Monitor) Scan() error {
	now := m.now()

	pending, err := m.orders.ListPendingConditional()
	if err != nil {
		return err
	}

	for i := range pending {
		m.evaluate(&pending[i], now)
	}

	// Market orders whose immediate execution was deferred (gatekeeper
	// deny, restart) get re-dispatched here, after a grace period so the
	// placement path's own dispatch isn't raced.
	stale, err := m.orders.ListPendingMarket(now.Add(-m.cfg.Engine.MonitorInterval))
	if err != nil {
		return err
	}
	for i := range stale {
		if m.expireIfDue(&stale[i], now, now.Add(-m.cfg.Engine.OrderTTL)) {
			continue
		}
		m.coordinator.Dispatch(&stale[i])
	}

	return nil
}

func (m *Monitor) evaluate(order *types.Order, now time.Time) {
	cond, err := order.DecodeConditions()
	if err != nil {
		// Placement validation makes this unreachable in practice; a
		// malformed row must not wedge the scan loop.
		m.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("unreadable conditions payload")
		m.failExpired(order, "invalid_conditions")
		return
	}

	expiry := order.CreatedAt.Add(m.cfg.Engine.OrderTTL)
	if cond.ExpiresAt != nil {
		expiry = *cond.ExpiresAt
	}
	if !now.Before(expiry) {
		m.failExpired(order, "expired")
		return
	}

	price, err := m.prices.Quote(order.Network, order.FromToken, order.ToToken)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("order_id", order.OrderID).
			Msg("no quote available, skipping")
		return
	}

	triggered := false
	switch order.OrderType {
	case types.OrderTypeStopLoss:
		triggered = price.LessThanOrEqual(cond.TargetPrice)
	case types.OrderTypeTakeProfit:
		triggered = price.GreaterThanOrEqual(cond.TargetPrice)
	}
	if !triggered {
		return
	}

	if m.coordinator.Dispatch(order) {
		m.logger.Info().
			Str("order_id", order.OrderID).
			Str("order_type", order.OrderType).
			Str("price", price.String()).
			Str("target", cond.TargetPrice.String()).
			Msg("order triggered")
		m.emitter.Record("order_triggered", map[string]string{
			"network":    order.Network,
			"order_type": order.OrderType,
		}, 1)
	}
}

// expireIfDue terminates an order whose creation is older than cutoff.
func (m *Monitor) expireIfDue(order *types.Order, now, cutoff time.Time) bool {
	if order.CreatedAt.After(cutoff) {
		return false
	}
	m.failExpired(order, "expired")
	return true
}

// failExpired terminally fails an order without executing it. The claim
// keeps the write from racing an in-flight execution or cancellation.
func (m *Monitor) failExpired(order *types.Order, errMsg string) {
	token, ok := m.coordinator.Claims().Acquire(order.OrderID)
	if !ok {
		return
	}
	defer m.coordinator.Claims().Release(order.OrderID, token)

	err := m.orders.Transition(order.OrderID, types.OrderStatusPending, types.OrderStatusFailed,
		map[string]interface{}{
			"executed_at": m.now(),
			"error":       errMsg,
		})
	if err != nil {
		m.logger.Debug().Err(err).Str("order_id", order.OrderID).Msg("expiry transition skipped")
		return
	}

	m.logger.Info().Str("order_id", order.OrderID).Str("error", errMsg).Msg("order expired")
	m.emitter.Record("order_expired", map[string]string{"network": order.Network}, 1)
}
