// Package engine is the conditional order execution core: a periodic
// condition monitor, a claim registry bounding ownership of in-flight
// orders, per-wallet execution slots, and the coordinator that turns a
// triggered order into a confirmed transaction or a terminal failure.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"dexflow/internal/chain"
	"dexflow/internal/config"
	"dexflow/internal/ledger"
	"dexflow/internal/metrics"
	"dexflow/internal/orders"
	"dexflow/internal/pricing"
	"dexflow/internal/security"
	"dexflow/internal/types"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// Coordinator consumes claimed orders, serializes execution per wallet,
// drives the network adapter, and commits outcomes to the order store and
// transaction ledger. It is the only writer of order status transitions to
// completed/failed.
type Coordinator struct {
	cfg     *config.Config
	orders  *orders.Database
	ledger  *ledger.Service
	gate    *security.Service
	adapter chain.Adapter
	prices  pricing.Source
	emitter metrics.Emitter

	claims *ClaimRegistry
	slots  *walletSlots
	logger zerolog.Logger

	wg sync.WaitGroup
}

func NewCoordinator(
	cfg *config.Config,
	ordersDB *orders.Database,
	ledgerService *ledger.Service,
	gate *security.Service,
	adapter chain.Adapter,
	prices pricing.Source,
	emitter metrics.Emitter,
) *Coordinator {
	return &Coordinator{
		cfg:     cfg,
		orders:  ordersDB,
		ledger:  ledgerService,
		gate:    gate,
		adapter: adapter,
		prices:  prices,
		emitter: emitter,
		claims:  NewClaimRegistry(cfg.Engine.ClaimTTL),
		slots:   newWalletSlots(),
		logger:  log.With().Str("component", "execution_coordinator").Logger(),
	}
}

// Claims exposes the registry so the placement path can refuse cancelling
// claimed orders.
func (c *Coordinator) Claims() *ClaimRegistry {
	return c.claims
}

// Dispatch claims the order and executes it on its own goroutine. Returns
// false when a live claim is already held, making duplicate triggers from
// overlapping scans no-ops.
//
// The wallet queue position is reserved here, synchronously, so that
// same-wallet orders submit in the order they were dispatched; leaving the
// reservation to the spawned goroutine would let scheduling reorder them.
func (c *Coordinator) Dispatch(order *types.Order) bool {
	token, ok := c.claims.Acquire(order.OrderID)
	if !ok {
		return false
	}

	wallet, err := c.orders.GetWallet(order.UserID, order.Network)
	if err != nil {
		c.failOrder(order, token, "no wallet for network")
		c.claims.Release(order.OrderID, token)
		return true
	}
	ticket := c.slots.Enqueue(order.Network, wallet.Address)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// The claim lease bounds how long an execution may run.
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Engine.ClaimTTL)
		defer cancel()
		c.execute(ctx, order, token, wallet.Address, ticket)
	}()
	return true
}

// Wait blocks until all in-flight executions finish. Used by shutdown and
// tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// execute runs one claimed order to a decision: completed with a confirmed
// transaction, failed with a recorded reason, or deferred (claim released,
// order left pending) when the gatekeeper denies.
func (c *Coordinator) execute(ctx context.Context, stale *types.Order, token, walletAddr string, ticket *slotTicket) {
	defer c.claims.Release(stale.OrderID, token)

	logger := c.logger.With().Str("order_id", stale.OrderID).Logger()

	// Re-read under the claim; the listing that produced this order may be
	// stale (e.g. cancelled between scan and claim).
	order, err := c.orders.GetOrder(stale.OrderID)
	if err != nil {
		ticket.Abandon()
		logger.Error().Err(err).Msg("failed to load claimed order")
		return
	}
	if order.Terminal() {
		ticket.Abandon()
		logger.Debug().Str("status", order.Status).Msg("claimed order already terminal")
		return
	}

	if err := ticket.Wait(ctx); err != nil {
		// Slot wait outlived the lease; the order stays pending and a
		// later scan reclaims it.
		logger.Warn().Msg("wallet slot wait expired, deferring order")
		c.emitter.Record("order_deferred", map[string]string{
			"network": order.Network, "cause": "slot_timeout",
		}, 1)
		return
	}
	defer ticket.Release()

	// Defense in depth: a user blocked after placement must not execute.
	// Denial defers rather than fails; blocking may be a transient window.
	decision, err := c.gate.Authorize(order.UserID, "", security.ActionExecuteOrder)
	if err != nil {
		logger.Error().Err(err).Msg("gatekeeper unavailable, deferring order")
		return
	}
	if !decision.Allowed {
		logger.Warn().Str("reason", decision.Reason).Msg("execution denied, deferring order")
		c.emitter.Record("order_deferred", map[string]string{
			"network": order.Network, "cause": decision.Reason,
		}, 1)
		return
	}

	c.run(ctx, logger, order, token, walletAddr)
}

// run is the submit/confirm/retry loop.
func (c *Coordinator) run(ctx context.Context, logger zerolog.Logger, order *types.Order, token, walletAddr string) {
	start := time.Now()
	router := c.adapter.RouterAddress(order.Network)
	var lastErr error

	for attempt := 0; attempt < c.cfg.Engine.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.failOrder(order, token, "retry_exhausted:"+reason(lastErr))
				return
			case <-time.After(backoff(c.cfg.Engine.BackoffBase, attempt-1)):
			}
		}

		hash, err := c.adapter.Submit(ctx, order.Network, walletAddr, router,
			order.FromToken, order.ToToken, order.Amount)
		if err != nil {
			if c.decide(logger, order, token, err, &lastErr) {
				return
			}
			continue
		}

		// The pending row goes in the moment the hash exists; the unique
		// hash index anchors idempotency before confirmation is awaited.
		tx, err := c.ledger.RecordSubmission(order, hash, walletAddr, router)
		if err != nil {
			if errors.Is(err, ledger.ErrDuplicateHash) {
				logger.Warn().Str("tx_hash", hash).Msg("hash already recorded, awaiting prior row")
				tx = &types.Transaction{OrderID: order.OrderID, TransactionHash: hash}
			} else {
				logger.Error().Err(err).Msg("failed to record submission")
				c.failOrder(order, token, "ledger write failed")
				return
			}
		}

		receipt, err := c.adapter.AwaitConfirmation(ctx, order.Network, hash, c.cfg.Engine.ConfirmTimeout)
		if err != nil {
			if ferr := c.ledger.MarkFailed(hash, reason(err)); ferr != nil {
				logger.Error().Err(ferr).Str("tx_hash", hash).Msg("failed to record attempt failure")
			}
			if c.decide(logger, order, token, err, &lastErr) {
				return
			}
			continue
		}

		c.commit(logger, order, token, tx, receipt, time.Since(start))
		return
	}

	c.failOrder(order, token, "retry_exhausted:"+reason(lastErr))
	c.emitter.Record("order_retry_exhausted", map[string]string{"network": order.Network}, 1)
}

// decide applies the failure classification. Returns true when the order
// was terminally failed and the loop must stop; false means retry.
func (c *Coordinator) decide(logger zerolog.Logger, order *types.Order, token string, err error, lastErr *error) bool {
	switch Classify(err) {
	case ClassTransient:
		logger.Warn().Err(err).Msg("transient execution failure, will retry")
		*lastErr = err
		c.emitter.Record("execution_retry", map[string]string{"network": order.Network}, 1)
		return false
	case ClassPermanent:
		c.failOrder(order, token, reason(err))
		return true
	default:
		userID := order.UserID
		c.gate.RaiseAlert(&userID, "unclassified_execution_error", types.AlertSeverityLow,
			"unrecognized failure executing order",
			map[string]any{"order_id": order.OrderID, "error": reason(err)})
		c.failOrder(order, token, reason(err))
		return true
	}
}

// commit records the confirmed transaction and completes the order.
func (c *Coordinator) commit(logger zerolog.Logger, order *types.Order, token string, tx *types.Transaction, receipt *chain.Receipt, elapsed time.Duration) {
	toAmount := order.Amount
	if quote, err := c.prices.Quote(order.Network, order.FromToken, order.ToToken); err == nil {
		toAmount = order.Amount.Mul(quote)
	}

	if !c.claims.Owns(order.OrderID, token) {
		// Lease lapsed mid-confirmation and another worker may own the
		// order now. Leave both the ledger row and the status write to the
		// owner rather than recording a completion it knows nothing about.
		logger.Warn().Msg("claim lease lapsed before commit")
		return
	}

	if err := c.ledger.MarkCompleted(order.OrderID, tx.TransactionHash, receipt.GasUsed, receipt.GasPrice, toAmount); err != nil {
		// A second confirmed transaction for the order would break the
		// at-most-once guarantee; never complete the order on top of it.
		logger.Error().Err(err).Str("tx_hash", tx.TransactionHash).Msg("refusing completion commit")
		c.failOrder(order, token, "ledger commit failed")
		return
	}

	details, _ := json.Marshal(map[string]any{
		"transaction_hash": tx.TransactionHash,
		"network":          order.Network,
		"pair":             order.FromToken + "/" + order.ToToken,
		"from_amount":      order.Amount.String(),
		"to_amount":        toAmount.String(),
		"gas_used":         receipt.GasUsed,
		"gas_price":        receipt.GasPrice.String(),
		"duration_ms":      elapsed.Milliseconds(),
	})

	now := time.Now()
	err := c.orders.Transition(order.OrderID, types.OrderStatusPending, types.OrderStatusCompleted,
		map[string]interface{}{
			"executed_at":       now,
			"execution_details": datatypes.JSON(details),
		})
	if err != nil {
		logger.Error().Err(err).Msg("order completion transition conflicted")
		return
	}

	logger.Info().
		Str("tx_hash", tx.TransactionHash).
		Int64("gas_used", receipt.GasUsed).
		Dur("duration", elapsed).
		Msg("order executed")

	amount, _ := order.Amount.Float64()
	c.emitter.Record("order_completed", map[string]string{
		"network": order.Network,
		"pair":    order.FromToken + "/" + order.ToToken,
	}, amount)
	c.emitter.Record("execution_duration_ms", map[string]string{
		"network": order.Network,
	}, float64(elapsed.Milliseconds()))
}

// failOrder moves the order to its terminal failed state with the reason.
func (c *Coordinator) failOrder(order *types.Order, token string, errMsg string) {
	if !c.claims.Owns(order.OrderID, token) {
		c.logger.Warn().Str("order_id", order.OrderID).Msg("claim lease lapsed before failure commit")
		return
	}

	now := time.Now()
	err := c.orders.Transition(order.OrderID, types.OrderStatusPending, types.OrderStatusFailed,
		map[string]interface{}{
			"executed_at": now,
			"error":       errMsg,
		})
	if err != nil {
		c.logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order failure transition conflicted")
		return
	}

	c.logger.Info().
		Str("order_id", order.OrderID).
		Str("error", errMsg).
		Msg("order failed")

	c.emitter.Record("order_failed", map[string]string{
		"network": order.Network,
		"error":   errMsg,
	}, 1)
}
