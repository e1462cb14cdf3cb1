// Package orders is the order store and placement path: validation,
// gatekeeper-checked creation, queries, and pending-only cancellation.
package orders

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dexflow/internal/security"
	"dexflow/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrValidation = errors.New("order validation failed")

// DeniedError is a gatekeeper refusal. Orders already persisted are left
// untouched when this surfaces; blocking may be transient.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

// ClaimGuard exposes whether the execution engine currently holds a claim
// on an order. Cancellation is rejected while a claim is held.
type ClaimGuard interface {
	Held(orderID string) bool
}

// Dispatcher hands an order to the execution coordinator. Returns false
// when the order is already claimed.
type Dispatcher interface {
	Dispatch(order *types.Order) bool
}

// CreateOrderRequest is the placement payload.
type CreateOrderRequest struct {
	OrderType  string            `json:"order_type" binding:"required"`
	Network    string            `json:"network" binding:"required"`
	FromToken  string            `json:"from_token" binding:"required"`
	ToToken    string            `json:"to_token" binding:"required"`
	Amount     decimal.Decimal   `json:"amount"`
	Conditions *types.Conditions `json:"conditions,omitempty"`
}

// Service handles order placement and lifecycle queries. Status mutations
// beyond cancellation belong to the execution engine.
type Service struct {
	db         *Database
	gate       *security.Service
	claims     ClaimGuard
	dispatcher Dispatcher
}

func NewService(gormDB *gorm.DB, gate *security.Service) *Service {
	return &Service{
		db:   NewDatabase(gormDB),
		gate: gate,
	}
}

// DB exposes the order store to the engine packages.
func (s *Service) DB() *Database {
	return s.db
}

// SetDispatcher wires the execution coordinator in after construction; the
// engine depends on this package, not the other way around.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *Service) SetClaimGuard(g ClaimGuard) {
	s.claims = g
}

func validateRequest(req *CreateOrderRequest) error {
	switch req.OrderType {
	case types.OrderTypeMarket:
		if req.Conditions != nil {
			return fmt.Errorf("%w: conditions are not allowed on market orders", ErrValidation)
		}
	case types.OrderTypeStopLoss, types.OrderTypeTakeProfit:
		if req.Conditions == nil {
			return fmt.Errorf("%w: conditions are required for %s orders", ErrValidation, req.OrderType)
		}
		if !req.Conditions.TargetPrice.IsPositive() {
			return fmt.Errorf("%w: target price must be positive", ErrValidation)
		}
		if req.Conditions.ExpiresAt != nil && req.Conditions.ExpiresAt.Before(time.Now()) {
			return fmt.Errorf("%w: expiry is in the past", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrValidation, req.OrderType)
	}

	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.FromToken == req.ToToken {
		return fmt.Errorf("%w: from_token and to_token must differ", ErrValidation)
	}
	return nil
}

// CreateOrder validates and persists a new order. Market orders are handed
// straight to the coordinator; conditional orders wait for the monitor.
func (s *Service) CreateOrder(userID, ip string, req *CreateOrderRequest) (*types.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	decision, err := s.gate.Authorize(userID, ip, security.ActionCreateOrder)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &DeniedError{Reason: decision.Reason}
	}

	// The wallet must exist up front: execution serializes on it.
	if _, err := s.db.GetWallet(userID, req.Network); err != nil {
		if errors.Is(err, ErrNoWallet) {
			return nil, fmt.Errorf("%w: no %s wallet", ErrValidation, req.Network)
		}
		return nil, err
	}

	order := &types.Order{
		OrderID:   uuid.New().String(),
		UserID:    userID,
		OrderType: req.OrderType,
		Network:   req.Network,
		FromToken: req.FromToken,
		ToToken:   req.ToToken,
		Amount:    req.Amount,
		Status:    types.OrderStatusPending,
		CreatedAt: time.Now(),
	}
	if req.Conditions != nil {
		encoded, err := types.EncodeConditions(req.Conditions)
		if err != nil {
			return nil, err
		}
		order.Conditions = encoded
	}

	if err := s.db.CreateOrder(order); err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("user_id", userID).
		Str("order_type", order.OrderType).
		Str("pair", order.FromToken+"/"+order.ToToken).
		Msg("order created")

	if order.OrderType == types.OrderTypeMarket && s.dispatcher != nil {
		s.dispatcher.Dispatch(order)
	}

	return order, nil
}

// GetOrder fetches one of the user's orders.
func (s *Service) GetOrder(orderID, userID string) (*types.Order, error) {
	return s.db.GetUserOrder(orderID, userID)
}

// ListOrders pages through the user's orders, optionally filtered by status.
func (s *Service) ListOrders(userID, status string, limit, offset int) ([]types.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.db.ListUserOrders(userID, status, limit, offset)
}

// CancelOrder cancels a pending, unclaimed order. Once the engine holds a
// claim the order must run to completion or terminal failure; cancelling
// mid-flight would race the submission.
func (s *Service) CancelOrder(orderID, userID string) (*types.Order, error) {
	order, err := s.db.GetUserOrder(orderID, userID)
	if err != nil {
		return nil, err
	}

	if s.claims != nil && s.claims.Held(orderID) {
		return nil, ErrConflict
	}

	now := time.Now()
	err = s.db.Transition(orderID, types.OrderStatusPending, types.OrderStatusCancelled,
		map[string]interface{}{"cancelled_at": now})
	if err != nil {
		return nil, err
	}

	log.Info().Str("order_id", orderID).Msg("order cancelled")

	order.Status = types.OrderStatusCancelled
	order.CancelledAt = &now
	return order, nil
}

// ToResponse converts a stored order into its API shape.
func ToResponse(order *types.Order) *types.OrderResponse {
	resp := &types.OrderResponse{
		OrderID:     order.OrderID,
		OrderType:   order.OrderType,
		Network:     order.Network,
		FromToken:   order.FromToken,
		ToToken:     order.ToToken,
		Amount:      order.Amount,
		Status:      order.Status,
		Error:       order.Error,
		CreatedAt:   order.CreatedAt,
		ExecutedAt:  order.ExecutedAt,
		CancelledAt: order.CancelledAt,
	}
	if cond, err := order.DecodeConditions(); err == nil {
		resp.Conditions = cond
	}
	if len(order.ExecutionDetails) > 0 {
		var details any
		if err := json.Unmarshal(order.ExecutionDetails, &details); err == nil {
			resp.ExecutionDetails = details
		}
	}
	return resp
}
