package types

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order type values. These strings are part of the persisted contract and
// must not be renamed without a migration.
const (
	OrderTypeMarket     = "market"
	OrderTypeStopLoss   = "stop_loss"
	OrderTypeTakeProfit = "take_profit"
)

// Order status values.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

// Transaction status values.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

var ErrNoConditions = errors.New("order has no conditions payload")

// Conditions is the trigger predicate attached to stop_loss and take_profit
// orders: a target price in to_token units, plus an optional expiry after
// which the order fails instead of executing.
type Conditions struct {
	TargetPrice decimal.Decimal `json:"target_price"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// Order is a user's intent to exchange Amount of FromToken for ToToken on
// the given network. Conditions is present iff the order is conditional.
// Status is owned exclusively by the execution engine once the order leaves
// the placement path.
type Order struct {
	gorm.Model       `json:"-"`
	OrderID          string          `gorm:"uniqueIndex" json:"order_id"`
	UserID           string          `gorm:"index" json:"user_id"`
	OrderType        string          `json:"order_type"` // market, stop_loss, take_profit
	Network          string          `json:"network"`
	FromToken        string          `json:"from_token"`
	ToToken          string          `json:"to_token"`
	Amount           decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	Conditions       datatypes.JSON  `json:"conditions,omitempty"`
	Status           string          `gorm:"index" json:"status"` // pending, completed, failed, cancelled
	ExecutionDetails datatypes.JSON  `json:"execution_details,omitempty"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

// IsConditional reports whether the order carries a trigger predicate.
func (o *Order) IsConditional() bool {
	return o.OrderType == OrderTypeStopLoss || o.OrderType == OrderTypeTakeProfit
}

// Terminal reports whether the order has reached a final status.
func (o *Order) Terminal() bool {
	return o.Status != OrderStatusPending
}

// DecodeConditions unmarshals the stored conditions payload.
func (o *Order) DecodeConditions() (*Conditions, error) {
	if len(o.Conditions) == 0 {
		return nil, ErrNoConditions
	}
	var c Conditions
	if err := json.Unmarshal(o.Conditions, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodeConditions marshals c into the stored payload format.
func EncodeConditions(c *Conditions) (datatypes.JSON, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Transaction is one on-chain submission attempt tied to an order. The
// unique index on TransactionHash is the engine's idempotency boundary: a
// hash is recorded at most once, and an order may accumulate several attempts
// but at most one row ever reaches completed.
type Transaction struct {
	gorm.Model      `json:"-"`
	TransactionID   string          `gorm:"uniqueIndex" json:"transaction_id"`
	OrderID         string          `gorm:"index" json:"order_id"`
	Network         string          `json:"network"`
	TransactionHash string          `gorm:"uniqueIndex" json:"transaction_hash"`
	FromAddress     string          `json:"from_address"`
	ToAddress       string          `json:"to_address"`
	FromToken       string          `json:"from_token"`
	ToToken         string          `json:"to_token"`
	FromAmount      decimal.Decimal `gorm:"type:decimal(38,18)" json:"from_amount"`
	ToAmount        decimal.Decimal `gorm:"type:decimal(38,18)" json:"to_amount"`
	GasUsed         int64           `json:"gas_used,omitempty"`
	GasPrice        decimal.Decimal `gorm:"type:decimal(38,18)" json:"gas_price,omitempty"`
	Status          string          `gorm:"index" json:"status"` // pending, completed, failed
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Wallet is a user's chain account on one network. The engine reads wallets
// to serialize submissions per (network, address); it never mutates them.
type Wallet struct {
	gorm.Model `json:"-"`
	UserID     string `gorm:"uniqueIndex:idx_wallet_user_network,priority:1" json:"user_id"`
	Network    string `gorm:"uniqueIndex:idx_wallet_user_network,priority:2" json:"network"`
	Address    string `json:"address"`
}
