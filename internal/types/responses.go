package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderResponse is the public view of an order returned by the API.
type OrderResponse struct {
	OrderID          string          `json:"order_id"`
	OrderType        string          `json:"order_type"`
	Network          string          `json:"network"`
	FromToken        string          `json:"from_token"`
	ToToken          string          `json:"to_token"`
	Amount           decimal.Decimal `json:"amount"`
	Conditions       *Conditions     `json:"conditions,omitempty"`
	Status           string          `json:"status"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	ExecutionDetails any             `json:"execution_details,omitempty"`
}

// TransactionResponse is the public view of one submission attempt.
type TransactionResponse struct {
	TransactionID   string          `json:"transaction_id"`
	OrderID         string          `json:"order_id"`
	Network         string          `json:"network"`
	TransactionHash string          `json:"transaction_hash"`
	Status          string          `json:"status"`
	GasUsed         int64           `json:"gas_used,omitempty"`
	GasPrice        decimal.Decimal `json:"gas_price,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Error           string          `json:"error,omitempty"`
}
