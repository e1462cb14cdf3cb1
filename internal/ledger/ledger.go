// Package ledger is the durable, hash-deduplicated record of blockchain
// submission attempts linked to orders.
package ledger

import (
	"time"

	"dexflow/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns all Transaction rows. Orders reference them by order_id; no
// other component writes here.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// RecordSubmission inserts a pending transaction row as soon as the network
// assigns a hash, before confirmation is awaited. Returns ErrDuplicateHash
// when the hash is already on record.
func (s *Service) RecordSubmission(order *types.Order, hash, fromAddr, toAddr string) (*types.Transaction, error) {
	tx := &types.Transaction{
		TransactionID:   uuid.New().String(),
		OrderID:         order.OrderID,
		Network:         order.Network,
		TransactionHash: hash,
		FromAddress:     fromAddr,
		ToAddress:       toAddr,
		FromToken:       order.FromToken,
		ToToken:         order.ToToken,
		FromAmount:      order.Amount,
		Status:          types.TxStatusPending,
		CreatedAt:       time.Now(),
	}
	if err := s.db.Insert(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// MarkCompleted records a confirmation. Fails if another transaction for
// the same order already confirmed, preserving the at-most-one guarantee.
func (s *Service) MarkCompleted(orderID, hash string, gasUsed int64, gasPrice, toAmount decimal.Decimal) error {
	completed, err := s.db.CountCompleted(orderID)
	if err != nil {
		return err
	}
	if completed > 0 {
		return ErrDuplicateHash
	}

	now := time.Now()
	return s.db.UpdateStatus(hash, types.TxStatusCompleted, map[string]interface{}{
		"gas_used":     gasUsed,
		"gas_price":    gasPrice,
		"to_amount":    toAmount,
		"completed_at": now,
	})
}

// MarkFailed records a failed attempt with its reason.
func (s *Service) MarkFailed(hash, reason string) error {
	now := time.Now()
	return s.db.UpdateStatus(hash, types.TxStatusFailed, map[string]interface{}{
		"error":        reason,
		"completed_at": now,
	})
}

// OrderTransactions lists an order's attempts oldest-first.
func (s *Service) OrderTransactions(orderID string) ([]types.Transaction, error) {
	return s.db.ListByOrder(orderID)
}

// RecoverOrphaned fails pending attempts older than maxAge. Called once
// during startup.
func (s *Service) RecoverOrphaned(maxAge time.Duration) (int64, error) {
	return s.db.FailStale(time.Now().Add(-maxAge))
}
