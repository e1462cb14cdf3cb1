package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"dexflow/internal/database"
	"dexflow/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *Service {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	return NewService(db)
}

func testOrder() *types.Order {
	return &types.Order{
		OrderID:   uuid.New().String(),
		UserID:    "user-1",
		OrderType: types.OrderTypeMarket,
		Network:   "SOL",
		FromToken: "SOL",
		ToToken:   "USDT",
		Amount:    decimal.NewFromInt(2),
		Status:    types.OrderStatusPending,
	}
}

const (
	fromAddr = "4Nd1mYvhGkXxXiPZLRmQmUXnPmRqbtmmN81ByTdm5cvM"
	toAddr   = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
)

func TestRecordSubmission(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	tx, err := s.RecordSubmission(order, "hash-1", fromAddr, toAddr)
	require.NoError(t, err)

	assert.NotEmpty(t, tx.TransactionID)
	assert.Equal(t, order.OrderID, tx.OrderID)
	assert.Equal(t, "SOL", tx.Network)
	assert.Equal(t, types.TxStatusPending, tx.Status)
	assert.True(t, tx.FromAmount.Equal(order.Amount))
	assert.Nil(t, tx.CompletedAt)
}

func TestDuplicateHashRejected(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	_, err := s.RecordSubmission(order, "hash-1", fromAddr, toAddr)
	require.NoError(t, err)

	// Same hash again, even for a different order, is refused.
	_, err = s.RecordSubmission(testOrder(), "hash-1", fromAddr, toAddr)
	assert.ErrorIs(t, err, ErrDuplicateHash)

	txs, err := s.OrderTransactions(order.OrderID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestMarkCompleted(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	_, err := s.RecordSubmission(order, "hash-1", fromAddr, toAddr)
	require.NoError(t, err)

	gasPrice := decimal.NewFromFloat(0.000001)
	toAmount := decimal.NewFromInt(300)
	require.NoError(t, s.MarkCompleted(order.OrderID, "hash-1", 5000, gasPrice, toAmount))

	txs, err := s.OrderTransactions(order.OrderID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, types.TxStatusCompleted, txs[0].Status)
	assert.Equal(t, int64(5000), txs[0].GasUsed)
	assert.True(t, txs[0].ToAmount.Equal(toAmount))
	assert.NotNil(t, txs[0].CompletedAt)
}

func TestAtMostOneCompletedPerOrder(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	_, err := s.RecordSubmission(order, "hash-1", fromAddr, toAddr)
	require.NoError(t, err)
	_, err = s.RecordSubmission(order, "hash-2", fromAddr, toAddr)
	require.NoError(t, err)

	require.NoError(t, s.MarkCompleted(order.OrderID, "hash-1", 5000,
		decimal.NewFromFloat(0.000001), decimal.NewFromInt(300)))

	// A second confirmation for the same order must be refused outright.
	err = s.MarkCompleted(order.OrderID, "hash-2", 5000,
		decimal.NewFromFloat(0.000001), decimal.NewFromInt(300))
	assert.ErrorIs(t, err, ErrDuplicateHash)
}

func TestTerminalTransactionsImmutable(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	_, err := s.RecordSubmission(order, "hash-1", fromAddr, toAddr)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed("hash-1", "confirmation timed out"))

	// Failed rows never turn completed.
	err = s.MarkCompleted(order.OrderID, "hash-1", 5000,
		decimal.NewFromFloat(0.000001), decimal.NewFromInt(300))
	assert.ErrorIs(t, err, ErrNotFound)

	// And failing a failed row again changes nothing.
	assert.ErrorIs(t, s.MarkFailed("hash-1", "again"), ErrNotFound)

	txs, err := s.OrderTransactions(order.OrderID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, types.TxStatusFailed, txs[0].Status)
	assert.Equal(t, "confirmation timed out", txs[0].Error)
}

func TestRecoverOrphaned(t *testing.T) {
	s := newLedger(t)
	order := testOrder()

	_, err := s.RecordSubmission(order, "hash-old", fromAddr, toAddr)
	require.NoError(t, err)

	// Backdate the row so it looks abandoned by a crashed worker.
	require.NoError(t, s.db.db.Model(&types.Transaction{}).
		Where("transaction_hash = ?", "hash-old").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	_, err = s.RecordSubmission(order, "hash-fresh", fromAddr, toAddr)
	require.NoError(t, err)

	recovered, err := s.RecoverOrphaned(30 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), recovered)

	txs, err := s.OrderTransactions(order.OrderID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		switch tx.TransactionHash {
		case "hash-old":
			assert.Equal(t, types.TxStatusFailed, tx.Status)
			assert.Equal(t, "orphaned by restart", tx.Error)
		case "hash-fresh":
			assert.Equal(t, types.TxStatusPending, tx.Status)
		}
	}
}
