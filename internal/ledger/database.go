package ledger

import (
	"errors"
	"strings"
	"time"

	"dexflow/internal/types"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateHash means the transaction hash was already recorded.
	// The hash column's unique index is the engine's idempotency anchor.
	ErrDuplicateHash = errors.New("transaction hash already recorded")
	ErrNotFound      = errors.New("transaction not found")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Insert(tx *types.Transaction) error {
	if err := d.db.Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateHash
		}
		return err
	}
	return nil
}

// UpdateStatus moves a transaction out of pending. Terminal rows are never
// touched again: the guard on current status keeps a confirmed or failed
// row immutable.
func (d *Database) UpdateStatus(hash, status string, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["status"] = status

	result := d.db.Model(&types.Transaction{}).
		Where("transaction_hash = ? AND status = ?", hash, types.TxStatusPending).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) GetByHash(hash string) (*types.Transaction, error) {
	var tx types.Transaction
	if err := d.db.Where("transaction_hash = ?", hash).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (d *Database) ListByOrder(orderID string) ([]types.Transaction, error) {
	var txs []types.Transaction
	err := d.db.Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, err
}

// CountCompleted returns how many of the order's transactions confirmed.
// The engine asserts this never exceeds one before committing.
func (d *Database) CountCompleted(orderID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Transaction{}).
		Where("order_id = ? AND status = ?", orderID, types.TxStatusCompleted).
		Count(&count).Error
	return count, err
}

// FailStale marks pending transactions older than cutoff as failed. Run at
// startup so attempts orphaned by a crash don't linger as pending forever.
func (d *Database) FailStale(cutoff time.Time) (int64, error) {
	result := d.db.Model(&types.Transaction{}).
		Where("status = ? AND created_at < ?", types.TxStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status": types.TxStatusFailed,
			"error":  "orphaned by restart",
		})
	return result.RowsAffected, result.Error
}
