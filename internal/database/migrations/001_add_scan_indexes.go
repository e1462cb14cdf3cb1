package migrations

import (
	"dexflow/internal/types"

	"gorm.io/gorm"
)

// AddScanIndexes creates the composite indexes the condition monitor and
// ledger rely on. AutoMigrate covers single-column indexes declared in tags;
// these span columns and need explicit DDL.
func AddScanIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Order{}, &types.Transaction{}); err != nil {
		return err
	}

	// Monitor scans filter on both columns every pass.
	if err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_orders_status_type ON orders(status, order_type)",
	).Error; err != nil {
		return err
	}

	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_transactions_order_status ON transactions(order_id, status)",
	).Error
}
