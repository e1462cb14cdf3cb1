package database

import (
	"fmt"

	"dexflow/internal/database/migrations"
	"dexflow/internal/types"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite store at path and brings the schema up to
// date. The busy timeout makes concurrent writers queue on the file lock
// instead of surfacing "database is locked" to callers.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Run explicit migrations first
	if err := migrations.AddScanIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate remaining schemas
	err = db.AutoMigrate(
		&types.Order{},
		&types.Transaction{},
		&types.Wallet{},
		&types.SecurityAlert{},
		&types.RateLimit{},
		&types.BlockedIP{},
		&types.SystemMetric{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
