package security

import (
	"errors"
	"time"

	"dexflow/internal/types"

	"gorm.io/gorm"
)

var ErrAlertNotFound = errors.New("alert not found")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// IsBlocked reports whether ip has an active block.
func (d *Database) IsBlocked(ip string, now time.Time) (bool, error) {
	var count int64
	err := d.db.Model(&types.BlockedIP{}).
		Where("ip = ? AND (expires_at IS NULL OR expires_at > ?)", ip, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Database) BlockIP(block *types.BlockedIP) error {
	return d.db.Create(block).Error
}

func (d *Database) GetRateLimit(tx *gorm.DB, key string) (*types.RateLimit, error) {
	var rl types.RateLimit
	if err := tx.Where("key = ?", key).First(&rl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rl, nil
}

func (d *Database) SaveRateLimit(tx *gorm.DB, rl *types.RateLimit) error {
	return tx.Save(rl).Error
}

// WithinTx runs fn in a transaction so that counter read-modify-write cycles
// are atomic.
func (d *Database) WithinTx(fn func(tx *gorm.DB) error) error {
	return d.db.Transaction(fn)
}

func (d *Database) CreateAlert(alert *types.SecurityAlert) error {
	return d.db.Create(alert).Error
}

func (d *Database) ListOpenAlerts(limit int) ([]types.SecurityAlert, error) {
	var alerts []types.SecurityAlert
	err := d.db.Where("resolved_at IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (d *Database) ResolveAlert(alertID, resolution string, now time.Time) error {
	result := d.db.Model(&types.SecurityAlert{}).
		Where("alert_id = ? AND resolved_at IS NULL", alertID).
		Updates(map[string]interface{}{
			"resolved_at": now,
			"resolution":  resolution,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}
