package orders

import (
	"errors"
	"time"

	"dexflow/internal/types"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrConflict is the optimistic-transition mismatch: the order's status
	// no longer matches the expected from-state.
	ErrConflict = errors.New("order state conflict")
	ErrNoWallet = errors.New("no wallet for user on network")
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetUserOrder(orderID, userID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListUserOrders(userID, status string, limit, offset int) ([]types.Order, error) {
	query := d.db.Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []types.Order
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error
	return orders, err
}

// ListPendingConditional returns every pending stop_loss/take_profit order,
// the condition monitor's scan set.
func (d *Database) ListPendingConditional() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("status = ? AND order_type IN ?",
		types.OrderStatusPending,
		[]string{types.OrderTypeStopLoss, types.OrderTypeTakeProfit}).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// ListPendingMarket returns pending market orders created before cutoff.
// Market orders execute on creation; any still pending past the cutoff had
// their execution deferred (gatekeeper deny, crash) and are re-dispatched by
// the monitor.
func (d *Database) ListPendingMarket(cutoff time.Time) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("status = ? AND order_type = ? AND created_at < ?",
		types.OrderStatusPending, types.OrderTypeMarket, cutoff).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// Transition moves an order from one status to another, applying fields in
// the same write. The guard on the current status makes the transition a
// compare-and-swap: a stale from-state affects zero rows and surfaces as
// ErrConflict.
func (d *Database) Transition(orderID, from, to string, fields map[string]interface{}) error {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["status"] = to

	result := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// GetWallet resolves the user's chain account on a network.
func (d *Database) GetWallet(userID, network string) (*types.Wallet, error) {
	var wallet types.Wallet
	if err := d.db.Where("user_id = ? AND network = ?", userID, network).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoWallet
		}
		return nil, err
	}
	return &wallet, nil
}

func (d *Database) CreateWallet(wallet *types.Wallet) error {
	return d.db.Create(wallet).Error
}
