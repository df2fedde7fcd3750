package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lumixd/src/database"
	"lumixd/src/model"
)

// HoldingKey identifies a (instance, token) pair referenced by at least
// one order, pending or historical.
type HoldingKey struct {
	InstanceID string
	Token      string
}

// OrderRepository handles read/write operations for orders and their
// status audit trail.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Debug("Creating OrderRepository with custom DB instance")

	return &OrderRepository{db: db}
}

// Create inserts a new order together with its initial status log entry.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "Create",
		"order_id":  order.ID,
		"kind":      order.Kind,
		"direction": order.Direction,
		"token":     order.Token,
	}).Debug("Creating new order")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		logEntry := &model.OrderStatusLog{
			OrderID:   order.ID,
			NewStatus: order.Status,
			CreatedAt: time.Now(),
		}
		return tx.Create(logEntry).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Create",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to create order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Create",
		"order_id": order.ID,
	}).Info("Order created successfully")

	return nil
}

// FindByID fetches a single order by its ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching order by ID")

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindPending returns all orders still in the pending state, ordered by
// due time.
func (r *OrderRepository) FindPending(ctx context.Context) ([]model.Order, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "FindPending",
	}).Debug("Fetching pending orders")

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status = ?", model.OrderStatusPending).
		Order("execute_at ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindPending",
		}).WithError(err).Error("Failed to fetch pending orders")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "FindPending",
		"rows_return": len(orders),
	}).Info("Pending orders fetched")

	return orders, nil
}

// TransitionFields carries the optional columns written together with a
// status transition.
type TransitionFields struct {
	Reason     string
	Signature  string
	ExecutedAt *time.Time
}

// TransitionStatus atomically moves an order from one status to another.
// The update only succeeds if the stored status still equals from; the
// boolean result reports whether this caller won the transition. This is
// the single guard behind the at-most-once execution invariant, so no
// caller may transition an order out of pending any other way.
func (r *OrderRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from string,
	to string,
	fields TransitionFields,
) (bool, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "TransitionStatus",
		"id":   id,
		"from": from,
		"to":   to,
	}).Debug("Transitioning order status")

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if fields.Reason != "" {
		updates["reason"] = fields.Reason
	}
	if fields.Signature != "" {
		updates["signature"] = fields.Signature
	}
	if fields.ExecutedAt != nil {
		updates["executed_at"] = fields.ExecutedAt
	}

	var won bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}

		won = res.RowsAffected > 0
		if !won {
			return nil
		}

		logEntry := &model.OrderStatusLog{
			OrderID:   id,
			OldStatus: from,
			NewStatus: to,
			Detail:    fields.Reason,
			CreatedAt: time.Now(),
		}
		return tx.Create(logEntry).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"to":   to,
		}).WithError(err).Error("Failed to transition order status")

		return false, err
	}

	if won {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"from": from,
			"to":   to,
		}).Info("Order status transitioned")
	} else {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "TransitionStatus",
			"id":   id,
			"to":   to,
		}).Info("Order status already changed, transition skipped")
	}

	return won, nil
}

// FindStatusLogs returns the audit trail for an order, oldest first.
func (r *OrderRepository) FindStatusLogs(ctx context.Context, orderID string) ([]model.OrderStatusLog, error) {
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "FindStatusLogs",
		"order_id": orderID,
	}).Debug("Fetching status logs for order")

	var logs []model.OrderStatusLog

	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "FindStatusLogs",
			"order_id": orderID,
		}).WithError(err).Error("Failed to fetch status logs")

		return nil, err
	}

	return logs, nil
}

// ReferencedHoldings returns the distinct (instance, token) pairs touched
// by any order, pending or historical. Used by the recovery routine to
// decide which balances to reconcile against the chain.
func (r *OrderRepository) ReferencedHoldings(ctx context.Context) ([]HoldingKey, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "OrderRepository",
		"op":   "ReferencedHoldings",
	}).Debug("Fetching referenced holdings")

	var keys []HoldingKey

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Distinct("instance_id", "token").
		Order("instance_id ASC, token ASC").
		Scan(&keys).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "ReferencedHoldings",
		}).WithError(err).Error("Failed to fetch referenced holdings")

		return nil, err
	}

	return keys, nil
}
