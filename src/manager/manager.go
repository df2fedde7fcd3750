package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/executor"
	"lumixd/src/metrics"
	"lumixd/src/model"
	"lumixd/src/notify"
	"lumixd/src/repository"
	"lumixd/src/scheduler"
)

// Manager is the public order API: it validates, persists, and arms
// timers. Orders are always persisted before a timer is armed, so a crash
// between the two leaves a recoverable order rather than a phantom timer.
type Manager struct {
	orders    *repository.OrderRepository
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	hub       *notify.Hub

	execTimeout time.Duration
	now         func() time.Time
	log         *logger.Entry
}

func New(
	orders *repository.OrderRepository,
	sched *scheduler.Scheduler,
	exec *executor.Executor,
	hub *notify.Hub,
) *Manager {

	config := GetConfig()

	return &Manager{
		orders:      orders,
		scheduler:   sched,
		executor:    exec,
		hub:         hub,
		execTimeout: config.ExecutionTimeout,
		now:         time.Now,
		log:         logger.WithField("component", "OrderManager"),
	}
}

// WithClock overrides the time source. Useful for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateImmediate persists a buy/sell order due now and dispatches it
// synchronously through the same executor path as scheduled orders, so
// the at-most-once guard is uniform across kinds.
func (m *Manager) CreateImmediate(
	ctx context.Context,
	instanceID string,
	token string,
	direction string,
	fraction decimal.Decimal,
	amount *decimal.Decimal,
) (string, error) {

	if err := validateCommon(direction, fraction); err != nil {
		return "", err
	}

	now := m.now()
	order := &model.Order{
		ID:           uuid.NewString(),
		InstanceID:   instanceID,
		Token:        token,
		Kind:         model.OrderKindImmediate,
		Direction:    direction,
		PositionSize: fraction,
		Amount:       amount,
		Status:       model.OrderStatusPending,
		CreatedAt:    now,
		ExecuteAt:    now,
	}

	if err := m.orders.Create(ctx, order); err != nil {
		return "", err
	}

	metrics.OrdersCreated.WithLabelValues(order.Kind, order.Direction).Inc()

	if _, err := m.executor.Execute(ctx, order.ID); err != nil {
		m.log.WithError(err).WithField("order_id", order.ID).
			Error("Immediate order dispatch failed")
		return order.ID, err
	}

	return order.ID, nil
}

// CreateTimed persists an order due after delay and arms a timer that
// invokes execution.
func (m *Manager) CreateTimed(
	ctx context.Context,
	instanceID string,
	token string,
	direction string,
	fraction decimal.Decimal,
	delay time.Duration,
) (string, error) {

	if err := validateCommon(direction, fraction); err != nil {
		return "", err
	}
	if delay < 0 {
		return "", fmt.Errorf("%w: %s", ErrNegativeDelay, delay)
	}

	now := m.now()
	order := &model.Order{
		ID:           uuid.NewString(),
		InstanceID:   instanceID,
		Token:        token,
		Kind:         model.OrderKindTimed,
		Direction:    direction,
		PositionSize: fraction,
		Status:       model.OrderStatusPending,
		CreatedAt:    now,
		ExecuteAt:    now.Add(delay),
	}

	if err := m.orders.Create(ctx, order); err != nil {
		return "", err
	}

	metrics.OrdersCreated.WithLabelValues(order.Kind, order.Direction).Inc()
	m.scheduler.Arm(order.ID, order.ExecuteAt, m.dispatchExecute)

	m.log.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"due_at":   order.ExecuteAt,
	}).Info("Timed order created")

	return order.ID, nil
}

// CreateConditional persists an order whose timer fires a single
// condition evaluation at the due time rather than execution directly.
func (m *Manager) CreateConditional(
	ctx context.Context,
	instanceID string,
	token string,
	direction string,
	fraction decimal.Decimal,
	delay time.Duration,
	condition string,
	entryPrice decimal.Decimal,
) (string, error) {

	if err := validateCommon(direction, fraction); err != nil {
		return "", err
	}
	if delay < 0 {
		return "", fmt.Errorf("%w: %s", ErrNegativeDelay, delay)
	}
	if condition != model.ConditionAboveEntry && condition != model.ConditionBelowEntry {
		return "", fmt.Errorf("%w: %q", ErrInvalidCondition, condition)
	}
	if entryPrice.Sign() <= 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingEntryPrice, entryPrice)
	}

	now := m.now()
	order := &model.Order{
		ID:           uuid.NewString(),
		InstanceID:   instanceID,
		Token:        token,
		Kind:         model.OrderKindConditional,
		Direction:    direction,
		PositionSize: fraction,
		Status:       model.OrderStatusPending,
		Condition:    condition,
		EntryPrice:   &entryPrice,
		CreatedAt:    now,
		ExecuteAt:    now.Add(delay),
	}

	if err := m.orders.Create(ctx, order); err != nil {
		return "", err
	}

	metrics.OrdersCreated.WithLabelValues(order.Kind, order.Direction).Inc()
	m.scheduler.Arm(order.ID, order.ExecuteAt, m.dispatchConditional)

	m.log.WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"due_at":    order.ExecuteAt,
		"condition": condition,
	}).Info("Conditional order created")

	return order.ID, nil
}

// Cancel disarms any timer and transitions a pending order to cancelled.
// Returns false without error when the order is unknown or already
// terminal: cancelling a finished order is a no-op, not a failure. A
// cancel racing a firing timer is decided by the status compare-and-set.
func (m *Manager) Cancel(ctx context.Context, orderID string) (bool, error) {
	m.scheduler.Disarm(orderID)

	won, err := m.orders.TransitionStatus(ctx, orderID,
		model.OrderStatusPending, model.OrderStatusCancelled,
		repository.TransitionFields{Reason: model.ReasonUserCancelled},
	)
	if err != nil {
		return false, err
	}
	if !won {
		m.log.WithField("order_id", orderID).
			Info("Cancel was a no-op, order already terminal or unknown")
		return false, nil
	}

	metrics.OrdersTerminal.WithLabelValues(model.OrderStatusCancelled).Inc()
	m.hub.Publish(notify.StatusChange{
		OrderID:   orderID,
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusCancelled,
		Detail:    model.ReasonUserCancelled,
	})

	m.log.WithField("order_id", orderID).Info("Order cancelled")

	return true, nil
}

// GetStatus returns the order, or (nil, nil) when unknown.
func (m *Manager) GetStatus(ctx context.Context, orderID string) (*model.Order, error) {
	return m.orders.FindByID(ctx, orderID)
}

// ListPending returns all pending orders, soonest due first.
func (m *Manager) ListPending(ctx context.Context) ([]model.Order, error) {
	return m.orders.FindPending(ctx)
}

func (m *Manager) dispatchExecute(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.execTimeout)
	defer cancel()

	if _, err := m.executor.Execute(ctx, orderID); err != nil {
		m.log.WithError(err).WithField("order_id", orderID).
			Error("Scheduled execution failed")
	}
}

func (m *Manager) dispatchConditional(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.execTimeout)
	defer cancel()

	if _, err := m.executor.CheckConditional(ctx, orderID); err != nil {
		m.log.WithError(err).WithField("order_id", orderID).
			Error("Conditional evaluation failed")
	}
}

func validateCommon(direction string, fraction decimal.Decimal) error {
	if direction != model.OrderDirectionBuy && direction != model.OrderDirectionSell {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if fraction.Sign() <= 0 || fraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s", ErrInvalidFraction, fraction)
	}
	return nil
}
