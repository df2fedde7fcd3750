package recovery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/executor"
	"lumixd/src/metrics"
	"lumixd/src/model"
	"lumixd/src/notify"
	"lumixd/src/repository"
	"lumixd/src/scheduler"
)

// LiveBalances reads on-chain holdings for reconciliation.
type LiveBalances interface {
	GetLiveBalance(ctx context.Context, instanceID, token string) (decimal.Decimal, error)
}

// Recovery rebuilds scheduler state and position truth after a restart.
// It runs once, before the manager accepts new orders: pending orders
// whose due time passed during downtime are expired — never executed
// late, since their timing or price assumption no longer holds — and the
// rest are re-armed. Positions are then replaced wholesale from chain
// balances.
type Recovery struct {
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	hub       *notify.Hub
	balances  LiveBalances

	execTimeout time.Duration
	now         func() time.Time
	log         *logger.Entry
}

func New(
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	sched *scheduler.Scheduler,
	exec *executor.Executor,
	hub *notify.Hub,
	balances LiveBalances,
) *Recovery {

	config := GetConfig()

	return &Recovery{
		orders:      orders,
		positions:   positions,
		scheduler:   sched,
		executor:    exec,
		hub:         hub,
		balances:    balances,
		execTimeout: config.ExecutionTimeout,
		now:         time.Now,
		log:         logger.WithField("component", "Recovery"),
	}
}

// WithClock overrides the time source. Useful for tests.
func (r *Recovery) WithClock(now func() time.Time) *Recovery {
	r.now = now
	return r
}

// Run performs the full startup recovery: expire, re-arm, reconcile.
func (r *Recovery) Run(ctx context.Context) error {
	pending, err := r.orders.FindPending(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	expired := 0

	for i := range pending {
		order := pending[i]

		if !order.ExecuteAt.After(r.now()) {
			if err := r.expire(ctx, order.ID); err != nil {
				return err
			}
			expired++
			continue
		}

		if order.Kind == model.OrderKindConditional {
			r.scheduler.Arm(order.ID, order.ExecuteAt, r.dispatchConditional)
		} else {
			r.scheduler.Arm(order.ID, order.ExecuteAt, r.dispatchExecute)
		}
		recovered++
	}

	r.log.WithFields(map[string]interface{}{
		"recovered": recovered,
		"expired":   expired,
	}).Info("Pending orders recovered")

	return r.reconcilePositions(ctx)
}

func (r *Recovery) expire(ctx context.Context, orderID string) error {
	won, err := r.orders.TransitionStatus(ctx, orderID,
		model.OrderStatusPending, model.OrderStatusExpired,
		repository.TransitionFields{Reason: model.ReasonMissedDowntime},
	)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	metrics.OrdersTerminal.WithLabelValues(model.OrderStatusExpired).Inc()
	r.hub.Publish(notify.StatusChange{
		OrderID:   orderID,
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusExpired,
		Detail:    model.ReasonMissedDowntime,
	})

	r.log.WithField("order_id", orderID).
		Warn("Order missed its window during downtime, expired")

	return nil
}

// reconcilePositions overwrites the position store with live chain
// balances for every holding any order has ever referenced. The store is
// a cache of chain truth, not an independent ledger.
func (r *Recovery) reconcilePositions(ctx context.Context) error {
	keys, err := r.orders.ReferencedHoldings(ctx)
	if err != nil {
		return err
	}

	positions := make([]model.Position, 0, len(keys))

	for _, key := range keys {
		balance, err := r.balances.GetLiveBalance(ctx, key.InstanceID, key.Token)
		if err != nil {
			metrics.GatewayFailures.WithLabelValues("balance").Inc()
			r.log.WithError(err).WithFields(map[string]interface{}{
				"instance_id": key.InstanceID,
				"token":       key.Token,
			}).Error("Failed to read live balance")
			return err
		}

		if balance.Sign() > 0 {
			positions = append(positions, model.Position{
				InstanceID: key.InstanceID,
				Token:      key.Token,
				Amount:     balance,
			})
		}
	}

	if err := r.positions.ReplaceAll(ctx, positions); err != nil {
		return err
	}

	r.log.WithField("positions", len(positions)).
		Info("Positions reconciled with chain state")

	return nil
}

func (r *Recovery) dispatchExecute(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.execTimeout)
	defer cancel()

	if _, err := r.executor.Execute(ctx, orderID); err != nil {
		r.log.WithError(err).WithField("order_id", orderID).
			Error("Recovered execution failed")
	}
}

func (r *Recovery) dispatchConditional(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.execTimeout)
	defer cancel()

	if _, err := r.executor.CheckConditional(ctx, orderID); err != nil {
		r.log.WithError(err).WithField("order_id", orderID).
			Error("Recovered conditional evaluation failed")
	}
}
