package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/connectors"
	"lumixd/src/metrics"
	"lumixd/src/model"
	"lumixd/src/notify"
	"lumixd/src/repository"
)

// SwapGateway is the quote/swap boundary. Implemented by the Jupiter
// client; stubbed in tests.
type SwapGateway interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (*connectors.Quote, error)
	ExecuteSwap(ctx context.Context, quote *connectors.Quote, walletPubkey string) (string, error)
}

// PriceOracle supplies the price sample for conditional evaluation.
type PriceOracle interface {
	GetPrice(ctx context.Context, token string) (decimal.Decimal, error)
}

// Executor turns a due order into a gateway call and writes the terminal
// status. It is the only component besides recovery that mutates
// positions.
type Executor struct {
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	gateway   SwapGateway
	oracle    PriceOracle
	hub       *notify.Hub

	wallet        string
	defaultBuySOL decimal.Decimal

	keys *keyLock
	log  *logger.Entry
}

func New(
	orders *repository.OrderRepository,
	positions *repository.PositionRepository,
	gateway SwapGateway,
	oracle PriceOracle,
	hub *notify.Hub,
) *Executor {

	config := GetConfig()
	defaultBuy, err := decimal.NewFromString(config.MaxTradeSizeSOL)
	if err != nil {
		panic(fmt.Errorf("malformed MAX_TRADE_SIZE_SOL %q: %w", config.MaxTradeSizeSOL, err))
	}

	return &Executor{
		orders:        orders,
		positions:     positions,
		gateway:       gateway,
		oracle:        oracle,
		hub:           hub,
		wallet:        config.WalletAddress,
		defaultBuySOL: defaultBuy,
		keys:          newKeyLock(),
		log:           logger.WithField("component", "Executor"),
	}
}

// WithDefaults overrides the wallet and default buy size taken from env.
// Useful for tests.
func (e *Executor) WithDefaults(wallet string, defaultBuySOL decimal.Decimal) *Executor {
	e.wallet = wallet
	e.defaultBuySOL = defaultBuySOL
	return e
}

// Execute runs one execution attempt for an order. Returns true only when
// this attempt performed the pending→executed transition. A false return
// with nil error means the order was already handled elsewhere — the
// at-most-once guard, not a failure.
func (e *Executor) Execute(ctx context.Context, orderID string) (bool, error) {
	started := time.Now()
	defer func() {
		metrics.ExecutionDuration.Observe(time.Since(started).Seconds())
	}()

	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil || order.Terminal() {
		e.log.WithField("order_id", orderID).
			Debug("Order missing or already terminal, skipping execution")
		return false, nil
	}

	// Serialize the resolve→swap→position sequence per (instance, token)
	// so a concurrent sell on the same position cannot resolve a stale
	// fraction. The lock is scoped to this one holding: cancellation and
	// unrelated orders never wait on it.
	lock := e.keys.get(order.InstanceID + ":" + order.Token)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a serialized attempt ahead of us may have
	// already transitioned the order.
	order, err = e.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil || order.Terminal() {
		return false, nil
	}

	return e.executeLocked(ctx, order)
}

func (e *Executor) executeLocked(ctx context.Context, order *model.Order) (bool, error) {
	amount, positionDelta, err := e.resolveAmount(ctx, order)
	if err != nil {
		return false, err
	}
	if amount == nil {
		// No position to sell from; terminal failure already written.
		return false, nil
	}

	var inputMint, outputMint string
	if order.Direction == model.OrderDirectionSell {
		inputMint, outputMint = order.Token, connectors.SolMint
	} else {
		inputMint, outputMint = connectors.SolMint, order.Token
	}

	quote, err := e.gateway.GetQuote(ctx, inputMint, outputMint, *amount)
	if err != nil {
		metrics.GatewayFailures.WithLabelValues("quote").Inc()
		return false, e.failOrder(ctx, order, err.Error())
	}

	signature, err := e.gateway.ExecuteSwap(ctx, quote, e.wallet)
	if err != nil {
		metrics.GatewayFailures.WithLabelValues("swap").Inc()
		return false, e.failOrder(ctx, order, err.Error())
	}

	executedAt := time.Now()
	won, err := e.orders.TransitionStatus(ctx, order.ID,
		model.OrderStatusPending, model.OrderStatusExecuted,
		repository.TransitionFields{Signature: signature, ExecutedAt: &executedAt},
	)
	if err != nil {
		return false, err
	}
	if !won {
		// A concurrent cancel won the transition while the swap was in
		// flight. The swap itself ran to completion; surface that loudly.
		e.log.WithFields(map[string]interface{}{
			"order_id":  order.ID,
			"signature": signature,
		}).Warn("Swap submitted but order was cancelled concurrently")
		return false, nil
	}

	if order.Direction == model.OrderDirectionBuy {
		bought, convErr := quote.OutAmountUnits()
		if convErr != nil {
			e.log.WithError(convErr).WithField("order_id", order.ID).
				Error("Failed to parse bought amount from quote")
		} else {
			positionDelta = bought
		}
	}

	if err := e.positions.ApplyFill(ctx, order.InstanceID, order.Token, positionDelta); err != nil {
		e.log.WithError(err).WithField("order_id", order.ID).
			Error("Executed order but failed to update position; reconciliation will repair it")
	}

	metrics.OrdersTerminal.WithLabelValues(model.OrderStatusExecuted).Inc()
	e.hub.Publish(notify.StatusChange{
		OrderID:   order.ID,
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusExecuted,
		Detail:    signature,
	})

	e.log.WithFields(map[string]interface{}{
		"order_id":  order.ID,
		"token":     order.Token,
		"direction": order.Direction,
		"signature": signature,
	}).Info("Order executed")

	return true, nil
}

// resolveAmount computes the trade size at execution time. Sell orders
// resolve their fraction against the position store now, not at creation.
// The returned delta is the signed position adjustment for sells; buys
// replace it with the quoted out amount after the swap.
func (e *Executor) resolveAmount(ctx context.Context, order *model.Order) (*decimal.Decimal, decimal.Decimal, error) {
	if order.Direction == model.OrderDirectionSell {
		position, err := e.positions.Find(ctx, order.InstanceID, order.Token)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if position == nil || position.Amount.Sign() <= 0 {
			e.log.WithFields(map[string]interface{}{
				"order_id":    order.ID,
				"instance_id": order.InstanceID,
				"token":       order.Token,
			}).Warn("No position to sell from, failing order")

			return nil, decimal.Zero, e.failOrder(ctx, order, model.ReasonNoPosition)
		}

		amount := position.Amount.Mul(order.PositionSize)
		return &amount, amount.Neg(), nil
	}

	amount := e.defaultBuySOL
	if order.Amount != nil {
		amount = *order.Amount
	}
	return &amount, decimal.Zero, nil
}

// failOrder writes the failed terminal state via the same compare-and-set
// as execution, so a racing cancel still yields exactly one transition.
func (e *Executor) failOrder(ctx context.Context, order *model.Order, reason string) error {
	won, err := e.orders.TransitionStatus(ctx, order.ID,
		model.OrderStatusPending, model.OrderStatusFailed,
		repository.TransitionFields{Reason: reason},
	)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	metrics.OrdersTerminal.WithLabelValues(model.OrderStatusFailed).Inc()
	e.hub.Publish(notify.StatusChange{
		OrderID:   order.ID,
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusFailed,
		Detail:    reason,
	})

	return nil
}

// CheckConditional evaluates a conditional order once at its due time and
// executes it only if the price condition holds. An unmet condition
// cancels the order; it is never rescheduled.
func (e *Executor) CheckConditional(ctx context.Context, orderID string) (bool, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil || order.Terminal() {
		return false, nil
	}
	if order.EntryPrice == nil {
		return false, e.failOrder(ctx, order, "conditional order without entry price")
	}

	price, err := e.oracle.GetPrice(ctx, order.Token)
	if err != nil {
		metrics.GatewayFailures.WithLabelValues("price").Inc()
		return false, e.failOrder(ctx, order, err.Error())
	}

	change := price.Sub(*order.EntryPrice).Div(*order.EntryPrice)

	var met bool
	switch order.Condition {
	case model.ConditionAboveEntry:
		met = change.Sign() > 0
	case model.ConditionBelowEntry:
		met = change.Sign() < 0
	}

	e.log.WithFields(map[string]interface{}{
		"order_id":    order.ID,
		"entry_price": order.EntryPrice.String(),
		"price":       price.String(),
		"change":      change.String(),
		"condition":   order.Condition,
		"met":         met,
	}).Info("Conditional order evaluated")

	if !met {
		won, err := e.orders.TransitionStatus(ctx, order.ID,
			model.OrderStatusPending, model.OrderStatusCancelled,
			repository.TransitionFields{Reason: model.ReasonConditionNotMet},
		)
		if err != nil {
			return false, err
		}
		if won {
			metrics.OrdersTerminal.WithLabelValues(model.OrderStatusCancelled).Inc()
			e.hub.Publish(notify.StatusChange{
				OrderID:   order.ID,
				OldStatus: model.OrderStatusPending,
				NewStatus: model.OrderStatusCancelled,
				Detail:    model.ReasonConditionNotMet,
			})
		}
		return false, nil
	}

	return e.Execute(ctx, orderID)
}
