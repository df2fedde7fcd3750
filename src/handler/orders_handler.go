package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"lumixd/src/manager"
	"lumixd/src/model"
)

// orderAPI is the slice of the order manager the HTTP layer consumes.
type orderAPI interface {
	CreateImmediate(ctx context.Context, instanceID, token, direction string, fraction decimal.Decimal, amount *decimal.Decimal) (string, error)
	CreateTimed(ctx context.Context, instanceID, token, direction string, fraction decimal.Decimal, delay time.Duration) (string, error)
	CreateConditional(ctx context.Context, instanceID, token, direction string, fraction decimal.Decimal, delay time.Duration, condition string, entryPrice decimal.Decimal) (string, error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	GetStatus(ctx context.Context, orderID string) (*model.Order, error)
	ListPending(ctx context.Context) ([]model.Order, error)
}

type createOrderRequest struct {
	Kind         string           `json:"kind"`
	InstanceID   string           `json:"instance_id"`
	Token        string           `json:"token"`
	Direction    string           `json:"direction"`
	PositionSize decimal.Decimal  `json:"position_size"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	DelayMinutes int              `json:"delay_minutes"`
	Condition    string           `json:"condition,omitempty"`
	EntryPrice   *decimal.Decimal `json:"entry_price,omitempty"`
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
}

// CreateOrderHandler dispatches order creation by kind.
func CreateOrderHandler(api orderAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.InstanceID == "" || req.Token == "" {
			http.Error(w, "instance_id and token are required", http.StatusBadRequest)
			return
		}

		delay := time.Duration(req.DelayMinutes) * time.Minute

		var (
			orderID string
			err     error
		)

		switch req.Kind {
		case model.OrderKindImmediate:
			orderID, err = api.CreateImmediate(r.Context(), req.InstanceID, req.Token, req.Direction, req.PositionSize, req.Amount)
		case model.OrderKindTimed:
			orderID, err = api.CreateTimed(r.Context(), req.InstanceID, req.Token, req.Direction, req.PositionSize, delay)
		case model.OrderKindConditional:
			if req.EntryPrice == nil {
				http.Error(w, "entry_price is required for conditional orders", http.StatusBadRequest)
				return
			}
			orderID, err = api.CreateConditional(r.Context(), req.InstanceID, req.Token, req.Direction, req.PositionSize, delay, req.Condition, *req.EntryPrice)
		default:
			http.Error(w, "kind must be immediate, timed or conditional", http.StatusBadRequest)
			return
		}

		if err != nil {
			if isValidationError(err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			logger.WithError(err).Error("Failed to create order")

			// Immediate orders can fail after persistence; surface the id
			// so the caller can inspect the terminal status.
			if orderID != "" {
				writeJSON(w, http.StatusInternalServerError, createOrderResponse{OrderID: orderID})
				return
			}
			http.Error(w, "failed to create order", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, createOrderResponse{OrderID: orderID})
	}
}

// GetOrderHandler returns a single order with its current status.
func GetOrderHandler(api orderAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")

		order, err := api.GetStatus(r.Context(), orderID)
		if err != nil {
			logger.WithError(err).Error("Failed to fetch order")
			http.Error(w, "failed to fetch order", http.StatusInternalServerError)
			return
		}
		if order == nil {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}

// ListPendingHandler returns all pending orders, soonest due first.
func ListPendingHandler(api orderAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := api.ListPending(r.Context())
		if err != nil {
			logger.WithError(err).Error("Failed to list pending orders")
			http.Error(w, "failed to list pending orders", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, orders)
	}
}

type cancelOrderResponse struct {
	Cancelled bool `json:"cancelled"`
}

// CancelOrderHandler cancels a pending order. Cancelling an already
// terminal order reports cancelled=false with a 200; it is not an error.
func CancelOrderHandler(api orderAPI) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")

		cancelled, err := api.Cancel(r.Context(), orderID)
		if err != nil {
			logger.WithError(err).Error("Failed to cancel order")
			http.Error(w, "failed to cancel order", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, cancelOrderResponse{Cancelled: cancelled})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, manager.ErrInvalidFraction) ||
		errors.Is(err, manager.ErrInvalidDirection) ||
		errors.Is(err, manager.ErrNegativeDelay) ||
		errors.Is(err, manager.ErrInvalidCondition) ||
		errors.Is(err, manager.ErrMissingEntryPrice)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}
