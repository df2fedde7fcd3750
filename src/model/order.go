package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderKindImmediate   = "immediate"
	OrderKindTimed       = "timed"
	OrderKindConditional = "conditional"
)

const (
	OrderDirectionBuy  = "buy"
	OrderDirectionSell = "sell"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusExecuted  = "executed"
	OrderStatusCancelled = "cancelled"
	OrderStatusExpired   = "expired"
	OrderStatusFailed    = "failed"
)

// Price conditions evaluated once at the order's due time, relative to
// the entry price captured at creation.
const (
	ConditionAboveEntry = "above_entry"
	ConditionBelowEntry = "below_entry"
)

// Terminal detail values written alongside a status transition.
const (
	ReasonUserCancelled   = "user_cancelled"
	ReasonConditionNotMet = "condition_not_met"
	ReasonMissedDowntime  = "missed_during_downtime"
	ReasonNoPosition      = "no_position"
)

// Order is a persisted trade decision. It is created once, transitions out
// of pending exactly once, and is never deleted by normal operation —
// terminal orders remain for audit.
type Order struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	InstanceID string `gorm:"size:60;index" json:"instance_id"`
	Token      string `gorm:"size:60;index" json:"token"`
	Kind       string `gorm:"size:20;not null" json:"kind"`
	Direction  string `gorm:"size:10;not null" json:"direction"`

	// PositionSize is the fraction of the current position to trade,
	// resolved against the position store at execution time.
	PositionSize decimal.Decimal `gorm:"type:numeric" json:"position_size"`

	// Amount is the fixed trade size in SOL, used for buys where a
	// position fraction does not apply.
	Amount *decimal.Decimal `gorm:"type:numeric" json:"amount,omitempty"`

	Status string `gorm:"size:20;not null;default:pending;index" json:"status"`

	// Condition and EntryPrice are set for conditional orders only.
	Condition  string           `gorm:"size:20" json:"condition,omitempty"`
	EntryPrice *decimal.Decimal `gorm:"type:numeric" json:"entry_price,omitempty"`

	// Reason carries the terminal detail for cancelled/expired/failed
	// orders; Signature carries the transaction reference for executed ones.
	Reason    string `gorm:"size:255" json:"reason,omitempty"`
	Signature string `gorm:"size:120" json:"signature,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ExecuteAt  time.Time  `gorm:"index" json:"execute_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// Terminal reports whether the order has left the pending state.
func (o *Order) Terminal() bool {
	return o.Status != OrderStatusPending
}
