package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current per-instance, per-token holding. It is a cache
// of chain truth: mutated only by the order executor on fills and replaced
// wholesale by the startup reconciliation.
type Position struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	InstanceID string          `gorm:"size:60;uniqueIndex:idx_positions_instance_token" json:"instance_id"`
	Token      string          `gorm:"size:60;uniqueIndex:idx_positions_instance_token" json:"token"`
	Amount     decimal.Decimal `gorm:"type:numeric" json:"amount"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
