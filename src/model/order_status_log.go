package model

import "time"

// OrderStatusLog is an audit row written for every order status
// transition, including creation.
type OrderStatusLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"size:36;index" json:"order_id"`
	OldStatus string    `gorm:"size:20" json:"old_status"`
	NewStatus string    `gorm:"size:20;not null" json:"new_status"`
	Detail    string    `gorm:"size:255" json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (OrderStatusLog) TableName() string {
	return "order_status_logs"
}
