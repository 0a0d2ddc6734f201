package models

import (
	"time"

	"gorm.io/datatypes"
)

type OrderChangeReason string

const (
	OrderChangeReasonCreated        OrderChangeReason = "created"
	OrderChangeReasonChargeAttached OrderChangeReason = "charge_attached"
	OrderChangeReasonStatusChanged  OrderChangeReason = "status_changed"
	OrderChangeReasonRefunded       OrderChangeReason = "refunded"
	OrderChangeReasonCaptured       OrderChangeReason = "captured"
)

// OrderLog records every order mutation for troubleshooting.
type OrderLog struct {
	ID          string            `gorm:"column:id;primary_key;type:uuid"`
	OrderID     string            `gorm:"column:order_id;type:uuid;not null;index:idx_order_log_order_id"`
	TemporaryID string            `gorm:"column:temporary_id;type:varchar(128);not null"`
	Reason      OrderChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Source names the entry point that caused the change, e.g. redirect_return or webhook:charge.succeeded.
	Source    string                     `gorm:"column:source;type:varchar(128)"`
	Before    datatypes.JSONType[*Order] `gorm:"column:before;type:jsonb;default:'null'"`
	After     datatypes.JSONType[*Order] `gorm:"column:after;type:jsonb;default:'null'"`
	CreatedAt time.Time                  `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_log"
}

// NewOrderLog snapshots an order change. before is nil for newly created orders.
func NewOrderLog(before, after *Order, reason OrderChangeReason, source string) *OrderLog {
	l := &OrderLog{
		OrderID:     after.ID,
		TemporaryID: after.TemporaryID,
		Reason:      reason,
		Source:      source,
		After:       datatypes.NewJSONType(after),
	}
	if before != nil {
		l.Before = datatypes.NewJSONType(before)
	}
	return l
}
