package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusRejected     PaymentNotificationLogStatus = "rejected"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
	PaymentNotificationLogStatusReplayed     PaymentNotificationLogStatus = "replayed"
)

// PaymentNotificationLog is the audit trail of received webhook events. Each
// processing stage writes its own row.
type PaymentNotificationLog struct {
	ID          string                       `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventID     string                       `gorm:"column:event_id;type:varchar(128);index" json:"event_id"`
	EventType   string                       `gorm:"column:event_type;type:varchar(64)" json:"event_type"`
	ReferenceID string                       `gorm:"column:reference_id;type:varchar(128);index" json:"reference_id"`
	TraceID     string                       `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data        datatypes.JSON               `gorm:"column:data;type:jsonb" json:"data"`
	Result      *datatypes.JSON              `gorm:"column:result;type:jsonb" json:"result"`
	Status      PaymentNotificationLogStatus `gorm:"column:status;type:varchar(64);not null;index" json:"status"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
