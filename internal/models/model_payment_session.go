package models

import (
	"time"

	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// PaymentSession is the persisted checkout session of one buyer, including
// the payment attempt currently in flight.
type PaymentSession struct {
	ID string `gorm:"column:id;primary_key;type:varchar(64)"`
	// ProcessingReferenceID is the payment object id the buyer is currently paying with.
	ProcessingReferenceID string              `gorm:"column:processing_reference_id;type:varchar(128);index"`
	ClientSecret          string              `gorm:"column:client_secret;type:varchar(255)"`
	AttemptStatus         types.AttemptStatus `gorm:"column:attempt_status;type:varchar(32)"`
	FinishedReferenceID   string              `gorm:"column:finished_reference_id;type:varchar(128)"`
	FinishedClientSecret  string              `gorm:"column:finished_client_secret;type:varchar(255)"`
	MethodID              string              `gorm:"column:method_id;type:varchar(32)"`
	Amount                int64               `gorm:"column:amount;type:bigint"`
	Currency              string              `gorm:"column:currency;type:varchar(8)"`
	CustomerEmail         string              `gorm:"column:customer_email;type:varchar(255)"`
	CustomerNumber        string              `gorm:"column:customer_number;type:varchar(64)"`
	CustomerName          string              `gorm:"column:customer_name;type:varchar(255)"`
	GatewayCustomerID     string              `gorm:"column:gateway_customer_id;type:varchar(128)"`
	PaymentError          string              `gorm:"column:payment_error;type:text"`
	ExpiresAt             time.Time           `gorm:"column:expires_at;index"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (PaymentSession) TableName() string {
	return "payment_session"
}
