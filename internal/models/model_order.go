package models

import (
	"strings"
	"time"

	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// PendingTransactionPrefix marks a placeholder transaction id written before
// the charge for an asynchronous source exists.
const PendingTransactionPrefix = "pending_"

// Order is the persisted purchase created once a payment attempt succeeds.
type Order struct {
	ID     string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Number int64  `gorm:"column:number;autoIncrement;uniqueIndex:unique_order_number" json:"number"`
	// TransactionID is the gateway charge or payment intent id, or a pending placeholder.
	TransactionID string `gorm:"column:transaction_id;type:varchar(128);not null" json:"transaction_id"`
	// TemporaryID is the external reference id of the payment object. At most one order per value.
	TemporaryID    string                   `gorm:"column:temporary_id;type:varchar(128);not null;uniqueIndex:unique_order_temporary_id" json:"temporary_id"`
	PaymentStatus  types.OrderPaymentStatus `gorm:"column:payment_status;type:varchar(32);not null;index" json:"payment_status"`
	MethodID       types.PaymentMethodID    `gorm:"column:method_id;type:varchar(32);not null" json:"method_id"`
	Amount         int64                    `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency       string                   `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	CustomerEmail  string                   `gorm:"column:customer_email;type:varchar(255);index" json:"customer_email"`
	CustomerNumber string                   `gorm:"column:customer_number;type:varchar(64)" json:"customer_number"`
	// GatewayCustomerID is the stripe customer the payment object belongs to, if any.
	GatewayCustomerID string     `gorm:"column:gateway_customer_id;type:varchar(128)" json:"gateway_customer_id"`
	SessionID         string     `gorm:"column:session_id;type:varchar(64)" json:"session_id"`
	ClearedDate       *time.Time `gorm:"column:cleared_date;default:null" json:"cleared_date"`
	// InternalComment is append only.
	InternalComment string    `gorm:"column:internal_comment;type:text;not null;default:''" json:"internal_comment"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// HasPendingTransaction reports whether the order still carries a placeholder transaction id.
func (o *Order) HasPendingTransaction() bool {
	return o != nil && IsPendingTransactionID(o.TransactionID)
}

func IsPendingTransactionID(id string) bool {
	return strings.HasPrefix(id, PendingTransactionPrefix)
}

// PendingTransactionID derives the placeholder transaction id for an external reference.
func PendingTransactionID(referenceID string) string {
	if i := strings.IndexByte(referenceID, '_'); i >= 0 {
		referenceID = referenceID[i+1:]
	}
	return PendingTransactionPrefix + referenceID
}
