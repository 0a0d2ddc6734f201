package models

import "time"

// PaymentClaim is a short lease on an external reference id. Whoever holds it
// may charge and finalize the payment object.
type PaymentClaim struct {
	ReferenceID string    `gorm:"column:reference_id;primary_key;type:varchar(128)"`
	Owner       string    `gorm:"column:owner;type:varchar(64);not null"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null"`
	CreatedAt   time.Time
}

func (PaymentClaim) TableName() string {
	return "payment_claim"
}
