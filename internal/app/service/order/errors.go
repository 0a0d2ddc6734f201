package order

import "errors"

var (
	// ErrOrderPersistenceFailed means an order write kept failing after retries.
	// The payment may already be captured, so callers must escalate.
	ErrOrderPersistenceFailed = errors.New("order persistence failed")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidScanRequest     = errors.New("invalid scan request")
)
