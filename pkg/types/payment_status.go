package types

import (
	"fmt"
	"strings"
)

// OrderPaymentStatus is the settlement state of an order.
type OrderPaymentStatus string

const (
	OrderPaymentStatusOpen            OrderPaymentStatus = "open"
	OrderPaymentStatusReserved        OrderPaymentStatus = "reserved"
	OrderPaymentStatusCompletelyPaid  OrderPaymentStatus = "completely_paid"
	OrderPaymentStatusReviewNecessary OrderPaymentStatus = "review_necessary"
	OrderPaymentStatusReCrediting     OrderPaymentStatus = "re_crediting"
)

// orderStatusPredecessors lists, for every target status, the statuses an
// order may move from. Nothing leads back to open.
var orderStatusPredecessors = map[OrderPaymentStatus][]OrderPaymentStatus{
	OrderPaymentStatusReserved: {OrderPaymentStatusOpen},
	OrderPaymentStatusCompletelyPaid: {
		OrderPaymentStatusOpen,
		OrderPaymentStatusReserved,
		OrderPaymentStatusReviewNecessary,
	},
	OrderPaymentStatusReviewNecessary: {OrderPaymentStatusOpen, OrderPaymentStatusReserved},
	OrderPaymentStatusReCrediting:     {OrderPaymentStatusReserved, OrderPaymentStatusCompletelyPaid},
}

// Predecessors returns the statuses from which s is reachable.
func (s OrderPaymentStatus) Predecessors() []OrderPaymentStatus {
	return orderStatusPredecessors[s]
}

// CanTransition reports whether an order may move from s to next.
func (s OrderPaymentStatus) CanTransition(next OrderPaymentStatus) bool {
	for _, from := range orderStatusPredecessors[next] {
		if from == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether money has been received for the order.
func (s OrderPaymentStatus) IsSettled() bool {
	return s == OrderPaymentStatusCompletelyPaid
}

// AttemptStatus is the state of a payment attempt held in the checkout session.
type AttemptStatus string

const (
	AttemptStatusPending          AttemptStatus = "pending"
	AttemptStatusRequiresRedirect AttemptStatus = "requires_redirect"
	AttemptStatusRequiresAsync    AttemptStatus = "requires_async"
	AttemptStatusSettled          AttemptStatus = "settled"
	AttemptStatusFailed           AttemptStatus = "failed"
	AttemptStatusCanceled         AttemptStatus = "canceled"
)

// FormatAmount renders minor units as a decimal amount with currency, e.g. "19.99 EUR".
func FormatAmount(amountInCents int64, currency string) string {
	sign := ""
	if amountInCents < 0 {
		sign = "-"
		amountInCents = -amountInCents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amountInCents/100, amountInCents%100, strings.ToUpper(currency))
}
