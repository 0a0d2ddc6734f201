package checkout

import (
	"errors"

	"github.com/fatflowers/cashier-stripe/internal/app/service/outcome"
	"github.com/fatflowers/cashier-stripe/internal/app/service/paymentmethod"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
)

// Checkout errors alias the sentinels of the packages that produce them so
// errors.Is works on either name.
var (
	ErrGatewayRequestFailed = gateway.ErrRequestFailed
	ErrSessionMismatch      = session.ErrSessionMismatch
	ErrRedirectNotSupported = outcome.ErrRedirectNotSupported
	ErrPaymentDeclined      = outcome.ErrDeclined
	ErrUnknownPaymentMethod = paymentmethod.ErrUnknownPaymentMethod
	// ErrWebhookVerificationFailed is never shown to anyone; the event is dropped.
	ErrWebhookVerificationFailed = gateway.ErrVerificationFailed

	ErrPaymentCanceled = errors.New("payment canceled by buyer")
	ErrInvalidRequest  = errors.New("invalid checkout request")
	// ErrStillProcessing means another request holds the payment and did not
	// finish within the wait window.
	ErrStillProcessing = errors.New("payment still processing")
)

// Buyer facing messages. The underlying error is only logged.
const (
	msgPaymentFailed   = "Your payment could not be completed. Please try again or choose another payment method."
	msgPaymentCanceled = "The payment was canceled."
	msgStillProcessing = "Your payment is still being processed. You will receive a confirmation shortly."
)

// BuyerMessage maps err onto the message shown on the checkout page.
func BuyerMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPaymentCanceled):
		return msgPaymentCanceled
	case errors.Is(err, ErrStillProcessing):
		return msgStillProcessing
	}
	return msgPaymentFailed
}
