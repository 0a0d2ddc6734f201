// Package outcome maps a gateway payment object onto the next checkout step.
package outcome

import (
	"errors"
	"fmt"

	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
)

type Outcome string

const (
	// Settled means the object is paid or ready to be charged synchronously.
	Settled Outcome = "settled"
	// RequiresRedirect means the buyer must complete an out-of-band step.
	RequiresRedirect Outcome = "requires_redirect"
	// RequiresAsync means completion arrives only through a webhook.
	RequiresAsync Outcome = "requires_async"
	Failed        Outcome = "failed"
)

var (
	// ErrRedirectNotSupported is returned for an action type the checkout cannot perform.
	ErrRedirectNotSupported = errors.New("redirect not supported")
	// ErrMalformedRedirect is returned for a redirect step without a usable url.
	ErrMalformedRedirect = errors.New("malformed redirect")
	// ErrDeclined is returned when the gateway refused the payment.
	ErrDeclined = errors.New("payment declined")
	ErrNoObject = errors.New("no payment object")
)

// Result is the classification of one payment object.
type Result struct {
	Outcome     Outcome
	RedirectURL string
	// Err explains a Failed outcome.
	Err error
}

func failed(err error) Result { return Result{Outcome: Failed, Err: err} }

// Classify inspects obj and decides the next step. It never calls the gateway.
func Classify(obj *gateway.PaymentObject) Result {
	if obj == nil {
		return failed(ErrNoObject)
	}
	switch obj.Kind {
	case gateway.ObjectKindSource:
		return classifySource(obj)
	case gateway.ObjectKindPaymentIntent:
		return classifyPaymentIntent(obj)
	}
	return failed(fmt.Errorf("%w: unknown object kind %q", ErrDeclined, obj.Kind))
}

func classifySource(obj *gateway.PaymentObject) Result {
	if obj.Flow == gateway.FlowRedirect && obj.Status == gateway.StatusPending {
		if obj.Redirect != nil && obj.Redirect.Status == gateway.StatusFailed {
			return failed(fmt.Errorf("%w: redirect of source %s failed", ErrDeclined, obj.ID))
		}
		// Once the buyer is back (redirect succeeded), a pending source waits for the webhook.
		if obj.Redirect == nil || obj.Redirect.Status == "" || obj.Redirect.Status == gateway.StatusPending {
			if obj.Redirect == nil || obj.Redirect.URL == "" {
				return failed(fmt.Errorf("%w: source %s has no redirect url", ErrMalformedRedirect, obj.ID))
			}
			return Result{Outcome: RequiresRedirect, RedirectURL: obj.Redirect.URL}
		}
	}
	switch obj.Status {
	case gateway.StatusChargeable:
		return Result{Outcome: Settled}
	case gateway.StatusPending:
		return Result{Outcome: RequiresAsync}
	}
	return failed(fmt.Errorf("%w: source %s is %s", ErrDeclined, obj.ID, obj.Status))
}

func classifyPaymentIntent(obj *gateway.PaymentObject) Result {
	switch obj.Status {
	case gateway.StatusSucceeded, gateway.StatusRequiresCapture:
		return Result{Outcome: Settled}
	case gateway.StatusProcessing:
		return Result{Outcome: RequiresAsync}
	case gateway.StatusRequiresAction:
		if obj.NextAction == nil || obj.NextAction.Type != gateway.NextActionRedirectToURL {
			actionType := ""
			if obj.NextAction != nil {
				actionType = obj.NextAction.Type
			}
			return failed(fmt.Errorf("%w: payment intent %s asks for %q", ErrRedirectNotSupported, obj.ID, actionType))
		}
		if obj.NextAction.RedirectURL == "" {
			return failed(fmt.Errorf("%w: payment intent %s has no redirect url", ErrMalformedRedirect, obj.ID))
		}
		return Result{Outcome: RequiresRedirect, RedirectURL: obj.NextAction.RedirectURL}
	}
	if obj.LastErrorCode != "" {
		return failed(fmt.Errorf("%w: payment intent %s: %s", ErrDeclined, obj.ID, obj.LastErrorCode))
	}
	return failed(fmt.Errorf("%w: payment intent %s is %s", ErrDeclined, obj.ID, obj.Status))
}
