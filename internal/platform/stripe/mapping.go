package stripe

import (
	"encoding/json"
	"fmt"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
)

func sourceToObject(src *stripego.Source) *gateway.PaymentObject {
	if src == nil {
		return nil
	}
	obj := &gateway.PaymentObject{
		ID:           src.ID,
		Kind:         gateway.ObjectKindSource,
		Type:         string(src.Type),
		Status:       string(src.Status),
		Flow:         string(src.Flow),
		ClientSecret: src.ClientSecret,
		Amount:       src.Amount,
		Currency:     string(src.Currency),
		CustomerID:   src.Customer,
		Metadata:     src.Metadata,
	}
	if src.Redirect != nil {
		obj.Redirect = &gateway.Redirect{URL: src.Redirect.URL, Status: string(src.Redirect.Status)}
	}
	return obj
}

func paymentIntentToObject(pi *stripego.PaymentIntent) *gateway.PaymentObject {
	if pi == nil {
		return nil
	}
	obj := &gateway.PaymentObject{
		ID:           pi.ID,
		Kind:         gateway.ObjectKindPaymentIntent,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Description:  pi.Description,
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		obj.CustomerID = pi.Customer.ID
	}
	if pi.LatestCharge != nil {
		obj.LatestChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		obj.LastErrorCode = string(pi.LastPaymentError.Code)
		obj.LastErrorMessage = pi.LastPaymentError.Msg
	}
	if pi.NextAction != nil {
		obj.NextAction = &gateway.NextAction{Type: string(pi.NextAction.Type)}
		if pi.NextAction.RedirectToURL != nil {
			obj.NextAction.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
	}
	return obj
}

func chargeToDomain(ch *stripego.Charge) *gateway.Charge {
	if ch == nil {
		return nil
	}
	out := &gateway.Charge{
		ID:             ch.ID,
		Status:         string(ch.Status),
		Amount:         ch.Amount,
		AmountRefunded: ch.AmountRefunded,
		Currency:       string(ch.Currency),
		Captured:       ch.Captured,
		Description:    ch.Description,
		Metadata:       ch.Metadata,
	}
	if ch.Source != nil {
		out.SourceID = ch.Source.ID
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	return out
}

func (c *Client) VerifyWebhookSignature(payload []byte, signatureHeader string) (*gateway.Event, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", gateway.ErrVerificationFailed)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrVerificationFailed, err)
	}
	return toEvent(&evt, payload)
}

// ParseEvent decodes an event body without checking its signature. Only use it
// for events that were verified when they were received.
func (c *Client) ParseEvent(payload []byte) (*gateway.Event, error) {
	var evt stripego.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return toEvent(&evt, payload)
}

func toEvent(evt *stripego.Event, payload []byte) (*gateway.Event, error) {
	out := &gateway.Event{ID: evt.ID, Type: gateway.EventType(evt.Type), Raw: payload}
	if evt.Data == nil || evt.Data.Raw == nil {
		return out, nil
	}
	objectType, _ := evt.Data.Object["object"].(string)
	switch objectType {
	case "source":
		var src stripego.Source
		if err := json.Unmarshal(evt.Data.Raw, &src); err != nil {
			return nil, fmt.Errorf("decode source of event %s: %w", evt.ID, err)
		}
		out.Object = sourceToObject(&src)
	case "payment_intent":
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent of event %s: %w", evt.ID, err)
		}
		out.Object = paymentIntentToObject(&pi)
	case "charge":
		var ch stripego.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge of event %s: %w", evt.ID, err)
		}
		out.Charge = chargeToDomain(&ch)
	}
	return out, nil
}
