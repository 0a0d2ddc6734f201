// Package gateway defines the payment gateway as the checkout core sees it.
// Implementations translate their provider's objects into these types.
package gateway

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRequestFailed wraps any failed call to the gateway (network, auth, validation).
	ErrRequestFailed = errors.New("gateway request failed")
	// ErrVerificationFailed means a webhook signature did not verify.
	ErrVerificationFailed = errors.New("webhook verification failed")
)

type ObjectKind string

const (
	ObjectKindSource        ObjectKind = "source"
	ObjectKindPaymentIntent ObjectKind = "payment_intent"
)

// KindOf infers the object kind from a gateway id prefix.
func KindOf(id string) ObjectKind {
	switch {
	case strings.HasPrefix(id, "src_"):
		return ObjectKindSource
	case strings.HasPrefix(id, "pi_"):
		return ObjectKindPaymentIntent
	}
	return ""
}

// Source and payment intent statuses the classifier cares about.
const (
	StatusChargeable            = "chargeable"
	StatusPending               = "pending"
	StatusFailed                = "failed"
	StatusCanceled              = "canceled"
	StatusConsumed              = "consumed"
	StatusSucceeded             = "succeeded"
	StatusProcessing            = "processing"
	StatusRequiresAction        = "requires_action"
	StatusRequiresCapture       = "requires_capture"
	StatusRequiresPaymentMethod = "requires_payment_method"

	FlowRedirect = "redirect"
	FlowNone     = "none"

	NextActionRedirectToURL = "redirect_to_url"
)

// MetadataSessionID names the metadata key carrying the checkout session id.
const (
	MetadataSessionID    = "checkout_session_id"
	MetadataPlatformName = "platform_name"
)

type Redirect struct {
	URL    string
	Status string
}

type NextAction struct {
	Type        string
	RedirectURL string
}

// PaymentObject is a source or payment intent created for one payment attempt.
type PaymentObject struct {
	ID           string
	Kind         ObjectKind
	Type         string
	Status       string
	Flow         string
	ClientSecret string
	Redirect     *Redirect
	NextAction   *NextAction
	Amount       int64
	Currency     string
	CustomerID   string
	Description  string
	// LatestChargeID is set for payment intents that produced a charge.
	LatestChargeID   string
	LastErrorCode    string
	LastErrorMessage string
	Metadata         map[string]string
}

// SessionID returns the checkout session id recorded on the object.
func (o *PaymentObject) SessionID() string {
	if o == nil {
		return ""
	}
	return o.Metadata[MetadataSessionID]
}

// Charge is a completed (or failed) money movement.
type Charge struct {
	ID              string
	Status          string
	SourceID        string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	Currency        string
	Captured        bool
	Description     string
	Metadata        map[string]string
}

// ReferenceID returns the external reference id of the payment object that produced the charge.
func (c *Charge) ReferenceID() string {
	if c == nil {
		return ""
	}
	if c.PaymentIntentID != "" {
		return c.PaymentIntentID
	}
	return c.SourceID
}

func (c *Charge) Succeeded() bool { return c != nil && c.Status == StatusSucceeded }

type Refund struct {
	ID            string
	TransactionID string
	Amount        int64
	Status        string
}

type Owner struct {
	Name  string
	Email string
}

type LineItem struct {
	Description string
	Quantity    int64
	Amount      int64
}

// CreateParams describes the payment object to create.
type CreateParams struct {
	Kind ObjectKind
	// Type is the source type (sofort, klarna, ...). Unused for payment intents.
	Type                string
	Amount              int64
	Currency            string
	PaymentMethodID     string
	CustomerID          string
	ReturnURL           string
	Confirm             bool
	SavePaymentMethod   bool
	Description         string
	StatementDescriptor string
	ReceiptEmail        string
	Owner               *Owner
	Country             string
	Items               []LineItem
	Metadata            map[string]string
}

// ChargeParams describes a charge of a chargeable source.
type ChargeParams struct {
	SourceID            string
	Amount              int64
	Currency            string
	Description         string
	StatementDescriptor string
	CustomerID          string
	ReceiptEmail        string
	Metadata            map[string]string
}

// AnnotateTarget names the remote object whose description receives the order note.
type AnnotateTarget struct {
	ChargeID        string
	PaymentIntentID string
}

type EventType string

const (
	EventChargeSucceeded            EventType = "charge.succeeded"
	EventChargeFailed               EventType = "charge.failed"
	EventSourceChargeable           EventType = "source.chargeable"
	EventSourceFailed               EventType = "source.failed"
	EventSourceCanceled             EventType = "source.canceled"
	EventPaymentIntentSucceeded     EventType = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed EventType = "payment_intent.payment_failed"
)

// Event is a verified webhook event.
type Event struct {
	ID     string
	Type   EventType
	Object *PaymentObject
	Charge *Charge
	// Raw is the event body as received, kept for replay.
	Raw []byte
}

// ReferenceID returns the external reference id the event is about.
func (e *Event) ReferenceID() string {
	switch {
	case e == nil:
		return ""
	case e.Charge != nil:
		return e.Charge.ReferenceID()
	case e.Object != nil:
		return e.Object.ID
	}
	return ""
}

// Client is the subset of the payment gateway the checkout core uses.
type Client interface {
	CreatePaymentObject(ctx context.Context, params *CreateParams) (*PaymentObject, error)
	// RetrievePaymentObject returns (nil, nil) when the object does not exist.
	RetrievePaymentObject(ctx context.Context, id string) (*PaymentObject, error)
	UpdatePaymentObjectMetadata(ctx context.Context, id string, metadata map[string]string) (*PaymentObject, error)
	ChargePaymentObject(ctx context.Context, params *ChargeParams) (*Charge, error)
	// AnnotateDescription appends note to the description of the target.
	AnnotateDescription(ctx context.Context, target AnnotateTarget, note string) error
	// Refund and Capture accept a charge id or a payment intent id. Amount 0 means the full amount.
	Refund(ctx context.Context, transactionID string, amount int64) (*Refund, error)
	Capture(ctx context.Context, transactionID string, amount int64) error
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error)
	ParseEvent(payload []byte) (*Event, error)
}
