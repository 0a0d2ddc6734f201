package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
)

// Client implements gateway.Client on top of the stripe API.
type Client struct {
	api           *client.API
	webhookSecret string
	log           *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) gateway.Client {
	sc := &client.API{}
	sc.Init(cfg.Stripe.SecretKey, backendsFor(cfg.Stripe.APIBase))
	if cfg.Stripe.SecretKey == "" {
		log.Warnw("stripe secret key is empty, gateway calls will fail")
	}
	return &Client{api: sc, webhookSecret: cfg.Stripe.WebhookSecret, log: log}
}

// backendsFor returns nil (stripe defaults) unless base overrides the API URL.
func backendsFor(base string) *stripego.Backends {
	if base == "" {
		return nil
	}
	return &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{URL: stripego.String(base)}),
		Connect: stripego.GetBackend(stripego.ConnectBackend),
		Uploads: stripego.GetBackend(stripego.UploadsBackend),
	}
}

func (c *Client) CreatePaymentObject(ctx context.Context, p *gateway.CreateParams) (*gateway.PaymentObject, error) {
	switch p.Kind {
	case gateway.ObjectKindPaymentIntent:
		return c.createPaymentIntent(ctx, p)
	case gateway.ObjectKindSource:
		return c.createSource(ctx, p)
	}
	return nil, fmt.Errorf("%w: unsupported object kind %q", gateway.ErrRequestFailed, p.Kind)
}

func (c *Client) createPaymentIntent(ctx context.Context, p *gateway.CreateParams) (*gateway.PaymentObject, error) {
	params := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(p.Amount),
		Currency:           stripego.String(p.Currency),
		PaymentMethod:      stripego.String(p.PaymentMethodID),
		ConfirmationMethod: stripego.String(string(stripego.PaymentIntentConfirmationMethodAutomatic)),
		Confirm:            stripego.Bool(p.Confirm),
	}
	if p.Confirm && p.ReturnURL != "" {
		params.ReturnURL = stripego.String(p.ReturnURL)
	}
	if p.CustomerID != "" {
		params.Customer = stripego.String(p.CustomerID)
		if p.SavePaymentMethod {
			params.SetupFutureUsage = stripego.String("off_session")
		}
	}
	if p.Description != "" {
		params.Description = stripego.String(p.Description)
	}
	if p.StatementDescriptor != "" {
		params.StatementDescriptor = stripego.String(p.StatementDescriptor)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripego.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, c.mapStripeError(ctx, "create_payment_intent", err)
	}
	return paymentIntentToObject(pi), nil
}

func (c *Client) createSource(ctx context.Context, p *gateway.CreateParams) (*gateway.PaymentObject, error) {
	params := &stripego.SourceParams{
		Type:     stripego.String(p.Type),
		Amount:   stripego.Int64(p.Amount),
		Currency: stripego.String(p.Currency),
	}
	if p.ReturnURL != "" {
		params.Redirect = &stripego.SourceRedirectParams{ReturnURL: stripego.String(p.ReturnURL)}
	}
	if p.Owner != nil {
		params.Owner = &stripego.SourceOwnerParams{
			Name:  stripego.String(p.Owner.Name),
			Email: stripego.String(p.Owner.Email),
		}
	}
	if p.StatementDescriptor != "" {
		params.StatementDescriptor = stripego.String(p.StatementDescriptor)
	}
	// Type specific fields are nested under the source type name.
	if p.Country != "" {
		switch p.Type {
		case "klarna":
			params.AddExtra("klarna[product]", "payment")
			params.AddExtra("klarna[purchase_country]", p.Country)
		default:
			params.AddExtra(p.Type+"[country]", p.Country)
		}
	}
	for i, item := range p.Items {
		prefix := "source_order[items][" + strconv.Itoa(i) + "]"
		params.AddExtra(prefix+"[type]", "sku")
		params.AddExtra(prefix+"[description]", item.Description)
		params.AddExtra(prefix+"[quantity]", strconv.FormatInt(item.Quantity, 10))
		params.AddExtra(prefix+"[amount]", strconv.FormatInt(item.Amount, 10))
		params.AddExtra(prefix+"[currency]", p.Currency)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	src, err := c.api.Sources.New(params)
	if err != nil {
		return nil, c.mapStripeError(ctx, "create_source", err)
	}
	return sourceToObject(src), nil
}

func (c *Client) RetrievePaymentObject(ctx context.Context, id string) (*gateway.PaymentObject, error) {
	switch gateway.KindOf(id) {
	case gateway.ObjectKindSource:
		src, err := c.api.Sources.Get(id, nil)
		if isNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, c.mapStripeError(ctx, "retrieve_source", err)
		}
		return sourceToObject(src), nil
	case gateway.ObjectKindPaymentIntent:
		pi, err := c.api.PaymentIntents.Get(id, nil)
		if isNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, c.mapStripeError(ctx, "retrieve_payment_intent", err)
		}
		return paymentIntentToObject(pi), nil
	}
	return nil, nil
}

func (c *Client) UpdatePaymentObjectMetadata(ctx context.Context, id string, metadata map[string]string) (*gateway.PaymentObject, error) {
	if gateway.KindOf(id) != gateway.ObjectKindSource {
		return nil, fmt.Errorf("%w: metadata update is only supported for sources, got %q", gateway.ErrRequestFailed, id)
	}
	params := &stripego.SourceParams{}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	src, err := c.api.Sources.Update(id, params)
	if err != nil {
		return nil, c.mapStripeError(ctx, "update_source", err)
	}
	return sourceToObject(src), nil
}

func (c *Client) ChargePaymentObject(ctx context.Context, p *gateway.ChargeParams) (*gateway.Charge, error) {
	params := &stripego.ChargeParams{
		Amount:   stripego.Int64(p.Amount),
		Currency: stripego.String(p.Currency),
	}
	params.AddExtra("source", p.SourceID)
	if p.Description != "" {
		params.Description = stripego.String(p.Description)
	}
	if p.StatementDescriptor != "" {
		params.StatementDescriptor = stripego.String(p.StatementDescriptor)
	}
	if p.CustomerID != "" {
		params.Customer = stripego.String(p.CustomerID)
	}
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripego.String(p.ReceiptEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	// A source can be charged once; the key makes a concurrent second attempt
	// return the first charge instead of an error.
	params.SetIdempotencyKey("charge-" + p.SourceID)
	params.Context = ctx

	ch, err := c.api.Charges.New(params)
	if err != nil {
		return nil, c.mapStripeError(ctx, "create_charge", err)
	}
	return chargeToDomain(ch), nil
}

func (c *Client) AnnotateDescription(ctx context.Context, target gateway.AnnotateTarget, note string) error {
	switch {
	case target.ChargeID != "":
		ch, err := c.api.Charges.Get(target.ChargeID, nil)
		if err != nil {
			return c.mapStripeError(ctx, "retrieve_charge", err)
		}
		params := &stripego.ChargeParams{Description: stripego.String(ch.Description + note)}
		params.Context = ctx
		if _, err := c.api.Charges.Update(target.ChargeID, params); err != nil {
			return c.mapStripeError(ctx, "update_charge", err)
		}
	case target.PaymentIntentID != "":
		pi, err := c.api.PaymentIntents.Get(target.PaymentIntentID, nil)
		if err != nil {
			return c.mapStripeError(ctx, "retrieve_payment_intent", err)
		}
		params := &stripego.PaymentIntentParams{Description: stripego.String(pi.Description + note)}
		params.Context = ctx
		if _, err := c.api.PaymentIntents.Update(target.PaymentIntentID, params); err != nil {
			return c.mapStripeError(ctx, "update_payment_intent", err)
		}
	}
	return nil
}

func (c *Client) Refund(ctx context.Context, transactionID string, amount int64) (*gateway.Refund, error) {
	params := &stripego.RefundParams{}
	if gateway.KindOf(transactionID) == gateway.ObjectKindPaymentIntent {
		params.PaymentIntent = stripego.String(transactionID)
	} else {
		params.Charge = stripego.String(transactionID)
	}
	if amount > 0 {
		params.Amount = stripego.Int64(amount)
	}
	params.Context = ctx
	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, c.mapStripeError(ctx, "create_refund", err)
	}
	return &gateway.Refund{ID: r.ID, TransactionID: transactionID, Amount: r.Amount, Status: string(r.Status)}, nil
}

func (c *Client) Capture(ctx context.Context, transactionID string, amount int64) error {
	if gateway.KindOf(transactionID) == gateway.ObjectKindPaymentIntent {
		params := &stripego.PaymentIntentCaptureParams{}
		if amount > 0 {
			params.AmountToCapture = stripego.Int64(amount)
		}
		params.Context = ctx
		if _, err := c.api.PaymentIntents.Capture(transactionID, params); err != nil {
			return c.mapStripeError(ctx, "capture_payment_intent", err)
		}
		return nil
	}
	params := &stripego.ChargeCaptureParams{}
	if amount > 0 {
		params.Amount = stripego.Int64(amount)
	}
	params.Context = ctx
	if _, err := c.api.Charges.Capture(transactionID, params); err != nil {
		return c.mapStripeError(ctx, "capture_charge", err)
	}
	return nil
}

// mapStripeError logs the provider message and wraps err as gateway.ErrRequestFailed.
func (c *Client) mapStripeError(ctx context.Context, op string, err error) error {
	fields := []interface{}{"op", op, "error", err}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		fields = append(fields, "stripe_code", stripeErr.Code, "http_status", stripeErr.HTTPStatusCode, "request_id", stripeErr.RequestID)
		logctx.FromCtx(ctx, c.log).Warnw("stripe_request_failed", fields...)
		return fmt.Errorf("%w: %s: %s", gateway.ErrRequestFailed, op, stripeErr.Msg)
	}
	logctx.FromCtx(ctx, c.log).Warnw("stripe_request_failed", fields...)
	return fmt.Errorf("%w: %s: %v", gateway.ErrRequestFailed, op, err)
}

func isNotFound(err error) bool {
	var stripeErr *stripego.Error
	return errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound
}
