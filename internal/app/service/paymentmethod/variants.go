package paymentmethod

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
)

// card confirms a payment intent for the selected card; 3-D Secure comes back
// as a redirect next action.
type card struct{ base }

func (m *card) CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error) {
	if req.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: no card selected", ErrMissingPaymentData)
	}
	return m.gw.CreatePaymentObject(ctx, m.intentParams(req, true))
}

func (m *card) IncludeDescriptorInCharge() bool { return true }

// digitalWallet confirms a payment intent for a wallet payment method.
type digitalWallet struct{ base }

func (m *digitalWallet) CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error) {
	if req.PaymentMethodID == "" {
		return nil, fmt.Errorf("%w: no wallet payment method", ErrMissingPaymentData)
	}
	return m.gw.CreatePaymentObject(ctx, m.intentParams(req, false))
}

func (m *digitalWallet) IncludeDescriptorInCharge() bool { return true }

func (b base) intentParams(req *Request, allowSave bool) *gateway.CreateParams {
	customer := sessionCustomer(req.Session)
	return &gateway.CreateParams{
		Kind:                gateway.ObjectKindPaymentIntent,
		Amount:              req.Amount,
		Currency:            req.Currency,
		PaymentMethodID:     req.PaymentMethodID,
		CustomerID:          customer.GatewayCustomerID,
		ReturnURL:           b.cfg.Checkout.ReturnURL,
		Confirm:             true,
		SavePaymentMethod:   allowSave && req.SavePaymentMethod,
		Description:         ChargeDescription(customer),
		StatementDescriptor: b.descriptor,
		ReceiptEmail:        b.receiptEmail(req.Session),
		Metadata:            b.metadata(req.Session),
	}
}

// sofort creates a redirect source for the configured bank country.
type sofort struct{ base }

func (m *sofort) CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error) {
	customer := sessionCustomer(req.Session)
	return m.gw.CreatePaymentObject(ctx, &gateway.CreateParams{
		Kind:                gateway.ObjectKindSource,
		Type:                string(m.id),
		Amount:              req.Amount,
		Currency:            req.Currency,
		ReturnURL:           m.cfg.Checkout.ReturnURL,
		StatementDescriptor: m.descriptor,
		Owner:               &gateway.Owner{Name: customer.Name},
		Country:             m.country,
		Metadata:            m.metadata(req.Session),
	})
}

func (m *sofort) IncludeDescriptorInCharge() bool { return false }

// klarna creates a redirect source carrying the basket lines.
type klarna struct{ base }

func (m *klarna) CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: klarna needs order lines", ErrMissingPaymentData)
	}
	customer := sessionCustomer(req.Session)
	return m.gw.CreatePaymentObject(ctx, &gateway.CreateParams{
		Kind:      gateway.ObjectKindSource,
		Type:      string(m.id),
		Amount:    req.Amount,
		Currency:  req.Currency,
		ReturnURL: m.cfg.Checkout.ReturnURL,
		Owner:     &gateway.Owner{Name: customer.Name, Email: customer.Email},
		Country:   m.country,
		Items:     req.Items,
		Metadata:  m.metadata(req.Session),
	})
}

func (m *klarna) IncludeDescriptorInCharge() bool { return false }

// sepa uses a source the browser created from the mandate form. The source
// must present the client secret the browser was given.
type sepa struct{ base }

func (m *sepa) CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error) {
	if req.SourceID == "" || req.SourceClientSecret == "" {
		return nil, fmt.Errorf("%w: no sepa source", ErrMissingPaymentData)
	}
	src, err := m.gw.RetrievePaymentObject(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: sepa source %s not found", ErrMissingPaymentData, req.SourceID)
	}
	if subtle.ConstantTimeCompare([]byte(src.ClientSecret), []byte(req.SourceClientSecret)) != 1 {
		return nil, fmt.Errorf("%w: sepa source secret does not match", session.ErrSessionMismatch)
	}
	return m.gw.UpdatePaymentObjectMetadata(ctx, src.ID, m.metadata(req.Session))
}

func (m *sepa) IncludeDescriptorInCharge() bool { return true }

func sessionCustomer(s *session.Session) session.Customer {
	if s == nil {
		return session.Customer{}
	}
	return s.Customer
}
