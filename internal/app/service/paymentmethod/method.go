// Package paymentmethod creates the pending gateway object for each enabled
// checkout payment method.
package paymentmethod

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

const maxStatementDescriptorLen = 22

var (
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrMissingPaymentData means the buyer did not provide what the method needs,
	// e.g. a selected card or a prepared sepa source.
	ErrMissingPaymentData = errors.New("missing payment data")
)

// Request carries what a method needs to create its pending payment object.
type Request struct {
	Amount   int64
	Currency string
	Session  *session.Session
	// PaymentMethodID is the gateway payment method selected in the browser (card, wallet).
	PaymentMethodID   string
	SavePaymentMethod bool
	// SourceID and SourceClientSecret identify a source prepared in the browser (sepa).
	SourceID           string
	SourceClientSecret string
	Items              []gateway.LineItem
}

// Method is one checkout payment method.
type Method interface {
	ID() types.PaymentMethodID
	CreatePendingPayment(ctx context.Context, req *Request) (*gateway.PaymentObject, error)
	// IncludeDescriptorInCharge reports whether charges of this method carry the statement descriptor.
	IncludeDescriptorInCharge() bool
}

// base holds what every variant shares.
type base struct {
	id           types.PaymentMethodID
	gw           gateway.Client
	cfg          *config.Config
	descriptor   string
	country      string
	platformName string
}

func newBase(id types.PaymentMethodID, gw gateway.Client, cfg *config.Config, mc *types.PaymentMethodConfig) base {
	return base{
		id:           id,
		gw:           gw,
		cfg:          cfg,
		descriptor:   TruncateDescriptor(cfg.StatementDescriptorFor(id)),
		country:      mc.Country,
		platformName: cfg.Stripe.PlatformName,
	}
}

func (b base) ID() types.PaymentMethodID { return b.id }

// metadata is attached to every pending object so the webhook path can find the session.
func (b base) metadata(s *session.Session) map[string]string {
	m := map[string]string{gateway.MetadataPlatformName: b.platformName}
	if s != nil {
		m[gateway.MetadataSessionID] = s.ID
	}
	return m
}

func (b base) receiptEmail(s *session.Session) string {
	if !b.cfg.Stripe.SendReceiptEmails || s == nil {
		return ""
	}
	return s.Customer.Email
}

// ChargeDescription is the description written on charges and intents.
func ChargeDescription(c session.Customer) string {
	return fmt.Sprintf("%s / Customer %s", c.Email, c.Number)
}

// TruncateDescriptor cuts s to the gateway's statement descriptor limit.
func TruncateDescriptor(s string) string {
	r := []rune(s)
	if len(r) <= maxStatementDescriptorLen {
		return s
	}
	return string(r[:maxStatementDescriptorLen])
}

// Registry holds the enabled methods.
type Registry struct {
	methods map[types.PaymentMethodID]Method
}

func NewRegistry(cfg *config.Config, gw gateway.Client) (*Registry, error) {
	r := &Registry{methods: map[types.PaymentMethodID]Method{}}
	for _, mc := range cfg.PaymentMethods {
		if mc == nil {
			continue
		}
		b := newBase(mc.ID, gw, cfg, mc)
		switch mc.ID {
		case types.PaymentMethodCard:
			r.methods[mc.ID] = &card{base: b}
		case types.PaymentMethodDigitalWallet:
			r.methods[mc.ID] = &digitalWallet{base: b}
		case types.PaymentMethodSofort:
			r.methods[mc.ID] = &sofort{base: b}
		case types.PaymentMethodKlarna:
			r.methods[mc.ID] = &klarna{base: b}
		case types.PaymentMethodSepa:
			r.methods[mc.ID] = &sepa{base: b}
		default:
			return nil, fmt.Errorf("%w: %q in config", ErrUnknownPaymentMethod, mc.ID)
		}
	}
	return r, nil
}

func (r *Registry) Get(id types.PaymentMethodID) (Method, error) {
	m, ok := r.methods[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, id)
	}
	return m, nil
}
