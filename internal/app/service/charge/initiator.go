// Package charge charges chargeable sources and hands the result to the order
// finalizer, serialized per source through a claim.
package charge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/app/service/claim"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/outcome"
	"github.com/fatflowers/cashier-stripe/internal/app/service/paymentmethod"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// ErrClaimHeld means another request is charging the same source right now.
var ErrClaimHeld = errors.New("payment is being processed by another request")

type Request struct {
	Object    *gateway.PaymentObject
	MethodID  types.PaymentMethodID
	Customer  session.Customer
	SessionID string
	// Source names the entry point for logs and order notes.
	Source string
}

type Initiator struct {
	gw      gateway.Client
	methods *paymentmethod.Registry
	orders  *order.Service
	claims  claim.Claimer
	cfg     *config.Config
	log     *zap.SugaredLogger
}

func NewInitiator(gw gateway.Client, methods *paymentmethod.Registry, orders *order.Service, claims claim.Claimer, cfg *config.Config, log *zap.SugaredLogger) *Initiator {
	return &Initiator{gw: gw, methods: methods, orders: orders, claims: claims, cfg: cfg, log: log}
}

// ChargeAndFinalize charges req.Object once and finalizes its order. When the
// order already carries a real transaction id it is returned without charging.
func (i *Initiator) ChargeAndFinalize(ctx context.Context, req *Request) (*models.Order, error) {
	obj := req.Object
	if obj == nil || obj.Kind != gateway.ObjectKindSource {
		return nil, fmt.Errorf("%w: only sources are charged", outcome.ErrNoObject)
	}
	l := logctx.FromCtx(ctx, i.log).With("reference_id", obj.ID, "source", req.Source)

	release, acquired, err := i.claims.Acquire(ctx, obj.ID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		l.Infow("charge_claim_held")
		return nil, ErrClaimHeld
	}
	defer release()

	existing, err := i.orders.FindByReference(ctx, obj.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.HasPendingTransaction() {
		l.Infow("charge_skipped_already_finalized", "order_id", existing.ID, "transaction_id", existing.TransactionID)
		return existing, nil
	}

	ch, err := i.gw.ChargePaymentObject(ctx, i.params(req))
	if err != nil {
		return nil, err
	}
	var status types.OrderPaymentStatus
	switch ch.Status {
	case gateway.StatusSucceeded:
		status = types.OrderPaymentStatusCompletelyPaid
	case gateway.StatusPending:
		status = types.OrderPaymentStatusOpen
	default:
		return nil, fmt.Errorf("%w: charge %s of %s is %s", outcome.ErrDeclined, ch.ID, obj.ID, ch.Status)
	}
	l.Infow("source_charged", "charge_id", ch.ID, "charge_status", ch.Status)

	return i.orders.Finalize(ctx, obj.ID, &order.Settlement{
		TransactionID:     ch.ID,
		Status:            status,
		MethodID:          req.MethodID,
		Amount:            ch.Amount,
		Currency:          ch.Currency,
		CustomerEmail:     req.Customer.Email,
		CustomerNumber:    req.Customer.Number,
		GatewayCustomerID: req.Customer.GatewayCustomerID,
		SessionID:         req.SessionID,
		Annotate:          gateway.AnnotateTarget{ChargeID: ch.ID},
		Source:            req.Source,
	})
}

func (i *Initiator) params(req *Request) *gateway.ChargeParams {
	obj := req.Object
	p := &gateway.ChargeParams{
		SourceID:    obj.ID,
		Amount:      obj.Amount,
		Currency:    obj.Currency,
		Description: paymentmethod.ChargeDescription(req.Customer),
		CustomerID:  req.Customer.GatewayCustomerID,
		Metadata:    map[string]string{gateway.MetadataPlatformName: i.cfg.Stripe.PlatformName},
	}
	if req.SessionID != "" {
		p.Metadata[gateway.MetadataSessionID] = req.SessionID
	}
	if m, err := i.methods.Get(req.MethodID); err == nil && m.IncludeDescriptorInCharge() {
		p.StatementDescriptor = paymentmethod.TruncateDescriptor(i.cfg.StatementDescriptorFor(req.MethodID))
	}
	if i.cfg.Stripe.SendReceiptEmails {
		p.ReceiptEmail = req.Customer.Email
	}
	return p
}

var Module = fx.Options(fx.Provide(NewInitiator))
