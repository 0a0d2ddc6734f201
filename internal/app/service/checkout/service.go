// Package checkout drives a payment attempt from the buyer's side: it starts
// the attempt with the selected method and completes it when the buyer comes
// back from a redirect step.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/app/service/charge"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/outcome"
	"github.com/fatflowers/cashier-stripe/internal/app/service/paymentmethod"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/metrics"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

const (
	sourceStart  = "checkout_start"
	sourceReturn = "redirect_return"

	// RedirectStatusCanceled is sent back by the gateway when the buyer aborted the redirect step.
	RedirectStatusCanceled = "canceled"
	RedirectStatusFailed   = "failed"

	defaultPollInterval = 250 * time.Millisecond
)

type StartRequest struct {
	MethodID types.PaymentMethodID
	Amount   int64
	Currency string
	// Customer replaces the buyer data kept in the session when set.
	Customer           *session.Customer
	PaymentMethodID    string
	SavePaymentMethod  bool
	SourceID           string
	SourceClientSecret string
	Items              []gateway.LineItem
}

type StartResult struct {
	Outcome     outcome.Outcome
	RedirectURL string
	Order       *models.Order
}

type ReturnRequest struct {
	ClientSecret string
	// ReferenceID is the source or payment intent id echoed by the gateway, optional.
	ReferenceID    string
	RedirectStatus string
}

type Service struct {
	methods      *paymentmethod.Registry
	gw           gateway.Client
	orders       *order.Service
	charges      *charge.Initiator
	sessions     session.Store
	metrics      *metrics.Recorder
	log          *zap.SugaredLogger
	claimWait    time.Duration
	pollInterval time.Duration
}

func NewService(methods *paymentmethod.Registry, gw gateway.Client, orders *order.Service, charges *charge.Initiator,
	sessions session.Store, cfg *config.Config, rec *metrics.Recorder, log *zap.SugaredLogger) *Service {
	return &Service{
		methods:      methods,
		gw:           gw,
		orders:       orders,
		charges:      charges,
		sessions:     sessions,
		metrics:      rec,
		log:          log,
		claimWait:    cfg.Checkout.ClaimWait,
		pollInterval: defaultPollInterval,
	}
}

// StartPayment creates the pending payment object for the selected method and
// acts on its classification.
func (s *Service) StartPayment(ctx context.Context, sess *session.Session, req *StartRequest) (*StartResult, error) {
	if sess == nil || req == nil || req.Amount <= 0 || len(req.Currency) != 3 {
		return nil, fmt.Errorf("%w: amount and a 3 letter currency are required", ErrInvalidRequest)
	}
	method, err := s.methods.Get(req.MethodID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer s.metrics.ObserveProcess("checkout", "start", start)

	if req.Customer != nil {
		sess.Customer = *req.Customer
	}
	sess.Prepare(method.ID(), req.Amount, strings.ToLower(req.Currency))

	obj, err := method.CreatePendingPayment(ctx, &paymentmethod.Request{
		Amount:             req.Amount,
		Currency:           strings.ToLower(req.Currency),
		Session:            sess,
		PaymentMethodID:    req.PaymentMethodID,
		SavePaymentMethod:  req.SavePaymentMethod,
		SourceID:           req.SourceID,
		SourceClientSecret: req.SourceClientSecret,
		Items:              req.Items,
	})
	if err != nil {
		return nil, s.fail(ctx, sess, sourceStart, err)
	}

	res := outcome.Classify(obj)
	logctx.FromCtx(ctx, s.log).Infow("payment_object_created", "reference_id", obj.ID, "method", method.ID(),
		"object_status", obj.Status, "outcome", res.Outcome)

	switch res.Outcome {
	case outcome.RequiresRedirect:
		sess.Begin(obj.ID, obj.ClientSecret, types.AttemptStatusRequiresRedirect)
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		s.metrics.CheckoutOutcome(string(method.ID()), string(res.Outcome))
		return &StartResult{Outcome: res.Outcome, RedirectURL: res.RedirectURL}, nil
	case outcome.Settled, outcome.RequiresAsync:
		o, err := s.complete(ctx, sess, obj, res.Outcome, sourceStart)
		if err != nil {
			return nil, err
		}
		return &StartResult{Outcome: res.Outcome, Order: o}, nil
	}
	return nil, s.fail(ctx, sess, sourceStart, res.Err)
}

// CompleteRedirectReturn finishes the attempt in sess after the buyer came back
// from the redirect step. The returned secret must match the one stored when
// the attempt began.
func (s *Service) CompleteRedirectReturn(ctx context.Context, sess *session.Session, req *ReturnRequest) (*models.Order, error) {
	if sess == nil || req == nil {
		return nil, ErrSessionMismatch
	}
	start := time.Now()
	defer s.metrics.ObserveProcess("checkout", "redirect_return", start)

	ref := sess.ProcessingReferenceID()
	if err := sess.ValidateReturn(req.ClientSecret); err != nil || ref == "" || (req.ReferenceID != "" && req.ReferenceID != ref) {
		// A reload of the return url, or a return after the webhook settled the
		// attempt, is answered with the order of the finished attempt.
		if o := s.finishedOrder(ctx, sess, req); o != nil {
			return o, nil
		}
		return nil, s.fail(ctx, sess, sourceReturn, fmt.Errorf("%w: reference %q", ErrSessionMismatch, req.ReferenceID))
	}

	switch req.RedirectStatus {
	case RedirectStatusCanceled:
		return nil, s.fail(ctx, sess, sourceReturn, fmt.Errorf("%w: %s", ErrPaymentCanceled, ref))
	case RedirectStatusFailed:
		return nil, s.fail(ctx, sess, sourceReturn, fmt.Errorf("%w: redirect of %s failed", ErrPaymentDeclined, ref))
	}

	obj, err := s.gw.RetrievePaymentObject(ctx, ref)
	if err != nil {
		return nil, s.fail(ctx, sess, sourceReturn, err)
	}
	if obj != nil && obj.Kind == gateway.ObjectKindSource && obj.Status == gateway.StatusConsumed {
		// The webhook charged the source while the buyer was on the way back.
		o, err := s.awaitOrder(ctx, ref)
		if err != nil {
			return nil, s.fail(ctx, sess, sourceReturn, err)
		}
		sess.Clear()
		if err := s.sessions.Save(ctx, sess); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("session_save_failed", "session_id", sess.ID, "error", err)
		}
		return o, nil
	}
	res := outcome.Classify(obj)
	logctx.FromCtx(ctx, s.log).Infow("redirect_return_classified", "reference_id", ref, "outcome", res.Outcome)

	switch res.Outcome {
	case outcome.Settled, outcome.RequiresAsync:
		return s.complete(ctx, sess, obj, res.Outcome, sourceReturn)
	case outcome.RequiresRedirect:
		return nil, s.fail(ctx, sess, sourceReturn, fmt.Errorf("%w: redirect step of %s not completed", ErrPaymentCanceled, ref))
	}
	return nil, s.fail(ctx, sess, sourceReturn, res.Err)
}

// complete persists the order of a settled or async attempt and clears the session.
func (s *Service) complete(ctx context.Context, sess *session.Session, obj *gateway.PaymentObject, oc outcome.Outcome, source string) (*models.Order, error) {
	status := types.AttemptStatusPending
	if oc == outcome.RequiresAsync {
		status = types.AttemptStatusRequiresAsync
	}
	if sess.Attempt.ReferenceID != obj.ID {
		sess.Begin(obj.ID, obj.ClientSecret, status)
	} else {
		sess.Attempt.Status = status
	}
	// Persist the processing marker first so the webhook can match this attempt.
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	var (
		o   *models.Order
		err error
	)
	if oc == outcome.Settled {
		o, err = s.settle(ctx, sess, obj, source)
	} else {
		o, err = s.recordAsync(ctx, sess, obj, source)
	}
	if err != nil {
		return nil, s.fail(ctx, sess, source, err)
	}

	methodID := sess.Attempt.MethodID
	sess.Clear()
	if err := s.sessions.Save(ctx, sess); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("session_save_failed", "session_id", sess.ID, "error", err)
	}
	s.metrics.CheckoutOutcome(string(methodID), string(oc))
	logctx.FromCtx(ctx, s.log).Infow("checkout_completed", "reference_id", obj.ID, "order_id", o.ID,
		"order_number", o.Number, "payment_status", o.PaymentStatus, "source", source)
	return o, nil
}

func (s *Service) settle(ctx context.Context, sess *session.Session, obj *gateway.PaymentObject, source string) (*models.Order, error) {
	if obj.Kind == gateway.ObjectKindPaymentIntent {
		status := types.OrderPaymentStatusCompletelyPaid
		if obj.Status == gateway.StatusRequiresCapture {
			status = types.OrderPaymentStatusReserved
		}
		return s.orders.Finalize(ctx, obj.ID, s.settlement(sess, obj.ID, status, source, gateway.AnnotateTarget{PaymentIntentID: obj.ID}))
	}
	o, err := s.charges.ChargeAndFinalize(ctx, &charge.Request{
		Object:    obj,
		MethodID:  sess.Attempt.MethodID,
		Customer:  sess.Customer,
		SessionID: sess.ID,
		Source:    source,
	})
	if errors.Is(err, charge.ErrClaimHeld) {
		return s.awaitOrder(ctx, obj.ID)
	}
	return o, err
}

// recordAsync stores the order of an attempt whose settlement arrives by webhook.
func (s *Service) recordAsync(ctx context.Context, sess *session.Session, obj *gateway.PaymentObject, source string) (*models.Order, error) {
	if obj.Kind == gateway.ObjectKindPaymentIntent {
		return s.orders.Finalize(ctx, obj.ID, s.settlement(sess, obj.ID, types.OrderPaymentStatusOpen, source, gateway.AnnotateTarget{PaymentIntentID: obj.ID}))
	}
	return s.orders.SavePending(ctx, obj.ID, s.settlement(sess, "", types.OrderPaymentStatusOpen, source, gateway.AnnotateTarget{}))
}

func (s *Service) settlement(sess *session.Session, transactionID string, status types.OrderPaymentStatus, source string, target gateway.AnnotateTarget) *order.Settlement {
	return &order.Settlement{
		TransactionID:     transactionID,
		Status:            status,
		MethodID:          sess.Attempt.MethodID,
		Amount:            sess.Attempt.Amount,
		Currency:          sess.Attempt.Currency,
		CustomerEmail:     sess.Customer.Email,
		CustomerNumber:    sess.Customer.Number,
		GatewayCustomerID: sess.Customer.GatewayCustomerID,
		SessionID:         sess.ID,
		Annotate:          target,
		Source:            source,
	}
}

// awaitOrder waits for the request holding the claim on referenceID to
// finalize its order.
func (s *Service) awaitOrder(ctx context.Context, referenceID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.claimWait)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		o, err := s.orders.FindByReference(ctx, referenceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrStillProcessing, referenceID)
			}
			return nil, err
		}
		if o != nil && !o.HasPendingTransaction() {
			return o, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrStillProcessing, referenceID)
		case <-ticker.C:
		}
	}
}

// finishedOrder returns the order of the session's finished attempt when req
// carries that attempt's client secret.
func (s *Service) finishedOrder(ctx context.Context, sess *session.Session, req *ReturnRequest) *models.Order {
	ref, err := sess.FinishedReferenceID(req.ReferenceID, req.ClientSecret)
	if err != nil {
		return nil
	}
	o, err := s.orders.FindByReference(ctx, ref)
	if err != nil || o == nil || o.SessionID != sess.ID {
		return nil
	}
	return o
}

// fail records err on the session for the buyer and returns it. An order
// persistence failure keeps the attempt in flight so a replayed webhook can
// still finalize it.
func (s *Service) fail(ctx context.Context, sess *session.Session, source string, err error) error {
	l := logctx.FromCtx(ctx, s.log).With("session_id", sess.ID, "reference_id", sess.Attempt.ReferenceID, "source", source)
	methodID := sess.Attempt.MethodID
	switch {
	case errors.Is(err, ErrSessionMismatch):
		l.Warnw("checkout_session_mismatch", "error", err)
		sess.PaymentError = BuyerMessage(err)
	case errors.Is(err, order.ErrOrderPersistenceFailed):
		l.Errorw("checkout_order_not_persisted", "error", err)
		sess.PaymentError = BuyerMessage(err)
	case errors.Is(err, ErrPaymentCanceled):
		l.Infow("checkout_canceled", "error", err)
		sess.Fail(types.AttemptStatusCanceled, BuyerMessage(err))
	case errors.Is(err, ErrStillProcessing):
		l.Infow("checkout_still_processing", "error", err)
		sess.PaymentError = BuyerMessage(err)
	default:
		l.Warnw("checkout_failed", "error", err)
		sess.Fail(types.AttemptStatusFailed, BuyerMessage(err))
	}
	if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
		l.Warnw("session_save_failed", "error", saveErr)
	}
	s.metrics.CheckoutOutcome(string(methodID), string(outcome.Failed))
	return err
}

// Status is what the checkout page needs to render the attempt of a session.
type Status struct {
	AttemptStatus types.AttemptStatus
	ReferenceID   string
	// PaymentError is returned once and then cleared.
	PaymentError string
}

// SessionStatus reports the attempt in sess and consumes its buyer message.
func (s *Service) SessionStatus(ctx context.Context, sess *session.Session) (*Status, error) {
	st := &Status{AttemptStatus: sess.Attempt.Status, ReferenceID: sess.ProcessingReferenceID()}
	if st.PaymentError = sess.ConsumePaymentError(); st.PaymentError != "" {
		if err := s.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return st, nil
}

var Module = fx.Options(fx.Provide(NewService))
