// Package webhook reconciles order state from the gateway's asynchronous
// notifications. It shares the order finalizer and the charge claim with the
// redirect return path.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/cashier-stripe/internal/app/service/charge"
	notificationlog "github.com/fatflowers/cashier-stripe/internal/app/service/notification_log"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/metrics"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// Token is the body the webhook endpoint answers with. The HTTP status is always 200.
type Token string

const (
	TokenOK       Token = "OK"
	TokenError    Token = "ERROR"
	TokenRejected Token = "REJECTED"
	TokenIgnored  Token = "IGNORED"
)

type Ack struct {
	Token       Token
	EventID     string
	EventType   gateway.EventType
	ReferenceID string
	// Err is the processing error behind TokenError or TokenRejected. It is never sent to the gateway.
	Err error
}

// NotificationLog records every processing stage of an event.
type NotificationLog interface {
	Save(ctx context.Context, entry *models.PaymentNotificationLog)
}

type Reconciler struct {
	gw       gateway.Client
	orders   *order.Service
	charges  *charge.Initiator
	sessions session.Store
	notif    NotificationLog
	metrics  *metrics.Recorder
	log      *zap.SugaredLogger
	grace    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewReconciler(gw gateway.Client, orders *order.Service, charges *charge.Initiator, sessions session.Store,
	notif *notificationlog.Service, cfg *config.Config, rec *metrics.Recorder, log *zap.SugaredLogger) *Reconciler {
	return newReconciler(gw, orders, charges, sessions, notif, cfg, rec, log)
}

func newReconciler(gw gateway.Client, orders *order.Service, charges *charge.Initiator, sessions session.Store,
	notif NotificationLog, cfg *config.Config, rec *metrics.Recorder, log *zap.SugaredLogger) *Reconciler {
	grace := cfg.Checkout.WebhookGracePeriod
	if grace < 0 {
		grace = 0
	}
	return &Reconciler{
		gw:       gw,
		orders:   orders,
		charges:  charges,
		sessions: sessions,
		notif:    notif,
		metrics:  rec,
		log:      log,
		grace:    grace,
		sleep:    sleepCtx,
	}
}

// HandleWebhook verifies and processes one event. It always returns an Ack.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) Ack {
	start := time.Now()
	defer r.metrics.ObserveProcess("webhook", "handle", start)

	ev, err := r.gw.VerifyWebhookSignature(payload, signatureHeader)
	if err != nil {
		logctx.FromCtx(ctx, r.log).Warnw("webhook_rejected", "error", err, "payload_bytes", len(payload))
		r.notif.Save(ctx, &models.PaymentNotificationLog{
			TraceID: logctx.TraceID(ctx),
			Result:  resultJSON(nil, err),
			Status:  models.PaymentNotificationLogStatusRejected,
		})
		r.metrics.WebhookEvent("unverified", string(TokenRejected))
		return Ack{Token: TokenRejected, Err: err}
	}
	return r.dispatch(ctx, ev, models.PaymentNotificationLogStatusHandled)
}

// Reprocess runs a previously received event body again without verifying
// its signature. Only the operator CLI calls it, with bodies from the notification log.
func (r *Reconciler) Reprocess(ctx context.Context, payload []byte) Ack {
	ev, err := r.gw.ParseEvent(payload)
	if err != nil {
		return Ack{Token: TokenRejected, Err: err}
	}
	return r.dispatch(ctx, ev, models.PaymentNotificationLogStatusReplayed)
}

func (r *Reconciler) dispatch(ctx context.Context, ev *gateway.Event, okStatus models.PaymentNotificationLogStatus) Ack {
	ack := Ack{EventID: ev.ID, EventType: ev.Type, ReferenceID: ev.ReferenceID()}
	l := logctx.FromCtx(ctx, r.log).With("event_id", ev.ID, "event_type", ev.Type, "reference_id", ack.ReferenceID)
	ctx = logctx.WithLogger(ctx, l)

	entry := func(status models.PaymentNotificationLogStatus, result *datatypes.JSON) *models.PaymentNotificationLog {
		e := &models.PaymentNotificationLog{
			EventID:     ev.ID,
			EventType:   string(ev.Type),
			ReferenceID: ack.ReferenceID,
			TraceID:     logctx.TraceID(ctx),
			Result:      result,
			Status:      status,
		}
		if json.Valid(ev.Raw) {
			e.Data = datatypes.JSON(ev.Raw)
		}
		return e
	}
	r.notif.Save(ctx, entry(models.PaymentNotificationLogStatusReceived, nil))
	l.Infow("webhook_received")

	o, token, err := r.handle(ctx, ev)
	ack.Token, ack.Err = token, err
	if err != nil {
		ack.Token = TokenError
		fields := []any{"error", err}
		if o != nil {
			fields = append(fields, "order_id", o.ID)
		}
		if errors.Is(err, order.ErrOrderPersistenceFailed) {
			fields = append(fields, "escalate", true)
		}
		l.Errorw("webhook_handle_failed", fields...)
		r.notif.Save(ctx, entry(models.PaymentNotificationLogStatusHandleFailed, resultJSON(o, err)))
	} else {
		l.Infow("webhook_handled", "ack", ack.Token)
		r.notif.Save(ctx, entry(okStatus, resultJSON(o, nil)))
	}
	r.metrics.WebhookEvent(string(ev.Type), string(ack.Token))
	return ack
}

func (r *Reconciler) handle(ctx context.Context, ev *gateway.Event) (*models.Order, Token, error) {
	source := "webhook:" + string(ev.Type)
	switch ev.Type {
	case gateway.EventChargeSucceeded, gateway.EventChargeFailed:
		if ev.Charge == nil {
			return nil, TokenError, fmt.Errorf("%s without charge", ev.Type)
		}
		status := types.OrderPaymentStatusCompletelyPaid
		if ev.Type == gateway.EventChargeFailed {
			status = types.OrderPaymentStatusReviewNecessary
		}
		// Orders of payment intents carry the intent id, not the charge id.
		txn := ev.Charge.ID
		if ev.Charge.PaymentIntentID != "" {
			txn = ev.Charge.PaymentIntentID
		}
		return r.transition(ctx, ev.Charge.ReferenceID(), order.StatusChange{Status: status, TransactionID: txn, Source: source})
	case gateway.EventPaymentIntentSucceeded, gateway.EventPaymentIntentPaymentFailed:
		if ev.Object == nil {
			return nil, TokenError, fmt.Errorf("%s without payment intent", ev.Type)
		}
		status := types.OrderPaymentStatusCompletelyPaid
		if ev.Type == gateway.EventPaymentIntentPaymentFailed {
			status = types.OrderPaymentStatusReviewNecessary
		}
		return r.transition(ctx, ev.Object.ID, order.StatusChange{Status: status, TransactionID: ev.Object.ID, Source: source})
	case gateway.EventSourceFailed, gateway.EventSourceCanceled:
		return r.sourceFailed(ctx, ev, source)
	case gateway.EventSourceChargeable:
		return r.sourceChargeable(ctx, ev, source)
	}
	return nil, TokenIgnored, nil
}

func (r *Reconciler) transition(ctx context.Context, referenceID string, change order.StatusChange) (*models.Order, Token, error) {
	if referenceID == "" {
		return nil, TokenIgnored, nil
	}
	o, _, err := r.orders.Transition(ctx, referenceID, change)
	if err != nil {
		return nil, TokenError, err
	}
	return o, TokenOK, nil
}

// sourceFailed flags the placeholder order for review, or fails the attempt
// still waiting in the buyer's session.
func (r *Reconciler) sourceFailed(ctx context.Context, ev *gateway.Event, source string) (*models.Order, Token, error) {
	obj := ev.Object
	if obj == nil {
		return nil, TokenError, fmt.Errorf("%s without source", ev.Type)
	}
	o, err := r.orders.FindByReference(ctx, obj.ID)
	if err != nil {
		return nil, TokenError, err
	}
	if o != nil {
		return r.transition(ctx, obj.ID, order.StatusChange{Status: types.OrderPaymentStatusReviewNecessary, Source: source})
	}
	sess, err := r.processingSession(ctx, obj)
	if err != nil || sess == nil {
		return nil, TokenOK, err
	}
	status := types.AttemptStatusFailed
	if ev.Type == gateway.EventSourceCanceled {
		status = types.AttemptStatusCanceled
	}
	sess.Fail(status, "")
	if err := r.sessions.Save(ctx, sess); err != nil {
		return nil, TokenError, err
	}
	logctx.FromCtx(ctx, r.log).Infow("webhook_attempt_failed", "session_id", sess.ID, "attempt_status", status)
	return nil, TokenOK, nil
}

func (r *Reconciler) sourceChargeable(ctx context.Context, ev *gateway.Event, source string) (*models.Order, Token, error) {
	obj := ev.Object
	if obj == nil {
		return nil, TokenError, fmt.Errorf("%s without source", ev.Type)
	}
	// Give a buyer returning from the redirect the first chance to charge.
	if err := r.sleep(ctx, r.grace); err != nil {
		return nil, TokenError, err
	}
	l := logctx.FromCtx(ctx, r.log)

	existing, err := r.orders.FindByReference(ctx, obj.ID)
	if err != nil {
		return nil, TokenError, err
	}
	if existing != nil && !existing.HasPendingTransaction() {
		l.Infow("webhook_order_already_finalized", "order_id", existing.ID)
		return existing, TokenOK, nil
	}

	req := &charge.Request{Object: obj, Source: source}
	var sess *session.Session
	if existing != nil {
		req.MethodID = existing.MethodID
		req.SessionID = existing.SessionID
		req.Customer = session.Customer{
			Email:             existing.CustomerEmail,
			Number:            existing.CustomerNumber,
			GatewayCustomerID: existing.GatewayCustomerID,
		}
	} else {
		if sess, err = r.processingSession(ctx, obj); err != nil {
			return nil, TokenError, err
		}
		if sess == nil {
			l.Infow("webhook_no_matching_attempt")
			return nil, TokenOK, nil
		}
		req.MethodID = sess.Attempt.MethodID
		req.SessionID = sess.ID
		req.Customer = sess.Customer
	}

	o, err := r.charges.ChargeAndFinalize(ctx, req)
	if errors.Is(err, charge.ErrClaimHeld) {
		// The holder finalizes the order; a retry of this event finds it.
		l.Infow("webhook_claim_held")
		return existing, TokenOK, nil
	}
	if err != nil {
		return existing, TokenError, err
	}
	if sess != nil {
		// The buyer may have moved on to another attempt since sess was loaded.
		done, err := r.sessions.FinishAttempt(ctx, sess.ID, obj.ID)
		if err != nil {
			l.Warnw("session_finish_failed", "session_id", sess.ID, "error", err)
		} else if !done {
			l.Infow("webhook_session_moved_on", "session_id", sess.ID)
		}
	}
	return o, TokenOK, nil
}

// processingSession returns the session named in obj's metadata if its
// attempt in flight is obj, or nil.
func (r *Reconciler) processingSession(ctx context.Context, obj *gateway.PaymentObject) (*session.Session, error) {
	id := obj.SessionID()
	if id == "" {
		return nil, nil
	}
	sess, err := r.sessions.Load(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	if !sess.IsProcessing(obj.ID) {
		logctx.FromCtx(ctx, r.log).Infow("webhook_session_not_processing", "session_id", id,
			"processing_reference_id", sess.ProcessingReferenceID())
		return nil, nil
	}
	return sess, nil
}

func resultJSON(o *models.Order, err error) *datatypes.JSON {
	res := map[string]any{}
	if o != nil {
		res["order_id"] = o.ID
		res["order_number"] = o.Number
		res["payment_status"] = o.PaymentStatus
	}
	if err != nil {
		res["error"] = err.Error()
	}
	b, _ := json.Marshal(res)
	j := datatypes.JSON(b)
	return &j
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var Module = fx.Options(fx.Provide(NewReconciler))
