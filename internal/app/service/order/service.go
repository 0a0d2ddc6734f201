// Package order turns settled payment attempts into orders and moves existing
// orders along the settlement lattice.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/metrics"
	"github.com/fatflowers/cashier-stripe/pkg/tool"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

const noteTimeLayout = "2006-01-02 15:04"

// Finalize results, also used as metric labels.
const (
	ResultCreated  = "created"
	ResultUpgraded = "upgraded"
	ResultExisting = "existing"
	ResultFailed   = "failed"
)

// Settlement describes a payment that has reached a terminal or pending-async state.
type Settlement struct {
	// TransactionID is the charge or payment intent id. A pending placeholder
	// is allowed for asynchronous sources without a charge yet.
	TransactionID     string
	Status            types.OrderPaymentStatus
	MethodID          types.PaymentMethodID
	Amount            int64
	Currency          string
	CustomerEmail     string
	CustomerNumber    string
	GatewayCustomerID string
	SessionID         string
	// Annotate names the gateway object whose description receives the order number.
	Annotate gateway.AnnotateTarget
	// Source names the entry point, e.g. redirect_return or webhook:source.chargeable.
	Source string
}

// StatusChange is a webhook driven move along the lattice.
type StatusChange struct {
	Status types.OrderPaymentStatus
	// TransactionID replaces a placeholder transaction id if the order still has one.
	TransactionID string
	Source        string
}

type Service struct {
	repo    Repository
	gw      gateway.Client
	metrics *metrics.Recorder
	log     *zap.SugaredLogger
	retry   RetryPolicy
	now     func() time.Time
}

func NewService(repo Repository, gw gateway.Client, rec *metrics.Recorder, log *zap.SugaredLogger) *Service {
	return &Service{repo: repo, gw: gw, metrics: rec, log: log, retry: DefaultRetryPolicy, now: time.Now}
}

// Finalize creates the order for referenceID, or upgrades its placeholder
// transaction id, exactly once no matter how many callers race on it.
func (s *Service) Finalize(ctx context.Context, referenceID string, st *Settlement) (*models.Order, error) {
	if referenceID == "" || st == nil {
		return nil, fmt.Errorf("finalize: missing reference id or settlement")
	}
	start := s.now()
	var (
		order  *models.Order
		result string
	)
	err := s.retry.Do(ctx, func() error {
		var err error
		order, result, err = s.finalizeOnce(ctx, referenceID, st)
		return err
	})
	s.metrics.ObserveProcess("order", "finalize", start)
	if err != nil {
		s.metrics.OrderFinalized(ResultFailed)
		return nil, s.escalate(ctx, "finalize", referenceID, st.TransactionID, err)
	}
	s.metrics.OrderFinalized(result)

	l := logctx.FromCtx(ctx, s.log)
	l.Infow("order_finalized", "reference_id", referenceID, "order_id", order.ID, "order_number", order.Number,
		"transaction_id", order.TransactionID, "payment_status", order.PaymentStatus, "result", result, "source", st.Source)

	if result != ResultExisting && !order.HasPendingTransaction() {
		s.annotate(ctx, order, st.Annotate)
	}
	return order, nil
}

func (s *Service) finalizeOnce(ctx context.Context, referenceID string, st *Settlement) (*models.Order, string, error) {
	existing, err := s.repo.FindByTemporaryID(ctx, referenceID)
	if err != nil {
		return nil, "", err
	}
	if existing == nil {
		o := s.newOrder(referenceID, st)
		created, err := s.repo.CreateIfAbsent(ctx, o)
		if err != nil {
			return nil, "", err
		}
		if created {
			s.saveLog(ctx, nil, o, models.OrderChangeReasonCreated, st.Source)
			return o, ResultCreated, nil
		}
		// Lost the insert race; continue with the winner's row.
		if existing, err = s.repo.FindByTemporaryID(ctx, referenceID); err != nil {
			return nil, "", err
		}
		if existing == nil {
			return nil, "", fmt.Errorf("order %s conflicted but is not readable", referenceID)
		}
	}

	if !existing.HasPendingTransaction() || models.IsPendingTransactionID(st.TransactionID) {
		return existing, ResultExisting, nil
	}
	upgraded, err := s.attach(ctx, existing, st.TransactionID, st.Status, st.Source)
	if err != nil {
		return nil, "", err
	}
	if upgraded == nil {
		reloaded, err := s.repo.FindByTemporaryID(ctx, referenceID)
		if err != nil {
			return nil, "", err
		}
		return reloaded, ResultExisting, nil
	}
	return upgraded, ResultUpgraded, nil
}

// attach replaces the placeholder of o. It returns nil when another writer got there first.
func (s *Service) attach(ctx context.Context, o *models.Order, transactionID string, status types.OrderPaymentStatus, source string) (*models.Order, error) {
	now := s.now()
	note := fmt.Sprintf("%s: charge %s attached via %s\n", now.Format(noteTimeLayout), transactionID, source)
	ok, err := s.repo.AttachCharge(ctx, o.ID, transactionID, status, clearedAt(status, now), note)
	if err != nil || !ok {
		return nil, err
	}
	after, err := s.repo.FindByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if after == nil {
		return nil, fmt.Errorf("order %s disappeared after charge attach", o.ID)
	}
	s.saveLog(ctx, o, after, models.OrderChangeReasonChargeAttached, source)
	return after, nil
}

// SavePending records an order with a placeholder transaction id for an
// asynchronous source whose charge does not exist yet.
func (s *Service) SavePending(ctx context.Context, referenceID string, st *Settlement) (*models.Order, error) {
	pending := *st
	pending.TransactionID = models.PendingTransactionID(referenceID)
	pending.Status = types.OrderPaymentStatusOpen
	return s.Finalize(ctx, referenceID, &pending)
}

// Transition moves the order of referenceID along the lattice. Missing orders
// and transitions the lattice forbids are no-ops. It reports whether the
// order changed.
func (s *Service) Transition(ctx context.Context, referenceID string, change StatusChange) (*models.Order, bool, error) {
	var (
		order   *models.Order
		changed bool
	)
	err := s.retry.Do(ctx, func() error {
		var err error
		order, changed, err = s.transitionOnce(ctx, referenceID, change)
		return err
	})
	if err != nil {
		return nil, false, s.escalate(ctx, "transition", referenceID, change.TransactionID, err)
	}
	l := logctx.FromCtx(ctx, s.log)
	switch {
	case order == nil:
		l.Infow("order_transition_skipped", "reference_id", referenceID, "status", change.Status, "reason", "order_not_found")
	case !changed:
		l.Infow("order_transition_skipped", "reference_id", referenceID, "status", change.Status, "current", order.PaymentStatus)
	default:
		l.Infow("order_status_changed", "reference_id", referenceID, "order_id", order.ID, "status", order.PaymentStatus, "source", change.Source)
	}
	return order, changed, nil
}

func (s *Service) transitionOnce(ctx context.Context, referenceID string, change StatusChange) (*models.Order, bool, error) {
	o, err := s.repo.FindByTemporaryID(ctx, referenceID)
	if err != nil || o == nil {
		return nil, false, err
	}
	if o.HasPendingTransaction() && change.TransactionID != "" && !models.IsPendingTransactionID(change.TransactionID) {
		after, err := s.attach(ctx, o, change.TransactionID, change.Status, change.Source)
		if err != nil {
			return nil, false, err
		}
		if after != nil {
			return after, true, nil
		}
		// Someone else attached; retry the plain transition on the fresh row.
		if o, err = s.repo.FindByTemporaryID(ctx, referenceID); err != nil || o == nil {
			return nil, false, err
		}
	}
	if !o.PaymentStatus.CanTransition(change.Status) {
		return o, false, nil
	}
	now := s.now()
	note := fmt.Sprintf("%s: payment status set to %s via %s\n", now.Format(noteTimeLayout), change.Status, change.Source)
	ok, err := s.repo.UpdateStatus(ctx, o.ID, change.Status, clearedAt(change.Status, now), note)
	if err != nil {
		return nil, false, err
	}
	after, err := s.repo.FindByID(ctx, o.ID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.saveLog(ctx, o, after, models.OrderChangeReasonStatusChanged, change.Source)
	}
	return after, ok, nil
}

// RefundPosition is one returned line item listed in the refund comment.
type RefundPosition struct {
	Quantity      int64  `json:"quantity"`
	Name          string `json:"name"`
	ArticleNumber string `json:"article_number"`
}

type RefundRequest struct {
	OrderID string
	// Amount in minor units; 0 refunds the full order amount.
	Amount    int64
	Comment   string
	Positions []RefundPosition
}

type RefundResult struct {
	Order  *models.Order
	Refund *gateway.Refund
}

// Refund refunds (part of) an order at the gateway and records it on the order.
func (s *Service) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	o, err := s.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.HasPendingTransaction() {
		return nil, fmt.Errorf("%w: order %d has no charge yet", ErrInvalidTransition, o.Number)
	}
	switch o.PaymentStatus {
	case types.OrderPaymentStatusReserved, types.OrderPaymentStatusCompletelyPaid, types.OrderPaymentStatusReCrediting:
	default:
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.Number, o.PaymentStatus)
	}
	amount := req.Amount
	if amount == 0 {
		amount = o.Amount
	}
	if amount < 0 || amount > o.Amount {
		return nil, fmt.Errorf("%w: %d exceeds order amount %d", ErrInvalidAmount, amount, o.Amount)
	}

	refund, err := s.gw.Refund(ctx, o.TransactionID, amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := refundNote(now, amount, o.Currency, req.Comment, req.Positions)
	source := "admin:refund"
	if o.PaymentStatus.CanTransition(types.OrderPaymentStatusReCrediting) {
		_, err = s.repo.UpdateStatus(ctx, o.ID, types.OrderPaymentStatusReCrediting, nil, note)
	} else {
		err = s.repo.AppendInternalComment(ctx, o.ID, note)
	}
	if err != nil {
		// The money already moved; the order row must be fixed by hand.
		return nil, s.escalate(ctx, "refund", o.TemporaryID, refund.ID, err)
	}
	after, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.saveLog(ctx, o, after, models.OrderChangeReasonRefunded, source)
	logctx.FromCtx(ctx, s.log).Infow("order_refunded", "order_id", o.ID, "refund_id", refund.ID, "amount", amount)
	return &RefundResult{Order: after, Refund: refund}, nil
}

func refundNote(now time.Time, amount int64, currency, comment string, positions []RefundPosition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s refunded", now.Format(noteTimeLayout), types.FormatAmount(amount, currency))
	if comment != "" {
		fmt.Fprintf(&b, ": %s", comment)
	}
	b.WriteString("\n")
	for _, p := range positions {
		fmt.Fprintf(&b, "- %d x %s", p.Quantity, p.Name)
		if p.ArticleNumber != "" {
			fmt.Fprintf(&b, " (%s)", p.ArticleNumber)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Capture captures a reserved order at the gateway and marks it paid.
func (s *Service) Capture(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != types.OrderPaymentStatusReserved || o.HasPendingTransaction() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, o.Number, o.PaymentStatus)
	}
	if err := s.gw.Capture(ctx, o.TransactionID, 0); err != nil {
		return nil, err
	}
	now := s.now()
	note := fmt.Sprintf("%s: %s captured\n", now.Format(noteTimeLayout), types.FormatAmount(o.Amount, o.Currency))
	if _, err := s.repo.UpdateStatus(ctx, o.ID, types.OrderPaymentStatusCompletelyPaid, &now, note); err != nil {
		return nil, s.escalate(ctx, "capture", o.TemporaryID, o.TransactionID, err)
	}
	after, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.saveLog(ctx, o, after, models.OrderChangeReasonCaptured, "admin:capture")
	return after, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

// FindByReference returns the order created for a payment object, or nil.
func (s *Service) FindByReference(ctx context.Context, referenceID string) (*models.Order, error) {
	return s.repo.FindByTemporaryID(ctx, referenceID)
}

func (s *Service) newOrder(referenceID string, st *Settlement) *models.Order {
	now := s.now()
	o := &models.Order{
		ID:                tool.GenerateUUIDV7(),
		TransactionID:     st.TransactionID,
		TemporaryID:       referenceID,
		PaymentStatus:     st.Status,
		MethodID:          st.MethodID,
		Amount:            st.Amount,
		Currency:          st.Currency,
		CustomerEmail:     st.CustomerEmail,
		CustomerNumber:    st.CustomerNumber,
		GatewayCustomerID: st.GatewayCustomerID,
		SessionID:         st.SessionID,
		ClearedDate:       clearedAt(st.Status, now),
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = types.OrderPaymentStatusOpen
	}
	if models.IsPendingTransactionID(o.TransactionID) {
		o.InternalComment = fmt.Sprintf("%s: awaiting charge for %s\n", now.Format(noteTimeLayout), referenceID)
	}
	return o
}

func clearedAt(status types.OrderPaymentStatus, now time.Time) *time.Time {
	if status.IsSettled() {
		return &now
	}
	return nil
}

func (s *Service) annotate(ctx context.Context, o *models.Order, target gateway.AnnotateTarget) {
	if target.ChargeID == "" && target.PaymentIntentID == "" {
		return
	}
	note := fmt.Sprintf(" / Order %d", o.Number)
	if err := s.gw.AnnotateDescription(ctx, target, note); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("order_annotation_failed", "order_id", o.ID, "error", err)
	}
}

func (s *Service) saveLog(ctx context.Context, before, after *models.Order, reason models.OrderChangeReason, source string) {
	if after == nil {
		return
	}
	entry := models.NewOrderLog(before, after, reason, source)
	entry.ID = tool.GenerateUUIDV7()
	if err := s.repo.SaveLog(ctx, entry); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("order_log_save_failed", "order_id", after.ID, "reason", reason, "error", err)
	}
}

// escalate reports a write that failed after retries. The notification log
// of the triggering event stays handle_failed so it can be replayed.
func (s *Service) escalate(ctx context.Context, op, referenceID, transactionID string, err error) error {
	s.metrics.OrderPersistenceFailed()
	logctx.FromCtx(ctx, s.log).Errorw("order_persistence_failed",
		"op", op, "reference_id", referenceID, "transaction_id", transactionID, "escalate", true, "error", err)
	if errors.Is(err, ErrOrderPersistenceFailed) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", ErrOrderPersistenceFailed, op, referenceID, err)
}
