package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/app/service/charge"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/outcome"
	"github.com/fatflowers/cashier-stripe/internal/app/service/paymentmethod"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/internal/testutil"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/metrics"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

type fixture struct {
	svc      *Service
	gw       *testutil.FakeGateway
	repo     *testutil.MemoryOrderRepository
	sessions *testutil.MemorySessionStore
	claims   *testutil.MemoryClaimer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{PaymentMethods: []*types.PaymentMethodConfig{
		{ID: types.PaymentMethodCard}, {ID: types.PaymentMethodSofort, Country: "DE"}, {ID: types.PaymentMethodSepa},
	}}
	cfg.Stripe.PlatformName = "cashier"
	cfg.Stripe.StatementDescriptor = "Example Shop"
	cfg.Checkout.ReturnURL = "https://shop.example.com/checkout/return"
	cfg.Checkout.ClaimWait = 50 * time.Millisecond

	gw := testutil.NewFakeGateway()
	repo := testutil.NewMemoryOrderRepository()
	sessions := testutil.NewMemorySessionStore()
	claims := testutil.NewMemoryClaimer()
	rec, err := metrics.NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)
	log := zap.NewNop().Sugar()

	methods, err := paymentmethod.NewRegistry(cfg, gw)
	require.NoError(t, err)
	orders := order.NewService(repo, gw, rec, log)
	charges := charge.NewInitiator(gw, methods, orders, claims, cfg, log)
	svc := NewService(methods, gw, orders, charges, sessions, cfg, rec, log)
	svc.pollInterval = 5 * time.Millisecond
	return &fixture{svc: svc, gw: gw, repo: repo, sessions: sessions, claims: claims}
}

func newSession() *session.Session {
	s := session.New("sess-1", time.Hour)
	s.Customer = session.Customer{Email: "buyer@example.com", Number: "10042", Name: "Erika Mustermann"}
	return s
}

func (f *fixture) stored(t *testing.T, id string) *session.Session {
	t.Helper()
	s, err := f.sessions.Load(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (f *fixture) createReturns(obj *gateway.PaymentObject) {
	f.gw.OnCreate = func(*gateway.CreateParams) (*gateway.PaymentObject, error) {
		c := *obj
		return &c, nil
	}
}

func cardRequest() *StartRequest {
	return &StartRequest{MethodID: types.PaymentMethodCard, Amount: 1999, Currency: "EUR", PaymentMethodID: "pm_card"}
}

func intent(status string) *gateway.PaymentObject {
	return &gateway.PaymentObject{
		ID: "pi_1", Kind: gateway.ObjectKindPaymentIntent, Status: status, ClientSecret: "pi_1_secret",
		Amount: 1999, Currency: "eur",
	}
}

func sofortSource() *gateway.PaymentObject {
	return &gateway.PaymentObject{
		ID: "src_1", Kind: gateway.ObjectKindSource, Type: "sofort", Flow: gateway.FlowRedirect,
		Status: gateway.StatusPending, ClientSecret: "src_1_secret", Amount: 1999, Currency: "eur",
		Redirect: &gateway.Redirect{URL: "https://hooks.stripe.com/redirect/src_1", Status: gateway.StatusPending},
	}
}

func TestStartPayment_CardSucceeded(t *testing.T) {
	f := newFixture(t)
	f.createReturns(intent(gateway.StatusSucceeded))
	sess := newSession()

	res, err := f.svc.StartPayment(context.Background(), sess, cardRequest())
	require.NoError(t, err)
	assert.Equal(t, outcome.Settled, res.Outcome)
	require.NotNil(t, res.Order)
	assert.Equal(t, "pi_1", res.Order.TransactionID)
	assert.Equal(t, types.OrderPaymentStatusCompletelyPaid, res.Order.PaymentStatus)
	assert.NotNil(t, res.Order.ClearedDate)
	assert.Equal(t, "sess-1", res.Order.SessionID)
	assert.Equal(t, "eur", res.Order.Currency)

	stored := f.stored(t, "sess-1")
	assert.Empty(t, stored.ProcessingReferenceID())
	assert.Equal(t, types.AttemptStatusSettled, stored.Attempt.Status)

	require.Len(t, f.gw.Created, 1)
	assert.Equal(t, "sess-1", f.gw.Created[0].Metadata[gateway.MetadataSessionID])
}

func TestStartPayment_RequiresCaptureReservesOrder(t *testing.T) {
	f := newFixture(t)
	f.createReturns(intent(gateway.StatusRequiresCapture))

	res, err := f.svc.StartPayment(context.Background(), newSession(), cardRequest())
	require.NoError(t, err)
	assert.Equal(t, types.OrderPaymentStatusReserved, res.Order.PaymentStatus)
	assert.Nil(t, res.Order.ClearedDate)
}

func TestStartPayment_ProcessingIntentStaysOpen(t *testing.T) {
	f := newFixture(t)
	f.createReturns(intent(gateway.StatusProcessing))

	res, err := f.svc.StartPayment(context.Background(), newSession(), cardRequest())
	require.NoError(t, err)
	assert.Equal(t, outcome.RequiresAsync, res.Outcome)
	assert.Equal(t, types.OrderPaymentStatusOpen, res.Order.PaymentStatus)
	assert.Equal(t, "pi_1", res.Order.TransactionID)
}

func TestStartPayment_GatewayUnreachable(t *testing.T) {
	f := newFixture(t)
	f.gw.OnCreate = func(*gateway.CreateParams) (*gateway.PaymentObject, error) {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", gateway.ErrRequestFailed)
	}
	sess := newSession()

	_, err := f.svc.StartPayment(context.Background(), sess, cardRequest())
	assert.ErrorIs(t, err, ErrGatewayRequestFailed)

	stored := f.stored(t, "sess-1")
	assert.Empty(t, stored.ProcessingReferenceID())
	assert.Equal(t, types.AttemptStatusFailed, stored.Attempt.Status)
	assert.Equal(t, msgPaymentFailed, stored.PaymentError)
	assert.Empty(t, f.repo.Orders())
}

func TestStartPayment_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartPayment(context.Background(), newSession(), &StartRequest{MethodID: types.PaymentMethodCard, Amount: 0, Currency: "eur"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.StartPayment(context.Background(), newSession(), &StartRequest{MethodID: "paypal", Amount: 100, Currency: "eur"})
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)
	assert.Empty(t, f.gw.Created)
}

func TestStartPayment_UnsupportedNextAction(t *testing.T) {
	f := newFixture(t)
	pi := intent(gateway.StatusRequiresAction)
	pi.NextAction = &gateway.NextAction{Type: "use_stripe_sdk"}
	f.createReturns(pi)

	_, err := f.svc.StartPayment(context.Background(), newSession(), cardRequest())
	assert.ErrorIs(t, err, ErrRedirectNotSupported)
	assert.Equal(t, types.AttemptStatusFailed, f.stored(t, "sess-1").Attempt.Status)
}

func TestRedirectReturn_CardSucceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pi := intent(gateway.StatusRequiresAction)
	pi.NextAction = &gateway.NextAction{Type: gateway.NextActionRedirectToURL, RedirectURL: "https://hooks.stripe.com/3ds/pi_1"}
	f.createReturns(pi)
	sess := newSession()

	res, err := f.svc.StartPayment(ctx, sess, cardRequest())
	require.NoError(t, err)
	assert.Equal(t, outcome.RequiresRedirect, res.Outcome)
	assert.Equal(t, "https://hooks.stripe.com/3ds/pi_1", res.RedirectURL)
	assert.True(t, f.stored(t, "sess-1").IsProcessing("pi_1"))
	assert.Empty(t, f.repo.Orders())

	f.gw.SetStatus("pi_1", gateway.StatusSucceeded)
	o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "pi_1_secret", ReferenceID: "pi_1"})
	require.NoError(t, err)
	assert.Equal(t, types.OrderPaymentStatusCompletelyPaid, o.PaymentStatus)
	assert.NotNil(t, o.ClearedDate)
	assert.Empty(t, f.stored(t, "sess-1").ProcessingReferenceID())
}

func TestRedirectReturn_SofortChargeable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())

	res, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, outcome.RequiresRedirect, res.Outcome)
	assert.Equal(t, "DE", f.gw.Created[0].Country)

	f.gw.SetStatus("src_1", gateway.StatusChargeable)
	o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	require.NoError(t, err)
	assert.Equal(t, "ch_1", o.TransactionID)
	assert.Equal(t, "src_1", o.TemporaryID)
	assert.Equal(t, 1, f.gw.Charges())
	assert.Empty(t, f.gw.ChargeReqs[0].StatementDescriptor)

	// Reloading the return url finds the same order without charging again.
	again, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
	assert.Equal(t, 1, f.gw.Charges())
}

func TestRedirectReturn_FinishedAttemptNeedsItsSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)
	f.gw.SetStatus("src_1", gateway.StatusChargeable)
	o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	require.NoError(t, err)

	for name, req := range map[string]*ReturnRequest{
		"forged secret":       {ClientSecret: "forged", ReferenceID: "src_1"},
		"no secret":           {ReferenceID: "src_1"},
		"secret of other ref": {ClientSecret: "src_1_secret", ReferenceID: "src_2"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), req)
			assert.ErrorIs(t, err, ErrSessionMismatch)
			assert.Nil(t, got)
		})
	}

	again, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret"})
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
	assert.Equal(t, 1, f.gw.Charges())
}

func TestRedirectReturn_AfterWebhookSettledAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)

	// The webhook charged the source and finished the attempt first.
	f.repo.Put(&models.Order{
		ID: "order-1", TemporaryID: "src_1", TransactionID: "ch_9", SessionID: "sess-1",
		PaymentStatus: types.OrderPaymentStatusCompletelyPaid, MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur",
	})
	done, err := f.sessions.FinishAttempt(ctx, "sess-1", "src_1")
	require.NoError(t, err)
	require.True(t, done)

	o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID)

	_, err = f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "forged", ReferenceID: "src_1"})
	assert.ErrorIs(t, err, ErrSessionMismatch)
	assert.Equal(t, int32(0), f.gw.ChargeCalls.Load())
}

func TestRedirectReturn_PendingSourceStoresPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)

	// The buyer completed the bank step, the source is not chargeable yet.
	src := sofortSource()
	src.Redirect.Status = gateway.StatusSucceeded
	f.gw.PutObject(src)

	o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	require.NoError(t, err)
	assert.Equal(t, models.PendingTransactionID("src_1"), o.TransactionID)
	assert.Equal(t, types.OrderPaymentStatusOpen, o.PaymentStatus)
	assert.Equal(t, int32(0), f.gw.ChargeCalls.Load())
}

func TestRedirectReturn_SecretMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)
	f.gw.SetStatus("src_1", gateway.StatusChargeable)

	_, err = f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "forged", ReferenceID: "src_1"})
	assert.ErrorIs(t, err, ErrSessionMismatch)
	assert.Empty(t, f.repo.Orders())
	assert.Equal(t, int32(0), f.gw.ChargeCalls.Load())

	stored := f.stored(t, "sess-1")
	assert.Equal(t, msgPaymentFailed, stored.PaymentError)
	// The attempt stays in flight so the webhook can still complete it.
	assert.True(t, stored.IsProcessing("src_1"))
}

func TestRedirectReturn_ForeignReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)

	_, err = f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_other"})
	assert.ErrorIs(t, err, ErrSessionMismatch)
}

func TestRedirectReturn_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)

	_, err = f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1", RedirectStatus: RedirectStatusCanceled})
	assert.ErrorIs(t, err, ErrPaymentCanceled)

	stored := f.stored(t, "sess-1")
	assert.Equal(t, types.AttemptStatusCanceled, stored.Attempt.Status)
	assert.Equal(t, msgPaymentCanceled, stored.PaymentError)
	assert.Empty(t, f.repo.Orders())
}

func TestRedirectReturn_FailedSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)
	f.gw.SetStatus("src_1", gateway.StatusFailed)

	_, err = f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"})
	assert.ErrorIs(t, err, ErrPaymentDeclined)
	assert.Equal(t, types.AttemptStatusFailed, f.stored(t, "sess-1").Attempt.Status)
}

func TestRedirectReturn_ClaimHeldWaitsForOtherRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createReturns(sofortSource())
	_, err := f.svc.StartPayment(ctx, newSession(), &StartRequest{MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur"})
	require.NoError(t, err)
	f.gw.SetStatus("src_1", gateway.StatusChargeable)
	f.claims.Denied["src_1"] = true

	t.Run("times out", func(t *testing.T) {
		_, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret"})
		assert.ErrorIs(t, err, ErrStillProcessing)
		stored := f.stored(t, "sess-1")
		assert.Equal(t, msgStillProcessing, stored.PaymentError)
		assert.True(t, stored.IsProcessing("src_1"))
	})

	t.Run("returns the order the holder finalized", func(t *testing.T) {
		f.repo.Put(&models.Order{
			ID: "order-1", TemporaryID: "src_1", TransactionID: "ch_9", SessionID: "sess-1",
			PaymentStatus: types.OrderPaymentStatusCompletelyPaid, MethodID: types.PaymentMethodSofort, Amount: 1999, Currency: "eur",
		})
		o, err := f.svc.CompleteRedirectReturn(ctx, f.stored(t, "sess-1"), &ReturnRequest{ClientSecret: "src_1_secret"})
		require.NoError(t, err)
		assert.Equal(t, "order-1", o.ID)
		assert.Equal(t, int32(0), f.gw.ChargeCalls.Load())
	})
}

func TestBuyerMessage(t *testing.T) {
	assert.Empty(t, BuyerMessage(nil))
	assert.Equal(t, msgPaymentCanceled, BuyerMessage(fmt.Errorf("wrap: %w", ErrPaymentCanceled)))
	assert.Equal(t, msgStillProcessing, BuyerMessage(ErrStillProcessing))
	assert.Equal(t, msgPaymentFailed, BuyerMessage(gateway.ErrRequestFailed))
}

func TestSessionStatus_ConsumesPaymentError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.OnCreate = func(*gateway.CreateParams) (*gateway.PaymentObject, error) {
		return nil, gateway.ErrRequestFailed
	}
	_, err := f.svc.StartPayment(ctx, newSession(), cardRequest())
	require.Error(t, err)

	st, err := f.svc.SessionStatus(ctx, f.stored(t, "sess-1"))
	require.NoError(t, err)
	assert.Equal(t, types.AttemptStatusFailed, st.AttemptStatus)
	assert.Equal(t, msgPaymentFailed, st.PaymentError)

	st, err = f.svc.SessionStatus(ctx, f.stored(t, "sess-1"))
	require.NoError(t, err)
	assert.Empty(t, st.PaymentError)
}
