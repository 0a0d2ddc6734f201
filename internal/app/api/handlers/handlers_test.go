package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/fatflowers/cashier-stripe/internal/app/api/middleware"
	"github.com/fatflowers/cashier-stripe/internal/app/service/checkout"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/outcome"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/app/service/statistics"
	"github.com/fatflowers/cashier-stripe/internal/app/service/webhook"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/response"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// --- Mocks ---

type MockCheckout struct {
	mock.Mock
}

func (m *MockCheckout) StartPayment(ctx context.Context, sess *session.Session, req *checkout.StartRequest) (*checkout.StartResult, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.StartResult), args.Error(1)
}

func (m *MockCheckout) CompleteRedirectReturn(ctx context.Context, sess *session.Session, req *checkout.ReturnRequest) (*models.Order, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCheckout) SessionStatus(ctx context.Context, sess *session.Session) (*checkout.Status, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Status), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) HandleWebhook(ctx context.Context, payload []byte, sig string) webhook.Ack {
	args := m.Called(ctx, payload, sig)
	return args.Get(0).(webhook.Ack)
}

type MockOrders struct {
	mock.Mock
}

func (m *MockOrders) ScanOrders(ctx context.Context, req *types.PageRequest) (*order.ScanOrdersResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.ScanOrdersResponse), args.Error(1)
}

func (m *MockOrders) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrders) Refund(ctx context.Context, req *order.RefundRequest) (*order.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.RefundResult), args.Error(1)
}

func (m *MockOrders) Capture(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) GetOrderStatistic(ctx context.Context, req *statistics.Request) (*statistics.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*statistics.Response), args.Error(1)
}

// --- Helpers ---

func init() { gin.SetMode(gin.TestMode) }

var testSession = session.New("sess-1", time.Hour)

func checkoutEngine(svc CheckoutService) *gin.Engine {
	cfg := &config.Config{}
	cfg.Checkout.FinishURL = "https://shop.example.com/checkout/finish"
	cfg.Checkout.CancelURL = "https://shop.example.com/checkout/confirm"
	r := gin.New()
	g := r.Group("/api/v1/checkout")
	g.Use(func(c *gin.Context) { mw.SetCheckoutSession(c, testSession) })
	RegisterCheckoutRoutes(g, svc, cfg, zap.NewNop().Sugar())
	return r
}

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func paidOrder() *models.Order {
	now := time.Now()
	return &models.Order{
		ID: "order-1", Number: 1001, TemporaryID: "src_1", TransactionID: "ch_1",
		PaymentStatus: types.OrderPaymentStatusCompletelyPaid, MethodID: types.PaymentMethodSofort,
		Amount: 1999, Currency: "eur", ClearedDate: &now, InternalComment: "note\n",
	}
}

// --- Checkout ---

func TestApiStartPayment_Redirect(t *testing.T) {
	svc := new(MockCheckout)
	svc.On("StartPayment", mock.Anything, testSession, mock.MatchedBy(func(req *checkout.StartRequest) bool {
		return req.MethodID == types.PaymentMethodSofort && req.Amount == 1999 && req.Customer != nil && req.Customer.Email == "buyer@example.com"
	})).Return(&checkout.StartResult{Outcome: outcome.RequiresRedirect, RedirectURL: "https://hooks.stripe.com/redirect/src_1"}, nil)

	w, env := do(t, checkoutEngine(svc), http.MethodPost, "/api/v1/checkout/start", map[string]any{
		"method_id": "sofort", "amount": 1999, "currency": "eur", "customer": map[string]string{"email": "buyer@example.com"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.APIResponseCodeOK, env.Code)

	var data StartPaymentResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "requires_redirect", data.Outcome)
	assert.Equal(t, "https://hooks.stripe.com/redirect/src_1", data.RedirectURL)
	assert.Nil(t, data.Order)
	svc.AssertExpectations(t)
}

func TestApiStartPayment_Errors(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		svc := new(MockCheckout)
		_, env := do(t, checkoutEngine(svc), http.MethodPost, "/api/v1/checkout/start", map[string]any{"method_id": "card", "amount": -1, "currency": "eur"})
		assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)
		svc.AssertNotCalled(t, "StartPayment", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("gateway failure shows generic message", func(t *testing.T) {
		svc := new(MockCheckout)
		svc.On("StartPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, gateway.ErrRequestFailed)
		_, env := do(t, checkoutEngine(svc), http.MethodPost, "/api/v1/checkout/start", map[string]any{"method_id": "card", "amount": 100, "currency": "eur"})
		assert.Equal(t, response.APIResponseCodePaymentFailed, env.Code)
		assert.Equal(t, `"`+checkout.BuyerMessage(gateway.ErrRequestFailed)+`"`, string(env.Data))
		assert.NotContains(t, string(env.Data), "gateway request failed")
	})

	t.Run("session mismatch", func(t *testing.T) {
		svc := new(MockCheckout)
		svc.On("StartPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil, checkout.ErrSessionMismatch)
		_, env := do(t, checkoutEngine(svc), http.MethodPost, "/api/v1/checkout/start", map[string]any{"method_id": "sepa", "amount": 100, "currency": "eur"})
		assert.Equal(t, response.APIResponseCodeSessionMismatch, env.Code)
	})
}

func TestApiCompleteRedirectReturn(t *testing.T) {
	t.Run("success redirects to finish page", func(t *testing.T) {
		svc := new(MockCheckout)
		svc.On("CompleteRedirectReturn", mock.Anything, testSession, &checkout.ReturnRequest{ClientSecret: "src_1_secret", ReferenceID: "src_1"}).
			Return(paidOrder(), nil)

		w, _ := do(t, checkoutEngine(svc), http.MethodGet, "/api/v1/checkout/complete?source=src_1&client_secret=src_1_secret&livemode=false", nil)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://shop.example.com/checkout/finish?order=src_1", w.Header().Get("Location"))
	})

	t.Run("payment intent parameters", func(t *testing.T) {
		svc := new(MockCheckout)
		svc.On("CompleteRedirectReturn", mock.Anything, testSession, &checkout.ReturnRequest{ClientSecret: "pi_1_secret", ReferenceID: "pi_1", RedirectStatus: "succeeded"}).
			Return(paidOrder(), nil)

		w, _ := do(t, checkoutEngine(svc), http.MethodGet, "/api/v1/checkout/complete?payment_intent=pi_1&payment_intent_client_secret=pi_1_secret&redirect_status=succeeded", nil)
		require.Equal(t, http.StatusFound, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("failure returns to checkout with message", func(t *testing.T) {
		svc := new(MockCheckout)
		svc.On("CompleteRedirectReturn", mock.Anything, mock.Anything, mock.Anything).Return(nil, checkout.ErrPaymentCanceled)

		w, _ := do(t, checkoutEngine(svc), http.MethodGet, "/api/v1/checkout/complete?source=src_1&client_secret=x&redirect_status=canceled", nil)
		require.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/checkout/confirm", loc.Path)
		assert.Equal(t, checkout.BuyerMessage(checkout.ErrPaymentCanceled), loc.Query().Get("error"))
	})
}

func TestApiCheckoutStatus(t *testing.T) {
	svc := new(MockCheckout)
	svc.On("SessionStatus", mock.Anything, testSession).Return(&checkout.Status{AttemptStatus: types.AttemptStatusFailed, PaymentError: "try again"}, nil)

	_, env := do(t, checkoutEngine(svc), http.MethodGet, "/api/v1/checkout/status", nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var data CheckoutStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, types.AttemptStatusFailed, data.AttemptStatus)
	assert.Equal(t, "try again", data.PaymentError)
}

// --- Webhook ---

func TestApiStripeWebhook_AnswersTokenWith200(t *testing.T) {
	for _, token := range []webhook.Token{webhook.TokenOK, webhook.TokenError, webhook.TokenRejected, webhook.TokenIgnored} {
		rec := new(MockReconciler)
		rec.On("HandleWebhook", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=abc").Return(webhook.Ack{Token: token})

		r := gin.New()
		RegisterWebhookRoutes(r.Group("/api/v1/webhook"), rec, zap.NewNop().Sugar())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set(HeaderStripeSignature, "t=1,v1=abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, string(token), w.Body.String())
		rec.AssertExpectations(t)
	}
}

// --- Admin ---

func adminEngine(svc OrderAdmin) *gin.Engine {
	return adminEngineWithStats(svc, new(MockStats))
}

func adminEngineWithStats(svc OrderAdmin, stats OrderStatistics) *gin.Engine {
	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), svc, stats)
	return r
}

func TestApiListOrders(t *testing.T) {
	svc := new(MockOrders)
	svc.On("ScanOrders", mock.Anything, mock.MatchedBy(func(req *types.PageRequest) bool {
		return req.Size == 20 && len(req.Filters) == 1 && req.Filters[0].Field == "payment_status"
	})).Return(&order.ScanOrdersResponse{Items: []*models.Order{paidOrder()}, Total: 1}, nil)

	_, env := do(t, adminEngine(svc), http.MethodPost, "/api/v1/admin/orders/list", map[string]any{
		"filters": []map[string]any{{"field": "payment_status", "operator": "eq", "values": []string{"completely_paid"}}},
		"size":    20,
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var data ListOrdersResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(1), data.Total)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "ch_1", data.Items[0].TransactionID)
}

func TestApiGetOrder(t *testing.T) {
	svc := new(MockOrders)
	svc.On("GetOrder", mock.Anything, "order-1").Return(paidOrder(), nil)
	svc.On("GetOrder", mock.Anything, "missing").Return(nil, order.ErrOrderNotFound)
	r := adminEngine(svc)

	_, env := do(t, r, http.MethodGet, "/api/v1/admin/orders/order-1", nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var data AdminOrderDetail
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "note\n", data.InternalComment)
	assert.Equal(t, int64(1001), data.Number)

	_, env = do(t, r, http.MethodGet, "/api/v1/admin/orders/missing", nil)
	assert.Equal(t, response.APIResponseCodeNotFound, env.Code)
}

func TestApiRefundOrder(t *testing.T) {
	svc := new(MockOrders)
	refunded := paidOrder()
	refunded.PaymentStatus = types.OrderPaymentStatusReCrediting
	svc.On("Refund", mock.Anything, &order.RefundRequest{
		OrderID: "order-1", Amount: 500, Comment: "damaged",
		Positions: []order.RefundPosition{{Quantity: 1, Name: "Mug", ArticleNumber: "A-1"}},
	}).Return(&order.RefundResult{Order: refunded, Refund: &gateway.Refund{ID: "re_1", Amount: 500, Status: "succeeded"}}, nil)
	svc.On("Refund", mock.Anything, mock.MatchedBy(func(req *order.RefundRequest) bool { return req.OrderID == "order-2" })).
		Return(nil, order.ErrInvalidTransition)
	r := adminEngine(svc)

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/orders/order-1/refund", map[string]any{
		"amount": 500, "comment": "damaged",
		"positions": []map[string]any{{"quantity": 1, "name": "Mug", "article_number": "A-1"}},
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var data RefundOrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "re_1", data.Refund.ID)
	assert.Equal(t, types.OrderPaymentStatusReCrediting, data.Order.PaymentStatus)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/orders/order-2/refund", map[string]any{"amount": 0})
	assert.Equal(t, response.APIResponseCodeConflict, env.Code)
}

func TestApiCaptureOrder(t *testing.T) {
	svc := new(MockOrders)
	svc.On("Capture", mock.Anything, "order-1").Return(paidOrder(), nil)
	svc.On("Capture", mock.Anything, "order-2").Return(nil, gateway.ErrRequestFailed)
	r := adminEngine(svc)

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/orders/order-1/capture", nil)
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	_, env = do(t, r, http.MethodPost, "/api/v1/admin/orders/order-2/capture", nil)
	assert.Equal(t, response.APIResponseCodePaymentFailed, env.Code)
}

func TestApiOrderStatistic(t *testing.T) {
	stats := new(MockStats)
	stats.On("GetOrderStatistic", mock.Anything, mock.MatchedBy(func(req *statistics.Request) bool {
		return len(req.DataItems) == 1 && req.DataItems[0].ID == statistics.StatisticTypePaymentStatus
	})).Return(&statistics.Response{DataItems: map[statistics.StatisticType][]statistics.ResponseDataItem{
		statistics.StatisticTypePaymentStatus: {{Label: "completely_paid", Value: 3, Value2: 5997}},
	}}, nil)
	stats.On("GetOrderStatistic", mock.Anything, mock.MatchedBy(func(req *statistics.Request) bool {
		return req.DataItems[0].ID == "unknown"
	})).Return(nil, statistics.ErrInvalidRequest)
	r := adminEngineWithStats(new(MockOrders), stats)

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{
		"data_items": []map[string]string{{"id": "payment_status"}},
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var data statistics.Response
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(5997), data.DataItems[statistics.StatisticTypePaymentStatus][0].Value2)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{
		"data_items": []map[string]string{{"id": "unknown"}},
	})
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{})
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	r := gin.New()
	RegisterCheckoutRoutes(r.Group("/api/v1/checkout"), nil, &config.Config{}, zap.NewNop().Sugar())
	RegisterWebhookRoutes(r.Group("/api/v1/webhook"), nil, zap.NewNop().Sugar())
	RegisterAdminRoutes(r.Group("/api/v1/admin"), nil, nil)
	RegisterHealthRoutes(r, nil)

	routes := map[string]bool{}
	for _, rt := range r.Routes() {
		routes[rt.Method+" "+rt.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/checkout/start",
		"GET /api/v1/checkout/complete",
		"GET /api/v1/checkout/status",
		"POST /api/v1/webhook/stripe",
		"POST /api/v1/admin/orders/list",
		"GET /api/v1/admin/orders/:id",
		"POST /api/v1/admin/orders/:id/refund",
		"POST /api/v1/admin/orders/:id/capture",
		"POST /api/v1/admin/statistics",
		"GET /healthz",
		"GET /readyz",
	} {
		assert.True(t, routes[want], want)
	}
}
