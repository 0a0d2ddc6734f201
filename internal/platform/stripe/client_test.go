package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
)

const testWebhookSecret = "whsec_test_secret"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	cfg := &config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}}
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		cfg.Stripe.APIBase = srv.URL
	}
	return NewClient(cfg, zap.NewNop().Sugar()).(*Client)
}

func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestCreatePaymentObject_RedirectSource(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sources", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"src_123","object":"source","type":"sofort","status":"pending","flow":"redirect",
			"client_secret":"src_client_secret_abc","amount":1999,"currency":"eur",
			"redirect":{"url":"https://hooks.stripe.com/redirect/src_123","status":"pending","return_url":"https://shop/return"},
			"metadata":{"checkout_session_id":"sess-1"}}`)
	})

	obj, err := c.CreatePaymentObject(context.Background(), &gateway.CreateParams{
		Kind:      gateway.ObjectKindSource,
		Type:      "sofort",
		Amount:    1999,
		Currency:  "eur",
		ReturnURL: "https://shop/return",
		Country:   "DE",
		Metadata:  map[string]string{gateway.MetadataSessionID: "sess-1"},
	})
	require.NoError(t, err)

	require.Equal(t, "sofort", form.Get("type"))
	require.Equal(t, "1999", form.Get("amount"))
	require.Equal(t, "DE", form.Get("sofort[country]"))
	require.Equal(t, "https://shop/return", form.Get("redirect[return_url]"))
	require.Equal(t, "sess-1", form.Get("metadata[checkout_session_id]"))

	require.Equal(t, "src_123", obj.ID)
	require.Equal(t, gateway.ObjectKindSource, obj.Kind)
	require.Equal(t, gateway.FlowRedirect, obj.Flow)
	require.Equal(t, "src_client_secret_abc", obj.ClientSecret)
	require.Equal(t, "https://hooks.stripe.com/redirect/src_123", obj.Redirect.URL)
	require.Equal(t, "sess-1", obj.SessionID())
}

func TestCreatePaymentObject_PaymentIntentConfirmsAutomatically(t *testing.T) {
	var form url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_1","object":"payment_intent","status":"requires_action","amount":1999,"currency":"eur",
			"client_secret":"pi_1_secret_x",
			"next_action":{"type":"redirect_to_url","redirect_to_url":{"url":"https://hooks.stripe.com/3ds/pi_1","return_url":"https://shop/return"}}}`)
	})

	obj, err := c.CreatePaymentObject(context.Background(), &gateway.CreateParams{
		Kind:            gateway.ObjectKindPaymentIntent,
		Amount:          1999,
		Currency:        "eur",
		PaymentMethodID: "pm_card",
		ReturnURL:       "https://shop/return",
		Confirm:         true,
	})
	require.NoError(t, err)

	// A 3-D Secure intent must not stop in requires_confirmation after the redirect.
	require.Equal(t, "automatic", form.Get("confirmation_method"))
	require.Equal(t, "true", form.Get("confirm"))
	require.Equal(t, "pm_card", form.Get("payment_method"))
	require.Equal(t, "https://shop/return", form.Get("return_url"))

	require.Equal(t, "pi_1", obj.ID)
	require.Equal(t, gateway.ObjectKindPaymentIntent, obj.Kind)
	require.NotNil(t, obj.NextAction)
	require.Equal(t, "https://hooks.stripe.com/3ds/pi_1", obj.NextAction.RedirectURL)
}

func TestRetrievePaymentObject_NotFoundIsAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such source"}}`)
	})

	obj, err := c.RetrievePaymentObject(context.Background(), "src_missing")
	require.NoError(t, err)
	require.Nil(t, obj)

	obj, err = c.RetrievePaymentObject(context.Background(), "unknown_prefix")
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestChargePaymentObject_DeclineWrapsRequestFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "charge-src_123", r.Header.Get("Idempotency-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	})

	_, err := c.ChargePaymentObject(context.Background(), &gateway.ChargeParams{SourceID: "src_123", Amount: 1999, Currency: "eur"})
	require.ErrorIs(t, err, gateway.ErrRequestFailed)
	require.Contains(t, err.Error(), "Your card was declined.")
}

func TestVerifyWebhookSignature_ChargeEvent(t *testing.T) {
	c := newTestClient(t, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{
		"id":"ch_1","object":"charge","status":"succeeded","amount":1999,"currency":"eur",
		"source":{"id":"src_123","object":"source"}}}}`)

	evt, err := c.VerifyWebhookSignature(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_1", evt.ID)
	require.Equal(t, gateway.EventChargeSucceeded, evt.Type)
	require.NotNil(t, evt.Charge)
	require.Equal(t, "src_123", evt.ReferenceID())
	require.True(t, evt.Charge.Succeeded())
	require.Equal(t, payload, evt.Raw)
}

func TestVerifyWebhookSignature_PaymentIntentEvent(t *testing.T) {
	c := newTestClient(t, nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{
		"id":"pi_9","object":"payment_intent","status":"requires_payment_method","amount":500,"currency":"usd",
		"last_payment_error":{"code":"card_declined","message":"declined"}}}}`)

	evt, err := c.VerifyWebhookSignature(payload, signPayload(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "pi_9", evt.ReferenceID())
	require.Equal(t, gateway.ObjectKindPaymentIntent, evt.Object.Kind)
	require.Equal(t, "card_declined", evt.Object.LastErrorCode)
}

func TestVerifyWebhookSignature_Rejects(t *testing.T) {
	c := newTestClient(t, nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"charge.succeeded","data":{"object":{"id":"ch_1","object":"charge"}}}`)

	_, err := c.VerifyWebhookSignature(payload, signPayload(payload, "whsec_other", time.Now()))
	require.ErrorIs(t, err, gateway.ErrVerificationFailed)

	_, err = c.VerifyWebhookSignature(payload, "")
	require.ErrorIs(t, err, gateway.ErrVerificationFailed)

	old := signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))
	_, err = c.VerifyWebhookSignature(payload, old)
	require.ErrorIs(t, err, gateway.ErrVerificationFailed)
}

func TestParseEvent_SourceChargeable(t *testing.T) {
	c := newTestClient(t, nil)
	payload := []byte(`{"id":"evt_3","object":"event","type":"source.chargeable","data":{"object":{
		"id":"src_7","object":"source","status":"chargeable","flow":"redirect","amount":1999,"currency":"eur",
		"metadata":{"checkout_session_id":"sess-7"}}}}`)

	evt, err := c.ParseEvent(payload)
	require.NoError(t, err)
	require.Equal(t, gateway.EventSourceChargeable, evt.Type)
	require.Equal(t, gateway.StatusChargeable, evt.Object.Status)
	require.Equal(t, "sess-7", evt.Object.SessionID())
}
