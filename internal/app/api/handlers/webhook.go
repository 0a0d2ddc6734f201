package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/cashier-stripe/internal/app/service/webhook"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
)

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

// Stripe events stay well below this size.
const maxWebhookBody = 256 << 10

type WebhookReconciler interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) webhook.Ack
}

// @Summary      Stripe webhook
// @Description  Receives Stripe events. Always answers 200 with OK, ERROR, REJECTED or IGNORED as plain text.
// @Tags         Webhook
// @Accept       json
// @Produce      plain
// @Param        Stripe-Signature  header  string  true  "Stripe signature"
// @Param        payload           body    string  true  "Stripe event"
// @Success      200  {string}  string  "OK"
// @Router       /api/v1/webhook/stripe [post]
func ApiStripeWebhook(rec WebhookReconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			logctx.FromGin(c, log).Warnw("webhook_body_unreadable", "error", err)
			c.String(http.StatusOK, string(webhook.TokenRejected))
			return
		}
		ack := rec.HandleWebhook(c.Request.Context(), payload, c.GetHeader(HeaderStripeSignature))
		c.String(http.StatusOK, string(ack.Token))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, rec WebhookReconciler, log *zap.SugaredLogger) {
	r.POST("/stripe", ApiStripeWebhook(rec, log))
}
