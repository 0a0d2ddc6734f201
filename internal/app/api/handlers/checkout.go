package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	mw "github.com/fatflowers/cashier-stripe/internal/app/api/middleware"
	"github.com/fatflowers/cashier-stripe/internal/app/service/checkout"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/response"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// CheckoutService is the buyer facing checkout flow.
type CheckoutService interface {
	StartPayment(ctx context.Context, sess *session.Session, req *checkout.StartRequest) (*checkout.StartResult, error)
	CompleteRedirectReturn(ctx context.Context, sess *session.Session, req *checkout.ReturnRequest) (*models.Order, error)
	SessionStatus(ctx context.Context, sess *session.Session) (*checkout.Status, error)
}

type CustomerData struct {
	Email             string `json:"email"`
	Number            string `json:"number"`
	Name              string `json:"name"`
	GatewayCustomerID string `json:"gateway_customer_id"`
}

type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	Amount      int64  `json:"amount"`
}

type StartPaymentRequest struct {
	MethodID           string        `json:"method_id" binding:"required"`
	Amount             int64         `json:"amount" binding:"required,gt=0"`
	Currency           string        `json:"currency" binding:"required,len=3"`
	Customer           *CustomerData `json:"customer"`
	PaymentMethodID    string        `json:"payment_method_id"`
	SavePaymentMethod  bool          `json:"save_payment_method"`
	SourceID           string        `json:"source_id"`
	SourceClientSecret string        `json:"source_client_secret"`
	Items              []LineItem    `json:"items"`
}

type OrderItem struct {
	ID            string                   `json:"id"`
	Number        int64                    `json:"number"`
	TemporaryID   string                   `json:"temporary_id"`
	TransactionID string                   `json:"transaction_id"`
	PaymentStatus types.OrderPaymentStatus `json:"payment_status"`
	MethodID      types.PaymentMethodID    `json:"method_id"`
	Amount        int64                    `json:"amount"`
	Currency      string                   `json:"currency"`
	CustomerEmail string                   `json:"customer_email"`
	ClearedDate   *time.Time               `json:"cleared_date"`
	CreatedAt     time.Time                `json:"created_at"`
}

func toOrderItem(o *models.Order) *OrderItem {
	if o == nil {
		return nil
	}
	return &OrderItem{
		ID:            o.ID,
		Number:        o.Number,
		TemporaryID:   o.TemporaryID,
		TransactionID: o.TransactionID,
		PaymentStatus: o.PaymentStatus,
		MethodID:      o.MethodID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		CustomerEmail: o.CustomerEmail,
		ClearedDate:   o.ClearedDate,
		CreatedAt:     o.CreatedAt,
	}
}

type StartPaymentResponse struct {
	Outcome     string     `json:"outcome"`
	RedirectURL string     `json:"redirect_url,omitempty"`
	Order       *OrderItem `json:"order,omitempty"`
}

type CheckoutStatusResponse struct {
	AttemptStatus types.AttemptStatus `json:"attempt_status"`
	ReferenceID   string              `json:"reference_id,omitempty"`
	PaymentError  string              `json:"payment_error,omitempty"`
}

// checkoutErrorCode maps a checkout error onto the response code; the data
// only ever carries the buyer message.
func checkoutErrorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, checkout.ErrInvalidRequest), errors.Is(err, checkout.ErrUnknownPaymentMethod):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, checkout.ErrSessionMismatch):
		return response.APIResponseCodeSessionMismatch
	}
	return response.APIResponseCodePaymentFailed
}

// @Summary      Start payment
// @Description  Creates the payment object for the selected method. The answer carries either a redirect url or the finalized order.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        request body StartPaymentRequest true "Payment to start"
// @Success      200  {object}  handlers.RespStartPayment
// @Router       /api/v1/checkout/start [post]
func ApiStartPayment(svc CheckoutService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := mw.CheckoutSession(c)
		var req StartPaymentRequest
		if sess == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no checkout session"))
			return
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, errMessage(err)))
			return
		}
		in := &checkout.StartRequest{
			MethodID:           types.PaymentMethodID(req.MethodID),
			Amount:             req.Amount,
			Currency:           req.Currency,
			PaymentMethodID:    req.PaymentMethodID,
			SavePaymentMethod:  req.SavePaymentMethod,
			SourceID:           req.SourceID,
			SourceClientSecret: req.SourceClientSecret,
			Items: lo.Map(req.Items, func(it LineItem, _ int) gateway.LineItem {
				return gateway.LineItem{Description: it.Description, Quantity: it.Quantity, Amount: it.Amount}
			}),
		}
		if req.Customer != nil {
			in.Customer = &session.Customer{
				Email:             req.Customer.Email,
				Number:            req.Customer.Number,
				Name:              req.Customer.Name,
				GatewayCustomerID: req.Customer.GatewayCustomerID,
			}
		}

		res, err := svc.StartPayment(c.Request.Context(), sess, in)
		if err != nil {
			logctx.FromGin(c, log).Infow("checkout_start_failed", "error", err)
			c.JSON(http.StatusOK, response.ErrorT[any](checkoutErrorCode(err), checkout.BuyerMessage(err)))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&StartPaymentResponse{
			Outcome:     string(res.Outcome),
			RedirectURL: res.RedirectURL,
			Order:       toOrderItem(res.Order),
		}))
	}
}

// @Summary      Complete redirect return
// @Description  Target of the gateway's redirect. Finishes the payment and redirects the buyer to the finish page, or back to checkout with a message.
// @Tags         Checkout
// @Param        source                        query  string  false  "source id"
// @Param        client_secret                 query  string  false  "source client secret"
// @Param        payment_intent                query  string  false  "payment intent id"
// @Param        payment_intent_client_secret  query  string  false  "payment intent client secret"
// @Param        redirect_status               query  string  false  "redirect status"
// @Success      302
// @Router       /api/v1/checkout/complete [get]
func ApiCompleteRedirectReturn(svc CheckoutService, cfg *config.Config, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := &checkout.ReturnRequest{
			ClientSecret:   firstNonEmpty(c.Query("payment_intent_client_secret"), c.Query("client_secret")),
			ReferenceID:    firstNonEmpty(c.Query("payment_intent"), c.Query("source")),
			RedirectStatus: c.Query("redirect_status"),
		}
		sess := mw.CheckoutSession(c)
		var (
			o   *models.Order
			err error
		)
		if sess == nil {
			err = checkout.ErrSessionMismatch
		} else {
			o, err = svc.CompleteRedirectReturn(c.Request.Context(), sess, req)
		}
		if err != nil {
			logctx.FromGin(c, log).Infow("checkout_return_failed", "reference_id", req.ReferenceID, "error", err)
			c.Redirect(http.StatusFound, withQuery(cfg.Checkout.CancelURL, "error", checkout.BuyerMessage(err)))
			return
		}
		c.Redirect(http.StatusFound, withQuery(cfg.Checkout.FinishURL, "order", o.TemporaryID))
	}
}

// @Summary      Checkout status
// @Description  Returns the attempt of the current checkout session and the pending buyer message, once.
// @Tags         Checkout
// @Produce      json
// @Success      200  {object}  handlers.RespCheckoutStatus
// @Router       /api/v1/checkout/status [get]
func ApiCheckoutStatus(svc CheckoutService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := mw.CheckoutSession(c)
		if sess == nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "no checkout session"))
			return
		}
		st, err := svc.SessionStatus(c.Request.Context(), sess)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, nil))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&CheckoutStatusResponse{
			AttemptStatus: st.AttemptStatus,
			ReferenceID:   st.ReferenceID,
			PaymentError:  st.PaymentError,
		}))
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, svc CheckoutService, cfg *config.Config, log *zap.SugaredLogger) {
	r.POST("/start", ApiStartPayment(svc, log))
	r.GET("/complete", ApiCompleteRedirectReturn(svc, cfg, log))
	r.GET("/status", ApiCheckoutStatus(svc))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// errMessage keeps binding errors short.
func errMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}
