package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/statistics"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
	"github.com/fatflowers/cashier-stripe/pkg/response"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// OrderAdmin is the back office view of orders.
type OrderAdmin interface {
	ScanOrders(ctx context.Context, req *types.PageRequest) (*order.ScanOrdersResponse, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	Refund(ctx context.Context, req *order.RefundRequest) (*order.RefundResult, error)
	Capture(ctx context.Context, orderID string) (*models.Order, error)
}

// OrderStatistics computes back office reports over orders.
type OrderStatistics interface {
	GetOrderStatistic(ctx context.Context, req *statistics.Request) (*statistics.Response, error)
}

type ListOrdersResponse struct {
	Items []*OrderItem `json:"items"`
	Total int64        `json:"total"`
}

// AdminOrderDetail adds the audit trail to OrderItem.
type AdminOrderDetail struct {
	OrderItem
	InternalComment   string `json:"internal_comment"`
	CustomerNumber    string `json:"customer_number"`
	GatewayCustomerID string `json:"gateway_customer_id"`
	SessionID         string `json:"session_id"`
}

type RefundOrderRequest struct {
	// Amount in cents, 0 refunds the full order.
	Amount    int64                  `json:"amount" binding:"gte=0"`
	Comment   string                 `json:"comment"`
	Positions []order.RefundPosition `json:"positions"`
}

type RefundOrderResponse struct {
	Order  *OrderItem `json:"order"`
	Refund struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	} `json:"refund"`
}

func adminErrorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, order.ErrInvalidScanRequest), errors.Is(err, order.ErrInvalidAmount), errors.Is(err, statistics.ErrInvalidRequest):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, order.ErrInvalidTransition):
		return response.APIResponseCodeConflict
	case errors.Is(err, gateway.ErrRequestFailed):
		return response.APIResponseCodePaymentFailed
	}
	return response.APIResponseCodeError
}

// @Summary      List orders (Admin)
// @Description  Retrieves a paginated and filterable list of orders.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body types.PageRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListOrders
// @Router       /api/v1/admin/orders/list [post]
func ApiListOrders(svc OrderAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.PageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, errMessage(err)))
			return
		}
		res, err := svc.ScanOrders(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&ListOrdersResponse{
			Items: lo.Map(res.Items, func(o *models.Order, _ int) *OrderItem { return toOrderItem(o) }),
			Total: res.Total,
		}))
	}
}

// @Summary      Get order (Admin)
// @Tags         Admin
// @Produce      json
// @Security     AdminToken
// @Param        id   path  string  true  "order id"
// @Success      200  {object}  handlers.RespOrderDetail
// @Router       /api/v1/admin/orders/{id} [get]
func ApiGetOrder(svc OrderAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(&AdminOrderDetail{
			OrderItem:         *toOrderItem(o),
			InternalComment:   o.InternalComment,
			CustomerNumber:    o.CustomerNumber,
			GatewayCustomerID: o.GatewayCustomerID,
			SessionID:         o.SessionID,
		}))
	}
}

// @Summary      Refund order (Admin)
// @Description  Refunds the order's payment in full or in part and notes the refunded positions on the order.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        id       path  string              true  "order id"
// @Param        request  body  RefundOrderRequest  true  "Refund"
// @Success      200  {object}  handlers.RespRefundOrder
// @Router       /api/v1/admin/orders/{id}/refund [post]
func ApiRefundOrder(svc OrderAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefundOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, errMessage(err)))
			return
		}
		res, err := svc.Refund(c.Request.Context(), &order.RefundRequest{
			OrderID:   c.Param("id"),
			Amount:    req.Amount,
			Comment:   req.Comment,
			Positions: req.Positions,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		out := &RefundOrderResponse{Order: toOrderItem(res.Order)}
		if res.Refund != nil {
			out.Refund.ID, out.Refund.Amount, out.Refund.Status = res.Refund.ID, res.Refund.Amount, res.Refund.Status
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

// @Summary      Capture order (Admin)
// @Description  Captures the reserved payment of the order.
// @Tags         Admin
// @Produce      json
// @Security     AdminToken
// @Param        id   path  string  true  "order id"
// @Success      200  {object}  handlers.RespOrder
// @Router       /api/v1/admin/orders/{id}/capture [post]
func ApiCaptureOrder(svc OrderAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Capture(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(toOrderItem(o)))
	}
}

// @Summary      Order statistics (Admin)
// @Description  Daily order counts and revenue, and breakdowns by payment status and method.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body statistics.Request true "Statistics to compute"
// @Success      200  {object}  handlers.RespOrderStatistic
// @Router       /api/v1/admin/statistics [post]
func ApiOrderStatistic(stats OrderStatistics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, errMessage(err)))
			return
		}
		res, err := stats.GetOrderStatistic(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](adminErrorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, svc OrderAdmin, stats OrderStatistics) {
	r.POST("/orders/list", ApiListOrders(svc))
	r.GET("/orders/:id", ApiGetOrder(svc))
	r.POST("/orders/:id/refund", ApiRefundOrder(svc))
	r.POST("/orders/:id/capture", ApiCaptureOrder(svc))
	r.POST("/statistics", ApiOrderStatistic(stats))
}
