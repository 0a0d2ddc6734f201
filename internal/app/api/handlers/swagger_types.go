package handlers

import (
	"github.com/fatflowers/cashier-stripe/internal/app/service/statistics"
	"github.com/fatflowers/cashier-stripe/pkg/response"
)

type RespStartPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    StartPaymentResponse     `json:"data"`
}

type RespCheckoutStatus struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CheckoutStatusResponse   `json:"data"`
}

type RespListOrders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListOrdersResponse       `json:"data"`
}

type RespOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    OrderItem                `json:"data"`
}

type RespOrderDetail struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    AdminOrderDetail         `json:"data"`
}

type RespRefundOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RefundOrderResponse      `json:"data"`
}

type RespOrderStatistic struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Response      `json:"data"`
}
