package order

import (
	"context"
	"fmt"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// scanFields are the columns admin list requests may filter and sort on.
var scanFields = map[string]bool{
	"number":          true,
	"transaction_id":  true,
	"temporary_id":    true,
	"payment_status":  true,
	"method_id":       true,
	"amount":          true,
	"currency":        true,
	"customer_email":  true,
	"customer_number": true,
	"session_id":      true,
	"created_at":      true,
	"cleared_date":    true,
}

type ScanOrdersResponse struct {
	Items []*models.Order `json:"items"`
	Total int64           `json:"total"`
}

// ScanOrders lists orders for the admin API.
func (s *Service) ScanOrders(ctx context.Context, req *types.PageRequest) (*ScanOrdersResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := req.Normalize(scanFields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScanRequest, err)
	}
	rows, total, err := s.repo.Scan(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ScanOrdersResponse{Items: rows, Total: total}, nil
}
