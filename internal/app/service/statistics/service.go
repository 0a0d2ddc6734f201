package statistics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

type StatisticType string

const (
	// Daily counts and revenue
	StatisticTypeDailyOrderCount StatisticType = "daily_order_count"
	StatisticTypeDailyRevenue    StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue    StatisticType = "total_revenue"

	// Breakdowns over the filtered orders
	StatisticTypePaymentStatus StatisticType = "payment_status"
	StatisticTypePaymentMethod StatisticType = "payment_method"
	// StatisticTypePendingCharge counts orders whose charge has not been attached yet.
	StatisticTypePendingCharge StatisticType = "pending_charge"
)

var ErrInvalidRequest = errors.New("invalid statistic request")

// filterFields are the order columns statistic requests may filter on.
var filterFields = map[string]bool{
	"created_at":     true,
	"method_id":      true,
	"currency":       true,
	"payment_status": true,
}

// Revenue only counts money the gateway has confirmed or reserved.
var revenueStatuses = []types.OrderPaymentStatus{
	types.OrderPaymentStatusCompletelyPaid,
	types.OrderPaymentStatusReserved,
}

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*DataItem           `json:"data_items" binding:"required,min=1"`
}

func (r *Request) validate() error {
	if r == nil || len(r.DataItems) == 0 {
		return fmt.Errorf("%w: no data items", ErrInvalidRequest)
	}
	for _, f := range r.Filters {
		if err := f.Validate(filterFields); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	for _, d := range r.DataItems {
		if d == nil || !lo.Contains(statisticTypes, d.ID) {
			return fmt.Errorf("%w: unknown data item", ErrInvalidRequest)
		}
	}
	return nil
}

func (r *Request) where() clause.Where {
	return clause.Where{Exprs: []clause.Expression{types.FiltersAnd(r.Filters)}}
}

// ResponseDataItem is one row of a statistic. Value is a count or an amount
// in minor units; Value2 carries the amount where Value is a count.
type ResponseDataItem struct {
	Date   string `json:"date,omitempty"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseDataItem `json:"data_items"`
}

// Service computes order statistics for the back office.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) orders(ctx context.Context, req *Request) *gorm.DB {
	return s.db.WithContext(ctx).Table(models.Order{}.TableName()).Where(req.where())
}

func (s *Service) getDailyOrderCount(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.orders(ctx, req).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.orders(ctx, req).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, currency AS label, sum(amount) as value").
		Where("payment_status IN ?", revenueStatuses).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getTotalRevenue accumulates daily revenue per currency.
func (s *Service) getTotalRevenue(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	daily, err := s.getDailyRevenue(ctx, req)
	if err != nil {
		return nil, err
	}
	// daily is newest first; running totals are built oldest first.
	running := map[string]int64{}
	out := make([]ResponseDataItem, len(daily))
	for i := len(daily) - 1; i >= 0; i-- {
		d := daily[i]
		running[d.Label] += d.Value
		out[i] = ResponseDataItem{Date: d.Date, Label: d.Label, Value: running[d.Label]}
	}
	return out, nil
}

func (s *Service) getBreakdown(ctx context.Context, req *Request, column string) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.orders(ctx, req).
		Select(column + " AS label, count(*) as value, COALESCE(sum(amount), 0) as value2").
		Group(column).
		Order("value DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getPendingCharge(ctx context.Context, req *Request) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	prefix := strings.ReplaceAll(models.PendingTransactionPrefix, "_", `\_`) + "%"
	q := s.orders(ctx, req).
		Select("count(*) as value, COALESCE(sum(amount), 0) as value2").
		Where("transaction_id LIKE ?", prefix)
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

var statisticTypes = []StatisticType{
	StatisticTypeDailyOrderCount,
	StatisticTypeDailyRevenue,
	StatisticTypeTotalRevenue,
	StatisticTypePaymentStatus,
	StatisticTypePaymentMethod,
	StatisticTypePendingCharge,
}

func (s *Service) getStatistic(ctx context.Context, req *Request, item *DataItem) ([]ResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeDailyOrderCount:
		return s.getDailyOrderCount(ctx, req)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, req)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, req)
	case StatisticTypePaymentStatus:
		return s.getBreakdown(ctx, req, "payment_status")
	case StatisticTypePaymentMethod:
		return s.getBreakdown(ctx, req, "method_id")
	case StatisticTypePendingCharge:
		return s.getPendingCharge(ctx, req)
	default:
		return nil, fmt.Errorf("%w: invalid data item id: %s", ErrInvalidRequest, item.ID)
	}
}

// GetOrderStatistic computes every requested data item concurrently.
func (s *Service) GetOrderStatistic(ctx context.Context, req *Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	results := make([][]ResponseDataItem, len(req.DataItems))
	errs := make([]error, len(req.DataItems))
	var wg sync.WaitGroup
	for i, item := range req.DataItems {
		i, item := i, item
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.getStatistic(ctx, req, item)
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to compute statistics: %w", err)
	}

	out := &Response{DataItems: make(map[StatisticType][]ResponseDataItem, len(req.DataItems))}
	for i, item := range req.DataItems {
		out.DataItems[item.ID] = lo.Ternary(results[i] == nil, []ResponseDataItem{}, results[i])
	}
	return out, nil
}

var Module = fx.Options(fx.Provide(New))
