package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// Repository is the order store. Every mutation is conditional so concurrent
// writers racing on the same reference id cannot duplicate or regress an order.
type Repository interface {
	// FindByID and FindByTemporaryID return (nil, nil) when nothing matches.
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByTemporaryID(ctx context.Context, temporaryID string) (*models.Order, error)
	// CreateIfAbsent inserts o unless an order with the same temporary id
	// exists. It reports whether o was inserted.
	CreateIfAbsent(ctx context.Context, o *models.Order) (bool, error)
	// AttachCharge replaces the placeholder transaction id of an order and
	// moves it to status when the lattice allows. It reports false when the
	// order no longer carries a placeholder.
	AttachCharge(ctx context.Context, orderID, transactionID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error)
	// UpdateStatus moves the order to status if its current status is a
	// predecessor of status. note is appended only when the row changed.
	UpdateStatus(ctx context.Context, orderID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error)
	AppendInternalComment(ctx context.Context, orderID, note string) error
	SaveLog(ctx context.Context, l *models.OrderLog) error
	Scan(ctx context.Context, req *types.PageRequest) ([]*models.Order, int64, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &GormRepository{db: db}
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return r.take(ctx, "id = ?", id)
}

func (r *GormRepository) FindByTemporaryID(ctx context.Context, temporaryID string) (*models.Order, error) {
	return r.take(ctx, "temporary_id = ?", temporaryID)
}

func (r *GormRepository) take(ctx context.Context, query string, arg string) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).Where(query, arg).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (r *GormRepository) CreateIfAbsent(ctx context.Context, o *models.Order) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "temporary_id"}}, DoNothing: true}).
		Create(o)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create order for %s: %w", o.TemporaryID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) AttachCharge(ctx context.Context, orderID, transactionID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error) {
	attached := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND transaction_id LIKE ?", orderID, models.PendingTransactionPrefix+"%").
			Updates(map[string]any{
				"transaction_id":   transactionID,
				"internal_comment": gorm.Expr("internal_comment || ?", note),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		attached = true
		_, err := updateStatus(tx, orderID, status, clearedAt, "")
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to attach charge %s to order %s: %w", transactionID, orderID, err)
	}
	return attached, nil
}

func (r *GormRepository) UpdateStatus(ctx context.Context, orderID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error) {
	changed, err := updateStatus(r.db.WithContext(ctx), orderID, status, clearedAt, note)
	if err != nil {
		return false, fmt.Errorf("failed to update order %s to %s: %w", orderID, status, err)
	}
	return changed, nil
}

func updateStatus(tx *gorm.DB, orderID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error) {
	from := status.Predecessors()
	if len(from) == 0 {
		return false, nil
	}
	updates := map[string]any{"payment_status": status}
	if clearedAt != nil {
		updates["cleared_date"] = gorm.Expr("COALESCE(cleared_date, ?)", *clearedAt)
	}
	if note != "" {
		updates["internal_comment"] = gorm.Expr("internal_comment || ?", note)
	}
	res := tx.Model(&models.Order{}).Where("id = ? AND payment_status IN ?", orderID, from).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) AppendInternalComment(ctx context.Context, orderID, note string) error {
	err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("internal_comment", gorm.Expr("internal_comment || ?", note)).Error
	if err != nil {
		return fmt.Errorf("failed to append comment to order %s: %w", orderID, err)
	}
	return nil
}

func (r *GormRepository) SaveLog(ctx context.Context, l *models.OrderLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to save order log: %w", err)
	}
	return nil
}

func (r *GormRepository) Scan(ctx context.Context, req *types.PageRequest) ([]*models.Order, int64, error) {
	base := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&models.Order{})
		if len(req.Filters) > 0 {
			tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersAnd(req.Filters)}})
		}
		return tx
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	q := base().Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "number"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != types.SortOrderAsc}}})

	var rows []*models.Order
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return rows, total, nil
}
