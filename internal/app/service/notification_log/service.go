package notification_log

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
	// async is false in tests that assert on rows right after Save.
	async bool
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log, async: true} }

// NewSync returns a Service whose Save blocks until the row is written.
func NewSync(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Save persists a webhook notification log, in the background unless the
// service is synchronous. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.PaymentNotificationLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	// The row outlives the request that produced it.
	ctx = context.WithoutCancel(ctx)
	write := func() {
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("failed to save notification log", "event_id", entry.EventID, "status", entry.Status, "error", err)
		}
	}
	if !s.async {
		write()
		return
	}
	go write()
}

// ListUnhandled returns the latest failed row of every event received since
// that was never handled or replayed afterwards, oldest first.
func (s *Service) ListUnhandled(ctx context.Context, since time.Time, limit int) ([]*models.PaymentNotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	settled := s.db.Model(&models.PaymentNotificationLog{}).
		Select("event_id").
		Where("status IN ?", []models.PaymentNotificationLogStatus{
			models.PaymentNotificationLogStatusHandled, models.PaymentNotificationLogStatusReplayed,
		})
	var rows []*models.PaymentNotificationLog
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at >= ? AND event_id NOT IN (?)", models.PaymentNotificationLogStatusHandleFailed, since, settled).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unhandled notifications: %w", err)
	}
	return latestPerEvent(rows), nil
}

func latestPerEvent(rows []*models.PaymentNotificationLog) []*models.PaymentNotificationLog {
	idx := make(map[string]int, len(rows))
	out := make([]*models.PaymentNotificationLog, 0, len(rows))
	for _, r := range rows {
		if i, ok := idx[r.EventID]; ok {
			out[i] = r
			continue
		}
		idx[r.EventID] = len(out)
		out = append(out, r)
	}
	return out
}

var Module = fx.Options(fx.Provide(New))
