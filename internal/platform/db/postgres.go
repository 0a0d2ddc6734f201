package db

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fatflowers/cashier-stripe/internal/models"
	cfgpkg "github.com/fatflowers/cashier-stripe/pkg/config"
	gormzap "github.com/fatflowers/cashier-stripe/pkg/gormlog"
)

const defaultSlowThreshold = 200 * time.Millisecond

func NewDB(l *zap.SugaredLogger, cfg *cfgpkg.Config) (*gorm.DB, error) {
	if cfg.Database.DSN == "" {
		l.Error("database DSN is empty")
		return nil, gorm.ErrInvalidDB
	}
	slow := cfg.Database.SlowThreshold
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormzap.New(l, slow, cfg.Env != cfgpkg.EnvProd),
	})
	if err != nil {
		l.Errorf("failed to connect database: %v", err)
		return nil, err
	}
	l.Infow("connected to postgres via DSN")
	return db, nil
}

// Models lists every table owned by the service.
func Models() []any {
	return []any{
		&models.Order{},
		&models.OrderLog{},
		&models.PaymentSession{},
		&models.PaymentClaim{},
		&models.PaymentNotificationLog{},
	}
}

// AutoMigrate runs GORM migrations.
func AutoMigrate(l *zap.SugaredLogger, db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		l.Errorf("automigrate failed: %v", err)
		return err
	}
	l.Infow("automigrate completed")
	return nil
}

// registerDBClose ensures the underlying *sql.DB is closed on shutdown
func registerDBClose(lc fx.Lifecycle, l *zap.SugaredLogger, gdb *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				l.Warnw("gorm: get sql.DB failed", "err", err)
				return nil
			}
			l.Infow("closing postgres connection pool")
			return sqlDB.Close()
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(AutoMigrate),
	fx.Invoke(registerDBClose),
)

// ClientModule connects without migrating, for one-shot tools.
var ClientModule = fx.Options(
	fx.Provide(NewDB),
	fx.Invoke(registerDBClose),
)
