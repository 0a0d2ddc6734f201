// Package claim serializes charge and finalize work on one external reference id
// across the redirect return and the webhook path.
package claim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logctx"
	"github.com/fatflowers/cashier-stripe/pkg/tool"
)

// Claimer grants exclusive, expiring leases on reference ids.
type Claimer interface {
	// Acquire returns acquired=false when another holder has a live lease.
	// release must be called once the work is done.
	Acquire(ctx context.Context, referenceID string) (release func(), acquired bool, err error)
}

// GormClaimer stores leases in payment_claim. An expired lease is taken over
// by the next Acquire.
type GormClaimer struct {
	db    *gorm.DB
	lease time.Duration
	log   *zap.SugaredLogger
}

func New(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) Claimer {
	lease := cfg.Checkout.ClaimLease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &GormClaimer{db: db, lease: lease, log: log}
}

func (g *GormClaimer) Acquire(ctx context.Context, referenceID string) (func(), bool, error) {
	now := time.Now()
	c := &models.PaymentClaim{
		ReferenceID: referenceID,
		Owner:       tool.GenerateToken(8),
		ExpiresAt:   now.Add(g.lease),
		CreatedAt:   now,
	}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "reference_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      c.Owner,
			"expires_at": c.ExpiresAt,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: models.PaymentClaim{}.TableName(), Name: "expires_at"}, Value: now},
		}},
	}).Create(c)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to acquire claim on %s: %w", referenceID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	release := func() {
		// The caller's context may already be canceled; the lease must go regardless.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := g.db.WithContext(rctx).
			Where("reference_id = ? AND owner = ?", referenceID, c.Owner).
			Delete(&models.PaymentClaim{}).Error
		if err != nil {
			logctx.FromCtx(ctx, g.log).Warnw("claim_release_failed", "reference_id", referenceID, "error", err)
		}
	}
	return release, true, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
