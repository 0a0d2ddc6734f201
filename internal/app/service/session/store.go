package session

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

// Store persists sessions.
type Store interface {
	// Load returns (nil, nil) for unknown or expired sessions.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	// FinishAttempt clears the attempt of session id the way Session.Clear
	// does, only while referenceID is still the attempt in flight. It reports
	// whether the session changed.
	FinishAttempt(ctx context.Context, id, referenceID string) (bool, error)
	Delete(ctx context.Context, id string) error
}

var sessionMutableColumns = []string{
	"processing_reference_id", "client_secret", "attempt_status", "finished_reference_id", "finished_client_secret",
	"method_id", "amount", "currency",
	"customer_email", "customer_number", "customer_name", "gateway_customer_id", "payment_error",
	"expires_at", "updated_at",
}

type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (g *GormStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	var m models.PaymentSession
	err := g.db.WithContext(ctx).Where("id = ? AND expires_at > ?", id, time.Now()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return fromModel(&m), nil
}

func (g *GormStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("cannot save session without id")
	}
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(sessionMutableColumns),
	}
	if err := g.db.WithContext(ctx).Clauses(upsert).Create(toModel(s)).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (g *GormStore) FinishAttempt(ctx context.Context, id, referenceID string) (bool, error) {
	if id == "" || referenceID == "" {
		return false, nil
	}
	// Right hand sides see the row before the update.
	res := g.db.WithContext(ctx).Model(&models.PaymentSession{}).
		Where("id = ? AND processing_reference_id = ? AND attempt_status IN ?", id, referenceID, ProcessingStatuses).
		Updates(map[string]any{
			"finished_reference_id":   gorm.Expr("processing_reference_id"),
			"finished_client_secret":  gorm.Expr("client_secret"),
			"processing_reference_id": "",
			"client_secret":           "",
			"attempt_status":          types.AttemptStatusSettled,
			"method_id":               "",
			"amount":                  0,
			"currency":                "",
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to finish attempt %s of session %s: %w", referenceID, id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (g *GormStore) Delete(ctx context.Context, id string) error {
	if err := g.db.WithContext(ctx).Delete(&models.PaymentSession{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func toModel(s *Session) *models.PaymentSession {
	return &models.PaymentSession{
		ID:                    s.ID,
		ProcessingReferenceID: s.Attempt.ReferenceID,
		ClientSecret:          s.Attempt.ClientSecret,
		AttemptStatus:         s.Attempt.Status,
		FinishedReferenceID:   s.Finished.ReferenceID,
		FinishedClientSecret:  s.Finished.ClientSecret,
		MethodID:              string(s.Attempt.MethodID),
		Amount:                s.Attempt.Amount,
		Currency:              s.Attempt.Currency,
		CustomerEmail:         s.Customer.Email,
		CustomerNumber:        s.Customer.Number,
		CustomerName:          s.Customer.Name,
		GatewayCustomerID:     s.Customer.GatewayCustomerID,
		PaymentError:          s.PaymentError,
		ExpiresAt:             s.ExpiresAt,
	}
}

func fromModel(m *models.PaymentSession) *Session {
	return &Session{
		ID: m.ID,
		Attempt: Attempt{
			ReferenceID:  m.ProcessingReferenceID,
			ClientSecret: m.ClientSecret,
			Status:       m.AttemptStatus,
			MethodID:     types.PaymentMethodID(m.MethodID),
			Amount:       m.Amount,
			Currency:     m.Currency,
		},
		Finished: Finished{ReferenceID: m.FinishedReferenceID, ClientSecret: m.FinishedClientSecret},
		Customer: Customer{
			Email:             m.CustomerEmail,
			Number:            m.CustomerNumber,
			Name:              m.CustomerName,
			GatewayCustomerID: m.GatewayCustomerID,
		},
		PaymentError: m.PaymentError,
		ExpiresAt:    m.ExpiresAt,
	}
}
