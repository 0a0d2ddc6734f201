// Package session holds the buyer's checkout session and the payment attempt
// in flight. A *Session is loaded per request and passed explicitly to the
// checkout entry points.
package session

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// ErrSessionMismatch is returned when a redirect return does not belong to
// the attempt recorded in the session.
var ErrSessionMismatch = errors.New("checkout session mismatch")

type Customer struct {
	Email             string
	Number            string
	Name              string
	GatewayCustomerID string
}

// Attempt is the payment attempt currently in flight.
type Attempt struct {
	ReferenceID  string
	ClientSecret string
	Status       types.AttemptStatus
	MethodID     types.PaymentMethodID
	Amount       int64
	Currency     string
}

// Finished identifies the attempt last settled in the session. A reload of its
// redirect return url is answered with its order.
type Finished struct {
	ReferenceID  string
	ClientSecret string
}

type Session struct {
	ID       string
	Attempt  Attempt
	Finished Finished
	Customer Customer
	// PaymentError is shown to the buyer on the next checkout page render.
	PaymentError string
	ExpiresAt    time.Time
}

func New(id string, ttl time.Duration) *Session {
	return &Session{ID: id, ExpiresAt: time.Now().Add(ttl)}
}

// Prepare records what is about to be paid, before the gateway is called.
func (s *Session) Prepare(methodID types.PaymentMethodID, amount int64, currency string) {
	s.Attempt = Attempt{MethodID: methodID, Amount: amount, Currency: currency, Status: types.AttemptStatusPending}
	s.Finished = Finished{}
	s.PaymentError = ""
}

// Begin marks referenceID as the payment object being processed.
func (s *Session) Begin(referenceID, clientSecret string, status types.AttemptStatus) {
	s.Attempt.ReferenceID = referenceID
	s.Attempt.ClientSecret = clientSecret
	s.Attempt.Status = status
}

// ValidateReturn checks secret against the one stored by Begin.
func (s *Session) ValidateReturn(secret string) error {
	if !secretMatches(s.Attempt.ClientSecret, secret) {
		return ErrSessionMismatch
	}
	return nil
}

// FinishedReferenceID returns the reference id of the settled attempt whose
// client secret is secret. referenceID, when set, must name that attempt.
func (s *Session) FinishedReferenceID(referenceID, secret string) (string, error) {
	f := s.Finished
	if f.ReferenceID == "" || !secretMatches(f.ClientSecret, secret) ||
		(referenceID != "" && referenceID != f.ReferenceID) {
		return "", ErrSessionMismatch
	}
	return f.ReferenceID, nil
}

func secretMatches(stored, secret string) bool {
	return stored != "" && secret != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1
}

// ProcessingStatuses are the attempt statuses of an attempt in flight.
var ProcessingStatuses = []types.AttemptStatus{
	types.AttemptStatusPending,
	types.AttemptStatusRequiresRedirect,
	types.AttemptStatusRequiresAsync,
}

// ProcessingReferenceID returns the reference id of the attempt in flight, or "".
func (s *Session) ProcessingReferenceID() string {
	if s == nil || !lo.Contains(ProcessingStatuses, s.Attempt.Status) {
		return ""
	}
	return s.Attempt.ReferenceID
}

// IsProcessing reports whether referenceID is the attempt in flight.
func (s *Session) IsProcessing(referenceID string) bool {
	return referenceID != "" && s.ProcessingReferenceID() == referenceID
}

// Clear drops the attempt once the order was finalized and remembers it as Finished.
func (s *Session) Clear() {
	if s.Attempt.ReferenceID != "" {
		s.Finished = Finished{ReferenceID: s.Attempt.ReferenceID, ClientSecret: s.Attempt.ClientSecret}
	}
	s.Attempt = Attempt{Status: types.AttemptStatusSettled}
}

// Fail drops the attempt and keeps message for the buyer.
func (s *Session) Fail(status types.AttemptStatus, message string) {
	s.Attempt = Attempt{Status: status}
	s.PaymentError = message
}

// ConsumePaymentError returns and resets the pending buyer message.
func (s *Session) ConsumePaymentError() string {
	msg := s.PaymentError
	s.PaymentError = ""
	return msg
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
