// Package testutil provides in-memory stores and a scripted gateway for
// service and handler tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/models"
	"github.com/fatflowers/cashier-stripe/pkg/types"
)

// MemoryOrderRepository mirrors the conditional writes of the gorm order
// repository, including the unique temporary id.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	byRef  map[string]string
	logs   []*models.OrderLog
	seq    int64

	// failures makes the next N mutating calls return err.
	failures int
	failErr  error
	// BeforeCreate runs before every insert, outside the lock.
	BeforeCreate func(o *models.Order)
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: map[string]*models.Order{}, byRef: map[string]string{}, seq: 1000}
}

// FailNext makes the next n writes fail with err.
func (m *MemoryOrderRepository) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures, m.failErr = n, err
}

func (m *MemoryOrderRepository) injected() error {
	if m.failures > 0 {
		m.failures--
		return m.failErr
	}
	return nil
}

func (m *MemoryOrderRepository) FindByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.orders[id]), nil
}

func (m *MemoryOrderRepository) FindByTemporaryID(_ context.Context, temporaryID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.orders[m.byRef[temporaryID]]), nil
}

func (m *MemoryOrderRepository) CreateIfAbsent(_ context.Context, o *models.Order) (bool, error) {
	if m.BeforeCreate != nil {
		m.BeforeCreate(o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return false, err
	}
	if _, ok := m.byRef[o.TemporaryID]; ok {
		return false, nil
	}
	if _, ok := m.orders[o.ID]; ok {
		return false, gorm.ErrDuplicatedKey
	}
	m.seq++
	now := time.Now()
	o.Number = m.seq
	o.CreatedAt, o.UpdatedAt = now, now
	m.orders[o.ID] = clone(o)
	m.byRef[o.TemporaryID] = o.ID
	return true, nil
}

func (m *MemoryOrderRepository) AttachCharge(_ context.Context, orderID, transactionID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return false, err
	}
	o := m.orders[orderID]
	if o == nil || !models.IsPendingTransactionID(o.TransactionID) {
		return false, nil
	}
	o.TransactionID = transactionID
	o.InternalComment += note
	m.updateStatusLocked(o, status, clearedAt, "")
	return true, nil
}

func (m *MemoryOrderRepository) UpdateStatus(_ context.Context, orderID string, status types.OrderPaymentStatus, clearedAt *time.Time, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return false, err
	}
	o := m.orders[orderID]
	if o == nil {
		return false, nil
	}
	return m.updateStatusLocked(o, status, clearedAt, note), nil
}

func (m *MemoryOrderRepository) updateStatusLocked(o *models.Order, status types.OrderPaymentStatus, clearedAt *time.Time, note string) bool {
	if !o.PaymentStatus.CanTransition(status) {
		return false
	}
	o.PaymentStatus = status
	if clearedAt != nil && o.ClearedDate == nil {
		t := *clearedAt
		o.ClearedDate = &t
	}
	o.InternalComment += note
	o.UpdatedAt = time.Now()
	return true
}

func (m *MemoryOrderRepository) AppendInternalComment(_ context.Context, orderID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(); err != nil {
		return err
	}
	if o := m.orders[orderID]; o != nil {
		o.InternalComment += note
	}
	return nil
}

func (m *MemoryOrderRepository) SaveLog(_ context.Context, l *models.OrderLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

// Scan supports eq filters and ignores sorting other than by number.
func (m *MemoryOrderRepository) Scan(_ context.Context, req *types.PageRequest) ([]*models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*models.Order
	for _, o := range m.orders {
		if matchesEq(o, req.Filters) {
			rows = append(rows, clone(o))
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if req.SortOrder == types.SortOrderAsc {
			return rows[i].Number < rows[j].Number
		}
		return rows[i].Number > rows[j].Number
	})
	total := int64(len(rows))
	if req.From >= len(rows) {
		return nil, total, nil
	}
	rows = rows[req.From:]
	if req.Size > 0 && len(rows) > req.Size {
		rows = rows[:req.Size]
	}
	return rows, total, nil
}

func matchesEq(o *models.Order, filters []*types.CommonFilter) bool {
	for _, f := range filters {
		if f.Operator != types.CommonFilterOperatorEq || len(f.Values) == 0 {
			continue
		}
		want, _ := f.Values[0].(string)
		var got string
		switch f.Field {
		case "payment_status":
			got = string(o.PaymentStatus)
		case "temporary_id":
			got = o.TemporaryID
		case "transaction_id":
			got = o.TransactionID
		case "customer_email":
			got = o.CustomerEmail
		case "method_id":
			got = string(o.MethodID)
		default:
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

// Orders returns a snapshot of all stored orders.
func (m *MemoryOrderRepository) Orders() []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, clone(o))
	}
	return out
}

// Logs returns the order log entries written so far.
func (m *MemoryOrderRepository) Logs() []*models.OrderLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.OrderLog(nil), m.logs...)
}

// Put stores o as is, bypassing the uniqueness checks.
func (m *MemoryOrderRepository) Put(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.Number == 0 {
		m.seq++
		o.Number = m.seq
	}
	m.orders[o.ID] = clone(o)
	m.byRef[o.TemporaryID] = o.ID
}

func clone(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.ClearedDate != nil {
		t := *o.ClearedDate
		c.ClearedDate = &t
	}
	return &c
}

// MemorySessionStore is an in-memory session.Store.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]session.Session{}}
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Expired(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemorySessionStore) FinishAttempt(_ context.Context, id, referenceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.IsProcessing(referenceID) {
		return false, nil
	}
	s.Clear()
	m.sessions[id] = s
	return true, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// MemoryClaimer grants one lease per reference id at a time.
type MemoryClaimer struct {
	mu   sync.Mutex
	held map[string]bool
	// Denied lists reference ids that are always reported as held elsewhere.
	Denied map[string]bool
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{held: map[string]bool{}, Denied: map[string]bool{}}
}

func (m *MemoryClaimer) Acquire(_ context.Context, referenceID string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[referenceID] || m.Denied[referenceID] {
		return func() {}, false, nil
	}
	m.held[referenceID] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, referenceID)
			m.mu.Unlock()
		})
	}, true, nil
}

// Held reports whether referenceID is currently leased.
func (m *MemoryClaimer) Held(referenceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[referenceID]
}
