package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/fatflowers/cashier-stripe/internal/platform/gateway"
)

// FakeSignature is the only signature header FakeGateway accepts.
const FakeSignature = "t=1,v1=fake"

// FakeGateway is a scripted gateway.Client. Charges are idempotent per source
// like the real client's idempotency key.
type FakeGateway struct {
	mu      sync.Mutex
	objects map[string]*gateway.PaymentObject
	charges map[string]*gateway.Charge
	events  map[string]*gateway.Event
	seq     int

	// OnCreate builds the object returned by CreatePaymentObject.
	OnCreate func(p *gateway.CreateParams) (*gateway.PaymentObject, error)
	// ChargeStatus is the status of new charges, "succeeded" when empty.
	ChargeStatus string
	ChargeErr    error
	RetrieveErr  error
	RefundErr    error
	CaptureErr   error
	// BeforeCharge runs before a charge is created, outside the lock.
	BeforeCharge func(p *gateway.ChargeParams)

	ChargeCalls atomic.Int32
	Created     []*gateway.CreateParams
	ChargeReqs  []*gateway.ChargeParams
	Annotations []string
	Refunds     []*gateway.Refund
	Captures    []string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		objects: map[string]*gateway.PaymentObject{},
		charges: map[string]*gateway.Charge{},
		events:  map[string]*gateway.Event{},
	}
}

// PutObject stores obj so RetrievePaymentObject finds it.
func (f *FakeGateway) PutObject(obj *gateway.PaymentObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[obj.ID] = copyObject(obj)
}

// SetStatus changes the status of a stored object.
func (f *FakeGateway) SetStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.objects[id]; o != nil {
		o.Status = status
	}
}

// PutEvent registers ev; EventPayload(ev.ID) is the body that parses to it.
func (f *FakeGateway) PutEvent(ev *gateway.Event) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
	return EventPayload(ev.ID)
}

func EventPayload(eventID string) []byte {
	b, _ := json.Marshal(map[string]string{"id": eventID})
	return b
}

func (f *FakeGateway) CreatePaymentObject(_ context.Context, p *gateway.CreateParams) (*gateway.PaymentObject, error) {
	f.mu.Lock()
	f.Created = append(f.Created, p)
	f.mu.Unlock()
	if f.OnCreate == nil {
		return nil, fmt.Errorf("%w: no create behaviour scripted", gateway.ErrRequestFailed)
	}
	obj, err := f.OnCreate(p)
	if err != nil {
		return nil, err
	}
	if obj.Metadata == nil {
		obj.Metadata = map[string]string{}
	}
	maps.Copy(obj.Metadata, p.Metadata)
	f.PutObject(obj)
	return copyObject(obj), nil
}

func (f *FakeGateway) RetrievePaymentObject(_ context.Context, id string) (*gateway.PaymentObject, error) {
	if f.RetrieveErr != nil {
		return nil, f.RetrieveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyObject(f.objects[id]), nil
}

func (f *FakeGateway) UpdatePaymentObjectMetadata(_ context.Context, id string, metadata map[string]string) (*gateway.PaymentObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.objects[id]
	if o == nil {
		return nil, fmt.Errorf("%w: no such object %s", gateway.ErrRequestFailed, id)
	}
	if o.Metadata == nil {
		o.Metadata = map[string]string{}
	}
	maps.Copy(o.Metadata, metadata)
	return copyObject(o), nil
}

func (f *FakeGateway) ChargePaymentObject(_ context.Context, p *gateway.ChargeParams) (*gateway.Charge, error) {
	f.ChargeCalls.Add(1)
	if f.BeforeCharge != nil {
		f.BeforeCharge(p)
	}
	if f.ChargeErr != nil {
		return nil, f.ChargeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChargeReqs = append(f.ChargeReqs, p)
	if ch, ok := f.charges[p.SourceID]; ok {
		c := *ch
		return &c, nil
	}
	status := f.ChargeStatus
	if status == "" {
		status = gateway.StatusSucceeded
	}
	f.seq++
	ch := &gateway.Charge{
		ID:          fmt.Sprintf("ch_%d", f.seq),
		Status:      status,
		SourceID:    p.SourceID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Captured:    status == gateway.StatusSucceeded,
		Description: p.Description,
		Metadata:    p.Metadata,
	}
	f.charges[p.SourceID] = ch
	if o := f.objects[p.SourceID]; o != nil {
		o.Status = gateway.StatusConsumed
	}
	c := *ch
	return &c, nil
}

// Charges returns the number of distinct charges created.
func (f *FakeGateway) Charges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

func (f *FakeGateway) AnnotateDescription(_ context.Context, target gateway.AnnotateTarget, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := target.ChargeID
	if id == "" {
		id = target.PaymentIntentID
	}
	f.Annotations = append(f.Annotations, id+note)
	return nil
}

func (f *FakeGateway) Refund(_ context.Context, transactionID string, amount int64) (*gateway.Refund, error) {
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r := &gateway.Refund{ID: fmt.Sprintf("re_%d", f.seq), TransactionID: transactionID, Amount: amount, Status: gateway.StatusSucceeded}
	f.Refunds = append(f.Refunds, r)
	return r, nil
}

func (f *FakeGateway) Capture(_ context.Context, transactionID string, _ int64) error {
	if f.CaptureErr != nil {
		return f.CaptureErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Captures = append(f.Captures, transactionID)
	return nil
}

func (f *FakeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*gateway.Event, error) {
	if signatureHeader != FakeSignature {
		return nil, fmt.Errorf("%w: bad signature", gateway.ErrVerificationFailed)
	}
	return f.ParseEvent(payload)
}

func (f *FakeGateway) ParseEvent(payload []byte) (*gateway.Event, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrVerificationFailed, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[body.ID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %s", gateway.ErrVerificationFailed, body.ID)
	}
	c := *ev
	c.Raw = payload
	return &c, nil
}

func copyObject(o *gateway.PaymentObject) *gateway.PaymentObject {
	if o == nil {
		return nil
	}
	c := *o
	c.Metadata = maps.Clone(o.Metadata)
	return &c
}
