package payment

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/telemetry"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type fakeHostBill struct {
	mu         sync.Mutex
	invoices   map[string]*models.Invoice
	orders     map[string]*models.Order
	clients    map[string]*models.Client
	payments   []hostbill.PaymentParams
	accepted   []string
	paymentErr error
}

func newFakeHostBill() *fakeHostBill {
	return &fakeHostBill{
		invoices: map[string]*models.Invoice{
			"501": {ID: "501", ClientID: "7", Status: models.InvoiceStatusUnpaid, TotalCents: 24200, Currency: "CZK"},
		},
		orders: map[string]*models.Order{
			"12": {ID: "12", ClientID: "7", InvoiceID: "501", Status: models.OrderStatusPending},
		},
		clients: map[string]*models.Client{
			"7": {ID: "7", FirstName: "Jan", LastName: "Novak", Email: "jan@example.com", Country: "CZ"},
		},
	}
}

func (f *fakeHostBill) GetInvoiceDetails(_ context.Context, id string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, hostbill.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeHostBill) GetClientDetails(_ context.Context, id string) (*models.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", id, hostbill.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeHostBill) AddInvoicePayment(_ context.Context, p hostbill.PaymentParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentErr != nil {
		return f.paymentErr
	}
	f.payments = append(f.payments, p)
	f.invoices[p.InvoiceID].Status = models.InvoiceStatusPaid
	return nil
}

func (f *fakeHostBill) GetOrderDetails(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, hostbill.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeHostBill) AcceptOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted = append(f.accepted, id)
	f.orders[id].Status = models.OrderStatusActive
	return nil
}

// fakeComgate validates callbacks with the real client and fakes the HTTP calls.
type fakeComgate struct {
	*comgate.Client
	preauth   bool
	created   []comgate.CreateRequest
	statuses  map[string]string
	captured  []string
	createErr error
}

func newFakeComgate() *fakeComgate {
	return &fakeComgate{
		Client:   comgate.New(comgate.Config{Merchant: "123456", Secret: "s3cret", Currency: "CZK"}),
		statuses: map[string]string{},
	}
}

func (f *fakeComgate) Preauth() bool { return f.preauth }

func (f *fakeComgate) Create(_ context.Context, r comgate.CreateRequest) (*comgate.CreateResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, r)
	id := fmt.Sprintf("CG%02d-%s", len(f.created), r.RefID)
	return &comgate.CreateResult{TransID: id, Redirect: "https://payments.comgate.cz/client/instructions/index?id=" + id}, nil
}

func (f *fakeComgate) Status(_ context.Context, transID string) (*comgate.Status, error) {
	st, ok := f.statuses[transID]
	if !ok {
		st = comgate.StatusPending
	}
	return &comgate.Status{TransID: transID, Status: st}, nil
}

func (f *fakeComgate) CapturePreauth(_ context.Context, transID string, _ int64) error {
	f.captured = append(f.captured, transID)
	return nil
}

func (f *fakeComgate) callback(transID, refID, status string, price int64) url.Values {
	return f.CallbackForm(transID, refID, status, price, "CZK")
}

// memSessions mirrors cache.SessionStore without Redis.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.PaymentSession
	seen     map[string]bool
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]models.PaymentSession{}, seen: map[string]bool{}}
}

func (m *memSessions) Save(_ context.Context, sess *models.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess.UpdatedAt = time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}
	m.sessions[sess.TransactionID] = *sess
	return nil
}

func (m *memSessions) Get(_ context.Context, transID string) (*models.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[transID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", transID, ErrSessionNotFound)
	}
	return &s, nil
}

func (m *memSessions) Pending(context.Context) ([]*models.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PaymentSession
	for _, s := range m.sessions {
		if !s.Final() {
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessions) FirstSeen(_ context.Context, gateway, transID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := gateway + ":" + transID + ":" + status
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

// put stores a session as-is, keeping its timestamps.
func (m *memSessions) put(s models.PaymentSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.TransactionID] = s
}

type published struct {
	Key   string
	Type  string
	Value any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key, eventType string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{Key: key, Type: eventType, Value: value})
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

type fixture struct {
	hb       *fakeHostBill
	cg       *fakeComgate
	pu       *payu.Gateway
	sessions *memSessions
	events   *fakePublisher
	uc       *UseCase
}

func newFixture() *fixture {
	f := &fixture{
		hb:       newFakeHostBill(),
		cg:       newFakeComgate(),
		sessions: newMemSessions(),
		events:   &fakePublisher{},
		pu: payu.New(payu.Config{
			Key:        "gtKFFx",
			Salt:       "eCwWELxi",
			ActionURL:  "https://test.payu.in/_payment",
			SuccessURL: "http://localhost:8080/callbacks/payu/success",
			FailureURL: "http://localhost:8080/callbacks/payu/failure",
		}),
	}
	f.uc = NewUseCase(Deps{
		HostBill:  f.hb,
		Comgate:   f.cg,
		PayU:      f.pu,
		Sessions:  f.sessions,
		Publisher: f.events,
		Modules:   Modules{Comgate: "comgate", PayU: "payu"},
		ResultURL: "http://localhost:3000/payment/result",
		Metrics:   telemetry.NopMetrics(),
		Log:       zap.NewNop(),
		Tracer:    noop.NewTracerProvider().Tracer("test"),
	})
	return f
}
