package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hostbillStub struct {
	mu    sync.Mutex
	calls []url.Values
	reply map[string]string
}

func newHostBillStub(t *testing.T, reply map[string]string) *hostbillStub {
	t.Helper()
	s := &hostbillStub{reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.calls = append(s.calls, r.PostForm)
		s.mu.Unlock()
		body, ok := s.reply[r.PostForm.Get("call")]
		if !ok {
			body = `{"success":false,"error":["Unknown call"]}`
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("HOSTBILL_URL", srv.URL)
	t.Setenv("HOSTBILL_API_ID", "api-id")
	t.Setenv("HOSTBILL_API_KEY", "api-key")
	t.Setenv("HOSTBILL_MAX_RETRIES", "0")
	return s
}

func (s *hostbillStub) called(call string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []url.Values
	for _, c := range s.calls {
		if c.Get("call") == call {
			out = append(out, c)
		}
	}
	return out
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.PaymentSession
}

func newMemSessions(sessions ...models.PaymentSession) *memSessions {
	m := &memSessions{sessions: map[string]models.PaymentSession{}}
	for _, s := range sessions {
		m.sessions[s.TransactionID] = s
	}
	return m
}

func (m *memSessions) Save(_ context.Context, sess *models.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.TransactionID] = *sess
	return nil
}

func (m *memSessions) Get(_ context.Context, transID string) (*models.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[transID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", transID, payment.ErrSessionNotFound)
	}
	return &s, nil
}

func (m *memSessions) Pending(context.Context) ([]*models.PaymentSession, error) {
	return nil, nil
}

func (m *memSessions) FirstSeen(context.Context, string, string, string) (bool, error) {
	return true, nil
}

// comgateStub answers every Comgate operation with code=0 and records the calls.
type comgateStub struct {
	mu    sync.Mutex
	calls []string
}

func newComgateStub(t *testing.T) *comgateStub {
	t.Helper()
	s := &comgateStub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.calls = append(s.calls, strings.TrimPrefix(r.URL.Path, "/v1.0/")+" "+r.PostForm.Get("transId"))
		s.mu.Unlock()
		_, _ = w.Write([]byte("code=0&message=OK"))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("COMGATE_URL", srv.URL)
	t.Setenv("COMGATE_MERCHANT", "123456")
	t.Setenv("COMGATE_SECRET", "s3cret")
	return s
}

func (s *comgateStub) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWith(t, &app{sessions: newMemSessions()}, args...)
}

func runWith(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmdFor(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const unpaidInvoice = `{"success":true,"invoice":{"id":"501","client_id":"7","status":"Unpaid",
	"total":"242.00","subtotal":"200.00","credit":"0.00","currency":{"code":"CZK"}}}`

const paidInvoice = `{"success":true,"invoice":{"id":"501","client_id":"7","status":"Paid",
	"total":"242.00","subtotal":"200.00","credit":"0.00","currency":{"code":"CZK"}}}`

func TestInvoiceGet(t *testing.T) {
	newHostBillStub(t, map[string]string{"getInvoiceDetails": unpaidInvoice})

	out, err := run(t, "invoice", "get", "501")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "501"`)
	assert.Contains(t, out, `"total_cents": 24200`)
}

func TestInvoiceGetRequiresCredentials(t *testing.T) {
	t.Setenv("HOSTBILL_API_ID", "")
	t.Setenv("HOSTBILL_API_KEY", "")

	_, err := run(t, "invoice", "get", "501")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOSTBILL_API_ID")
}

func TestInvoiceWatchStopsWhenPaid(t *testing.T) {
	newHostBillStub(t, map[string]string{"getInvoiceDetails": paidInvoice})

	out, err := run(t, "invoice", "watch", "501", "--interval", "10ms", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, "Paid")
}

func TestCaptureSkipsPaidInvoice(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{"getInvoiceDetails": paidInvoice})

	out, err := run(t, "capture", "501", "--trans", "AB12-CD34")
	require.NoError(t, err)
	assert.Contains(t, out, "already paid")
	assert.Empty(t, hb.called("addInvoicePayment"))
}

func TestCaptureRecordsPaymentAndAcceptsOrder(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{
		"getInvoiceDetails": unpaidInvoice,
		"addInvoicePayment": `{"success":true}`,
		"getOrderDetails":   `{"success":true,"details":{"id":"12","client_id":"7","invoice_id":"501","status":"Pending","total":"242.00"}}`,
		"setOrderActive":    `{"success":true}`,
	})

	out, err := run(t, "capture", "501", "--trans", "AB12-CD34", "--module", "comgate", "--order", "12")
	require.NoError(t, err)

	payments := hb.called("addInvoicePayment")
	require.Len(t, payments, 1)
	assert.Equal(t, "242.00", payments[0].Get("amount"))
	assert.Equal(t, "comgate", payments[0].Get("paymentmodule"))
	assert.Equal(t, "AB12-CD34", payments[0].Get("transnumber"))
	assert.Contains(t, out, "order 12 accepted")
}

func TestCapturePreauthSessionCapturesAtGateway(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{
		"getInvoiceDetails": unpaidInvoice,
		"addInvoicePayment": `{"success":true}`,
		"getOrderDetails":   `{"success":true,"details":{"id":"12","client_id":"7","invoice_id":"501","status":"Pending","total":"242.00"}}`,
		"setOrderActive":    `{"success":true}`,
	})
	cg := newComgateStub(t)
	sessions := newMemSessions(models.PaymentSession{
		TransactionID: "CG01-501", Gateway: models.GatewayComgate, InvoiceID: "501", OrderID: "12",
		AmountCents: 24200, Currency: "CZK", Status: models.PaymentAuthorized, Preauth: true,
	})

	out, err := runWith(t, &app{sessions: sessions}, "capture", "501", "--trans", "CG01-501")
	require.NoError(t, err)

	assert.Equal(t, []string{"capturePreauth CG01-501"}, cg.ops())
	payments := hb.called("addInvoicePayment")
	require.Len(t, payments, 1)
	assert.Equal(t, "comgate", payments[0].Get("paymentmodule"))
	assert.Equal(t, "CG01-501", payments[0].Get("transnumber"))
	assert.Len(t, hb.called("setOrderActive"), 1)

	sess, err := sessions.Get(context.Background(), "CG01-501")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProvisioned, sess.Status)
	assert.Contains(t, out, "captured 242.00 CZK on invoice 501")
	assert.Contains(t, out, "order 12 accepted")
}

func TestCaptureRejectsSessionOfOtherInvoice(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{"getInvoiceDetails": unpaidInvoice})
	sessions := newMemSessions(models.PaymentSession{
		TransactionID: "CG01-777", Gateway: models.GatewayComgate, InvoiceID: "777", Status: models.PaymentPaid,
	})

	_, err := runWith(t, &app{sessions: sessions}, "capture", "501", "--trans", "CG01-777")
	require.Error(t, err)
	assert.Empty(t, hb.called("addInvoicePayment"))
}

func TestCaptureDirectPreauth(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{
		"getInvoiceDetails": unpaidInvoice,
		"addInvoicePayment": `{"success":true}`,
	})
	cg := newComgateStub(t)

	out, err := run(t, "capture", "501", "--trans", "CG05-501", "--preauth")
	require.NoError(t, err)

	assert.Equal(t, []string{"capturePreauth CG05-501"}, cg.ops())
	assert.Len(t, hb.called("addInvoicePayment"), 1)
	assert.Contains(t, out, "pre-authorization CG05-501 captured")
}

func TestCapturePreauthNeedsTransaction(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{"getInvoiceDetails": unpaidInvoice})

	_, err := run(t, "capture", "501", "--preauth")
	require.Error(t, err)
	assert.Empty(t, hb.called("addInvoicePayment"))
}

func TestPayUHash(t *testing.T) {
	t.Setenv("PAYU_KEY", "gtKFFx")
	t.Setenv("PAYU_SALT", "eCwWELxi")

	out, err := run(t, "payu", "hash",
		"--txnid", "INV501-abc", "--amount", "242", "--productinfo", "VPS Start",
		"--firstname", "Jan", "--email", "jan@example.com", "--invoice", "501", "--order", "12")
	require.NoError(t, err)

	want := payu.RequestHash("gtKFFx", "eCwWELxi", payu.Request{
		TxnID: "INV501-abc", AmountCents: 24200, ProductInfo: "VPS Start",
		FirstName: "Jan", Email: "jan@example.com", UDF: [5]string{"501", "12"},
	})
	assert.Contains(t, out, "amount 242.00")
	assert.Contains(t, out, want)
}

func TestPayUHashNeedsCredentials(t *testing.T) {
	t.Setenv("PAYU_KEY", "")
	t.Setenv("PAYU_SALT", "")

	_, err := run(t, "payu", "hash", "--amount", "10")
	assert.ErrorIs(t, err, payu.ErrNotConfigured)
}

func TestSimulateComgate(t *testing.T) {
	t.Setenv("COMGATE_MERCHANT", "123456")
	t.Setenv("COMGATE_SECRET", "s3cret")

	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/callbacks/comgate", r.URL.Path)
		_ = r.ParseForm()
		got = r.PostForm
		_, _ = w.Write([]byte("code=0&message=OK"))
	}))
	defer srv.Close()

	out, err := run(t, "simulate", "comgate", "AB12-CD34", "--url", srv.URL, "--invoice", "501", "--price", "242", "--status", "paid")
	require.NoError(t, err)

	assert.Equal(t, "123456", got.Get("merchant"))
	assert.Equal(t, "s3cret", got.Get("secret"))
	assert.Equal(t, "AB12-CD34", got.Get("transId"))
	assert.Equal(t, "501", got.Get("refId"))
	assert.Equal(t, "PAID", got.Get("status"))
	assert.Equal(t, "24200", got.Get("price"))
	assert.Contains(t, out, "code=0&message=OK")
}

func TestSimulatePayUFailureGoesToFailureURL(t *testing.T) {
	t.Setenv("PAYU_KEY", "gtKFFx")
	t.Setenv("PAYU_SALT", "eCwWELxi")

	var path string
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = r.ParseForm()
		form = r.PostForm
		http.Redirect(w, r, "http://localhost:3000/payment/result?invoice=501&status=failed", http.StatusSeeOther)
	}))
	defer srv.Close()

	out, err := run(t, "simulate", "payu", "INV501-abc", "--url", srv.URL, "--invoice", "501", "--amount", "242.00", "--status", "failure")
	require.NoError(t, err)

	assert.Equal(t, "/callbacks/payu/failure", path)
	assert.Equal(t, "gtKFFx", form.Get("key"))
	assert.Len(t, form.Get("hash"), 128)

	gw := payu.New(payu.Config{Key: "gtKFFx", Salt: "eCwWELxi"})
	_, err = gw.ParseResponse(form)
	assert.NoError(t, err)
	assert.Contains(t, out, "status=failed")
}

func TestCatalogMapDefault(t *testing.T) {
	t.Setenv("CATALOG_MAPPING_FILE", "")

	out, err := run(t, "catalog", "map")
	require.NoError(t, err)

	assert.Contains(t, out, "built-in default")
	for _, want := range []string{"vps-start", "extra-ip", "monthly"} {
		if !strings.Contains(out, want) {
			t.Errorf("catalog map output missing %q:\n%s", want, out)
		}
	}
}

func TestInvoiceList(t *testing.T) {
	hb := newHostBillStub(t, map[string]string{
		"getInvoices": `{"success":true,"invoices":[
			{"id":"501","client_id":"7","status":"Unpaid","total":"242.00","currency":{"code":"CZK"}},
			{"id":"502","client_id":"8","status":"Unpaid","total":"99.50","currency":{"code":"CZK"}}
		]}`,
	})

	out, err := run(t, "invoice", "list", "--status", "unpaid")
	require.NoError(t, err)

	calls := hb.called("getInvoices")
	require.Len(t, calls, 1)
	assert.Equal(t, "unpaid", calls[0].Get("list"))
	assert.Contains(t, out, "501")
	assert.Contains(t, out, "99.50 CZK")
}

func TestModules(t *testing.T) {
	newHostBillStub(t, map[string]string{
		"getPaymentModules": `{"success":true,"modules":{"11":"PayU","10":"Comgate"}}`,
	})

	out, err := run(t, "modules")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Comgate")
	assert.Contains(t, lines[2], "PayU")
}

func TestComgateStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1.0/status", r.URL.Path)
		_, _ = w.Write([]byte("code=0&message=OK&merchant=123456&price=24200&curr=CZK&refId=501&transId=AB12-CD34&status=PAID&fee=unknown"))
	}))
	defer srv.Close()
	t.Setenv("COMGATE_URL", srv.URL)
	t.Setenv("COMGATE_MERCHANT", "123456")
	t.Setenv("COMGATE_SECRET", "s3cret")

	out, err := run(t, "comgate", "status", "AB12-CD34")
	require.NoError(t, err)
	assert.Contains(t, out, "AB12-CD34  PAID  242.00 CZK  invoice 501")
}

func TestComgateRefundRejectsZeroAmount(t *testing.T) {
	t.Setenv("COMGATE_MERCHANT", "123456")
	t.Setenv("COMGATE_SECRET", "s3cret")

	_, err := run(t, "comgate", "refund", "AB12-CD34", "--amount", "0")
	assert.Error(t, err)
}
