package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func newTestApp(f *fixture) *fiber.App {
	app := fiber.New()
	NewController(f.uc, zap.NewNop(), noop.NewTracerProvider().Tracer("test")).Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func postForm(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestInitiateEndpoint(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)

	resp, body := doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"501","order_id":"12","gateway":"comgate"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	checkout := body["checkout"].(map[string]any)
	assert.Equal(t, "CG01-501", checkout["transaction_id"])

	resp, body = doJSON(t, app, http.MethodGet, "/payments/CG01-501", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.PaymentPending, body["payment"].(map[string]any)["status"])
}

func TestInitiateEndpointErrors(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)

	resp, body := doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"501"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"501","gateway":"cash"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"999","gateway":"comgate"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	f.hb.invoices["501"].Status = models.InvoiceStatusPaid
	resp, body = doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"501","gateway":"comgate"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "already paid")

	resp, _ = doJSON(t, app, http.MethodGet, "/payments/NOPE", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestComgateCallbackEndpoint(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)
	transID := initiateComgate(t, f)

	resp := postForm(t, app, "/callbacks/comgate", f.cg.callback(transID, "501", comgate.StatusPaid, 24200).Encode())
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, comgate.CallbackAck, string(raw))
	assert.Equal(t, []string{models.EventPaymentConfirmed}, f.events.types())

	bad := f.cg.callback(transID, "501", comgate.StatusPaid, 24200)
	bad.Set("secret", "x")
	resp = postForm(t, app, "/callbacks/comgate", bad.Encode())
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	raw, _ = io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(raw), "code=1&"))
}

func TestPayUReturnRedirects(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)

	resp, body := doJSON(t, app, http.MethodPost, "/payments", `{"invoice_id":"501","order_id":"12","gateway":"payu"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	txnID := body["checkout"].(map[string]any)["transaction_id"].(string)

	resp = postForm(t, app, "/callbacks/payu/success", payuResponse(f, txnID, "success").Encode())
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000/payment/result?invoice=501&status=paid", resp.Header.Get("Location"))

	resp = postForm(t, app, "/callbacks/payu/failure", "txnid="+txnID+"&status=failure&hash=00")
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000/payment/result?status=failed", resp.Header.Get("Location"))
}

func TestCaptureEndpoint(t *testing.T) {
	f := newFixture()
	app := newTestApp(f)
	transID := initiateComgate(t, f)

	resp, _ := doJSON(t, app, http.MethodPost, "/payments/"+transID+"/capture", "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	f.cg.statuses[transID] = comgate.StatusPaid
	resp, body := doJSON(t, app, http.MethodPost, "/payments/"+transID+"/capture", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["captured"])
	assert.Equal(t, true, result["provisioned"])
}
