package payu

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cloudvps-middleware/internal/models"

	"github.com/google/uuid"
)

var (
	ErrHashMismatch  = errors.New("payu: response hash mismatch")
	ErrKeyMismatch   = errors.New("payu: response merchant key mismatch")
	ErrMissingField  = errors.New("payu: required field missing")
	ErrNotConfigured = errors.New("payu: key and salt are not configured")
)

const StatusSuccess = "success"

type Config struct {
	Key        string
	Salt       string
	ActionURL  string
	SuccessURL string
	FailureURL string
}

type Request struct {
	TxnID       string
	AmountCents int64
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	UDF         [5]string
}

// Amount is the decimal string PayU hashes and charges.
func (r Request) Amount() string {
	return models.FormatCents(r.AmountCents)
}

type Response struct {
	Key               string
	TxnID             string
	MihPayID          string
	Status            string
	Amount            string
	AmountCents       int64
	ProductInfo       string
	FirstName         string
	Email             string
	Mode              string
	UDF               [5]string
	AdditionalCharges string
	Hash              string
	ErrorMessage      string
}

func (r *Response) Success() bool {
	return strings.EqualFold(r.Status, StatusSuccess)
}

func (r *Response) InvoiceID() string { return r.UDF[UDFInvoiceID] }

func (r *Response) OrderID() string { return r.UDF[UDFOrderID] }

type Gateway struct {
	cfg Config
}

func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

func (g *Gateway) Configured() bool {
	return g.cfg.Key != "" && g.cfg.Salt != ""
}

// NewTxnID returns a PayU transaction ID (at most 25 characters).
func NewTxnID(invoiceID string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	txn := "INV" + invoiceID + "-" + id
	if len(txn) > 25 {
		txn = txn[:25]
	}
	return txn
}

// Checkout returns the form the storefront auto-submits to PayU.
func (g *Gateway) Checkout(r Request) (*models.Checkout, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	if r.TxnID == "" || r.AmountCents <= 0 || r.ProductInfo == "" || r.FirstName == "" || r.Email == "" {
		return nil, fmt.Errorf("%w: txnid, amount, productinfo, firstname and email are required", ErrMissingField)
	}

	fields := map[string]string{
		"key":         g.cfg.Key,
		"txnid":       r.TxnID,
		"amount":      r.Amount(),
		"productinfo": r.ProductInfo,
		"firstname":   r.FirstName,
		"email":       r.Email,
		"surl":        g.cfg.SuccessURL,
		"furl":        g.cfg.FailureURL,
		"hash":        RequestHash(g.cfg.Key, g.cfg.Salt, r),
	}
	if r.Phone != "" {
		fields["phone"] = r.Phone
	}
	for i, v := range r.UDF {
		fields[fmt.Sprintf("udf%d", i+1)] = v
	}

	return &models.Checkout{
		Gateway:       models.GatewayPayU,
		TransactionID: r.TxnID,
		InvoiceID:     r.UDF[UDFInvoiceID],
		Method:        http.MethodPost,
		URL:           g.cfg.ActionURL,
		Fields:        fields,
	}, nil
}

// ParseResponse reads PayU's POST to surl/furl and verifies the reverse hash.
func (g *Gateway) ParseResponse(form url.Values) (*Response, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	r := &Response{
		Key:               form.Get("key"),
		TxnID:             form.Get("txnid"),
		MihPayID:          form.Get("mihpayid"),
		Status:            form.Get("status"),
		Amount:            form.Get("amount"),
		ProductInfo:       form.Get("productinfo"),
		FirstName:         form.Get("firstname"),
		Email:             form.Get("email"),
		Mode:              form.Get("mode"),
		AdditionalCharges: form.Get("additionalCharges"),
		Hash:              strings.ToLower(form.Get("hash")),
		ErrorMessage:      form.Get("error_Message"),
	}
	for i := range r.UDF {
		r.UDF[i] = form.Get(fmt.Sprintf("udf%d", i+1))
	}

	if r.TxnID == "" || r.Status == "" || r.Hash == "" {
		return nil, fmt.Errorf("%w: txnid, status and hash are required", ErrMissingField)
	}
	if r.Key != g.cfg.Key {
		return nil, ErrKeyMismatch
	}
	want := ResponseHash(g.cfg.Key, g.cfg.Salt, r)
	if subtle.ConstantTimeCompare([]byte(want), []byte(r.Hash)) != 1 {
		return nil, ErrHashMismatch
	}

	cents, err := models.ParseCents(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("payu amount: %w", err)
	}
	r.AmountCents = cents
	return r, nil
}

// SignResponse fills in the hash of a response form. Used to simulate PayU
// posting back to the middleware.
func (g *Gateway) SignResponse(form url.Values) {
	r := &Response{
		Status:            form.Get("status"),
		TxnID:             form.Get("txnid"),
		Amount:            form.Get("amount"),
		ProductInfo:       form.Get("productinfo"),
		FirstName:         form.Get("firstname"),
		Email:             form.Get("email"),
		AdditionalCharges: form.Get("additionalCharges"),
	}
	for i := range r.UDF {
		r.UDF[i] = form.Get(fmt.Sprintf("udf%d", i+1))
	}
	form.Set("key", g.cfg.Key)
	form.Set("hash", ResponseHash(g.cfg.Key, g.cfg.Salt, r))
}
