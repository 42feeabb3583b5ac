package models

import "time"

const (
	GatewayComgate = "comgate"
	GatewayPayU    = "payu"
)

const (
	PaymentPending     = "pending"
	PaymentAuthorized  = "authorized"
	PaymentPaid        = "paid"
	PaymentCancelled   = "cancelled"
	PaymentFailed      = "failed"
	PaymentCaptured    = "captured"
	PaymentProvisioned = "provisioned"
)

// PaymentSession links a gateway transaction to the HostBill invoice it pays.
type PaymentSession struct {
	TransactionID string    `json:"transaction_id"`
	Gateway       string    `json:"gateway"`
	InvoiceID     string    `json:"invoice_id"`
	OrderID       string    `json:"order_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Email         string    `json:"email,omitempty"`
	Status        string    `json:"status"`
	Preauth       bool      `json:"preauth,omitempty"`
	RedirectURL   string    `json:"redirect_url,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Final reports whether no further gateway transition is expected.
func (s *PaymentSession) Final() bool {
	switch s.Status {
	case PaymentCancelled, PaymentFailed, PaymentCaptured, PaymentProvisioned:
		return true
	}
	return false
}

// Checkout tells the storefront how to hand the customer to the gateway.
// Comgate answers with a redirect URL; PayU needs an auto-submitted form.
type Checkout struct {
	Gateway       string            `json:"gateway"`
	TransactionID string            `json:"transaction_id"`
	InvoiceID     string            `json:"invoice_id"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	Fields        map[string]string `json:"fields,omitempty"`
}

type CaptureResult struct {
	InvoiceID   string `json:"invoice_id"`
	OrderID     string `json:"order_id,omitempty"`
	AlreadyPaid bool   `json:"already_paid"`
	Captured    bool   `json:"captured"`
	Provisioned bool   `json:"provisioned"`
}
