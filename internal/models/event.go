package models

import "time"

const (
	EventPaymentConfirmed  = "payment.confirmed"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentReconcile  = "payment.reconcile"

	EventOrderProvisioned   = "order.provisioned"
	EventOrderCaptureFailed = "order.capture_failed"
)

type PaymentEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Gateway       string    `json:"gateway"`
	TransactionID string    `json:"transaction_id"`
	InvoiceID     string    `json:"invoice_id"`
	OrderID       string    `json:"order_id,omitempty"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type OrderEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	InvoiceID  string    `json:"invoice_id"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
