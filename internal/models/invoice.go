package models

import "time"

type Invoice struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	Status        string        `json:"status"`
	TotalCents    int64         `json:"total_cents"`
	SubtotalCents int64         `json:"subtotal_cents"`
	CreditCents   int64         `json:"credit_cents"`
	Currency      string        `json:"currency"`
	Gateway       string        `json:"gateway,omitempty"`
	DueDate       time.Time     `json:"due_date,omitempty"`
	Items         []InvoiceItem `json:"items,omitempty"`
}

type InvoiceItem struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Type        string `json:"type,omitempty"`
	RelID       string `json:"rel_id,omitempty"`
}

const (
	InvoiceStatusUnpaid    = "Unpaid"
	InvoiceStatusPaid      = "Paid"
	InvoiceStatusCancelled = "Cancelled"
	InvoiceStatusRefunded  = "Refunded"
)

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
