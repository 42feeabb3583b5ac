package models

import "time"

// OrderRequest is what the storefront posts to the middleware. Product, addon and
// cycle identifiers are storefront catalog IDs; the catalog maps them to HostBill.
type OrderRequest struct {
	ClientID  string   `json:"client_id,omitempty"`
	Client    *Client  `json:"client,omitempty"`
	ProductID string   `json:"product_id"`
	Cycle     string   `json:"cycle"`
	Addons    []string `json:"addons,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	Gateway   string   `json:"gateway"`
	PromoCode string   `json:"promo_code,omitempty"`
}

type Order struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	InvoiceID  string    `json:"invoice_id"`
	ProductID  string    `json:"product_id,omitempty"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	OrderStatusPending   = "Pending"
	OrderStatusActive    = "Active"
	OrderStatusCancelled = "Cancelled"
	OrderStatusFraud     = "Fraud"
)

type Client struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Company   string `json:"companyname,omitempty"`
	Address1  string `json:"address1,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	PostCode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phonenumber,omitempty"`
	Password  string `json:"password,omitempty"`
}
