package models

type Product struct {
	ID          string           `json:"id"`
	HostBillID  string           `json:"hostbill_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CategoryID  string           `json:"category_id,omitempty"`
	PricesCents map[string]int64 `json:"prices_cents"`
	Addons      []Addon          `json:"addons,omitempty"`
	Visible     bool             `json:"visible"`
}

type Addon struct {
	ID          string           `json:"id"`
	HostBillID  string           `json:"hostbill_id"`
	Name        string           `json:"name"`
	PricesCents map[string]int64 `json:"prices_cents,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}
