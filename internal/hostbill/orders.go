package hostbill

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloudvps-middleware/internal/models"

	"github.com/tidwall/gjson"
)

// OrderParams carries HostBill IDs; storefront IDs are translated by the catalog.
type OrderParams struct {
	ClientID  string
	ProductID string
	Cycle     string
	Addons    []string
	Domain    string
	Gateway   string
	PromoCode string
}

type OrderResult struct {
	OrderID    string
	InvoiceID  string
	TotalCents int64
}

func (c *Client) AddOrder(ctx context.Context, p OrderParams) (*OrderResult, error) {
	if p.ClientID == "" || p.ProductID == "" {
		return nil, fmt.Errorf("hostbill addOrder: client and product are required")
	}
	params := url.Values{}
	params.Set("client_id", p.ClientID)
	params.Set("product", p.ProductID)
	setIf(params, "cycle", p.Cycle)
	setIf(params, "domain", p.Domain)
	setIf(params, "gateway", p.Gateway)
	setIf(params, "promocode", p.PromoCode)
	for _, addon := range p.Addons {
		params.Set(fmt.Sprintf("addons[%s]", addon), "1")
	}
	params.Set("confirm", "1")
	params.Set("invoice_generate", "1")
	params.Set("invoice_info", "1")

	res, err := c.Call(ctx, "addOrder", params)
	if err != nil {
		return nil, err
	}

	out := &OrderResult{
		OrderID:   firstString(res, "order_id", "details.id"),
		InvoiceID: firstString(res, "invoice_id", "details.invoice_id", "invoice.id"),
	}
	if out.OrderID == "" {
		return nil, fmt.Errorf("hostbill addOrder: response has no order_id")
	}
	out.TotalCents, err = models.ParseCents(firstString(res, "total", "invoice.total", "details.total"))
	if err != nil {
		return nil, fmt.Errorf("hostbill addOrder: %w", err)
	}
	return out, nil
}

func (c *Client) GetOrderDetails(ctx context.Context, id string) (*models.Order, error) {
	params := url.Values{}
	params.Set("id", id)

	res, err := c.Call(ctx, "getOrderDetails", params)
	if err != nil {
		return nil, err
	}
	d := res.Get("details")
	if !d.Exists() {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}

	total, err := models.ParseCents(d.Get("total").String())
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	order := &models.Order{
		ID:         d.Get("id").String(),
		ClientID:   firstString(d, "client_id", "client.id"),
		InvoiceID:  d.Get("invoice_id").String(),
		Status:     d.Get("status").String(),
		TotalCents: total,
		Currency:   currencyOf(d),
		CreatedAt:  parseTime(firstString(d, "date_created", "date")),
	}
	if items := d.Get("items"); items.Exists() {
		items.ForEach(func(_, item gjson.Result) bool {
			if pid := item.Get("product_id").String(); pid != "" {
				order.ProductID = pid
				return false
			}
			return true
		})
	}
	return order, nil
}

// AcceptOrder activates the order and runs HostBill's provisioning modules.
func (c *Client) AcceptOrder(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.Call(ctx, "setOrderActive", params)
	return err
}

func (c *Client) CancelOrder(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.Call(ctx, "setOrderCancelled", params)
	return err
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func currencyOf(r gjson.Result) string {
	if code := r.Get("currency.code"); code.Exists() {
		return strings.ToUpper(code.String())
	}
	if cur := r.Get("currency"); cur.Type == gjson.String {
		return strings.ToUpper(cur.String())
	}
	return ""
}

func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
