package hostbill

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"cloudvps-middleware/internal/models"

	"github.com/tidwall/gjson"
)

func (c *Client) GetInvoiceDetails(ctx context.Context, id string) (*models.Invoice, error) {
	params := url.Values{}
	params.Set("id", id)

	res, err := c.Call(ctx, "getInvoiceDetails", params)
	if err != nil {
		return nil, err
	}
	raw := res.Get("invoice")
	if !raw.Exists() {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return invoiceFromResult(raw)
}

type InvoiceFilter struct {
	// "all", "paid", "unpaid", "cancelled"
	List string
	Page int
}

func (c *Client) GetInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error) {
	params := url.Values{}
	if f.List == "" {
		f.List = "all"
	}
	params.Set("list", f.List)
	params.Set("page", strconv.Itoa(f.Page))

	res, err := c.Call(ctx, "getInvoices", params)
	if err != nil {
		return nil, err
	}

	var out []models.Invoice
	var parseErr error
	res.Get("invoices").ForEach(func(_, raw gjson.Result) bool {
		inv, err := invoiceFromResult(raw)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, *inv)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

type PaymentParams struct {
	InvoiceID     string
	AmountCents   int64
	FeeCents      int64
	Module        string
	TransactionID string
	Date          time.Time
	SendEmail     bool
}

// AddInvoicePayment records a gateway payment against the invoice. This is the
// "capture" step; HostBill marks the invoice Paid once the balance reaches zero.
func (c *Client) AddInvoicePayment(ctx context.Context, p PaymentParams) error {
	if p.InvoiceID == "" || p.AmountCents <= 0 {
		return fmt.Errorf("hostbill addInvoicePayment: invoice and positive amount are required")
	}
	date := p.Date
	if date.IsZero() {
		date = time.Now()
	}
	params := url.Values{}
	params.Set("id", p.InvoiceID)
	params.Set("amount", models.FormatCents(p.AmountCents))
	params.Set("fee", models.FormatCents(p.FeeCents))
	params.Set("paymentmodule", p.Module)
	params.Set("date", date.Format("2006-01-02"))
	setIf(params, "transnumber", p.TransactionID)
	if p.SendEmail {
		params.Set("send_email", "1")
	}

	_, err := c.Call(ctx, "addInvoicePayment", params)
	return err
}

func invoiceFromResult(r gjson.Result) (*models.Invoice, error) {
	id := r.Get("id").String()
	total, err := models.ParseCents(r.Get("total").String())
	if err != nil {
		return nil, fmt.Errorf("invoice %s total: %w", id, err)
	}
	subtotal, err := models.ParseCents(r.Get("subtotal").String())
	if err != nil {
		return nil, fmt.Errorf("invoice %s subtotal: %w", id, err)
	}
	credit, err := models.ParseCents(r.Get("credit").String())
	if err != nil {
		return nil, fmt.Errorf("invoice %s credit: %w", id, err)
	}

	inv := &models.Invoice{
		ID:            id,
		ClientID:      firstString(r, "client_id", "client.id"),
		Status:        r.Get("status").String(),
		TotalCents:    total,
		SubtotalCents: subtotal,
		CreditCents:   credit,
		Currency:      currencyOf(r),
		Gateway:       firstString(r, "gateway", "module"),
		DueDate:       parseTime(r.Get("duedate").String()),
	}
	var itemErr error
	r.Get("items").ForEach(func(_, item gjson.Result) bool {
		amount, err := models.ParseCents(item.Get("amount").String())
		if err != nil {
			itemErr = fmt.Errorf("invoice %s item amount: %w", id, err)
			return false
		}
		inv.Items = append(inv.Items, models.InvoiceItem{
			Description: item.Get("description").String(),
			AmountCents: amount,
			Type:        item.Get("type").String(),
			RelID:       firstString(item, "rel_id", "item_id"),
		})
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}
	return inv, nil
}
