package hostbill

import (
	"context"
	"fmt"
	"net/url"

	"cloudvps-middleware/internal/models"

	"github.com/tidwall/gjson"
)

// Billing cycle codes as HostBill names product price fields.
var CycleCodes = []string{"h", "d", "w", "m", "q", "s", "a", "b", "t"}

func (c *Client) GetOrderPages(ctx context.Context) ([]models.Category, error) {
	res, err := c.Call(ctx, "getOrderPages", nil)
	if err != nil {
		return nil, err
	}
	var out []models.Category
	res.Get("categories").ForEach(func(_, r gjson.Result) bool {
		out = append(out, models.Category{
			ID:   r.Get("id").String(),
			Name: r.Get("name").String(),
			Slug: r.Get("slug").String(),
		})
		return true
	})
	return out, nil
}

// GetProducts lists products of one order page (category).
func (c *Client) GetProducts(ctx context.Context, categoryID string) ([]models.Product, error) {
	params := url.Values{}
	params.Set("id", categoryID)

	res, err := c.Call(ctx, "getProducts", params)
	if err != nil {
		return nil, err
	}
	var out []models.Product
	res.Get("products").ForEach(func(_, r gjson.Result) bool {
		p := productFromResult(r)
		if p.CategoryID == "" {
			p.CategoryID = categoryID
		}
		out = append(out, *p)
		return true
	})
	return out, nil
}

func (c *Client) GetProductDetails(ctx context.Context, id string) (*models.Product, error) {
	params := url.Values{}
	params.Set("id", id)

	res, err := c.Call(ctx, "getProductDetails", params)
	if err != nil {
		return nil, err
	}
	raw := res.Get("product")
	if !raw.Exists() {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	p := productFromResult(raw)
	raw.Get("addons").ForEach(func(_, a gjson.Result) bool {
		p.Addons = append(p.Addons, models.Addon{
			HostBillID:  a.Get("id").String(),
			Name:        a.Get("name").String(),
			PricesCents: pricesFromResult(a),
		})
		return true
	})
	return p, nil
}

// GetPaymentModules returns module ID -> display name.
func (c *Client) GetPaymentModules(ctx context.Context) (map[string]string, error) {
	res, err := c.Call(ctx, "getPaymentModules", nil)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	res.Get("modules").ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out, nil
}

func productFromResult(r gjson.Result) *models.Product {
	visible := true
	if v := r.Get("visible"); v.Exists() {
		visible = v.Bool()
	}
	return &models.Product{
		HostBillID:  r.Get("id").String(),
		Name:        r.Get("name").String(),
		Description: r.Get("description").String(),
		CategoryID:  r.Get("category_id").String(),
		PricesCents: pricesFromResult(r),
		Visible:     visible,
	}
}

// pricesFromResult reads the per-cycle price fields; a zero or missing price
// means the cycle is not offered.
func pricesFromResult(r gjson.Result) map[string]int64 {
	prices := map[string]int64{}
	for _, code := range CycleCodes {
		v := r.Get(code)
		if !v.Exists() {
			continue
		}
		cents, err := models.ParseCents(v.String())
		if err != nil || cents <= 0 {
			continue
		}
		prices[code] = cents
	}
	return prices
}
