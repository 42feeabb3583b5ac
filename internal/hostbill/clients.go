package hostbill

import (
	"context"
	"fmt"
	"net/url"

	"cloudvps-middleware/internal/models"

	"github.com/tidwall/gjson"
)

func (c *Client) AddClient(ctx context.Context, cl models.Client) (string, error) {
	params := url.Values{}
	params.Set("firstname", cl.FirstName)
	params.Set("lastname", cl.LastName)
	params.Set("email", cl.Email)
	setIf(params, "companyname", cl.Company)
	setIf(params, "address1", cl.Address1)
	setIf(params, "city", cl.City)
	setIf(params, "state", cl.State)
	setIf(params, "postcode", cl.PostCode)
	setIf(params, "country", cl.Country)
	setIf(params, "phonenumber", cl.Phone)
	if cl.Password != "" {
		params.Set("password", cl.Password)
		params.Set("password2", cl.Password)
	}

	res, err := c.Call(ctx, "addClient", params)
	if err != nil {
		return "", err
	}
	id := res.Get("client_id").String()
	if id == "" {
		return "", fmt.Errorf("hostbill addClient: response has no client_id")
	}
	return id, nil
}

func (c *Client) GetClientDetails(ctx context.Context, id string) (*models.Client, error) {
	params := url.Values{}
	params.Set("id", id)

	res, err := c.Call(ctx, "getClientDetails", params)
	if err != nil {
		return nil, err
	}
	raw := res.Get("client")
	if !raw.Exists() {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return clientFromResult(raw), nil
}

func clientFromResult(r gjson.Result) *models.Client {
	return &models.Client{
		ID:        r.Get("id").String(),
		FirstName: r.Get("firstname").String(),
		LastName:  r.Get("lastname").String(),
		Email:     r.Get("email").String(),
		Company:   r.Get("companyname").String(),
		Address1:  r.Get("address1").String(),
		City:      r.Get("city").String(),
		State:     r.Get("state").String(),
		PostCode:  r.Get("postcode").String(),
		Country:   r.Get("country").String(),
		Phone:     r.Get("phonenumber").String(),
	}
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
