package comgate

import (
	"crypto/subtle"
	"fmt"
	"net/url"
)

// CallbackAck is the body Comgate expects; anything else makes it retry.
const CallbackAck = "code=0&message=OK"

type Callback struct {
	Status
	Merchant string
	Test     bool
	Label    string
	Method   string
}

// ParseCallback validates a notification against the merchant ID and secret.
func (c *Client) ParseCallback(form url.Values) (*Callback, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if form.Get("merchant") != c.cfg.Merchant {
		return nil, fmt.Errorf("%w: unexpected merchant", ErrInvalidCallback)
	}
	if subtle.ConstantTimeCompare([]byte(form.Get("secret")), []byte(c.cfg.Secret)) != 1 {
		return nil, fmt.Errorf("%w: secret mismatch", ErrInvalidCallback)
	}
	if form.Get("transId") == "" || form.Get("status") == "" {
		return nil, fmt.Errorf("%w: transId and status are required", ErrInvalidCallback)
	}
	st, err := statusFromValues(form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	return &Callback{
		Status:   *st,
		Merchant: form.Get("merchant"),
		Test:     form.Get("test") == "true",
		Label:    form.Get("label"),
		Method:   form.Get("method"),
	}, nil
}

// CallbackForm builds the notification Comgate would send. Used to simulate a
// gateway callback against a running middleware.
func (c *Client) CallbackForm(transID, refID, status string, priceCents int64, currency string) url.Values {
	if currency == "" {
		currency = c.cfg.Currency
	}
	form := url.Values{}
	form.Set("merchant", c.cfg.Merchant)
	form.Set("secret", c.cfg.Secret)
	form.Set("test", fmt.Sprint(c.cfg.Test))
	form.Set("transId", transID)
	form.Set("refId", refID)
	form.Set("status", status)
	form.Set("price", fmt.Sprint(priceCents))
	form.Set("curr", currency)
	return form
}
