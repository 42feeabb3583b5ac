// Package comgate talks to the Comgate payment gateway (v1.0 HTTP API) and
// validates the server-to-server notifications it sends.
package comgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StatusPaid       = "PAID"
	StatusCancelled  = "CANCELLED"
	StatusPending    = "PENDING"
	StatusAuthorized = "AUTHORIZED"
)

var (
	ErrNotConfigured   = errors.New("comgate: merchant and secret are not configured")
	ErrInvalidCallback = errors.New("comgate: invalid callback")
)

// APIError is a non-zero result code from Comgate.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("comgate %s failed: code %d: %s", e.Op, e.Code, e.Message)
}

type Config struct {
	BaseURL  string
	Merchant string
	Secret   string
	Test     bool
	Preauth  bool
	Method   string
	Currency string
	Timeout  time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	tracer     trace.Tracer
}

type Option func(*Client)

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Method == "" {
		cfg.Method = "ALL"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer("comgate"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c.cfg.Merchant != "" && c.cfg.Secret != ""
}

func (c *Client) Preauth() bool { return c.cfg.Preauth }

func (c *Client) Currency() string { return c.cfg.Currency }

type CreateRequest struct {
	// Minor units; Comgate prices are integers (1 CZK = 100).
	PriceCents int64
	Currency   string
	Label      string
	RefID      string
	Email      string
	Country    string
	Lang       string
}

type CreateResult struct {
	TransID  string
	Redirect string
}

// Create starts a payment and returns the Comgate transaction ID and the URL the
// customer is redirected to.
func (c *Client) Create(ctx context.Context, r CreateRequest) (*CreateResult, error) {
	if r.PriceCents <= 0 || r.RefID == "" || r.Email == "" {
		return nil, fmt.Errorf("comgate create: price, refId and email are required")
	}
	currency := r.Currency
	if currency == "" {
		currency = c.cfg.Currency
	}
	form := url.Values{}
	form.Set("price", strconv.FormatInt(r.PriceCents, 10))
	form.Set("curr", currency)
	form.Set("label", truncate(r.Label, 16))
	form.Set("refId", r.RefID)
	form.Set("email", r.Email)
	form.Set("method", c.cfg.Method)
	form.Set("prepareOnly", "true")
	form.Set("preauth", strconv.FormatBool(c.cfg.Preauth))
	if r.Country != "" {
		form.Set("country", r.Country)
	}
	if r.Lang != "" {
		form.Set("lang", r.Lang)
	}

	res, err := c.post(ctx, "create", form)
	if err != nil {
		return nil, err
	}
	out := &CreateResult{TransID: res.Get("transId"), Redirect: res.Get("redirect")}
	if out.TransID == "" {
		return nil, fmt.Errorf("comgate create: response has no transId")
	}
	return out, nil
}

type Status struct {
	TransID    string
	RefID      string
	Status     string
	PriceCents int64
	Currency   string
	Email      string
	FeeCents   int64
}

func (c *Client) Status(ctx context.Context, transID string) (*Status, error) {
	form := url.Values{}
	form.Set("transId", transID)
	res, err := c.post(ctx, "status", form)
	if err != nil {
		return nil, err
	}
	return statusFromValues(res)
}

// CapturePreauth charges a pre-authorized payment.
func (c *Client) CapturePreauth(ctx context.Context, transID string, amountCents int64) error {
	form := url.Values{}
	form.Set("transId", transID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	_, err := c.post(ctx, "capturePreauth", form)
	return err
}

func (c *Client) CancelPreauth(ctx context.Context, transID string) error {
	form := url.Values{}
	form.Set("transId", transID)
	_, err := c.post(ctx, "cancelPreauth", form)
	return err
}

func (c *Client) Refund(ctx context.Context, transID string, amountCents int64, currency string) error {
	form := url.Values{}
	form.Set("transId", transID)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	if currency != "" {
		form.Set("curr", currency)
	}
	_, err := c.post(ctx, "refund", form)
	return err
}

func (c *Client) post(ctx context.Context, op string, form url.Values) (url.Values, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := c.tracer.Start(ctx, "comgate."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	form.Set("merchant", c.cfg.Merchant)
	form.Set("secret", c.cfg.Secret)
	form.Set("test", strconv.FormatBool(c.cfg.Test))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1.0/"+op, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("comgate %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read comgate %s response: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("comgate %s returned %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse comgate %s response: %w", op, err)
	}
	code, err := strconv.Atoi(values.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("comgate %s: response has no result code", op)
	}
	if code != 0 {
		apiErr := &APIError{Op: op, Code: code, Message: values.Get("message")}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	span.SetStatus(codes.Ok, "")
	return values, nil
}

func statusFromValues(v url.Values) (*Status, error) {
	price, err := strconv.ParseInt(v.Get("price"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("comgate price %q: %w", v.Get("price"), err)
	}
	var fee int64
	if f := v.Get("fee"); f != "" && f != "unknown" {
		if fee, err = strconv.ParseInt(f, 10, 64); err != nil {
			return nil, fmt.Errorf("comgate fee %q: %w", f, err)
		}
	}
	return &Status{
		TransID:    v.Get("transId"),
		RefID:      v.Get("refId"),
		Status:     strings.ToUpper(v.Get("status")),
		PriceCents: price,
		Currency:   v.Get("curr"),
		Email:      v.Get("email"),
		FeeCents:   fee,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
