// Package hostbill is a client for the HostBill admin API (/admin/api.php).
//
// Every call is a form-encoded POST carrying api_id, api_key and call=<name>.
// HostBill answers with loosely typed JSON (numbers arrive as strings, lists as
// objects keyed by ID), so responses are read with gjson instead of fixed structs.
package hostbill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloudvps-middleware/internal/telemetry"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	apiPath         = "/admin/api.php"
	maxResponseSize = 8 << 20
)

// Calls that create records. A transport error after the request left may
// still have been applied, so these are only retried on 429.
var unsafeCalls = map[string]bool{
	"addOrder":          true,
	"addClient":         true,
	"addInvoicePayment": true,
}

type Config struct {
	BaseURL    string
	APIID      string
	APIKey     string
	Timeout    time.Duration
	RatePerSec int
	MaxRetries int
}

type Client struct {
	baseURL    string
	apiID      string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryBase  time.Duration

	log     *zap.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

type Option func(*Client)

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryDelay overrides the base of the exponential backoff.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = cfg.RatePerSec
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiID:   cfg.APIID,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
		retryBase:  retryBaseDelay,
		log:        zap.NewNop(),
		tracer:     otel.Tracer("hostbill"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one API call and returns the parsed response body.
// success=false answers are returned as *APIError.
func (c *Client) Call(ctx context.Context, call string, params url.Values) (gjson.Result, error) {
	ctx, span := c.tracer.Start(ctx, "hostbill."+call,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("hostbill.call", call)),
	)
	defer span.End()

	start := time.Now()
	res, attempts, err := c.callWithRetry(ctx, call, params)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("hostbill.attempts", attempts))

	if c.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("call", call), attribute.String("status", status))
		c.metrics.HostBillCalls.Add(ctx, 1, attrs)
		c.metrics.HostBillLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("call", call)))
	}

	c.log.Debug("hostbill call",
		zap.String("call", call),
		zap.String("status", status),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return res, err
}

func (c *Client) callWithRetry(ctx context.Context, call string, params url.Values) (gjson.Result, int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return gjson.Result{}, attempt, err
		}

		res, err := c.do(ctx, call, params)
		if err == nil {
			return res, attempt + 1, nil
		}
		lastErr = err

		if !c.shouldRetry(call, err) || attempt == c.maxRetries {
			return gjson.Result{}, attempt + 1, err
		}
		if err := sleepWithContext(ctx, retryDelay(c.retryBase, attempt)); err != nil {
			return gjson.Result{}, attempt + 1, err
		}
	}
	return gjson.Result{}, c.maxRetries + 1, lastErr
}

func (c *Client) shouldRetry(call string, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		if unsafeCalls[call] {
			return httpErr.statusCode == http.StatusTooManyRequests
		}
		return isRetryableHTTPError(err)
	}
	if errors.Is(err, errInvalidJSON) {
		return false
	}
	// transport error
	return !unsafeCalls[call]
}

var errInvalidJSON = errors.New("hostbill: response is not valid JSON")

func (c *Client) do(ctx context.Context, call string, params url.Values) (gjson.Result, error) {
	form := url.Values{}
	for k, vs := range params {
		form[k] = append([]string(nil), vs...)
	}
	form.Set("api_id", c.apiID)
	form.Set("api_key", c.apiKey)
	form.Set("call", call)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build hostbill request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("hostbill %s: %w", call, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read hostbill %s response: %w", call, err)
	}
	if resp.StatusCode >= 300 {
		return gjson.Result{}, newHTTPStatusError(resp.StatusCode, resp.Status, body)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w (call %s)", errInvalidJSON, call)
	}

	res := gjson.ParseBytes(body)
	if apiErr := errorFromResult(call, res); apiErr != nil {
		return gjson.Result{}, apiErr
	}
	return res, nil
}

func errorFromResult(call string, res gjson.Result) *APIError {
	success := res.Get("success")
	errField := res.Get("error")
	hasErr := false
	switch {
	case errField.IsArray():
		hasErr = len(errField.Array()) > 0
	case errField.Type == gjson.String:
		hasErr = errField.String() != ""
	}
	if !hasErr && (!success.Exists() || success.Bool()) {
		return nil
	}

	apiErr := &APIError{Call: call}
	if errField.IsArray() {
		for _, v := range errField.Array() {
			apiErr.Messages = append(apiErr.Messages, v.String())
		}
	} else if hasErr {
		apiErr.Messages = append(apiErr.Messages, errField.String())
	}
	return apiErr
}
