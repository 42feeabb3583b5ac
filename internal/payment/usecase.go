// Package payment runs the payment side of an order: gateway checkout, gateway
// notifications, recording the payment in HostBill ("capture") and activating
// the order ("provision").
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloudvps-middleware/internal/cache"
	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrAlreadyPaid          = errors.New("invoice is already paid")
	ErrInvoiceCancelled     = errors.New("invoice is cancelled")
	ErrUnsupportedGateway   = errors.New("unsupported payment gateway")
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	ErrInvalidCallback      = errors.New("invalid gateway callback")
	ErrAmountMismatch       = errors.New("paid amount does not match the session")
	ErrNotCapturable        = errors.New("payment is not paid or authorized")
	ErrSessionNotFound      = cache.ErrSessionNotFound
)

type HostBill interface {
	GetInvoiceDetails(ctx context.Context, id string) (*models.Invoice, error)
	GetClientDetails(ctx context.Context, id string) (*models.Client, error)
	AddInvoicePayment(ctx context.Context, p hostbill.PaymentParams) error
	GetOrderDetails(ctx context.Context, id string) (*models.Order, error)
	AcceptOrder(ctx context.Context, id string) error
}

type Comgate interface {
	Configured() bool
	Preauth() bool
	Create(ctx context.Context, r comgate.CreateRequest) (*comgate.CreateResult, error)
	Status(ctx context.Context, transID string) (*comgate.Status, error)
	CapturePreauth(ctx context.Context, transID string, amountCents int64) error
	ParseCallback(form url.Values) (*comgate.Callback, error)
}

type Sessions interface {
	Save(ctx context.Context, sess *models.PaymentSession) error
	Get(ctx context.Context, transID string) (*models.PaymentSession, error)
	Pending(ctx context.Context) ([]*models.PaymentSession, error)
	FirstSeen(ctx context.Context, gateway, transID, status string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value any) error
}

// Modules are the HostBill payment module names recorded with each payment.
type Modules struct {
	Comgate string
	PayU    string
}

type Deps struct {
	HostBill  HostBill
	Comgate   Comgate
	PayU      *payu.Gateway
	Sessions  Sessions
	Publisher Publisher
	Modules   Modules
	// Storefront page the customer lands on after a PayU redirect.
	ResultURL string
	Metrics   *telemetry.Metrics
	Log       *zap.Logger
	Tracer    trace.Tracer
}

type UseCase struct {
	hostbill  HostBill
	comgate   Comgate
	payu      *payu.Gateway
	sessions  Sessions
	publisher Publisher
	modules   Modules
	resultURL string
	metrics   *telemetry.Metrics
	log       *zap.Logger
	tracer    trace.Tracer
}

func NewUseCase(d Deps) *UseCase {
	return &UseCase{
		hostbill:  d.HostBill,
		comgate:   d.Comgate,
		payu:      d.PayU,
		sessions:  d.Sessions,
		publisher: d.Publisher,
		modules:   d.Modules,
		resultURL: d.ResultURL,
		metrics:   d.Metrics,
		log:       d.Log,
		tracer:    d.Tracer,
	}
}

type InitiateRequest struct {
	InvoiceID string `json:"invoice_id"`
	OrderID   string `json:"order_id"`
	Gateway   string `json:"gateway"`
	Email     string `json:"email"`
}

// Initiate starts a gateway checkout for an unpaid invoice and stores the
// payment session.
func (uc *UseCase) Initiate(ctx context.Context, req InitiateRequest) (*models.Checkout, error) {
	ctx, span := uc.tracer.Start(ctx, "InitiatePayment",
		trace.WithAttributes(
			attribute.String("payment.invoice_id", req.InvoiceID),
			attribute.String("payment.gateway", req.Gateway),
		),
	)
	defer span.End()

	checkout, err := uc.initiate(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("payment.transaction_id", checkout.TransactionID))
		span.SetStatus(codes.Ok, "")
	}
	uc.metrics.PaymentsInitiated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", req.Gateway), attribute.String("status", status)))
	return checkout, err
}

func (uc *UseCase) initiate(ctx context.Context, req InitiateRequest) (*models.Checkout, error) {
	switch req.Gateway {
	case models.GatewayComgate:
		if !uc.comgate.Configured() {
			return nil, fmt.Errorf("%w: %s", ErrGatewayNotConfigured, req.Gateway)
		}
	case models.GatewayPayU:
		if !uc.payu.Configured() {
			return nil, fmt.Errorf("%w: %s", ErrGatewayNotConfigured, req.Gateway)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGateway, req.Gateway)
	}

	inv, err := uc.hostbill.GetInvoiceDetails(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", req.InvoiceID, err)
	}
	if err := checkPayable(inv); err != nil {
		return nil, err
	}

	client, err := uc.hostbill.GetClientDetails(ctx, inv.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client %s: %w", inv.ClientID, err)
	}
	email := req.Email
	if email == "" {
		email = client.Email
	}

	sess := &models.PaymentSession{
		Gateway:     req.Gateway,
		InvoiceID:   inv.ID,
		OrderID:     req.OrderID,
		AmountCents: inv.TotalCents,
		Currency:    inv.Currency,
		Email:       email,
		Status:      models.PaymentPending,
	}
	label := "Invoice " + inv.ID

	var checkout *models.Checkout
	switch req.Gateway {
	case models.GatewayComgate:
		res, err := uc.comgate.Create(ctx, comgate.CreateRequest{
			PriceCents: inv.TotalCents,
			Currency:   inv.Currency,
			Label:      label,
			RefID:      inv.ID,
			Email:      email,
			Country:    client.Country,
		})
		if err != nil {
			return nil, fmt.Errorf("comgate checkout for invoice %s: %w", inv.ID, err)
		}
		sess.TransactionID = res.TransID
		sess.Preauth = uc.comgate.Preauth()
		sess.RedirectURL = res.Redirect
		checkout = &models.Checkout{
			Gateway:       models.GatewayComgate,
			TransactionID: res.TransID,
			InvoiceID:     inv.ID,
			Method:        "GET",
			URL:           res.Redirect,
		}
	case models.GatewayPayU:
		var udf [5]string
		udf[payu.UDFInvoiceID] = inv.ID
		udf[payu.UDFOrderID] = req.OrderID
		checkout, err = uc.payu.Checkout(payu.Request{
			TxnID:       payu.NewTxnID(inv.ID),
			AmountCents: inv.TotalCents,
			ProductInfo: label,
			FirstName:   client.FirstName,
			Email:       email,
			Phone:       client.Phone,
			UDF:         udf,
		})
		if err != nil {
			return nil, fmt.Errorf("payu checkout for invoice %s: %w", inv.ID, err)
		}
		sess.TransactionID = checkout.TransactionID
		sess.RedirectURL = checkout.URL
	}

	if err := uc.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	uc.log.Info("payment initiated",
		zap.String("invoice_id", inv.ID),
		zap.String("order_id", req.OrderID),
		zap.String("gateway", req.Gateway),
		zap.String("transaction_id", sess.TransactionID),
		zap.Int64("amount_cents", sess.AmountCents),
	)
	return checkout, nil
}

func (uc *UseCase) Session(ctx context.Context, transID string) (*models.PaymentSession, error) {
	return uc.sessions.Get(ctx, transID)
}

func checkPayable(inv *models.Invoice) error {
	switch {
	case inv.IsPaid():
		return fmt.Errorf("invoice %s: %w", inv.ID, ErrAlreadyPaid)
	case inv.Status == models.InvoiceStatusCancelled:
		return fmt.Errorf("invoice %s: %w", inv.ID, ErrInvoiceCancelled)
	}
	return nil
}

var statusRank = map[string]int{
	models.PaymentPending:     0,
	models.PaymentAuthorized:  1,
	models.PaymentPaid:        2,
	models.PaymentCaptured:    3,
	models.PaymentProvisioned: 4,
}

// advance moves the session forward and reports whether it changed. Sessions
// never move backwards, and a captured payment cannot be cancelled.
func advance(s *models.PaymentSession, next, detail string) bool {
	if s.Status == next {
		return false
	}
	switch s.Status {
	case models.PaymentCancelled, models.PaymentFailed, models.PaymentProvisioned:
		return false
	}
	switch next {
	case models.PaymentCancelled, models.PaymentFailed:
		if s.Status == models.PaymentCaptured {
			return false
		}
	default:
		if statusRank[next] <= statusRank[s.Status] {
			return false
		}
	}
	s.Status = next
	if detail != "" {
		s.Detail = detail
	}
	return true
}

func (uc *UseCase) publishPayment(ctx context.Context, eventType string, sess *models.PaymentSession) error {
	evt := models.PaymentEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Gateway:       sess.Gateway,
		TransactionID: sess.TransactionID,
		InvoiceID:     sess.InvoiceID,
		OrderID:       sess.OrderID,
		AmountCents:   sess.AmountCents,
		Currency:      sess.Currency,
		OccurredAt:    time.Now().UTC(),
	}
	if err := uc.publisher.Publish(ctx, sess.InvoiceID, eventType, evt); err != nil {
		return fmt.Errorf("publish %s for invoice %s: %w", eventType, sess.InvoiceID, err)
	}
	return nil
}
