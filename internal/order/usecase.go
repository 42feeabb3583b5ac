package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrInvalidOrder = errors.New("invalid order")
	ErrOrderActive  = errors.New("order is already active")
)

type HostBill interface {
	AddClient(ctx context.Context, c models.Client) (string, error)
	AddOrder(ctx context.Context, p hostbill.OrderParams) (*hostbill.OrderResult, error)
	GetOrderDetails(ctx context.Context, id string) (*models.Order, error)
	CancelOrder(ctx context.Context, id string) error
	GetInvoiceDetails(ctx context.Context, id string) (*models.Invoice, error)
}

type Translator interface {
	Translate(req models.OrderRequest) (hostbill.OrderParams, error)
}

type UseCase struct {
	hostbill HostBill
	catalog  Translator
	// gateway name -> HostBill payment module
	modules map[string]string
	metrics *telemetry.Metrics
	log     *zap.Logger
	tracer  trace.Tracer
}

func NewUseCase(hb HostBill, catalog Translator, modules map[string]string, metrics *telemetry.Metrics, log *zap.Logger, tracer trace.Tracer) *UseCase {
	return &UseCase{hostbill: hb, catalog: catalog, modules: modules, metrics: metrics, log: log, tracer: tracer}
}

// PlaceOrder creates the client when needed, then the HostBill order with its
// invoice. Payment is started separately with the returned invoice ID.
func (uc *UseCase) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "PlaceOrder",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("order.product_id", req.ProductID),
			attribute.String("order.cycle", req.Cycle),
			attribute.String("order.gateway", req.Gateway),
			attribute.Int("order.addons_count", len(req.Addons)),
		),
	)
	defer span.End()

	order, err := uc.placeOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.OrdersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return nil, err
	}

	uc.metrics.OrdersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	uc.metrics.OrderValueCents.Record(ctx, order.TotalCents)
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.invoice_id", order.InvoiceID),
	)
	span.SetStatus(codes.Ok, "")
	uc.log.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("client_id", order.ClientID),
		zap.String("invoice_id", order.InvoiceID),
		zap.Int64("total_cents", order.TotalCents),
	)
	return order, nil
}

func (uc *UseCase) placeOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	params, err := uc.catalog.Translate(req)
	if err != nil {
		return nil, err
	}
	module, ok := uc.modules[req.Gateway]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported gateway %q", ErrInvalidOrder, req.Gateway)
	}
	params.Gateway = module

	if params.ClientID == "" {
		id, err := uc.hostbill.AddClient(ctx, *req.Client)
		if err != nil {
			return nil, fmt.Errorf("create client %s: %w", req.Client.Email, err)
		}
		params.ClientID = id
		uc.log.Info("client created", zap.String("client_id", id), zap.String("email", req.Client.Email))
	}

	res, err := uc.hostbill.AddOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("add order: %w", err)
	}

	order := &models.Order{
		ID:         res.OrderID,
		ClientID:   params.ClientID,
		InvoiceID:  res.InvoiceID,
		ProductID:  params.ProductID,
		Status:     models.OrderStatusPending,
		TotalCents: res.TotalCents,
		CreatedAt:  time.Now().UTC(),
	}
	if res.InvoiceID == "" {
		return order, nil
	}
	inv, err := uc.hostbill.GetInvoiceDetails(ctx, res.InvoiceID)
	if err != nil {
		// The order exists; the storefront can still fetch the invoice later.
		uc.log.Warn("failed to read back invoice", zap.String("invoice_id", res.InvoiceID), zap.Error(err))
		return order, nil
	}
	order.TotalCents = inv.TotalCents
	order.Currency = inv.Currency
	return order, nil
}

func validate(req models.OrderRequest) error {
	var missing []string
	if req.ProductID == "" {
		missing = append(missing, "product_id")
	}
	if req.Gateway == "" {
		missing = append(missing, "gateway")
	}
	if req.ClientID == "" {
		switch {
		case req.Client == nil:
			missing = append(missing, "client_id or client")
		default:
			if req.Client.Email == "" {
				missing = append(missing, "client.email")
			}
			if req.Client.FirstName == "" {
				missing = append(missing, "client.firstname")
			}
			if req.Client.LastName == "" {
				missing = append(missing, "client.lastname")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidOrder, strings.Join(missing, ", "))
	}
	return nil
}

func (uc *UseCase) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := uc.hostbill.GetOrderDetails(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return order, nil
}

// CancelOrder cancels a pending order. Active orders are refused; they are
// terminated through HostBill's own account tools.
func (uc *UseCase) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "CancelOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := uc.hostbill.GetOrderDetails(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	switch order.Status {
	case models.OrderStatusCancelled:
		span.SetStatus(codes.Ok, "")
		return order, nil
	case models.OrderStatusActive:
		span.SetStatus(codes.Error, "order active")
		return nil, fmt.Errorf("order %s: %w", id, ErrOrderActive)
	}
	if err := uc.hostbill.CancelOrder(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cancel order %s: %w", id, err)
	}
	order.Status = models.OrderStatusCancelled
	span.SetStatus(codes.Ok, "")
	uc.log.Info("order cancelled", zap.String("order_id", id), zap.String("invoice_id", order.InvoiceID))
	return order, nil
}

func (uc *UseCase) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	ctx, span := uc.tracer.Start(ctx, "GetInvoice", trace.WithAttributes(attribute.String("invoice.id", id)))
	defer span.End()

	inv, err := uc.hostbill.GetInvoiceDetails(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return inv, nil
}
