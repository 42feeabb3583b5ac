package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloudvps-middleware/internal/kafka"
	"cloudvps-middleware/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Processor consumes payment events: confirmed and reconciled payments are
// captured and their orders provisioned; the outcome goes to the order topic.
type Processor struct {
	uc     *UseCase
	orders Publisher
}

func NewProcessor(uc *UseCase, orders Publisher) *Processor {
	return &Processor{uc: uc, orders: orders}
}

func (p *Processor) Handle(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	ctx, span := p.uc.tracer.Start(ctx, "ProcessPaymentEvent",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("billing.event_type", msg.Type)),
	)
	defer span.End()

	var evt models.PaymentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal payment event")
		return fmt.Errorf("%w: decode payment event: %v", kafka.ErrSkip, err)
	}
	if evt.Type == "" {
		evt.Type = msg.Type
	}
	span.SetAttributes(
		attribute.String("payment.invoice_id", evt.InvoiceID),
		attribute.String("payment.transaction_id", evt.TransactionID),
	)

	err := p.handle(ctx, evt)
	p.uc.metrics.ProcessingTime.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("type", evt.Type)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Processor) handle(ctx context.Context, evt models.PaymentEvent) error {
	switch evt.Type {
	case models.EventPaymentConfirmed, models.EventPaymentReconcile:
	case models.EventPaymentAuthorized:
		p.uc.log.Info("payment authorized, awaiting manual capture",
			zap.String("invoice_id", evt.InvoiceID),
			zap.String("transaction_id", evt.TransactionID),
		)
		return nil
	default:
		return fmt.Errorf("%w: unknown event type %q", kafka.ErrSkip, evt.Type)
	}

	sess, err := p.uc.sessions.Get(ctx, evt.TransactionID)
	if errors.Is(err, ErrSessionNotFound) {
		sess = sessionFromEvent(evt)
	} else if err != nil {
		return err
	}
	if sess.Status == models.PaymentProvisioned {
		p.uc.log.Info("payment already provisioned",
			zap.String("invoice_id", sess.InvoiceID),
			zap.String("transaction_id", sess.TransactionID),
		)
		return nil
	}

	res, err := p.uc.CaptureAndProvision(ctx, sess)
	if err != nil {
		if !permanent(err) {
			return err
		}
		p.uc.log.Error("capture failed",
			zap.String("invoice_id", evt.InvoiceID),
			zap.String("order_id", sess.OrderID),
			zap.Error(err),
		)
		if res == nil || (!res.Captured && !res.AlreadyPaid) {
			if markErr := p.uc.markSession(ctx, sess, models.PaymentFailed, err.Error()); markErr != nil {
				p.uc.log.Warn("failed to mark session failed", zap.Error(markErr))
			}
		}
		return p.publishOrder(ctx, models.EventOrderCaptureFailed, sess, err.Error())
	}

	if !res.Provisioned {
		return nil
	}
	detail := "captured"
	if res.AlreadyPaid {
		detail = "invoice already paid"
	}
	return p.publishOrder(ctx, models.EventOrderProvisioned, sess, detail)
}

func (p *Processor) publishOrder(ctx context.Context, eventType string, sess *models.PaymentSession, detail string) error {
	evt := models.OrderEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		OrderID:    sess.OrderID,
		InvoiceID:  sess.InvoiceID,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if err := p.orders.Publish(ctx, sess.InvoiceID, eventType, evt); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func sessionFromEvent(evt models.PaymentEvent) *models.PaymentSession {
	return &models.PaymentSession{
		TransactionID: evt.TransactionID,
		Gateway:       evt.Gateway,
		InvoiceID:     evt.InvoiceID,
		OrderID:       evt.OrderID,
		AmountCents:   evt.AmountCents,
		Currency:      evt.Currency,
		Status:        models.PaymentPaid,
		CreatedAt:     evt.OccurredAt,
	}
}
