package payment

import (
	"context"
	"errors"
	"fmt"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Capture records the gateway payment on the HostBill invoice. The invoice
// status is read first: an invoice that is already Paid is reported as such
// and addInvoicePayment is not called again, so replays of the same payment
// event are harmless.
func (uc *UseCase) Capture(ctx context.Context, sess *models.PaymentSession) (*models.CaptureResult, error) {
	ctx, span := uc.tracer.Start(ctx, "CapturePayment",
		trace.WithAttributes(
			attribute.String("payment.invoice_id", sess.InvoiceID),
			attribute.String("payment.transaction_id", sess.TransactionID),
			attribute.String("payment.gateway", sess.Gateway),
		),
	)
	defer span.End()

	res, err := uc.capture(ctx, sess)
	status := "captured"
	switch {
	case err != nil:
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.AlreadyPaid:
		status = "already_paid"
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("payment.capture", status))
	uc.metrics.PaymentsCaptured.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", sess.Gateway), attribute.String("status", status)))
	return res, err
}

func (uc *UseCase) capture(ctx context.Context, sess *models.PaymentSession) (*models.CaptureResult, error) {
	res := &models.CaptureResult{InvoiceID: sess.InvoiceID, OrderID: sess.OrderID}

	inv, err := uc.hostbill.GetInvoiceDetails(ctx, sess.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", sess.InvoiceID, err)
	}
	if inv.IsPaid() {
		res.AlreadyPaid = true
		uc.log.Info("invoice already paid, skipping capture",
			zap.String("invoice_id", inv.ID),
			zap.String("transaction_id", sess.TransactionID),
		)
		return res, uc.markSession(ctx, sess, models.PaymentCaptured, "")
	}
	if inv.Status == models.InvoiceStatusCancelled {
		return nil, fmt.Errorf("invoice %s: %w", inv.ID, ErrInvoiceCancelled)
	}

	amount := sess.AmountCents
	if amount <= 0 {
		amount = inv.TotalCents
	}

	if sess.Gateway == models.GatewayComgate && sess.Preauth && sess.Status == models.PaymentAuthorized {
		if err := uc.comgate.CapturePreauth(ctx, sess.TransactionID, amount); err != nil {
			return nil, fmt.Errorf("capture comgate pre-authorization %s: %w", sess.TransactionID, err)
		}
		// The money is collected now; a retry after a HostBill failure must
		// not ask Comgate to capture the same pre-authorization again.
		if err := uc.markSession(ctx, sess, models.PaymentPaid, "pre-authorization captured"); err != nil {
			return nil, fmt.Errorf("save session %s: %w", sess.TransactionID, err)
		}
	}

	err = uc.hostbill.AddInvoicePayment(ctx, hostbill.PaymentParams{
		InvoiceID:     inv.ID,
		AmountCents:   amount,
		Module:        uc.module(sess.Gateway),
		TransactionID: sess.TransactionID,
		SendEmail:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("add payment to invoice %s: %w", inv.ID, err)
	}
	res.Captured = true
	uc.log.Info("payment captured",
		zap.String("invoice_id", inv.ID),
		zap.String("transaction_id", sess.TransactionID),
		zap.Int64("amount_cents", amount),
	)
	return res, uc.markSession(ctx, sess, models.PaymentCaptured, "")
}

// Provision activates the HostBill order. An order that is already Active is
// left alone.
func (uc *UseCase) Provision(ctx context.Context, orderID string) (bool, error) {
	ctx, span := uc.tracer.Start(ctx, "ProvisionOrder",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	order, err := uc.hostbill.GetOrderDetails(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order.Status == models.OrderStatusActive {
		span.SetAttributes(attribute.Bool("order.already_active", true))
		span.SetStatus(codes.Ok, "")
		return false, nil
	}
	if err := uc.hostbill.AcceptOrder(ctx, orderID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.OrdersProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return false, fmt.Errorf("accept order %s: %w", orderID, err)
	}
	uc.metrics.OrdersProvisioned.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	span.SetStatus(codes.Ok, "")
	uc.log.Info("order provisioned", zap.String("order_id", orderID), zap.String("invoice_id", order.InvoiceID))
	return true, nil
}

// CaptureTransaction is the manual capture: it checks the gateway status when
// the session has not been confirmed yet, then captures and provisions.
func (uc *UseCase) CaptureTransaction(ctx context.Context, transID string) (*models.CaptureResult, error) {
	sess, err := uc.sessions.Get(ctx, transID)
	if err != nil {
		return nil, err
	}

	if sess.Status == models.PaymentPending && sess.Gateway == models.GatewayComgate {
		st, err := uc.comgate.Status(ctx, transID)
		if err != nil {
			return nil, fmt.Errorf("comgate status %s: %w", transID, err)
		}
		next, _ := comgateTransition(st.Status)
		if advance(sess, next, "") {
			if err := uc.sessions.Save(ctx, sess); err != nil {
				return nil, err
			}
		}
	}

	switch sess.Status {
	case models.PaymentPaid, models.PaymentAuthorized, models.PaymentCaptured:
	case models.PaymentProvisioned:
		return &models.CaptureResult{InvoiceID: sess.InvoiceID, OrderID: sess.OrderID, AlreadyPaid: true, Provisioned: true}, nil
	default:
		return nil, fmt.Errorf("transaction %s is %s: %w", transID, sess.Status, ErrNotCapturable)
	}
	return uc.CaptureAndProvision(ctx, sess)
}

// CaptureAndProvision runs capture then, when the session knows its order,
// provisioning.
func (uc *UseCase) CaptureAndProvision(ctx context.Context, sess *models.PaymentSession) (*models.CaptureResult, error) {
	res, err := uc.Capture(ctx, sess)
	if err != nil {
		return nil, err
	}
	if sess.OrderID == "" {
		return res, nil
	}
	if _, err := uc.Provision(ctx, sess.OrderID); err != nil {
		return res, err
	}
	res.Provisioned = true
	return res, uc.markSession(ctx, sess, models.PaymentProvisioned, "")
}

func (uc *UseCase) markSession(ctx context.Context, sess *models.PaymentSession, status, detail string) error {
	if !advance(sess, status, detail) {
		return nil
	}
	return uc.sessions.Save(ctx, sess)
}

func (uc *UseCase) module(gateway string) string {
	if gateway == models.GatewayPayU {
		return uc.modules.PayU
	}
	return uc.modules.Comgate
}

// permanent reports errors a retry will not fix.
func permanent(err error) bool {
	var hbErr *hostbill.APIError
	var cgErr *comgate.APIError
	return errors.As(err, &hbErr) || errors.As(err, &cgErr) ||
		errors.Is(err, ErrInvoiceCancelled) || errors.Is(err, ErrNotCapturable)
}
