package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HandleComgateCallback applies a Comgate status notification. Repeated
// notifications for the same status are accepted but publish nothing.
func (uc *UseCase) HandleComgateCallback(ctx context.Context, form url.Values) (*models.PaymentSession, error) {
	ctx, span := uc.tracer.Start(ctx, "HandleComgateCallback")
	defer span.End()

	sess, err := uc.handleComgate(ctx, form)
	uc.recordCallback(ctx, span, models.GatewayComgate, sess, err)
	return sess, err
}

func (uc *UseCase) handleComgate(ctx context.Context, form url.Values) (*models.PaymentSession, error) {
	cb, err := uc.comgate.ParseCallback(form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}

	sess, err := uc.sessionFor(ctx, cb.TransID, func() *models.PaymentSession {
		return &models.PaymentSession{
			TransactionID: cb.TransID,
			Gateway:       models.GatewayComgate,
			InvoiceID:     cb.RefID,
			AmountCents:   cb.PriceCents,
			Currency:      cb.Currency,
			Email:         cb.Email,
			Status:        models.PaymentPending,
		}
	})
	if err != nil {
		return nil, err
	}
	if cb.RefID != sess.InvoiceID || cb.PriceCents != sess.AmountCents {
		return sess, fmt.Errorf("%w: transaction %s", ErrAmountMismatch, cb.TransID)
	}

	next, eventType := comgateTransition(cb.Status.Status)
	return sess, uc.apply(ctx, sess, cb.Status.Status, next, eventType, "")
}

func comgateTransition(status string) (next, eventType string) {
	switch status {
	case comgate.StatusPaid:
		return models.PaymentPaid, models.EventPaymentConfirmed
	case comgate.StatusAuthorized:
		return models.PaymentAuthorized, models.EventPaymentAuthorized
	case comgate.StatusCancelled:
		return models.PaymentCancelled, ""
	}
	return models.PaymentPending, ""
}

// HandlePayUResponse verifies the form PayU posts to surl/furl and applies it.
func (uc *UseCase) HandlePayUResponse(ctx context.Context, form url.Values) (*models.PaymentSession, error) {
	ctx, span := uc.tracer.Start(ctx, "HandlePayUResponse")
	defer span.End()

	sess, err := uc.handlePayU(ctx, form)
	uc.recordCallback(ctx, span, models.GatewayPayU, sess, err)
	return sess, err
}

func (uc *UseCase) handlePayU(ctx context.Context, form url.Values) (*models.PaymentSession, error) {
	resp, err := uc.payu.ParseResponse(form)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}

	sess, err := uc.sessionFor(ctx, resp.TxnID, func() *models.PaymentSession {
		return &models.PaymentSession{
			TransactionID: resp.TxnID,
			Gateway:       models.GatewayPayU,
			InvoiceID:     resp.InvoiceID(),
			OrderID:       resp.OrderID(),
			AmountCents:   resp.AmountCents,
			Email:         resp.Email,
			Status:        models.PaymentPending,
		}
	})
	if err != nil {
		return nil, err
	}
	if resp.InvoiceID() != sess.InvoiceID || resp.AmountCents != sess.AmountCents {
		return sess, fmt.Errorf("%w: transaction %s", ErrAmountMismatch, resp.TxnID)
	}

	if resp.Success() {
		return sess, uc.apply(ctx, sess, resp.Status, models.PaymentPaid, models.EventPaymentConfirmed, "")
	}
	detail := resp.ErrorMessage
	if detail == "" {
		detail = "payu status " + resp.Status
	}
	return sess, uc.apply(ctx, sess, resp.Status, models.PaymentFailed, "", detail)
}

// sessionFor loads the session or, when it expired or was never stored, builds
// one from the notification so the payment is not lost.
func (uc *UseCase) sessionFor(ctx context.Context, transID string, fallback func() *models.PaymentSession) (*models.PaymentSession, error) {
	sess, err := uc.sessions.Get(ctx, transID)
	if errors.Is(err, ErrSessionNotFound) {
		uc.log.Warn("callback for unknown payment session", zap.String("transaction_id", transID))
		return fallback(), nil
	}
	return sess, err
}

// apply de-duplicates the notification, moves the session and publishes
// eventType when the session actually changed.
func (uc *UseCase) apply(ctx context.Context, sess *models.PaymentSession, gatewayStatus, next, eventType, detail string) error {
	first, err := uc.sessions.FirstSeen(ctx, sess.Gateway, sess.TransactionID, gatewayStatus)
	if err != nil {
		return fmt.Errorf("dedupe callback %s: %w", sess.TransactionID, err)
	}
	if !first {
		uc.log.Info("duplicate callback ignored",
			zap.String("gateway", sess.Gateway),
			zap.String("transaction_id", sess.TransactionID),
			zap.String("status", gatewayStatus),
		)
		return nil
	}
	if !advance(sess, next, detail) {
		return nil
	}
	if err := uc.sessions.Save(ctx, sess); err != nil {
		return err
	}
	uc.log.Info("payment session updated",
		zap.String("gateway", sess.Gateway),
		zap.String("transaction_id", sess.TransactionID),
		zap.String("invoice_id", sess.InvoiceID),
		zap.String("status", sess.Status),
	)
	if eventType == "" {
		return nil
	}
	return uc.publishPayment(ctx, eventType, sess)
}

func (uc *UseCase) recordCallback(ctx context.Context, span trace.Span, gateway string, sess *models.PaymentSession, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrInvalidCallback) {
			result = "rejected"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if sess != nil {
		span.SetAttributes(
			attribute.String("payment.transaction_id", sess.TransactionID),
			attribute.String("payment.invoice_id", sess.InvoiceID),
			attribute.String("payment.status", sess.Status),
		)
	}
	uc.metrics.CallbacksReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gateway", gateway), attribute.String("result", result)))
}

// ResultURL is where the storefront shows the outcome of a PayU redirect.
func (uc *UseCase) ResultURL(sess *models.PaymentSession) string {
	q := url.Values{}
	if sess != nil {
		q.Set("invoice", sess.InvoiceID)
		q.Set("status", sess.Status)
	} else {
		q.Set("status", models.PaymentFailed)
	}
	return uc.resultURL + "?" + q.Encode()
}
