package payment

import (
	"context"
	"time"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type ReconcileOptions struct {
	// Sessions older than this are cancelled.
	MaxAge time.Duration
	// Paid sessions not captured within this window are published again.
	StaleAfter time.Duration
}

type ReconcileStats struct {
	Checked     int
	Republished int
	Cancelled   int
	Errors      int
}

// Reconcile walks the pending sessions and catches up with what the gateway
// and HostBill know: missed Comgate callbacks, payments made outside the
// gateway, cancelled invoices and abandoned checkouts.
func (uc *UseCase) Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileStats, error) {
	ctx, span := uc.tracer.Start(ctx, "ReconcileSessions")
	defer span.End()

	var stats ReconcileStats
	pending, err := uc.sessions.Pending(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, err
	}

	now := time.Now()
	for _, sess := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		if err := uc.reconcileOne(ctx, sess, now, opts, &stats); err != nil {
			stats.Errors++
			uc.log.Warn("reconcile session failed",
				zap.String("transaction_id", sess.TransactionID),
				zap.String("invoice_id", sess.InvoiceID),
				zap.Error(err),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("reconcile.checked", stats.Checked),
		attribute.Int("reconcile.republished", stats.Republished),
		attribute.Int("reconcile.cancelled", stats.Cancelled),
		attribute.Int("reconcile.errors", stats.Errors),
	)
	span.SetStatus(codes.Ok, "")
	return stats, nil
}

func (uc *UseCase) reconcileOne(ctx context.Context, sess *models.PaymentSession, now time.Time, opts ReconcileOptions, stats *ReconcileStats) error {
	if sess.Gateway == models.GatewayComgate && uc.comgate.Configured() {
		st, err := uc.comgate.Status(ctx, sess.TransactionID)
		if err != nil {
			return err
		}
		switch st.Status {
		case comgate.StatusPaid, comgate.StatusAuthorized:
			next, eventType := comgateTransition(st.Status)
			if advance(sess, next, "") {
				if err := uc.sessions.Save(ctx, sess); err != nil {
					return err
				}
				if next == models.PaymentPaid {
					eventType = models.EventPaymentReconcile
				}
				stats.Republished++
				return uc.publishPayment(ctx, eventType, sess)
			}
		case comgate.StatusCancelled:
			stats.Cancelled++
			return uc.markSession(ctx, sess, models.PaymentCancelled, "cancelled at gateway")
		}
	}

	inv, err := uc.hostbill.GetInvoiceDetails(ctx, sess.InvoiceID)
	if err != nil {
		return err
	}
	switch {
	case inv.IsPaid() && sess.Status == models.PaymentPending:
		return uc.markSession(ctx, sess, models.PaymentCaptured, "invoice paid in HostBill")
	case inv.Status == models.InvoiceStatusCancelled:
		detail := "invoice cancelled"
		if sess.Status == models.PaymentPaid || sess.Status == models.PaymentAuthorized {
			detail = "invoice cancelled after payment, refund required"
			uc.log.Warn("invoice cancelled in HostBill after the gateway took the payment",
				zap.String("invoice_id", sess.InvoiceID),
				zap.String("transaction_id", sess.TransactionID),
				zap.String("gateway", sess.Gateway),
				zap.String("session_status", sess.Status),
				zap.Int64("amount_cents", sess.AmountCents),
			)
		}
		stats.Cancelled++
		return uc.markSession(ctx, sess, models.PaymentCancelled, detail)
	}

	age := now.Sub(sess.CreatedAt)
	idle := now.Sub(sess.UpdatedAt)
	switch sess.Status {
	case models.PaymentPaid:
		if opts.StaleAfter > 0 && idle > opts.StaleAfter {
			// Save bumps UpdatedAt so the next republish waits another window.
			if err := uc.sessions.Save(ctx, sess); err != nil {
				return err
			}
			stats.Republished++
			return uc.publishPayment(ctx, models.EventPaymentReconcile, sess)
		}
	case models.PaymentPending:
		if opts.MaxAge > 0 && age > opts.MaxAge {
			stats.Cancelled++
			return uc.markSession(ctx, sess, models.PaymentCancelled, "checkout abandoned")
		}
	}
	return nil
}
