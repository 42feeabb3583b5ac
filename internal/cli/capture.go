package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/kafka"
	"cloudvps-middleware/internal/models"
	"cloudvps-middleware/internal/payment"
	"cloudvps-middleware/internal/telemetry"

	"github.com/spf13/cobra"
)

func captureCmd(a *app) *cobra.Command {
	var (
		amount  string
		module  string
		transID string
		order   string
		preauth bool
	)

	cmd := &cobra.Command{
		Use:   "capture <invoice-id>",
		Short: "Record a gateway payment on an invoice unless it is already paid",
		Long: `Record a gateway payment on an invoice unless it is already paid.

When --trans names a transaction the middleware has a payment session for, the
capture runs exactly as POST /payments/:transId/capture does: a Comgate
pre-authorization is captured at the gateway first and the session is updated.
Without a session the payment is recorded in HostBill directly; pass --preauth
to capture a Comgate pre-authorization before that.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			handled := false
			if transID != "" {
				handled, err = a.captureSession(ctx, out, hb, args[0], transID)
				if err != nil {
					return err
				}
			}
			if !handled {
				if err := a.captureDirect(ctx, out, hb, args[0], transID, amount, module, preauth); err != nil {
					return err
				}
			}

			if order == "" {
				return nil
			}
			return acceptOrder(ctx, out, hb, order)
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount to record (default: invoice total)")
	cmd.Flags().StringVar(&module, "module", "", "HostBill payment module (default: HOSTBILL_COMGATE_MODULE)")
	cmd.Flags().StringVar(&transID, "trans", "", "gateway transaction ID")
	cmd.Flags().StringVar(&order, "order", "", "also activate this order")
	cmd.Flags().BoolVar(&preauth, "preauth", false, "capture the Comgate pre-authorization --trans before recording (no session only)")
	return cmd
}

// captureSession captures through the payment session of transID. It reports
// false when no session exists.
func (a *app) captureSession(ctx context.Context, out io.Writer, hb *hostbill.Client, invoiceID, transID string) (bool, error) {
	sessions, release := a.sessionStore()
	defer release()

	sess, err := sessions.Get(ctx, transID)
	if errors.Is(err, payment.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load payment session %s: %w", transID, err)
	}
	if sess.InvoiceID != invoiceID {
		return false, fmt.Errorf("transaction %s belongs to invoice %s, not %s", transID, sess.InvoiceID, invoiceID)
	}

	events := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.PaymentTopic, telemetry.NopMetrics())
	defer events.Close()

	uc := payment.NewUseCase(payment.Deps{
		HostBill:  hb,
		Comgate:   a.comgateClient(),
		Sessions:  sessions,
		Publisher: events,
		Modules: payment.Modules{
			Comgate: a.cfg.HostBill.ComgateModule,
			PayU:    a.cfg.HostBill.PayUModule,
		},
		Metrics: telemetry.NopMetrics(),
		Log:     a.log,
		Tracer:  a.tracer,
	})
	res, err := uc.CaptureTransaction(ctx, transID)
	if err != nil {
		return true, err
	}

	switch {
	case res.AlreadyPaid:
		fmt.Fprintf(out, "invoice %s is already paid, nothing to capture\n", invoiceID)
	case res.Captured:
		fmt.Fprintf(out, "captured %s %s on invoice %s via %s session %s\n",
			models.FormatCents(sess.AmountCents), sess.Currency, invoiceID, sess.Gateway, transID)
	}
	if res.Provisioned {
		fmt.Fprintf(out, "order %s accepted\n", res.OrderID)
	}
	return true, nil
}

func (a *app) captureDirect(ctx context.Context, out io.Writer, hb *hostbill.Client, invoiceID, transID, amount, module string, preauth bool) error {
	inv, err := hb.GetInvoiceDetails(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.IsPaid() {
		fmt.Fprintf(out, "invoice %s is already paid, nothing to capture\n", inv.ID)
		return nil
	}

	cents := inv.TotalCents
	if amount != "" {
		if cents, err = models.ParseCents(amount); err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
	}
	if module == "" {
		module = a.cfg.HostBill.ComgateModule
	}

	if preauth {
		if transID == "" {
			return errors.New("--preauth needs --trans")
		}
		cg, err := a.comgate()
		if err != nil {
			return err
		}
		if err := cg.CapturePreauth(ctx, transID, cents); err != nil {
			return fmt.Errorf("capture comgate pre-authorization %s: %w", transID, err)
		}
		fmt.Fprintf(out, "pre-authorization %s captured at Comgate\n", transID)
	}

	err = hb.AddInvoicePayment(ctx, hostbill.PaymentParams{
		InvoiceID:     inv.ID,
		AmountCents:   cents,
		Module:        module,
		TransactionID: transID,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "captured %s %s on invoice %s via %s\n", models.FormatCents(cents), inv.Currency, inv.ID, module)
	return nil
}

func acceptOrder(ctx context.Context, out io.Writer, hb *hostbill.Client, orderID string) error {
	o, err := hb.GetOrderDetails(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == models.OrderStatusActive {
		fmt.Fprintf(out, "order %s is already active\n", o.ID)
		return nil
	}
	if err := hb.AcceptOrder(ctx, orderID); err != nil {
		return err
	}
	fmt.Fprintf(out, "order %s accepted\n", orderID)
	return nil
}
