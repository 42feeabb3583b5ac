package cli

import (
	"fmt"

	"cloudvps-middleware/internal/gateway/payu"
	"cloudvps-middleware/internal/models"

	"github.com/spf13/cobra"
)

func payuCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "payu",
		Short: "PayU helpers",
	}
	c.AddCommand(payuHashCmd(a))
	return c
}

func payuHashCmd(a *app) *cobra.Command {
	var (
		req     payu.Request
		amount  string
		invoice string
		order   string
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the request hash PayU expects for a checkout form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.PayU.Key == "" || a.cfg.PayU.Salt == "" {
				return payu.ErrNotConfigured
			}
			cents, err := models.ParseCents(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			req.AmountCents = cents
			req.UDF[payu.UDFInvoiceID] = invoice
			req.UDF[payu.UDFOrderID] = order
			if req.TxnID == "" {
				req.TxnID = payu.NewTxnID(invoice)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "txnid  %s\n", req.TxnID)
			fmt.Fprintf(out, "amount %s\n", req.Amount())
			fmt.Fprintf(out, "hash   %s\n", payu.RequestHash(a.cfg.PayU.Key, a.cfg.PayU.Salt, req))
			return nil
		},
	}

	cmd.Flags().StringVar(&req.TxnID, "txnid", "", "transaction ID (default: generated from --invoice)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 242.00")
	cmd.Flags().StringVar(&req.ProductInfo, "productinfo", "", "product description")
	cmd.Flags().StringVar(&req.FirstName, "firstname", "", "customer first name")
	cmd.Flags().StringVar(&req.Email, "email", "", "customer email")
	cmd.Flags().StringVar(&invoice, "invoice", "", "HostBill invoice ID (udf1)")
	cmd.Flags().StringVar(&order, "order", "", "HostBill order ID (udf2)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
