package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"cloudvps-middleware/internal/hostbill"
	"cloudvps-middleware/internal/models"

	"github.com/spf13/cobra"
)

func invoiceCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "invoice",
		Short: "Read HostBill invoices",
	}
	c.AddCommand(invoiceGetCmd(a), invoiceListCmd(a), invoiceWatchCmd(a))
	return c
}

func invoiceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <invoice-id>",
		Short: "Print an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			inv, err := hb.GetInvoiceDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inv)
		},
	}
}

func invoiceListCmd(a *app) *cobra.Command {
	var (
		status string
		page   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			invoices, err := hb.GetInvoices(cmd.Context(), hostbill.InvoiceFilter{List: status, Page: page})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCLIENT\tSTATUS\tTOTAL")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s %s\n", inv.ID, inv.ClientID, inv.Status, models.FormatCents(inv.TotalCents), inv.Currency)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "unpaid", "all, paid, unpaid or cancelled")
	cmd.Flags().IntVar(&page, "page", 0, "result page")
	return cmd
}

func invoiceWatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <invoice-id>",
		Short: "Poll an invoice until it is paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			last := ""
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				inv, err := hb.GetInvoiceDetails(ctx, args[0])
				if err != nil {
					if errors.Is(ctx.Err(), context.DeadlineExceeded) {
						return fmt.Errorf("invoice %s not paid after %s (last status %q)", args[0], timeout, last)
					}
					return err
				}
				if inv.Status != last {
					fmt.Fprintf(out, "%s  invoice %s  %s  %s %s\n",
						time.Now().Format(time.TimeOnly), inv.ID, inv.Status, models.FormatCents(inv.TotalCents), inv.Currency)
					last = inv.Status
				}
				if inv.IsPaid() || inv.Status == models.InvoiceStatusCancelled {
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("invoice %s not paid after %s (last status %q)", args[0], timeout, last)
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	return cmd
}
