package cli

import (
	"fmt"

	"cloudvps-middleware/internal/gateway/comgate"
	"cloudvps-middleware/internal/models"

	"github.com/spf13/cobra"
)

func comgateCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "comgate",
		Short: "Query and manage Comgate transactions",
	}
	c.AddCommand(comgateStatusCmd(a), comgateCancelCmd(a), comgateRefundCmd(a))
	return c
}

func (a *app) comgate() (*comgate.Client, error) {
	cg := a.comgateClient()
	if !cg.Configured() {
		return nil, comgate.ErrNotConfigured
	}
	return cg, nil
}

func (a *app) comgateClient() *comgate.Client {
	return comgate.New(comgate.Config{
		BaseURL:  a.cfg.Comgate.BaseURL,
		Merchant: a.cfg.Comgate.Merchant,
		Secret:   a.cfg.Comgate.Secret,
		Test:     a.cfg.Comgate.Test,
		Preauth:  a.cfg.Comgate.Preauth,
		Method:   a.cfg.Comgate.Method,
		Currency: a.cfg.Comgate.Currency,
	}, comgate.WithTracer(a.tracer))
}

func comgateStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <trans-id>",
		Short: "Print the gateway's view of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cg, err := a.comgate()
			if err != nil {
				return err
			}
			st, err := cg.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s %s  invoice %s  fee %s\n",
				st.TransID, st.Status, models.FormatCents(st.PriceCents), st.Currency, st.RefID, models.FormatCents(st.FeeCents))
			return nil
		},
	}
}

func comgateCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <trans-id>",
		Short: "Release a pre-authorized payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cg, err := a.comgate()
			if err != nil {
				return err
			}
			if err := cg.CancelPreauth(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preauth %s cancelled\n", args[0])
			return nil
		},
	}
}

func comgateRefundCmd(a *app) *cobra.Command {
	var (
		amount   string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "refund <trans-id>",
		Short: "Refund a paid transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cg, err := a.comgate()
			if err != nil {
				return err
			}
			cents, err := models.ParseCents(amount)
			if err != nil || cents <= 0 {
				return fmt.Errorf("--amount must be a positive amount")
			}
			if err := cg.Refund(cmd.Context(), args[0], cents, currency); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refunded %s on %s\n", models.FormatCents(cents), args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount to refund, e.g. 242.00")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default: the transaction's)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
