package cli

import "github.com/spf13/cobra"

func orderCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "order",
		Short: "Read and activate HostBill orders",
	}
	c.AddCommand(orderGetCmd(a), orderAcceptCmd(a))
	return c
}

func orderGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <order-id>",
		Short: "Print an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			order, err := hb.GetOrderDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), order)
		},
	}
}

func orderAcceptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <order-id>",
		Short: "Activate an order and run its provisioning module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			return acceptOrder(cmd.Context(), cmd.OutOrStdout(), hb, args[0])
		},
	}
}
