package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// modulesCmd lists HostBill payment modules; their IDs go into
// HOSTBILL_COMGATE_MODULE and HOSTBILL_PAYU_MODULE.
func modulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List HostBill payment modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			modules, err := hb.GetPaymentModules(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(modules))
			for id := range modules {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%s\n", id, modules[id])
			}
			return w.Flush()
		},
	}
}
