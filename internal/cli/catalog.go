package cli

import (
	"fmt"
	"text/tabwriter"

	"cloudvps-middleware/internal/catalog"

	"github.com/spf13/cobra"
)

func catalogCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the storefront to HostBill catalog mapping",
	}
	c.AddCommand(catalogMapCmd(a), catalogPagesCmd(a))
	return c
}

func catalogMapCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Print the mapping in effect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.Catalog.MappingFile
			}
			m, err := catalog.LoadMapping(file)
			if err != nil {
				return err
			}
			source := file
			if source == "" {
				source = "built-in default"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mapping: %s\n\n", source)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tSTOREFRONT\tHOSTBILL")
			for _, e := range m.Entries() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Storefront, e.HostBill)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "mapping YAML (default: CATALOG_MAPPING_FILE)")
	return cmd
}

func catalogPagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List HostBill order pages (the categories a mapping can expose)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hb, err := a.hostbill()
			if err != nil {
				return err
			}
			pages, err := hb.GetOrderPages(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSLUG")
			for _, p := range pages {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Slug)
			}
			return w.Flush()
		},
	}
}
