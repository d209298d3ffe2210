package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/docaudit/internal/collections"
)

func newCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List audited collections and their field descriptors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tFIELD\tKIND")
			for _, name := range collections.Names() {
				descriptors, _ := collections.Descriptors(name)
				for _, d := range descriptors {
					fmt.Fprintf(w, "%s\t%s\t%s\n", name, d.Field, d.Kind)
				}
			}
			return w.Flush()
		},
	}
}
