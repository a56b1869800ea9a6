package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/poimap-etl/internal/pipeline"
)

func newCategoriesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with their source table and strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := loadSources(a.cfg)
			if err != nil {
				return err
			}
			writeCategories(cmd.OutOrStdout(), specs)
			return nil
		},
	}
}

func writeCategories(w io.Writer, specs []pipeline.SourceSpec) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTRATEGY\tSOURCE")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Category, s.Strategy, s.Path)
	}
	tw.Flush()
}
