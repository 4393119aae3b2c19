package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAlgorithmsCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the prioritization algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			all := a.registry.All()

			if format != FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, all)
			}

			tbl := newTable(cmd.OutOrStdout())
			tbl.AppendHeader(table.Row{"Name", "Description"})

			for _, d := range all {
				tbl.AppendRow(table.Row{d.Name, d.Description})
			}

			tbl.Render()

			return nil
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)

	return cmd
}
