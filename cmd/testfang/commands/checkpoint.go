package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newCheckpointCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage saved prioritization checkpoints",
	}

	var format string

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			metas, err := a.checkpoints().List()
			if err != nil {
				return err
			}

			if format != FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, metas)
			}

			if len(metas) == 0 {
				notice(cmd.OutOrStdout(), "no checkpoints")

				return nil
			}

			tbl := newTable(cmd.OutOrStdout())
			tbl.AppendHeader(table.Row{"ID", "Created", "Algorithm", "Selected", "Coverage"})

			for _, m := range metas {
				tbl.AppendRow(table.Row{
					m.ID,
					humanize.RelTime(m.CreatedAt, a.now(), "ago", "from now"),
					m.Algorithm,
					m.Selected,
					m.CoveragePath,
				})
			}

			tbl.Render()

			return nil
		},
	}

	list.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Delete a saved checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.checkpoints().Remove(args[0]); err != nil {
				return err
			}

			success(cmd.OutOrStdout(), "removed checkpoint %s", args[0])

			return nil
		},
	}

	cmd.AddCommand(list, remove)

	return cmd
}
