package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/store"
)

const (
	defaultHistoryLimit = 20
	previewLen          = 3
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		format string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded prioritization runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			runs, err := s.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if format != FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, runs)
			}

			renderRuns(cmd.OutOrStdout(), runs, a.now())

			return nil
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "number of runs to list (0 = all)")

	cmd.AddCommand(newHistoryShowCommand(a), newHistoryDeleteCommand(a))

	return cmd
}

func renderRuns(w io.Writer, runs []*store.Run, now time.Time) {
	if len(runs) == 0 {
		notice(w, "no recorded runs")

		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"ID", "Created", "Algorithm", "Size", "Selected", "Duration", "Coverage"})

	for _, r := range runs {
		tbl.AppendRow(table.Row{
			r.ID,
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			r.Algorithm,
			r.Size,
			preview(r.Selected),
			r.Duration.Round(time.Millisecond),
			r.CoveragePath,
		})
	}

	tbl.Render()
}

// preview shortens a selection to its first few names.
func preview(names []string) string {
	if len(names) <= previewLen {
		return strings.Join(names, ", ")
	}

	return fmt.Sprintf("%s, ... (%d)", strings.Join(names[:previewLen], ", "), len(names))
}

func newHistoryShowCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			r, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if format != FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, r)
			}

			renderRun(cmd.OutOrStdout(), r)

			return nil
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)

	return cmd
}

func renderRun(w io.Writer, r *store.Run) {
	summary := newTable(w)
	summary.AppendRows([]table.Row{
		{"ID", r.ID},
		{"Created", r.CreatedAt.Format(time.RFC3339)},
		{"Algorithm", r.Algorithm},
		{"Coverage", r.CoveragePath},
		{"Size", r.Size},
		{"Seed", r.Seed},
		{"Duration", r.Duration},
	})
	summary.Render()

	fmt.Fprintln(w)

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Rank", "Test case"})

	for i, name := range r.Selected {
		tbl.AppendRow(table.Row{i + 1, name})
	}

	tbl.Render()
}

func newHistoryDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			success(cmd.OutOrStdout(), "deleted run %s", args[0])

			return nil
		},
	}
}
