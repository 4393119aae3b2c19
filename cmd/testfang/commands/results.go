package commands

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/pkg/rawdata"
	"github.com/Sumatoshi-tech/testfang/pkg/results"
)

func newResultsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect and import test results",
	}

	cmd.AddCommand(
		newResultsShowCommand(),
		newResultsImportDirCommand(),
	)

	return cmd
}

type resultRow struct {
	Name   string `json:"name"   yaml:"name"`
	Result string `json:"result" yaml:"result"`
}

func newResultsShowCommand() *cobra.Command {
	var (
		format   string
		revision uint32
	)

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Summarize a results file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			m, err := results.Open(args[0])
			if err != nil {
				return err
			}

			if rev := revisionFlag(cmd, revision); rev != nil {
				return showResults(cmd.OutOrStdout(), format, m, *rev)
			}

			return showSummaries(cmd.OutOrStdout(), format, m)
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)
	cmd.Flags().Uint32VarP(&revision, "revision", "r", 0, "list the outcome of every test case in this revision")

	return cmd
}

func showSummaries(w io.Writer, format string, m *results.Matrix) error {
	revs := m.Revisions()
	rows := make([]results.Summary, 0, len(revs))

	for _, rev := range revs {
		s, err := m.Summarize(rev)
		if err != nil {
			return err
		}

		rows = append(rows, s)
	}

	if format != FormatTable {
		return writeStructured(w, format, rows)
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Revision", "Executed", "Passed", "Failed", "Not executed"})

	for _, s := range rows {
		tbl.AppendRow(table.Row{
			s.Revision,
			humanize.Comma(int64(s.Executed)),
			humanize.Comma(int64(s.Passed)),
			humanize.Comma(int64(s.Failed)),
			humanize.Comma(int64(s.NotExecuted)),
		})
	}

	tbl.AppendFooter(table.Row{"Test cases", humanize.Comma(int64(m.Testcases().Len()))})
	tbl.Render()

	return nil
}

func showResults(w io.Writer, format string, m *results.Matrix, rev uint32) error {
	if !m.HasRevision(rev) {
		return fmt.Errorf("%w: revision %d", results.ErrNotFound, rev)
	}

	rows := make([]resultRow, 0, m.Testcases().Len())

	for _, name := range m.Testcases().Names() {
		r, err := m.Result(rev, name)
		if err != nil {
			return err
		}

		rows = append(rows, resultRow{Name: name, Result: r.String()})
	}

	if format != FormatTable {
		return writeStructured(w, format, rows)
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Test case", "Result"})

	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Name, r.Result})
	}

	tbl.Render()

	return nil
}

func newResultsImportDirCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import-dir DIR",
		Short: "Build a results file from DejaGNU summaries",
		Long: `Build a results file from a directory tree of DejaGNU summaries. Every
file belongs to the revision named by its parent directory; its "PASS: name",
"FAIL: name" and "UNSUPPORTED: name" lines record the outcome of name, with an
optional leading X.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rawdata.ResultsFromDir(args[0])
			if err != nil {
				return err
			}

			if err = m.SaveFile(output); err != nil {
				return err
			}

			success(cmd.OutOrStdout(), "wrote %s: %d revisions, %d test cases, %s",
				output, len(m.Revisions()), m.Testcases().Len(), fileSize(output))

			return nil
		},
	}

	cmd.Flags().StringVarP(&output, outputFlag, outputShort, "", "output file (.lz4 suffix compresses)")
	_ = cmd.MarkFlagRequired(outputFlag)

	return cmd
}
