package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/rawdata"
)

const percent = 100

func newCoverageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Inspect and import coverage matrices",
	}

	cmd.AddCommand(
		newCoverageShowCommand(),
		newCoverageImportDirCommand(),
		newCoverageImportJSONCommand(),
	)

	return cmd
}

type testcaseRow struct {
	ID      int    `json:"id"      yaml:"id"`
	Name    string `json:"name"    yaml:"name"`
	Covered int    `json:"covered" yaml:"covered"`
}

type coverageReport struct {
	Stats     coverage.Stats `json:"stats"               yaml:"stats"`
	Testcases []testcaseRow  `json:"testcases,omitempty" yaml:"testcases,omitempty"`
}

func newCoverageShowCommand() *cobra.Command {
	var (
		format    string
		testcases bool
	)

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Summarize a coverage file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			m, err := coverage.Open(args[0])
			if err != nil {
				return err
			}

			report := coverageReport{Stats: m.Stats()}
			if testcases {
				report.Testcases = testcaseRows(m)
			}

			if format != FormatTable {
				return writeStructured(cmd.OutOrStdout(), format, report)
			}

			renderCoverage(cmd.OutOrStdout(), report)

			return nil
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)
	cmd.Flags().BoolVarP(&testcases, "testcases", "t", false, "list every test case with its covered element count")

	return cmd
}

func testcaseRows(m *coverage.Matrix) []testcaseRow {
	ids := m.Testcases().IDs()
	rows := make([]testcaseRow, 0, len(ids))

	for _, id := range ids {
		name, _ := m.Testcases().Name(id)

		covered := 0
		if row := m.Row(id); row != nil {
			covered = row.Count()
		}

		rows = append(rows, testcaseRow{ID: id, Name: name, Covered: covered})
	}

	return rows
}

func renderCoverage(w io.Writer, report coverageReport) {
	s := report.Stats

	summary := newTable(w)
	summary.AppendRows([]table.Row{
		{"Test cases", humanize.Comma(int64(s.Testcases))},
		{"Code elements", humanize.Comma(int64(s.CodeElements))},
		{"Relations", humanize.Comma(int64(s.Relations))},
		{"Density", fmt.Sprintf("%.2f%%", s.Density*percent)},
		{"Uncovered tests", humanize.Comma(int64(s.UncoveredTests))},
	})
	summary.Render()

	if len(report.Testcases) == 0 {
		return
	}

	fmt.Fprintln(w)

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"ID", "Test case", "Covered"})

	for _, tc := range report.Testcases {
		tbl.AppendRow(table.Row{tc.ID, tc.Name, humanize.Comma(int64(tc.Covered))})
	}

	tbl.Render()
}

func newCoverageImportDirCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import-dir DIR",
		Short: "Build a coverage matrix from a one-test-per-file directory",
		Long: `Build a coverage matrix from a directory tree where every file is one test
case, named by its path, and each line "element,value" marks element covered.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := rawdata.CoverageFromDir(args[0])
			if err != nil {
				return err
			}

			return saveCoverage(cmd.OutOrStdout(), m, output)
		},
	}

	cmd.Flags().StringVarP(&output, outputFlag, outputShort, "", "output file (.lz4 suffix compresses)")
	_ = cmd.MarkFlagRequired(outputFlag)

	return cmd
}

func newCoverageImportJSONCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import-json FILE",
		Short: "Build a coverage matrix from a JSON document",
		Long: `Build a coverage matrix from a JSON document of the form
{"testcases": [{"name": "...", "covered": ["..."]}]}. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()

			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()

				in = f
			}

			m, err := rawdata.CoverageFromJSON(in)
			if err != nil {
				return err
			}

			return saveCoverage(cmd.OutOrStdout(), m, output)
		},
	}

	cmd.Flags().StringVarP(&output, outputFlag, outputShort, "", "output file (.lz4 suffix compresses)")
	_ = cmd.MarkFlagRequired(outputFlag)

	return cmd
}

func saveCoverage(w io.Writer, m *coverage.Matrix, path string) error {
	if err := m.SaveFile(path); err != nil {
		return err
	}

	success(w, "wrote %s: %d test cases, %d code elements, %s",
		path, m.NumTestcases(), m.NumCodeElements(), fileSize(path))

	return nil
}
