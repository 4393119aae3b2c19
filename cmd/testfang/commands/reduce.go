package commands

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/run"
)

type reduceOptions struct {
	coverage   string
	algorithms []string
	sizes      []int
	program    string
	format     string
}

func newReduceCommand(a *app) *cobra.Command {
	opts := &reduceOptions{}

	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Write reduced test suites of a coverage file",
		Long: `Rank the test cases of a SoDA coverage file with one or more prioritization
algorithms and write prefixes of each ranking as reduced coverage files.

For every algorithm the output directory receives
  <program>-<algorithm>-ITER.cov.NNN.SoDA  doubling suites of 1, 3, 7, ... tests
  <program>-<algorithm>-SIZE.cov.NNN.SoDA  one per --sizes value
  <program>-<algorithm>-COV.cov.000.SoDA   the shortest prefix keeping full coverage`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.reduce(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.coverage, "coverage", "c", "", "SoDA coverage file")
	cmd.Flags().StringSliceVarP(&opts.algorithms, "algorithms", "a", nil, "algorithms to reduce with (default: all)")
	cmd.Flags().IntSliceVar(&opts.sizes, "sizes", nil, "fixed reduced suite sizes")
	cmd.Flags().Int("iterations", 0, "number of doubling iterations (0 = until the whole suite)")
	cmd.Flags().Uint64("seed", 0, "seed for random algorithms (0 = time based)")
	cmd.Flags().String("output-dir", "", "directory for the reduced coverage files (default: reduced)")
	cmd.Flags().StringVar(&opts.program, "program", "", "file name prefix (default: coverage file name)")
	cmd.Flags().StringVar(&opts.format, formatFlag, FormatTable, formatUsage)

	_ = cmd.MarkFlagRequired("coverage")

	return cmd
}

func (a *app) reduce(cmd *cobra.Command, opts *reduceOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}

	res, err := a.runner(nil).Reduce(cmd.Context(), run.ReduceRequest{
		CoveragePath: opts.coverage,
		Algorithms:   opts.algorithms,
		Iterations:   a.cfg.Reduction.Iterations,
		Sizes:        opts.sizes,
		Seed:         a.cfg.Prioritization.Seed,
		OutputDir:    a.cfg.Reduction.OutputDir,
		Program:      opts.program,
	})
	if err != nil {
		return err
	}

	if opts.format != FormatTable {
		return writeStructured(cmd.OutOrStdout(), opts.format, res)
	}

	renderReduction(cmd.OutOrStdout(), res)

	return nil
}

func renderReduction(w io.Writer, res *run.ReduceResult) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Algorithm", "Suite", "Tests", "Covered", "File"})

	files := 0

	for _, reduced := range res.Reductions {
		r := reduced.Reduction

		for i, step := range r.Steps {
			tbl.AppendRow(table.Row{
				r.Algorithm,
				r.FileName(res.Program, step),
				humanize.Comma(int64(len(step.Testcases))),
				humanize.Comma(int64(step.Covered)) + " / " + humanize.Comma(int64(r.Coverable)),
				reduced.Files[i],
			})
		}

		files += len(reduced.Files)
	}

	tbl.Render()

	success(w, "wrote %d reduced suites for %d algorithms (seed %d)", files, len(res.Reductions), res.Seed)
}
