package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/internal/store"
)

// ErrRevisionWithoutChangeset is returned when --revision is given without
// --changeset or --results.
var ErrRevisionWithoutChangeset = errors.New("--revision requires --changeset or --results")

type prioritizeOptions struct {
	coverage   string
	resume     string
	checkpoint bool
	record     bool
	format     string
	changeset  string
	revision   uint32
	results    string
}

// revisionFlag returns the --revision value, or nil when the flag is unset.
func revisionFlag(cmd *cobra.Command, value uint32) *uint32 {
	if !cmd.Flags().Changed("revision") {
		return nil
	}

	return &value
}

func newPrioritizeCommand(a *app) *cobra.Command {
	opts := &prioritizeOptions{}

	cmd := &cobra.Command{
		Use:   "prioritize",
		Short: "Order the test cases of a coverage file",
		Long: `Order the test cases of a SoDA coverage file with a prioritization algorithm.

With --size only the first N test cases are selected. --checkpoint saves the
selection so that a later run with --resume ID continues where it stopped.
--changeset flags test cases covering code changed in --revision, and
--results flags those that failed in it; the newest revision is used when
--revision is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.prioritize(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.coverage, "coverage", "c", "", "SoDA coverage file")
	cmd.Flags().StringP("algorithm", "a", "duplation", "prioritization algorithm (see `testfang algorithms`)")
	cmd.Flags().IntP("size", "n", 0, "number of test cases to select (0 = all)")
	cmd.Flags().Uint64("seed", 0, "seed for random algorithms (0 = time based)")
	cmd.Flags().StringVar(&opts.resume, "resume", "", "resume from the checkpoint with this id")
	cmd.Flags().BoolVar(&opts.checkpoint, "checkpoint", false, "save the selection as a checkpoint")
	cmd.Flags().BoolVar(&opts.record, "record", false, "store the run in the history database")
	cmd.Flags().StringVar(&opts.format, formatFlag, FormatTable, formatUsage)
	cmd.Flags().StringVar(&opts.changeset, "changeset", "", "changeset file used to flag affected test cases")
	cmd.Flags().StringVar(&opts.results, "results", "", "results file used to flag failing test cases")
	cmd.Flags().Uint32Var(&opts.revision, "revision", 0, "changeset and results revision to compare against (default: newest)")

	_ = cmd.MarkFlagRequired("coverage")

	return cmd
}

func (a *app) prioritize(cmd *cobra.Command, opts *prioritizeOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}

	revision := revisionFlag(cmd, opts.revision)

	if revision != nil && opts.changeset == "" && opts.results == "" {
		return ErrRevisionWithoutChangeset
	}

	var history *store.Store

	if opts.record {
		s, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}

		history = s
	}

	res, err := a.runner(history).Prioritize(cmd.Context(), run.Request{
		CoveragePath:  opts.coverage,
		Algorithm:     a.cfg.Prioritization.Algorithm,
		Size:          a.cfg.Prioritization.Size,
		Seed:          a.cfg.Prioritization.Seed,
		ResumeID:      opts.resume,
		Checkpoint:    opts.checkpoint,
		Record:        opts.record,
		ChangesetPath: opts.changeset,
		Revision:      revision,
		ResultsPath:   opts.results,
	})
	if err != nil {
		return err
	}

	if opts.format != FormatTable {
		return writeStructured(cmd.OutOrStdout(), opts.format, res)
	}

	renderResult(cmd.OutOrStdout(), res, opts.changeset != "", opts.results != "")

	return nil
}

func renderResult(w io.Writer, res *run.Result, withAffected, withFailed bool) {
	tbl := newTable(w)

	header := table.Row{"Rank", "ID", "Test case", "Covered"}
	if withAffected {
		header = append(header, "Affected")
	}

	if withFailed {
		header = append(header, "Failed")
	}

	tbl.AppendHeader(header)

	for _, s := range res.Testcases {
		row := table.Row{s.Rank, s.ID, s.Name, humanize.Comma(int64(s.Covered))}
		if withAffected {
			affected := ""
			if s.Affected {
				affected = "yes"
			}

			row = append(row, affected)
		}

		if withFailed {
			failed := ""
			if s.Failed {
				failed = "yes"
			}

			row = append(row, failed)
		}

		tbl.AppendRow(row)
	}

	tbl.Render()

	fmt.Fprintln(w)
	success(w, "selected %d of %d test cases with %s (seed %d) in %s",
		len(res.Testcases), res.Total, res.Algorithm, res.Seed, res.Duration.Round(time.Microsecond))

	if res.Resumed > 0 {
		notice(w, "resumed %d test cases from checkpoint", res.Resumed)
	}

	if res.FirstFailure > 0 {
		notice(w, "first failing test case at rank %d", res.FirstFailure)
	}

	if res.CheckpointID != "" {
		notice(w, "checkpoint: %s", res.CheckpointID)
	}

	if res.RunID != "" {
		notice(w, "recorded run: %s", res.RunID)
	}
}
