package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/internal/gitimport"
	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/rawdata"
)

func newChangesetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changeset",
		Short: "Inspect and import changesets",
	}

	cmd.AddCommand(
		newChangesetShowCommand(),
		newChangesetImportDirCommand(),
		newChangesetImportGitCommand(a),
	)

	return cmd
}

type revisionRow struct {
	Revision uint32 `json:"revision" yaml:"revision"`
	Changed  int    `json:"changed"  yaml:"changed"`
}

func newChangesetShowCommand() *cobra.Command {
	var (
		format   string
		revision uint32
	)

	cmd := &cobra.Command{
		Use:   "show FILE",
		Short: "Summarize a changeset file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			cs, err := changeset.Open(args[0])
			if err != nil {
				return err
			}

			if rev := revisionFlag(cmd, revision); rev != nil {
				return showRevision(cmd.OutOrStdout(), format, cs, *rev)
			}

			return showRevisions(cmd.OutOrStdout(), format, cs)
		},
	}

	cmd.Flags().StringVar(&format, formatFlag, FormatTable, formatUsage)
	cmd.Flags().Uint32VarP(&revision, "revision", "r", 0, "list the code elements changed in this revision")

	return cmd
}

func showRevisions(w io.Writer, format string, cs *changeset.Changeset) error {
	revs := cs.Revisions()
	rows := make([]revisionRow, 0, len(revs))

	for _, rev := range revs {
		n, err := cs.ChangeCount(rev)
		if err != nil {
			return err
		}

		rows = append(rows, revisionRow{Revision: rev, Changed: n})
	}

	if format != FormatTable {
		return writeStructured(w, format, rows)
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Revision", "Changed"})

	for _, r := range rows {
		tbl.AppendRow(table.Row{r.Revision, humanize.Comma(int64(r.Changed))})
	}

	tbl.AppendFooter(table.Row{"Code elements", humanize.Comma(int64(cs.CodeElements().Len()))})
	tbl.Render()

	return nil
}

func showRevision(w io.Writer, format string, cs *changeset.Changeset, rev uint32) error {
	names, err := cs.CodeElementNames(rev)
	if err != nil {
		return err
	}

	if format != FormatTable {
		return writeStructured(w, format, names)
	}

	for _, name := range names {
		fmt.Fprintln(w, name)
	}

	return nil
}

func newChangesetImportDirCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "import-dir DIR",
		Short: "Build a changeset from a one-revision-per-file directory",
		Long: `Build a changeset from a directory tree where every file is named by a
revision number and each line "name,value" marks name as changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cs, err := rawdata.ChangesetFromDir(args[0])
			if err != nil {
				return err
			}

			return saveChangeset(cmd.OutOrStdout(), cs, output)
		},
	}

	cmd.Flags().StringVarP(&output, outputFlag, outputShort, "", "output file (.lz4 suffix compresses)")
	_ = cmd.MarkFlagRequired(outputFlag)

	return cmd
}

type importGitOptions struct {
	output        string
	limit         int
	includeVendor bool
	languages     []string
	firstParent   bool
	granularity   string
}

func newChangesetImportGitCommand(a *app) *cobra.Command {
	opts := &importGitOptions{}

	cmd := &cobra.Command{
		Use:   "import-git REPO",
		Short: "Build a changeset from git history",
		Long: `Build a changeset from the history of a git repository. Revision 1 is the
oldest imported commit; the code elements are the paths each commit changed.
With --granularity function, source files in languages with a bundled grammar
contribute one element per changed function, named PATH:Scope.Function.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			granularity, err := gitimport.ParseGranularity(opts.granularity)
			if err != nil {
				return err
			}

			res, err := gitimport.Import(cmd.Context(), args[0], gitimport.Options{
				Limit:         opts.limit,
				IncludeVendor: opts.includeVendor,
				Languages:     opts.languages,
				FirstParent:   opts.firstParent,
				Granularity:   granularity,
				Logger:        a.logger,
			})
			if err != nil {
				return err
			}

			if res.Skipped > 0 {
				notice(cmd.OutOrStdout(), "skipped %s filtered paths", humanize.Comma(int64(res.Skipped)))
			}

			return saveChangeset(cmd.OutOrStdout(), res.Changeset, opts.output)
		},
	}

	cmd.Flags().StringVarP(&opts.output, outputFlag, outputShort, "", "output file (.lz4 suffix compresses)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "import only the most recent N commits (0 = all)")
	cmd.Flags().BoolVar(&opts.includeVendor, "include-vendor", false, "keep vendored paths")
	cmd.Flags().StringSliceVar(&opts.languages, "languages", nil, "keep only paths in these languages (e.g. Go,Python)")
	cmd.Flags().BoolVar(&opts.firstParent, "first-parent", false, "follow only the first parent of merge commits")
	cmd.Flags().StringVar(&opts.granularity, "granularity", "file", "code element granularity: file or function")
	_ = cmd.MarkFlagRequired(outputFlag)

	return cmd
}

func saveChangeset(w io.Writer, cs *changeset.Changeset, path string) error {
	if err := cs.SaveFile(path); err != nil {
		return err
	}

	success(w, "wrote %s: %d revisions, %d code elements, %s",
		path, len(cs.Revisions()), cs.CodeElements().Len(), fileSize(path))

	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "size unknown"
	}

	return humanize.Bytes(uint64(info.Size()))
}
