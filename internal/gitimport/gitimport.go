// Package gitimport builds a changeset from the commit history of a git
// repository. Revisions are numbered from 1 starting at the oldest imported
// commit; code elements are the repository paths the commits touch, or with
// FunctionGranularity the functions inside them.
package gitimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/gitlib"
	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
)

// ErrNoCommits is returned when the walk yields nothing to import.
var ErrNoCommits = errors.New("gitimport: no commits to import")

// Options configures an import.
type Options struct {
	// Limit keeps only the most recent Limit commits; 0 imports all.
	Limit int
	// IncludeVendor keeps paths enry classifies as vendored.
	IncludeVendor bool
	// Languages restricts paths to these enry language names when set.
	Languages []string
	// FirstParent follows first parents only.
	FirstParent bool
	// Granularity selects file or function code elements.
	Granularity Granularity
	// Logger receives progress; slog.Default when nil.
	Logger *slog.Logger
}

// Commit describes one imported revision.
type Commit struct {
	Revision uint32
	Hash     gitlib.Hash
	Summary  string
	Changed  int
}

// Result is the outcome of an import.
type Result struct {
	Changeset *changeset.Changeset
	Commits   []Commit
	Skipped   int // paths dropped by the filters
}

// Import walks the history of the repository at repoPath.
func Import(ctx context.Context, repoPath string, opts Options) (*Result, error) {
	repo, err := gitlib.OpenRepository(repoPath)
	if err != nil {
		return nil, err
	}
	defer repo.Free()

	return FromRepository(ctx, repo, opts)
}

// FromRepository walks the history of an open repository.
func FromRepository(ctx context.Context, repo *gitlib.Repository, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hashes, err := collect(ctx, repo, opts)
	if err != nil {
		return nil, err
	}

	if len(hashes) == 0 {
		return nil, ErrNoCommits
	}

	logger.InfoContext(ctx, "gitimport: walking history",
		"repo", repo.Path(), "commits", len(hashes), "granularity", opts.Granularity.String())

	filter := newPathFilter(opts)
	res := &Result{Changeset: changeset.New()}
	touched := make([][]string, len(hashes))

	// First pass registers paths so every row is allocated once.
	for i, hash := range hashes {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		kept, skipped, summary, changeErr := changedElements(ctx, repo, hash, filter, opts.Granularity)
		if changeErr != nil {
			return nil, changeErr
		}

		res.Skipped += skipped

		for _, name := range kept {
			res.Changeset.AddCodeElementName(name)
		}

		touched[i] = kept
		res.Commits = append(res.Commits, Commit{
			Revision: safeconv.MustIntToUint32(i + 1),
			Hash:     hash,
			Summary:  summary,
			Changed:  len(kept),
		})

		logger.DebugContext(ctx, "gitimport: commit", "revision", i+1, "hash", hash.Short(), "elements", len(kept))
	}

	for _, c := range res.Commits {
		res.Changeset.AddRevision(c.Revision)
	}

	res.Changeset.RefitSize()

	for i, c := range res.Commits {
		for _, p := range touched[i] {
			if setErr := res.Changeset.SetChange(c.Revision, p, true); setErr != nil {
				return nil, setErr
			}
		}
	}

	logger.InfoContext(ctx, "gitimport: done",
		"revisions", len(res.Commits),
		"code_elements", res.Changeset.CodeElements().Len(),
		"skipped", res.Skipped)

	return res, nil
}

// collect returns the commit hashes to import, oldest first.
func collect(ctx context.Context, repo *gitlib.Repository, opts Options) ([]gitlib.Hash, error) {
	iter, err := repo.Log(&gitlib.LogOptions{FirstParent: opts.FirstParent})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var hashes []gitlib.Hash

	for opts.Limit <= 0 || len(hashes) < opts.Limit {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		commit, nextErr := iter.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return nil, nextErr
		}

		hashes = append(hashes, commit.Hash())
		commit.Free()
	}

	slices.Reverse(hashes)

	return hashes, nil
}

// changedElements returns the sorted code elements a commit touches and the
// number of paths the filter dropped.
func changedElements(
	ctx context.Context,
	repo *gitlib.Repository,
	hash gitlib.Hash,
	filter pathFilter,
	granularity Granularity,
) (elements []string, skipped int, summary string, err error) {
	commit, err := repo.LookupCommit(ctx, hash)
	if err != nil {
		return nil, 0, "", err
	}
	defer commit.Free()

	changes, err := commit.Changes()
	if err != nil {
		return nil, 0, "", fmt.Errorf("changes of %s: %w", hash.Short(), err)
	}

	for _, change := range changes {
		name := change.Path()
		if !filter.keep(name) {
			skipped++

			continue
		}

		if granularity != FunctionGranularity {
			elements = append(elements, name)

			continue
		}

		names, fnErr := functionElements(ctx, repo, change)
		if fnErr != nil {
			return nil, 0, "", fmt.Errorf("functions of %s in %s: %w", name, hash.Short(), fnErr)
		}

		elements = append(elements, names...)
	}

	slices.Sort(elements)

	return slices.Compact(elements), skipped, commit.Summary(), nil
}

type pathFilter struct {
	includeVendor bool
	languages     map[string]bool
}

func newPathFilter(opts Options) pathFilter {
	f := pathFilter{includeVendor: opts.IncludeVendor}

	if len(opts.Languages) > 0 {
		f.languages = make(map[string]bool, len(opts.Languages))
		for _, lang := range opts.Languages {
			f.languages[lang] = true
		}
	}

	return f
}

func (f pathFilter) keep(name string) bool {
	if !f.includeVendor && enry.IsVendor(name) {
		return false
	}

	if f.languages == nil {
		return true
	}

	return f.languages[enry.GetLanguage(path.Base(name), nil)]
}
