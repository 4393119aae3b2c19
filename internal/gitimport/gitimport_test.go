package gitimport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/internal/gitimport"
)

type fixture struct {
	t     *testing.T
	dir   string
	repo  *git2go.Repository
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &fixture{t: t, dir: dir, repo: repo, clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fixture) write(name, content string) {
	f.t.Helper()

	path := filepath.Join(f.dir, name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) remove(name string) {
	f.t.Helper()

	require.NoError(f.t, os.Remove(filepath.Join(f.dir, name)))
}

func (f *fixture) commit(message string) {
	f.t.Helper()

	index, err := f.repo.Index()
	require.NoError(f.t, err)

	defer index.Free()

	require.NoError(f.t, index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil))
	require.NoError(f.t, index.UpdateAll([]string{"*"}, nil))
	require.NoError(f.t, index.Write())

	treeID, err := index.WriteTree()
	require.NoError(f.t, err)

	tree, err := f.repo.LookupTree(treeID)
	require.NoError(f.t, err)

	defer tree.Free()

	f.clock = f.clock.Add(time.Hour)
	sig := &git2go.Signature{Name: "Dev", Email: "dev@example.com", When: f.clock}

	var parents []*git2go.Commit

	if head, headErr := f.repo.Head(); headErr == nil {
		parent, lookupErr := f.repo.LookupCommit(head.Target())
		require.NoError(f.t, lookupErr)

		parents = append(parents, parent)

		head.Free()
	}

	_, err = f.repo.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(f.t, err)

	for _, p := range parents {
		p.Free()
	}
}

func history(t *testing.T) *fixture {
	t.Helper()

	f := newFixture(t)

	f.write("main.go", "package main\n")
	f.write("vendor/lib/lib.go", "package lib\n")
	f.commit("initial import")

	f.write("main.go", "package main\n\nfunc main() {}\n")
	f.write("README.md", "# demo\n")
	f.commit("add readme")

	f.remove("README.md")
	f.write("util.py", "print(1)\n")
	f.commit("drop readme")

	return f
}

func TestImport(t *testing.T) {
	t.Parallel()

	f := history(t)

	res, err := gitimport.Import(context.Background(), f.dir, gitimport.Options{})
	require.NoError(t, err)

	cs := res.Changeset
	assert.Equal(t, []uint32{1, 2, 3}, cs.Revisions())
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, cs.CodeElements().Contains("vendor/lib/lib.go"))

	require.Len(t, res.Commits, 3)
	assert.Equal(t, "initial import", res.Commits[0].Summary)
	assert.Equal(t, uint32(3), res.Commits[2].Revision)

	names, err := cs.CodeElementNames(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, names)

	names, err = cs.CodeElementNames(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"README.md", "main.go"}, names)

	names, err = cs.CodeElementNames(3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"README.md", "util.py"}, names)

	revs, err := cs.RevisionsOf("main.go")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, revs)
}

func TestImport_IncludeVendorAndLimit(t *testing.T) {
	t.Parallel()

	f := history(t)

	res, err := gitimport.Import(context.Background(), f.dir, gitimport.Options{IncludeVendor: true})
	require.NoError(t, err)
	assert.True(t, res.Changeset.CodeElements().Contains("vendor/lib/lib.go"))
	assert.Zero(t, res.Skipped)

	res, err = gitimport.Import(context.Background(), f.dir, gitimport.Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, res.Changeset.Revisions())
	assert.Equal(t, "add readme", res.Commits[0].Summary)
	assert.Equal(t, "drop readme", res.Commits[1].Summary)
}

func TestImport_Languages(t *testing.T) {
	t.Parallel()

	f := history(t)

	res, err := gitimport.Import(context.Background(), f.dir, gitimport.Options{Languages: []string{"Go"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, res.Changeset.CodeElements().Names())
	assert.Equal(t, []uint32{1, 2, 3}, res.Changeset.Revisions())
}

func TestImport_Errors(t *testing.T) {
	t.Parallel()

	_, err := gitimport.Import(context.Background(), filepath.Join(t.TempDir(), "nope"), gitimport.Options{})
	require.Error(t, err)

	empty := newFixture(t)
	_, err = gitimport.Import(context.Background(), empty.dir, gitimport.Options{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gitimport.Import(ctx, history(t).dir, gitimport.Options{})
	require.ErrorIs(t, err, context.Canceled)
}

const shapesV1 = `package shapes

func Area(w, h int) int {
	return w * h
}

type Square struct{ side int }

func (s *Square) Perimeter() int {
	return 4 * s.side
}
`

const shapesV2 = `package shapes

func Area(w, h int) int {
	return w * h
}

type Square struct{ side int }

func (s *Square) Perimeter() int {
	return s.side + s.side + s.side + s.side
}
`

func TestImport_FunctionGranularity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.write("shapes.go", shapesV1)
	f.commit("add shapes")

	f.write("shapes.go", shapesV2)
	f.write("NOTES.md", "perimeter\n")
	f.commit("rewrite perimeter")

	f.remove("shapes.go")
	f.commit("drop shapes")

	res, err := gitimport.Import(context.Background(), f.dir, gitimport.Options{
		Granularity: gitimport.FunctionGranularity,
	})
	require.NoError(t, err)

	cs := res.Changeset

	names, err := cs.CodeElementNames(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"shapes.go", "shapes.go:Area", "shapes.go:Square.Perimeter"}, names)

	names, err = cs.CodeElementNames(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"NOTES.md", "shapes.go:Square.Perimeter"}, names)

	names, err = cs.CodeElementNames(3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shapes.go", "shapes.go:Area", "shapes.go:Square.Perimeter"}, names)

	revs, err := cs.RevisionsOf("shapes.go:Area")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, revs)
}

func TestParseGranularity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want gitimport.Granularity
	}{
		{"", gitimport.FileGranularity},
		{"file", gitimport.FileGranularity},
		{"Function", gitimport.FunctionGranularity},
		{"func", gitimport.FunctionGranularity},
	}

	for _, tt := range tests {
		got, err := gitimport.ParseGranularity(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := gitimport.ParseGranularity("class")
	require.ErrorIs(t, err, gitimport.ErrUnknownGranularity)

	assert.Equal(t, "function", gitimport.FunctionGranularity.String())
}
