package changeset_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/revision"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

// abcChangeset returns code elements A, B, C with revision 1 changing A and C
// and revision 2 changing nothing.
func abcChangeset(t *testing.T) *changeset.Changeset {
	t.Helper()

	cs := changeset.New()
	cs.AddCodeElements("A", "B", "C")
	cs.AddRevisions(1, 2)

	require.NoError(t, cs.SetChange(1, "A", true))
	require.NoError(t, cs.SetChange(1, "C", true))

	return cs
}

func TestChangeset_Queries(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	names, err := cs.CodeElementNames(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "C"}, names)

	names, err = cs.CodeElementNames(2)
	require.NoError(t, err)
	assert.Empty(t, names)

	revs, err := cs.RevisionsOf("A")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, revs)

	revs, err = cs.RevisionsOf("B")
	require.NoError(t, err)
	assert.Empty(t, revs)

	changed, err := cs.IsChanged(1, "C")
	require.NoError(t, err)
	assert.True(t, changed)

	count, err := cs.ChangeCount(1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChangeset_NotFound(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	_, err := cs.IsChanged(7, "A")
	require.ErrorIs(t, err, changeset.ErrNotFound)

	_, err = cs.IsChanged(1, "Z")
	require.ErrorIs(t, err, changeset.ErrNotFound)

	require.ErrorIs(t, cs.Toggle(7, "A"), changeset.ErrNotFound)

	_, err = cs.RevisionsOf("Z")
	require.ErrorIs(t, err, changeset.ErrNotFound)

	_, err = cs.CodeElementNames(7)
	require.ErrorIs(t, err, changeset.ErrNotFound)
}

func TestChangeset_SetChangeStrict(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	require.ErrorIs(t, cs.SetChange(1, "Z", true), changeset.ErrUnknownCodeElement)
	require.ErrorIs(t, cs.SetChange(9, "A", true), changeset.ErrNotFound)

	require.NoError(t, cs.SetChange(1, "A", false))

	changed, err := cs.IsChanged(1, "A")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestChangeset_AddOrSetChange(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	cs.AddOrSetChange(5, "D", true)

	assert.Equal(t, []uint32{1, 2, 5}, cs.Revisions())
	assert.Equal(t, 4, cs.CodeElements().Len())

	changed, err := cs.IsChanged(5, "D")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = cs.IsChanged(1, "D")
	require.NoError(t, err)
	assert.False(t, changed)

	row, err := cs.Matrix().Row(2)
	require.NoError(t, err)
	assert.Equal(t, 4, row.Len())
}

func TestChangeset_Toggle(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	require.NoError(t, cs.Toggle(2, "B"))

	names, err := cs.CodeElementNames(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names)
}

func TestChangeset_RemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	cs.RemoveRevision(42)
	assert.Len(t, cs.Revisions(), 2)

	cs.RemoveCodeElement("nope")
	assert.Equal(t, 3, cs.CodeElements().Len())
}

func TestChangeset_RemoveCodeElementShiftsColumns(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	cs.RemoveCodeElement("A")

	names, err := cs.CodeElementNames(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, names)

	row, err := cs.Matrix().Row(1)
	require.NoError(t, err)
	assert.Equal(t, "01", row.String())

	cs.RemoveRevision(1)
	assert.Equal(t, []uint32{2}, cs.Revisions())
}

func TestChangeset_TwoPhaseLoad(t *testing.T) {
	t.Parallel()

	cs := changeset.New()
	cs.AddRevision(1)

	for _, name := range []string{"x", "y", "z"} {
		cs.AddCodeElementName(name)
	}

	row, err := cs.Matrix().Row(1)
	require.NoError(t, err)
	assert.Equal(t, 0, row.Len())

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)
	require.ErrorIs(t, cs.Save(w), changeset.ErrInconsistentWidth)

	cs.RefitSize()
	assert.Equal(t, 3, row.Len())

	require.NoError(t, cs.SetChange(1, "y", true))
	require.NoError(t, cs.Save(w))
}

func TestChangeset_Borrowed(t *testing.T) {
	t.Parallel()

	table := idmanager.New()
	matrix := revision.NewMatrix()

	cs := changeset.NewWith(table, matrix)
	cs.AddOrSetChange(3, "shared", true)

	assert.True(t, table.Contains("shared"))
	assert.True(t, matrix.Has(3))
}

func TestChangeset_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"changes.soda", "changes.soda.lz4"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cs := abcChangeset(t)
			cs.AddOrSetChange(9, "B", true)

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cs.SaveFile(path))

			loaded, err := changeset.Open(path)
			require.NoError(t, err)

			assert.Equal(t, cs.Revisions(), loaded.Revisions())
			assert.Equal(t, cs.CodeElements().Names(), loaded.CodeElements().Names())

			for _, rev := range cs.Revisions() {
				want, wantErr := cs.CodeElementNames(rev)
				require.NoError(t, wantErr)

				got, gotErr := loaded.CodeElementNames(rev)
				require.NoError(t, gotErr)
				assert.Equal(t, want, got, "revision %d", rev)
			}
		})
	}
}

func TestChangeset_PayloadLayout(t *testing.T) {
	t.Parallel()

	cs := abcChangeset(t)

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, cs.Save(w))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)

	require.True(t, r.Next())
	assert.Equal(t, sodaio.PRList, r.ChunkID())

	require.True(t, r.Next())
	assert.Equal(t, sodaio.Changeset, r.ChunkID())
	assert.Equal(t, uint64(2*(4+3)+8), r.Len())

	payload, err := r.Payload()
	require.NoError(t, err)

	want := []byte{
		2, 0, 0, 0,
		3, 0, 0, 0,
		1, 0, 0, 0, 1, 0, 1,
		2, 0, 0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, payload)
}

func TestChangeset_LoadRequiresBothChunks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)

	table := idmanager.New()
	table.Add("A")
	require.NoError(t, table.Save(w, sodaio.PRList))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)

	err = changeset.New().Load(r)
	require.ErrorIs(t, err, sodaio.ErrCorruptFormat)
}

func TestChangeset_LoadRejectsColumnMismatch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)

	table := idmanager.New()
	table.Add("A")
	require.NoError(t, table.Save(w, sodaio.PRList))

	enc := sodaio.NewEncoder(0)
	enc.Uint32(1)
	enc.Uint32(2)
	enc.Uint32(1)
	enc.Bool(true)
	enc.Bool(false)
	require.NoError(t, w.WriteChunk(sodaio.Changeset, enc.Bytes()))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)

	err = changeset.New().Load(r)
	require.ErrorIs(t, err, sodaio.ErrCorruptFormat)
}
