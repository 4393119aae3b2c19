package idmanager_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

func TestTable_Add(t *testing.T) {
	t.Parallel()

	table := idmanager.New()

	assert.Equal(t, 0, table.Add("a"))
	assert.Equal(t, 1, table.Add("b"))
	assert.Equal(t, 0, table.Add("a"))
	assert.Equal(t, 2, table.Len())

	id, ok := table.ID("b")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	name, ok := table.Name(0)
	require.True(t, ok)
	assert.Equal(t, "a", name)

	_, ok = table.Name(5)
	assert.False(t, ok)

	_, ok = table.ID("zzz")
	assert.False(t, ok)
	assert.True(t, table.Contains("a"))
	assert.Equal(t, []int{0, 1}, table.IDs())
	assert.Equal(t, []string{"a", "b"}, table.Names())
}

func TestTable_RemoveCompacts(t *testing.T) {
	t.Parallel()

	table := idmanager.New()
	for _, name := range []string{"a", "b", "c", "d"} {
		table.Add(name)
	}

	id, ok := table.Remove("b")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	assert.Equal(t, []string{"a", "c", "d"}, table.Names())

	cID, _ := table.ID("c")
	assert.Equal(t, 1, cID)

	dID, _ := table.ID("d")
	assert.Equal(t, 2, dID)

	_, ok = table.Remove("b")
	assert.False(t, ok)
	assert.Equal(t, 3, table.Len())

	assert.Equal(t, 3, table.Add("e"))
}

func TestTable_Clone(t *testing.T) {
	t.Parallel()

	table := idmanager.New()
	table.Add("x")

	clone := table.Clone()
	clone.Add("y")

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestTable_EncodeLayout(t *testing.T) {
	t.Parallel()

	table := idmanager.New()
	table.Add("ab")

	want := []byte{
		1, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		'a', 'b', 0,
	}

	assert.Equal(t, want, table.Encode())
}

func TestTable_SaveLoad(t *testing.T) {
	t.Parallel()

	table := idmanager.New()
	for _, name := range []string{"pkg/a.go", "pkg/b.go", "", "main"} {
		table.Add(name)
	}

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, table.Save(w, sodaio.PRList))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)
	require.True(t, r.Next())
	assert.Equal(t, sodaio.PRList, r.ChunkID())

	loaded := idmanager.New()
	loaded.Add("stale")

	require.NoError(t, loaded.Load(r))
	assert.Equal(t, table.Names(), loaded.Names())
	assert.False(t, loaded.Contains("stale"))
}

func TestTable_DecodeRejectsSparseIDs(t *testing.T) {
	t.Parallel()

	enc := sodaio.NewEncoder(0)
	enc.Uint64(2)
	enc.Uint64(0)
	enc.CString("a")
	enc.Uint64(5)
	enc.CString("b")

	err := idmanager.New().Decode(sodaio.NewDecoder(sodaio.PRList, enc.Bytes()))
	require.ErrorIs(t, err, sodaio.ErrCorruptFormat)
}

func TestTable_DecodeOutOfOrder(t *testing.T) {
	t.Parallel()

	enc := sodaio.NewEncoder(0)
	enc.Uint64(2)
	enc.Uint64(1)
	enc.CString("second")
	enc.Uint64(0)
	enc.CString("first")

	table := idmanager.New()
	require.NoError(t, table.Decode(sodaio.NewDecoder(sodaio.PRList, enc.Bytes())))
	assert.Equal(t, []string{"first", "second"}, table.Names())
}

func TestTable_DecodeTruncated(t *testing.T) {
	t.Parallel()

	enc := sodaio.NewEncoder(0)
	enc.Uint64(1)
	enc.Uint64(0)
	enc.Raw([]byte("no-terminator"))

	err := idmanager.New().Decode(sodaio.NewDecoder(sodaio.PRList, enc.Bytes()))
	require.ErrorIs(t, err, sodaio.ErrCorruptFormat)
}
