package revision_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/revision"
)

func TestMatrix_AddIsIdempotent(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	m.Add(3, 4)

	row, err := m.Row(3)
	require.NoError(t, err)
	require.NoError(t, row.Set(1, true))

	m.Add(3, 10)

	row, err = m.Row(3)
	require.NoError(t, err)
	assert.Equal(t, 4, row.Len())
	assert.True(t, row.Get(1))
}

func TestMatrix_AscendingOrder(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	for _, rev := range []uint32{40, 2, 17, 1000, 5} {
		m.Add(rev, 1)
	}

	assert.Equal(t, []uint32{2, 5, 17, 40, 1000}, m.Revisions())
	assert.Equal(t, 5, m.Len())
}

func TestMatrix_RowNotFound(t *testing.T) {
	t.Parallel()

	_, err := revision.NewMatrix().Row(9)
	require.ErrorIs(t, err, revision.ErrNotFound)
}

func TestMatrix_RemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	m.Add(1, 2)

	m.Remove(99)
	assert.Equal(t, 1, m.Len())

	m.Remove(1)
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has(1))
}

func TestMatrix_RefitNeverTruncates(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	m.Add(1, 2)
	m.Add(2, 6)

	m.RefitSize(4)

	narrow, err := m.Row(1)
	require.NoError(t, err)
	assert.Equal(t, 4, narrow.Len())

	wide, err := m.Row(2)
	require.NoError(t, err)
	assert.Equal(t, 6, wide.Len())
	assert.ElementsMatch(t, []int{4, 6}, m.Widths())
}

func TestMatrix_Columns(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	m.Add(1, 3)
	m.Add(2, 3)

	row1, err := m.Row(1)
	require.NoError(t, err)
	require.NoError(t, row1.Set(2, true))

	m.AddColumn()

	assert.Equal(t, "0010", row1.String())
	assert.Equal(t, []int{4}, m.Widths())

	m.RemoveColumnAt(0)

	assert.Equal(t, "010", row1.String())

	row2, err := m.Row(2)
	require.NoError(t, err)
	assert.Equal(t, "000", row2.String())
}

func TestMatrix_Clear(t *testing.T) {
	t.Parallel()

	m := revision.NewMatrix()
	m.Add(1, 1)
	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Revisions())
}
