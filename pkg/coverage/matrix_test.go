package coverage_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/sodaio"
)

func sampleMatrix(t *testing.T) *coverage.Matrix {
	t.Helper()

	m := coverage.New()
	m.AddOrSetRelation("TestA", "f1", true)
	m.AddOrSetRelation("TestA", "f2", true)
	m.AddOrSetRelation("TestB", "f3", true)
	m.AddTestcase("TestC")

	return m
}

func TestMatrix_Relations(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)

	assert.Equal(t, 3, m.NumTestcases())
	assert.Equal(t, 3, m.NumCodeElements())
	assert.True(t, m.Covers(0, 1))
	assert.False(t, m.Covers(1, 0))
	assert.False(t, m.Covers(9, 0))
	assert.Nil(t, m.Row(9))

	names, err := m.CoveredBy("TestA")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, names)

	tests, err := m.CoveringTests("f3")
	require.NoError(t, err)
	assert.Equal(t, []string{"TestB"}, tests)

	_, err = m.CoveredBy("Nope")
	require.ErrorIs(t, err, coverage.ErrNotFound)

	_, err = m.CoveringTests("nope")
	require.ErrorIs(t, err, coverage.ErrNotFound)
}

func TestMatrix_SetRelationStrict(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)

	require.ErrorIs(t, m.SetRelation("Nope", "f1", true), coverage.ErrNotFound)
	require.ErrorIs(t, m.SetRelation("TestA", "nope", true), coverage.ErrNotFound)

	require.NoError(t, m.SetRelation("TestC", "f1", true))
	assert.True(t, m.Covers(2, 0))
}

func TestMatrix_TwoPhase(t *testing.T) {
	t.Parallel()

	m := coverage.New()
	m.AddTestcaseName("T1")
	m.AddCodeElementName("a")
	m.AddCodeElementName("b")

	require.ErrorIs(t, m.SetRelation("T1", "a", true), coverage.ErrNotFound)

	m.RefitSize()

	require.NoError(t, m.SetRelation("T1", "b", true))
	assert.Equal(t, "01", m.Row(0).String())
}

func TestMatrix_Subset(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)

	sub := m.Subset([]int{2, 0, 2, 9})

	assert.Equal(t, []string{"TestC", "TestA"}, sub.Testcases().Names())
	assert.Equal(t, m.CodeElements().Names(), sub.CodeElements().Names())

	names, err := sub.CoveredBy("TestA")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, names)
	assert.Equal(t, 0, sub.Row(0).Count())

	require.NoError(t, sub.SetRelation("TestA", "f3", true))
	assert.False(t, m.Covers(0, 2))

	sub.AddCodeElement("f4")
	assert.Equal(t, 3, m.NumCodeElements())
}

func TestMatrix_Stats(t *testing.T) {
	t.Parallel()

	s := sampleMatrix(t).Stats()

	assert.Equal(t, 3, s.Testcases)
	assert.Equal(t, 3, s.CodeElements)
	assert.Equal(t, 3, s.Relations)
	assert.Equal(t, 1, s.UncoveredTests)
	assert.InDelta(t, 1.0/3.0, s.Density, 1e-9)
}

func TestMatrix_SaveLoad(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)
	path := filepath.Join(t.TempDir(), "cov.soda")

	require.NoError(t, m.SaveFile(path))

	loaded, err := coverage.Open(path)
	require.NoError(t, err)

	assert.Equal(t, m.Testcases().Names(), loaded.Testcases().Names())
	assert.Equal(t, m.CodeElements().Names(), loaded.CodeElements().Names())

	for tc := range m.NumTestcases() {
		assert.True(t, m.Row(tc).Equal(loaded.Row(tc)), "row %d", tc)
	}
}

func TestMatrix_CoveragePayload(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, m.Save(w))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)

	var ids []sodaio.ChunkID

	var payload []byte

	for r.Next() {
		ids = append(ids, r.ChunkID())

		if r.ChunkID() == sodaio.Coverage {
			payload, err = r.Payload()
			require.NoError(t, err)
		}
	}

	require.NoError(t, r.Err())
	assert.Equal(t, []sodaio.ChunkID{sodaio.TCList, sodaio.PRList, sodaio.Coverage}, ids)

	// 3x3 bits row-major: 110 001 000 -> 0b0010_0011, 0b0.
	want := []byte{
		3, 0, 0, 0, 0, 0, 0, 0,
		3, 0, 0, 0, 0, 0, 0, 0,
		0x23, 0x00,
	}
	assert.Equal(t, want, payload)
}

func TestMatrix_LoadMissingChunk(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, sampleMatrix(t).Testcases().Save(w, sodaio.TCList))
	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)
	require.ErrorIs(t, coverage.New().Load(r), sodaio.ErrCorruptFormat)
}

func coverageHeader(rows, cols uint64) []byte {
	enc := sodaio.NewEncoder(16)
	enc.Uint64(rows)
	enc.Uint64(cols)

	return enc.Bytes()
}

func TestMatrix_LoadRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rows, cols uint64
		bitsFirst  bool
	}{
		{name: "huge rows without columns", rows: 1 << 40},
		{name: "huge rows before tables", rows: 1 << 40, bitsFirst: true},
		{name: "extra columns", rows: 0, cols: 3},
		{name: "max dimensions", rows: 1<<64 - 1, cols: 1<<64 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			w, err := sodaio.NewWriter(&buf)
			require.NoError(t, err)

			empty := coverage.New()

			if tt.bitsFirst {
				require.NoError(t, w.WriteChunk(sodaio.Coverage, coverageHeader(tt.rows, tt.cols)))
			}

			require.NoError(t, empty.Testcases().Save(w, sodaio.TCList))
			require.NoError(t, empty.CodeElements().Save(w, sodaio.PRList))

			if !tt.bitsFirst {
				require.NoError(t, w.WriteChunk(sodaio.Coverage, coverageHeader(tt.rows, tt.cols)))
			}

			require.NoError(t, w.Close())

			r, err := sodaio.NewReader(&buf)
			require.NoError(t, err)
			require.ErrorIs(t, coverage.New().Load(r), sodaio.ErrCorruptFormat)
		})
	}
}

func TestMatrix_LoadChunksInAnyOrder(t *testing.T) {
	t.Parallel()

	m := sampleMatrix(t)

	var buf bytes.Buffer

	w, err := sodaio.NewWriter(&buf)
	require.NoError(t, err)

	var saved bytes.Buffer

	sw, err := sodaio.NewWriter(&saved)
	require.NoError(t, err)
	require.NoError(t, m.Save(sw))
	require.NoError(t, sw.Close())

	sr, err := sodaio.NewReader(&saved)
	require.NoError(t, err)

	chunks := make(map[sodaio.ChunkID][]byte)

	for sr.Next() {
		payload, payloadErr := sr.Payload()
		require.NoError(t, payloadErr)

		chunks[sr.ChunkID()] = payload
	}

	require.NoError(t, sr.Err())

	for _, id := range []sodaio.ChunkID{sodaio.Coverage, sodaio.PRList, sodaio.TCList} {
		require.NoError(t, w.WriteChunk(id, chunks[id]))
	}

	require.NoError(t, w.Close())

	r, err := sodaio.NewReader(&buf)
	require.NoError(t, err)

	loaded := coverage.New()
	require.NoError(t, loaded.Load(r))
	assert.Equal(t, m.Testcases().Names(), loaded.Testcases().Names())
	assert.True(t, m.Row(0).Equal(loaded.Row(0)))
}
