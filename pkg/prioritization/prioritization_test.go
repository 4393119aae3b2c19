package prioritization_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
)

// buildCoverage creates a matrix with elements e0..e{width-1} and one test per
// entry of rows, covering the listed element ids.
func buildCoverage(t *testing.T, width int, rows ...[]int) *coverage.Matrix {
	t.Helper()

	m := coverage.New()

	for ce := range width {
		m.AddCodeElementName(fmt.Sprintf("e%d", ce))
	}

	for tc := range rows {
		m.AddTestcaseName(fmt.Sprintf("T%d", tc))
	}

	m.RefitSize()

	for tc, covered := range rows {
		for _, ce := range covered {
			require.NoError(t, m.SetRelation(fmt.Sprintf("T%d", tc), fmt.Sprintf("e%d", ce), true))
		}
	}

	return m
}

func randomCoverage(t *testing.T, tests, width int, seed uint64) *coverage.Matrix {
	t.Helper()

	rng := rand.New(rand.NewPCG(seed, seed))
	rows := make([][]int, tests)

	for tc := range rows {
		for ce := range width {
			if rng.IntN(3) == 0 {
				rows[tc] = append(rows[tc], ce)
			}
		}
	}

	return buildCoverage(t, width, rows...)
}

func newInitialized(t *testing.T, name string, cov prioritization.Coverage) prioritization.Prioritizer {
	t.Helper()

	p, err := prioritization.Default().New(name, prioritization.WithSeed(7))
	require.NoError(t, err)
	require.NoError(t, p.Init(cov))

	return p
}

func TestGeneralIgnore_OrdersByCoverageCount(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 5, []int{0, 1, 2, 3, 4}, []int{0}, []int{1, 2, 3})

	p := newInitialized(t, "general-ignore", cov)

	assert.Equal(t, []int{0, 2, 1}, p.FillSelection(3))
}

func TestGeneralIgnore_TiesKeepIDOrder(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 3, []int{0}, []int{1, 2}, []int{2})

	p := newInitialized(t, "general-ignore", cov)

	assert.Equal(t, []int{1, 0, 2}, p.FillSelection(3))
}

func TestDuplation_Order(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 4,
		[]int{0, 1, 2, 3},
		[]int{0},
		[]int{0, 1},
		[]int{2},
	)

	p := newInitialized(t, "duplation", cov)

	assert.Equal(t, []int{2, 3, 1, 0}, p.FillSelection(4))
}

func TestDuplation_NoCodeElements(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 0, nil, nil, nil)

	p := newInitialized(t, "duplation", cov)

	assert.Equal(t, []int{0, 1, 2}, p.FillSelection(10))
}

func TestDuplation_PartitionOnlyRefines(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 30, 40, 11)

	d := prioritization.NewDuplation()
	require.NoError(t, d.Init(cov))

	before := d.Partition()
	for _, l := range before {
		require.Equal(t, uint64(1), l)
	}

	for step := 1; step <= cov.NumTestcases(); step++ {
		d.FillSelection(step)

		after := d.Partition()

		for i := range after {
			for j := i + 1; j < len(after); j++ {
				if before[i] != before[j] {
					require.NotEqual(t, after[i], after[j], "step %d merged elements %d and %d", step, i, j)
				}
			}
		}

		before = after
	}
}

func TestDuplation_LongRunStaysConsistent(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 120, 8, 5)

	d := prioritization.NewDuplation()
	require.NoError(t, d.Init(cov))

	order := d.FillSelection(120)
	assert.Len(t, order, 120)
	assert.ElementsMatch(t, sequence(120), order)
}

func TestDuplation_SetStateResetsPartition(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 4, []int{0, 1}, []int{2}, []int{0, 3})

	d := prioritization.NewDuplation()
	require.NoError(t, d.Init(cov))

	d.FillSelection(2)
	assert.NotEqual(t, []uint64{1, 1, 1, 1}, d.Partition())

	require.NoError(t, d.SetState([]int{2}))
	assert.Equal(t, []uint64{1, 1, 1, 1}, d.Partition())

	order := d.FillSelection(3)
	assert.Equal(t, 2, order[0])
	assert.ElementsMatch(t, []int{0, 1, 2}, order)
}

func TestAdditionalGeneralIgnore_Order(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 4,
		[]int{0, 1, 2},
		[]int{0, 1},
		[]int{3},
		[]int{2, 3},
	)

	p := newInitialized(t, "additional-general-ignore", cov)
	assert.Equal(t, []int{0, 2, 1, 3}, p.FillSelection(4))

	require.NoError(t, p.SetState([]int{0}))
	assert.Equal(t, []int{0, 2, 1, 3}, p.FillSelection(4))

	general := newInitialized(t, "general-ignore", cov)
	assert.Equal(t, []int{0, 1, 3, 2}, general.FillSelection(4))
}

func TestAdditionalWithResets_SaturationReset(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 4,
		[]int{0, 1, 2, 3},
		[]int{0},
		[]int{1, 2},
		[]int{3},
		nil,
	)

	ignore := newInitialized(t, "additional-general-ignore", cov)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ignore.FillSelection(5))

	resets := newInitialized(t, "additional-with-resets", cov)
	assert.Equal(t, []int{0, 2, 1, 3, 4}, resets.FillSelection(5))

	require.NoError(t, resets.SetState([]int{0}))
	assert.Equal(t, []int{0, 2, 1, 3, 4}, resets.FillSelection(5))
}

func TestAdditionalWithResets_RevisionReset(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 3, []int{0, 1}, []int{0, 1}, []int{2})

	kept := newInitialized(t, "additional-with-resets", cov)
	assert.Equal(t, []int{0}, kept.FillSelection(1))
	assert.Equal(t, []int{0, 2, 1}, kept.FillSelection(3))

	reset := newInitialized(t, "additional-with-resets", cov)
	assert.Equal(t, []int{0}, reset.FillSelection(1))

	reset.Reset(5)
	assert.Equal(t, []int{0, 1, 2}, reset.FillSelection(3))
}

func TestRandomIgnore_SeededIsReproducible(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 25, 10, 3)

	first := newInitialized(t, "random-ignore", cov).FillSelection(25)
	second := newInitialized(t, "random-ignore", cov).FillSelection(25)

	assert.Equal(t, first, second)
	assert.ElementsMatch(t, sequence(25), first)

	unseeded := prioritization.NewRandomIgnore(nil)
	require.NoError(t, unseeded.Init(cov))
	assert.ElementsMatch(t, sequence(25), unseeded.FillSelection(25))
}

func TestRandomIgnore_ReshufflesOnSetState(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 40, 4, 9)

	p := newInitialized(t, "random-ignore", cov)
	first := p.FillSelection(40)

	require.NoError(t, p.SetState(nil))
	second := p.FillSelection(40)

	assert.NotEqual(t, first, second)
	assert.ElementsMatch(t, first, second)
}

func TestFillSelection_Contract(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 20, 15, 1)

	for _, name := range prioritization.Default().Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := newInitialized(t, name, cov)

			assert.Empty(t, p.FillSelection(0))

			short := p.FillSelection(5)
			long := p.FillSelection(12)

			require.Len(t, short, 5)
			require.Len(t, long, 12)
			assert.Equal(t, short, long[:5])

			all := p.FillSelection(1000)
			assert.Len(t, all, 20)
			assert.ElementsMatch(t, sequence(20), all)
			assert.Equal(t, long, all[:12])

			p.Reset(42)
			assert.Equal(t, all, p.FillSelection(20))
		})
	}
}

func TestSetState_Resume(t *testing.T) {
	t.Parallel()

	cov := randomCoverage(t, 10, 12, 4)

	for _, name := range prioritization.Default().Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := newInitialized(t, name, cov)

			require.NoError(t, p.SetState([]int{7, 3}))

			order := p.FillSelection(10)
			assert.Equal(t, []int{7, 3}, order[:2])
			assert.ElementsMatch(t, sequence(10), order)
			assert.Equal(t, []int{7}, p.FillSelection(1))
		})
	}
}

func TestSetState_Invalid(t *testing.T) {
	t.Parallel()

	cov := buildCoverage(t, 1, []int{0}, nil)

	for _, name := range prioritization.Default().Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := prioritization.Default().New(name)
			require.NoError(t, err)
			require.ErrorIs(t, p.SetState(nil), prioritization.ErrNotInitialized)

			require.NoError(t, p.Init(cov))
			require.ErrorIs(t, p.SetState([]int{5}), prioritization.ErrInvalidState)
			require.ErrorIs(t, p.SetState([]int{1, 1}), prioritization.ErrInvalidState)
			require.ErrorIs(t, p.SetState([]int{-1}), prioritization.ErrInvalidState)
		})
	}
}

func TestEmptyCoverage(t *testing.T) {
	t.Parallel()

	cov := coverage.New()

	for _, name := range prioritization.Default().Names() {
		p := newInitialized(t, name, cov)
		assert.Empty(t, p.FillSelection(3), name)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := prioritization.Default()

	assert.Equal(t, []string{
		"additional-general-ignore",
		"additional-with-resets",
		"duplation",
		"general-ignore",
		"random-ignore",
	}, reg.Names())

	all := reg.All()
	require.Len(t, all, 5)
	assert.Equal(t, "duplation", all[0].Name)
	assert.NotEmpty(t, all[0].Description)

	_, err := reg.New("bogus")
	require.ErrorIs(t, err, prioritization.ErrUnknownAlgorithm)

	err = reg.Register(func(prioritization.Options) prioritization.Prioritizer {
		return prioritization.NewDuplation()
	})
	require.ErrorIs(t, err, prioritization.ErrDuplicateAlgorithm)
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}

	return out
}
