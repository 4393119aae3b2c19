package run_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/testfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/testfang/internal/observability"
	"github.com/Sumatoshi-tech/testfang/internal/run"
	"github.com/Sumatoshi-tech/testfang/internal/store"
	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/results"
)

// writeCoverage stores T0..T3 over e0..e3:
// T0 covers e0 e1 e2, T1 covers e0 e1, T2 covers e3, T3 covers e2 e3.
func writeCoverage(t *testing.T) string {
	t.Helper()

	m := coverage.New()

	for ce := range 4 {
		m.AddCodeElementName(fmt.Sprintf("e%d", ce))
	}

	rows := [][]int{{0, 1, 2}, {0, 1}, {3}, {2, 3}}
	for tc := range rows {
		m.AddTestcaseName(fmt.Sprintf("T%d", tc))
	}

	m.RefitSize()

	for tc, covered := range rows {
		for _, ce := range covered {
			require.NoError(t, m.SetRelation(fmt.Sprintf("T%d", tc), fmt.Sprintf("e%d", ce), true))
		}
	}

	path := filepath.Join(t.TempDir(), "coverage.soda")
	require.NoError(t, m.SaveFile(path))

	return path
}

func newRunner(t *testing.T) *run.Runner {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return &run.Runner{
		Checkpoints: checkpoint.NewManager(t.TempDir(), "json"),
		Store:       s,
	}
}

func TestPrioritize_GeneralIgnore(t *testing.T) {
	t.Parallel()

	r := newRunner(t)

	res, err := r.Prioritize(context.Background(), run.Request{
		CoveragePath: writeCoverage(t),
		Algorithm:    "general-ignore",
		Size:         2,
		Seed:         9,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"T0", "T1"}, res.Names())
	assert.Equal(t, run.Selected{Rank: 1, ID: 0, Name: "T0", Covered: 3}, res.Testcases[0])
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, uint64(9), res.Seed)
	assert.Equal(t, 8, res.Stats.Relations)
	assert.Empty(t, res.RunID)
	assert.Empty(t, res.CheckpointID)
}

func TestPrioritize_SizeZeroSelectsAll(t *testing.T) {
	t.Parallel()

	res, err := newRunner(t).Prioritize(context.Background(), run.Request{
		CoveragePath: writeCoverage(t),
		Algorithm:    "additional-general-ignore",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"T0", "T2", "T1", "T3"}, res.Names())
	assert.NotZero(t, res.Seed)
}

func TestPrioritize_CheckpointAndResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRunner(t)
	cov := writeCoverage(t)

	first, err := r.Prioritize(ctx, run.Request{
		CoveragePath: cov,
		Algorithm:    "random-ignore",
		Size:         2,
		Seed:         123,
		Checkpoint:   true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, first.CheckpointID)

	resumed, err := r.Prioritize(ctx, run.Request{
		CoveragePath: cov,
		Algorithm:    "random-ignore",
		ResumeID:     first.CheckpointID,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resumed.Resumed)
	assert.Equal(t, uint64(123), resumed.Seed)
	require.Len(t, resumed.Testcases, 4)
	assert.Equal(t, first.Names(), resumed.Names()[:2])

	_, err = r.Prioritize(ctx, run.Request{
		CoveragePath: cov,
		Algorithm:    "duplation",
		ResumeID:     first.CheckpointID,
	})
	require.ErrorIs(t, err, checkpoint.ErrAlgorithmMismatch)
}

func TestPrioritize_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRunner(t)

	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r.Now = func() time.Time { return clock }

	res, err := r.Prioritize(ctx, run.Request{
		CoveragePath: writeCoverage(t),
		Algorithm:    "duplation",
		Size:         3,
		Seed:         1,
		Record:       true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	stored, err := r.Store.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Names(), stored.Selected)
	assert.Equal(t, "duplation", stored.Algorithm)
	assert.True(t, clock.Equal(stored.CreatedAt))
}

func TestPrioritize_Affected(t *testing.T) {
	t.Parallel()

	cs := changeset.New()
	cs.AddOrSetChange(5, "e3", true)
	cs.AddOrSetChange(5, "unrelated", true)

	csPath := filepath.Join(t.TempDir(), "changes.soda")
	require.NoError(t, cs.SaveFile(csPath))

	res, err := newRunner(t).Prioritize(context.Background(), run.Request{
		CoveragePath:  writeCoverage(t),
		Algorithm:     "general-ignore",
		ChangesetPath: csPath,
		Revision:      revision(5),
	})
	require.NoError(t, err)

	affected := make(map[string]bool)
	for _, s := range res.Testcases {
		affected[s.Name] = s.Affected
	}

	assert.Equal(t, map[string]bool{"T0": false, "T1": false, "T2": true, "T3": true}, affected)

	_, err = newRunner(t).Prioritize(context.Background(), run.Request{
		CoveragePath:  writeCoverage(t),
		Algorithm:     "general-ignore",
		ChangesetPath: csPath,
		Revision:      revision(6),
	})
	require.ErrorIs(t, err, changeset.ErrNotFound)
}

func TestPrioritize_AffectedRevisionZeroAndNewest(t *testing.T) {
	t.Parallel()

	cs := changeset.New()
	cs.AddOrSetChange(0, "e0", true)
	cs.AddOrSetChange(4, "e3", true)

	csPath := filepath.Join(t.TempDir(), "changes.soda")
	require.NoError(t, cs.SaveFile(csPath))

	affectedBy := func(rev *uint32) map[string]bool {
		t.Helper()

		res, err := newRunner(t).Prioritize(context.Background(), run.Request{
			CoveragePath:  writeCoverage(t),
			Algorithm:     "general-ignore",
			ChangesetPath: csPath,
			Revision:      rev,
		})
		require.NoError(t, err)

		out := make(map[string]bool)

		for _, s := range res.Testcases {
			if s.Affected {
				out[s.Name] = true
			}
		}

		return out
	}

	assert.Equal(t, map[string]bool{"T0": true, "T1": true}, affectedBy(revision(0)))
	assert.Equal(t, map[string]bool{"T2": true, "T3": true}, affectedBy(nil))
}

func TestPrioritize_Failures(t *testing.T) {
	t.Parallel()

	m := results.New()
	m.AddOrSetResult(3, "T1", results.Passed)
	m.AddOrSetResult(3, "T3", results.Failed)
	m.AddOrSetResult(3, "T2", results.Failed)
	m.AddOrSetResult(8, "T0", results.Failed)

	resultsPath := filepath.Join(t.TempDir(), "results.soda")
	require.NoError(t, m.SaveFile(resultsPath))

	cov := writeCoverage(t)

	prioritize := func(rev *uint32) (*run.Result, error) {
		return newRunner(t).Prioritize(context.Background(), run.Request{
			CoveragePath: cov,
			Algorithm:    "general-ignore",
			ResultsPath:  resultsPath,
			Revision:     rev,
		})
	}

	res, err := prioritize(revision(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"T0", "T1", "T3", "T2"}, res.Names())
	assert.Equal(t, 3, res.FirstFailure)
	assert.False(t, res.Testcases[1].Failed)
	assert.True(t, res.Testcases[2].Failed)
	assert.True(t, res.Testcases[3].Failed)

	newest, err := prioritize(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, newest.FirstFailure)
	assert.True(t, newest.Testcases[0].Failed)

	_, err = prioritize(revision(9))
	require.ErrorIs(t, err, results.ErrNotFound)
}

func revision(v uint32) *uint32 {
	return &v
}

func TestPrioritize_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	bare := &run.Runner{}
	cov := writeCoverage(t)

	_, err := bare.Prioritize(ctx, run.Request{Algorithm: "duplation"})
	require.ErrorIs(t, err, run.ErrNoCoverage)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: cov, Algorithm: "duplation", Size: -1})
	require.ErrorIs(t, err, run.ErrNegativeSize)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: cov, Algorithm: "duplation", ResumeID: "x"})
	require.ErrorIs(t, err, run.ErrNoCheckpoints)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: cov, Algorithm: "duplation", Checkpoint: true})
	require.ErrorIs(t, err, run.ErrNoCheckpoints)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: cov, Algorithm: "duplation", Record: true})
	require.ErrorIs(t, err, run.ErrNoStore)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: cov, Algorithm: "bogus"})
	require.Error(t, err)

	_, err = bare.Prioritize(ctx, run.Request{CoveragePath: filepath.Join(t.TempDir(), "none"), Algorithm: "duplation"})
	require.Error(t, err)
}

func TestPrioritize_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	red, err := observability.NewREDMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	r := &run.Runner{Metrics: red}

	_, err = r.Prioritize(context.Background(), run.Request{CoveragePath: writeCoverage(t), Algorithm: "duplation", Size: 3})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var selected int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "prioritization.selected" {
				continue
			}

			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				selected += dp.Value
			}
		}
	}

	assert.Equal(t, int64(3), selected)
}

func TestCoverageCache(t *testing.T) {
	t.Parallel()

	path := writeCoverage(t)
	c := run.NewCoverageCache(0)
	r := &run.Runner{Cache: c}

	for range 2 {
		res, err := r.Prioritize(context.Background(), run.Request{CoveragePath: path, Algorithm: "general-ignore", Size: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"T0", "T1"}, res.Names())
	}

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	m, err := coverage.Open(path)
	require.NoError(t, err)

	m.AddTestcase("T4")
	require.NoError(t, m.SaveFile(path))

	reloaded, err := c.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.NumTestcases())

	_, err = c.Open(filepath.Join(t.TempDir(), "missing.soda"))
	require.Error(t, err)
}
