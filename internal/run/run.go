// Package run executes a prioritization end to end: it loads the coverage
// matrix, builds the algorithm, optionally resumes from a checkpoint, and
// records the outcome.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/testfang/internal/checkpoint"
	"github.com/Sumatoshi-tech/testfang/internal/observability"
	"github.com/Sumatoshi-tech/testfang/internal/store"
	"github.com/Sumatoshi-tech/testfang/pkg/changeset"
	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
	"github.com/Sumatoshi-tech/testfang/pkg/results"
)

// Sentinel errors for request validation.
var (
	ErrNoCoverage    = errors.New("coverage path is required")
	ErrNegativeSize  = errors.New("size must not be negative")
	ErrNoCheckpoints = errors.New("checkpoint directory is not configured")
	ErrNoStore       = errors.New("run history store is not configured")
	ErrNoRevisions   = errors.New("no revisions recorded")
)

const opPrioritize = "prioritize"

// Request describes one prioritization.
type Request struct {
	CoveragePath string
	Algorithm    string
	// Size is the number of test cases to select; 0 selects all.
	Size int
	// Seed drives random algorithms; 0 picks a time based seed.
	Seed uint64
	// ResumeID continues from a saved checkpoint.
	ResumeID string
	// Checkpoint saves the selection for a later resume.
	Checkpoint bool
	// Record stores the run in the history database.
	Record bool
	// ChangesetPath and Revision mark selected tests covering code changed
	// in that revision. A nil Revision picks the newest one in the
	// changeset; revision 0 is a valid revision.
	ChangesetPath string
	Revision      *uint32
	// ResultsPath marks selected tests that failed in Revision, or in the
	// newest revision of the results file when Revision is nil.
	ResultsPath string
}

// Selected is one entry of the prioritized order.
type Selected struct {
	Rank     int    `json:"rank"               yaml:"rank"`
	ID       int    `json:"id"                 yaml:"id"`
	Name     string `json:"name"               yaml:"name"`
	Covered  int    `json:"covered"            yaml:"covered"`
	Affected bool   `json:"affected,omitempty" yaml:"affected,omitempty"`
	Failed   bool   `json:"failed,omitempty"   yaml:"failed,omitempty"`
}

// Result is the outcome of a prioritization. FirstFailure is the rank of
// the first selected test that failed, 0 when none did or no results were
// given.
type Result struct {
	RunID        string         `json:"run_id,omitempty"        yaml:"run_id,omitempty"`
	CheckpointID string         `json:"checkpoint_id,omitempty" yaml:"checkpoint_id,omitempty"`
	Algorithm    string         `json:"algorithm"               yaml:"algorithm"`
	Seed         uint64         `json:"seed"                    yaml:"seed"`
	Resumed      int            `json:"resumed"                 yaml:"resumed"`
	Total        int            `json:"total"                   yaml:"total"`
	Testcases    []Selected     `json:"testcases"               yaml:"testcases"`
	FirstFailure int            `json:"first_failure,omitempty" yaml:"first_failure,omitempty"`
	Stats        coverage.Stats `json:"coverage"                yaml:"coverage"`
	Duration     time.Duration  `json:"duration"                yaml:"duration"`
}

// Names returns the selected test case names in order.
func (r *Result) Names() []string {
	names := make([]string, len(r.Testcases))
	for i, s := range r.Testcases {
		names[i] = s.Name
	}

	return names
}

// Runner holds the collaborators of a run. Nil fields disable the features
// that need them.
type Runner struct {
	Registry    *prioritization.Registry
	Checkpoints *checkpoint.Manager
	Store       *store.Store
	Metrics     *observability.REDMetrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
	// Cache shares loaded coverage between runs; nil loads every time.
	Cache *CoverageCache
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}

	return r.Logger
}

func (r *Runner) openCoverage(path string) (*coverage.Matrix, error) {
	if r.Cache != nil {
		return r.Cache.Open(path)
	}

	return coverage.Open(path)
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}

	return r.Now()
}

// Prioritize executes req.
func (r *Runner) Prioritize(ctx context.Context, req Request) (*Result, error) {
	var res *Result

	err := r.observe(ctx, opPrioritize, []attribute.KeyValue{
		attribute.String("prioritization.algorithm", req.Algorithm),
		attribute.Int("prioritization.size", req.Size),
	}, func(ctx context.Context) error {
		var err error

		res, err = r.prioritize(ctx, req)

		return err
	})
	if err != nil {
		return nil, err
	}

	if r.Metrics != nil {
		r.Metrics.RecordSelected(ctx, res.Algorithm, len(res.Testcases))
	}

	return res, nil
}

// observe runs fn inside a span named after op and, when metrics are
// configured, records its rate, errors and duration.
func (r *Runner) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	tracer := r.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	ctx, span := tracer.Start(ctx, "testfang."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var err error
	if r.Metrics != nil {
		err = r.Metrics.Observe(ctx, op, fn)
	} else {
		err = fn(ctx)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (r *Runner) registry() *prioritization.Registry {
	if r.Registry == nil {
		return prioritization.Default()
	}

	return r.Registry
}

func (r *Runner) prioritize(ctx context.Context, req Request) (*Result, error) {
	start := r.now()

	if req.CoveragePath == "" {
		return nil, ErrNoCoverage
	}

	if req.Size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, req.Size)
	}

	registry := r.registry()

	var prefix []int

	if req.ResumeID != "" {
		if r.Checkpoints == nil {
			return nil, ErrNoCheckpoints
		}

		if err := r.Checkpoints.Validate(req.ResumeID, req.Algorithm, req.CoveragePath); err != nil {
			return nil, err
		}

		meta, selected, err := r.Checkpoints.Load(req.ResumeID)
		if err != nil {
			return nil, err
		}

		req.Seed = meta.Seed
		prefix = selected
	}

	if req.Seed == 0 {
		req.Seed = uint64(start.UnixNano())
	}

	cov, err := r.openCoverage(req.CoveragePath)
	if err != nil {
		return nil, err
	}

	p, err := registry.New(req.Algorithm, prioritization.WithSeed(req.Seed))
	if err != nil {
		return nil, err
	}

	if err = p.Init(cov); err != nil {
		return nil, fmt.Errorf("init %s: %w", req.Algorithm, err)
	}

	if prefix != nil {
		if err = p.SetState(prefix); err != nil {
			return nil, fmt.Errorf("resume %s: %w", req.ResumeID, err)
		}
	}

	if req.Revision != nil {
		p.Reset(*req.Revision)
	}

	size := req.Size
	if size == 0 {
		size = cov.NumTestcases()
	}

	size = max(size, len(prefix))

	r.logger().InfoContext(ctx, "prioritizing",
		"algorithm", req.Algorithm,
		"testcases", cov.NumTestcases(),
		"code_elements", cov.NumCodeElements(),
		"size", size,
		"resumed", len(prefix))

	order := p.FillSelection(size)

	affected, err := affectedElements(req, cov)
	if err != nil {
		return nil, err
	}

	failed, err := failedTestcases(req)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Algorithm: req.Algorithm,
		Seed:      req.Seed,
		Resumed:   len(prefix),
		Total:     cov.NumTestcases(),
		Testcases: make([]Selected, 0, len(order)),
		Stats:     cov.Stats(),
	}

	for rank, tc := range order {
		name, _ := cov.Testcases().Name(tc)

		sel := Selected{Rank: rank + 1, ID: tc, Name: name, Failed: failed[name]}

		if sel.Failed && res.FirstFailure == 0 {
			res.FirstFailure = sel.Rank
		}

		if row := cov.Row(tc); row != nil {
			sel.Covered = row.Count()

			for ce := range row.Ones() {
				if affected[ce] {
					sel.Affected = true

					break
				}
			}
		}

		res.Testcases = append(res.Testcases, sel)
	}

	if req.Checkpoint {
		if r.Checkpoints == nil {
			return nil, ErrNoCheckpoints
		}

		meta, saveErr := r.Checkpoints.Save(req.Algorithm, req.CoveragePath, req.Seed, order)
		if saveErr != nil {
			return nil, saveErr
		}

		res.CheckpointID = meta.ID
	}

	res.Duration = r.now().Sub(start)

	if req.Record {
		if r.Store == nil {
			return nil, ErrNoStore
		}

		run := &store.Run{
			CreatedAt:    start.UTC(),
			Algorithm:    req.Algorithm,
			CoveragePath: req.CoveragePath,
			Size:         req.Size,
			Seed:         req.Seed,
			Selected:     res.Names(),
			Duration:     res.Duration,
		}

		if err = r.Store.Record(ctx, run); err != nil {
			return nil, err
		}

		res.RunID = run.ID
	}

	return res, nil
}

// affectedElements returns the coverage code element ids changed in
// req.Revision of req.ChangesetPath.
func affectedElements(req Request, cov *coverage.Matrix) (map[int]bool, error) {
	if req.ChangesetPath == "" {
		return nil, nil
	}

	cs, err := changeset.Open(req.ChangesetPath)
	if err != nil {
		return nil, err
	}

	var rev uint32

	switch revs := cs.Revisions(); {
	case req.Revision != nil:
		rev = *req.Revision
	case len(revs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNoRevisions, req.ChangesetPath)
	default:
		rev = revs[len(revs)-1]
	}

	names, err := cs.CodeElementNames(rev)
	if err != nil {
		return nil, fmt.Errorf("revision %d: %w", rev, err)
	}

	out := make(map[int]bool, len(names))

	for _, name := range names {
		if id, ok := cov.CodeElements().ID(name); ok {
			out[id] = true
		}
	}

	return out, nil
}

// failedTestcases returns the names of the tests that failed in the chosen
// revision of req.ResultsPath.
func failedTestcases(req Request) (map[string]bool, error) {
	if req.ResultsPath == "" {
		return nil, nil
	}

	m, err := results.Open(req.ResultsPath)
	if err != nil {
		return nil, err
	}

	var rev uint32

	switch revs := m.Revisions(); {
	case req.Revision != nil:
		rev = *req.Revision
	case len(revs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNoRevisions, req.ResultsPath)
	default:
		rev = revs[len(revs)-1]
	}

	names, err := m.Failed(rev)
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(names))
	for _, name := range names {
		out[name] = true
	}

	return out, nil
}
