package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
	"github.com/Sumatoshi-tech/testfang/pkg/reduction"
)

// ErrNoOutputDir is returned when a reduction has nowhere to write.
var ErrNoOutputDir = errors.New("reduction output directory is required")

const opReduce = "reduce"

// ReduceRequest describes one reduction.
type ReduceRequest struct {
	CoveragePath string
	// Algorithms lists the prioritizers to reduce with; empty selects every
	// registered one.
	Algorithms []string
	Iterations int
	Sizes      []int
	// Seed drives random algorithms; 0 picks a time based seed.
	Seed uint64
	// OutputDir receives the reduced coverage files.
	OutputDir string
	// Program prefixes the file names; the coverage file name without its
	// extension when empty.
	Program string
}

// Reduced is the outcome of one algorithm.
type Reduced struct {
	Reduction *reduction.Reduction `json:"reduction" yaml:"reduction"`
	Files     []string             `json:"files"     yaml:"files"`
}

// ReduceResult is the outcome of a reduction.
type ReduceResult struct {
	Program    string    `json:"program"    yaml:"program"`
	Seed       uint64    `json:"seed"       yaml:"seed"`
	Reductions []Reduced `json:"reductions" yaml:"reductions"`
}

// Reduce executes req once per algorithm.
func (r *Runner) Reduce(ctx context.Context, req ReduceRequest) (*ReduceResult, error) {
	var res *ReduceResult

	err := r.observe(ctx, opReduce, []attribute.KeyValue{
		attribute.StringSlice("reduction.algorithms", req.Algorithms),
		attribute.Int("reduction.iterations", req.Iterations),
	}, func(ctx context.Context) error {
		var err error

		res, err = r.reduce(ctx, req)

		return err
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (r *Runner) reduce(ctx context.Context, req ReduceRequest) (*ReduceResult, error) {
	if req.CoveragePath == "" {
		return nil, ErrNoCoverage
	}

	if req.OutputDir == "" {
		return nil, ErrNoOutputDir
	}

	registry := r.registry()

	algorithms := req.Algorithms
	if len(algorithms) == 0 {
		algorithms = registry.Names()
	}

	if req.Seed == 0 {
		req.Seed = uint64(r.now().UnixNano())
	}

	program := req.Program
	if program == "" {
		base := filepath.Base(req.CoveragePath)
		program = strings.TrimSuffix(base, filepath.Ext(base))
	}

	cov, err := r.openCoverage(req.CoveragePath)
	if err != nil {
		return nil, err
	}

	res := &ReduceResult{Program: program, Seed: req.Seed}

	for _, name := range algorithms {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		p, newErr := registry.New(name, prioritization.WithSeed(req.Seed))
		if newErr != nil {
			return nil, newErr
		}

		reduced, reduceErr := reduction.Reduce(cov, p, reduction.Options{
			Iterations: req.Iterations,
			Sizes:      req.Sizes,
		})
		if reduceErr != nil {
			return nil, reduceErr
		}

		files, saveErr := reduced.Save(req.OutputDir, program)
		if saveErr != nil {
			return nil, fmt.Errorf("%s: %w", name, saveErr)
		}

		r.logger().InfoContext(ctx, "reduced",
			"algorithm", name,
			"testcases", reduced.Total,
			"coverable", reduced.Coverable,
			"full_coverage_size", len(reduced.Steps[len(reduced.Steps)-1].Testcases),
			"files", len(files))

		res.Reductions = append(res.Reductions, Reduced{Reduction: reduced, Files: files})
	}

	return res, nil
}
