// Package reduction derives smaller test suites from a prioritized order.
//
// Every registered prioritizer ranks the whole suite once; the reduced
// suites are prefixes of that ranking. Three families of prefixes are cut:
// doubling iterations (1, 3, 7, ... test cases), fixed sizes, and the
// shortest prefix that still covers every code element the full suite
// covers. Each reduced suite is written as its own coverage file.
package reduction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritization"
)

// ErrInvalidOptions is returned for negative iteration counts or sizes.
var ErrInvalidOptions = errors.New("reduction: invalid options")

// Kind names a family of reduced suites.
type Kind string

// Reduced suite families.
const (
	// Iteration suites grow by doubling: iteration i holds 2^i-1 tests.
	Iteration Kind = "ITER"
	// Size suites hold a requested number of tests.
	Size Kind = "SIZE"
	// Full is the shortest prefix reaching the coverage of the whole suite.
	Full Kind = "COV"
)

const dirPerm = 0o755

// Options selects the suites to cut.
type Options struct {
	// Iterations caps the doubling iterations; 0 runs until the whole suite
	// is included.
	Iterations int
	// Sizes lists fixed suite sizes. Sizes above the suite size are clamped.
	Sizes []int
}

func (o Options) validate() error {
	if o.Iterations < 0 {
		return fmt.Errorf("%w: iterations %d", ErrInvalidOptions, o.Iterations)
	}

	for _, s := range o.Sizes {
		if s <= 0 {
			return fmt.Errorf("%w: size %d", ErrInvalidOptions, s)
		}
	}

	return nil
}

// Step is one reduced suite.
type Step struct {
	Kind Kind `json:"kind"    yaml:"kind"`
	// Index is the iteration number, the requested size, or 0 for Full.
	Index     int   `json:"index"     yaml:"index"`
	Testcases []int `json:"testcases" yaml:"testcases"`
	// Covered counts the code elements the suite covers.
	Covered int `json:"covered" yaml:"covered"`
}

// Reduction holds the suites cut from one prioritized order.
type Reduction struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Total     int    `json:"total"     yaml:"total"`
	// Coverable counts the code elements the whole suite covers.
	Coverable int    `json:"coverable" yaml:"coverable"`
	Order     []int  `json:"order"     yaml:"order"`
	Steps     []Step `json:"steps"     yaml:"steps"`

	cov *coverage.Matrix
}

// Reduce ranks the suite of cov with p and cuts the suites opts asks for,
// followed by the Full suite.
func Reduce(cov *coverage.Matrix, p prioritization.Prioritizer, opts Options) (*Reduction, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if err := p.Init(cov); err != nil {
		return nil, fmt.Errorf("reduce with %s: %w", p.Name(), err)
	}

	total := cov.NumTestcases()
	order := p.FillSelection(total)
	reach := coverageCurve(cov, order)

	r := &Reduction{
		Algorithm: p.Name(),
		Total:     total,
		Coverable: reach[len(reach)-1],
		Order:     order,
		cov:       cov,
	}

	prefix := func(kind Kind, index, size int) {
		size = min(size, len(order))
		r.Steps = append(r.Steps, Step{
			Kind:      kind,
			Index:     index,
			Testcases: append([]int(nil), order[:size]...),
			Covered:   reach[size],
		})
	}

	for i := 1; len(order) > 0 && (opts.Iterations == 0 || i <= opts.Iterations); i++ {
		size := 1<<i - 1
		prefix(Iteration, i, size)

		if size >= len(order) {
			break
		}
	}

	for _, size := range opts.Sizes {
		prefix(Size, size, size)
	}

	full := 0
	for reach[full] < r.Coverable {
		full++
	}

	prefix(Full, 0, full)

	return r, nil
}

// coverageCurve returns, for every prefix length k of order, the number of
// code elements covered by its first k tests.
func coverageCurve(cov *coverage.Matrix, order []int) []int {
	covered := make([]bool, cov.NumCodeElements())
	reach := make([]int, len(order)+1)

	for k, tc := range order {
		reach[k+1] = reach[k]

		row := cov.Row(tc)
		if row == nil {
			continue
		}

		for ce := range row.Ones() {
			if ce < len(covered) && !covered[ce] {
				covered[ce] = true
				reach[k+1]++
			}
		}
	}

	return reach
}

// Names returns the test case names of step in suite order.
func (r *Reduction) Names(step Step) []string {
	names := make([]string, 0, len(step.Testcases))

	for _, tc := range step.Testcases {
		if name, ok := r.cov.Testcases().Name(tc); ok {
			names = append(names, name)
		}
	}

	return names
}

// FileName returns the coverage file name of step:
// <program>-<algorithm>-<kind>.cov.<index>.SoDA with a zero padded index.
func (r *Reduction) FileName(program string, step Step) string {
	return fmt.Sprintf("%s-%s-%s.cov.%03d.SoDA", program, r.Algorithm, step.Kind, step.Index)
}

// Save writes every step as a coverage file under dir, creating dir when
// needed, and returns the written paths in step order.
func (r *Reduction) Save(dir, program string) ([]string, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, 0, len(r.Steps))

	for _, step := range r.Steps {
		path := filepath.Join(dir, r.FileName(program, step))

		if err := r.cov.Subset(step.Testcases).SaveFile(path); err != nil {
			return paths, fmt.Errorf("save %s: %w", path, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}
