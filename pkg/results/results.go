// Package results records test case outcomes per revision.
//
// A Matrix pairs a test case table with two revision-indexed bit matrices.
// The execution matrix marks the test cases that ran in a revision and the
// pass matrix marks those that passed. A test case that did not run is never
// reported as passed, whatever its pass bit holds.
package results

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
	"github.com/Sumatoshi-tech/testfang/pkg/revision"
)

// ErrNotFound is returned when a revision or test case is unknown.
var ErrNotFound = errors.New("results: not found")

// Result is the outcome of one test case in one revision.
type Result int

const (
	// NotExecuted marks a test case that did not run.
	NotExecuted Result = iota
	// Failed marks a test case that ran and failed.
	Failed
	// Passed marks a test case that ran and passed.
	Passed
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case NotExecuted:
		return "not-executed"
	case Failed:
		return "failed"
	case Passed:
		return "passed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Matrix is a revision by test case outcome matrix. It is not safe for
// concurrent use.
type Matrix struct {
	testcases *idmanager.Table
	executed  *revision.Matrix
	passed    *revision.Matrix
}

// New returns an empty Matrix.
func New() *Matrix {
	return &Matrix{
		testcases: idmanager.New(),
		executed:  revision.NewMatrix(),
		passed:    revision.NewMatrix(),
	}
}

// Testcases returns the test case table.
func (m *Matrix) Testcases() *idmanager.Table { return m.testcases }

// Revisions returns every revision number in ascending order.
func (m *Matrix) Revisions() []uint32 { return m.executed.Revisions() }

// HasRevision reports whether rev is registered.
func (m *Matrix) HasRevision(rev uint32) bool { return m.executed.Has(rev) }

// AddRevisionNumber registers rev with all test cases not executed. Known
// revisions are left untouched.
func (m *Matrix) AddRevisionNumber(rev uint32) {
	m.executed.Add(rev, m.testcases.Len())
	m.passed.Add(rev, m.testcases.Len())
}

// AddTestcaseName registers name without widening the rows and returns its
// id. Bulk importers register every name first and then call RefitSize once.
func (m *Matrix) AddTestcaseName(name string) int {
	return m.testcases.Add(name)
}

// RefitSize pads every row to the number of registered test cases.
func (m *Matrix) RefitSize() {
	m.executed.RefitSize(m.testcases.Len())
	m.passed.RefitSize(m.testcases.Len())
}

// rows resolves rev and name to their execution row, pass row and column.
func (m *Matrix) rows(rev uint32, name string) (*bitlist.List, *bitlist.List, int, error) {
	exec, err := m.executed.Row(rev)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	pass, err := m.passed.Row(rev)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	id, ok := m.testcases.ID(name)
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: test case %q", ErrNotFound, name)
	}

	if id >= exec.Len() {
		exec.Resize(m.testcases.Len())
		pass.Resize(m.testcases.Len())
	}

	return exec, pass, id, nil
}

// SetResult stores result for name in rev. Both must be registered.
func (m *Matrix) SetResult(rev uint32, name string, result Result) error {
	exec, pass, id, err := m.rows(rev, name)
	if err != nil {
		return err
	}

	if err = exec.Set(id, result != NotExecuted); err != nil {
		return err
	}

	return pass.Set(id, result == Passed)
}

// AddOrSetResult stores result for name in rev, registering either key
// first when it is missing.
func (m *Matrix) AddOrSetResult(rev uint32, name string, result Result) {
	m.AddRevisionNumber(rev)

	if !m.testcases.Contains(name) {
		m.testcases.Add(name)
		m.executed.AddColumn()
		m.passed.AddColumn()
	}

	_ = m.SetResult(rev, name, result)
}

// Result returns the outcome of name in rev.
func (m *Matrix) Result(rev uint32, name string) (Result, error) {
	exec, pass, id, err := m.rows(rev, name)
	if err != nil {
		return NotExecuted, err
	}

	return outcome(exec.Get(id), pass.Get(id)), nil
}

func outcome(executed, passed bool) Result {
	switch {
	case !executed:
		return NotExecuted
	case passed:
		return Passed
	default:
		return Failed
	}
}

// IsExecuted reports whether name ran in rev.
func (m *Matrix) IsExecuted(rev uint32, name string) (bool, error) {
	r, err := m.Result(rev, name)

	return r != NotExecuted, err
}

// IsPassed reports whether name ran and passed in rev.
func (m *Matrix) IsPassed(rev uint32, name string) (bool, error) {
	r, err := m.Result(rev, name)

	return r == Passed, err
}

// Named returns the test case names of rev whose outcome is result, ordered
// by id.
func (m *Matrix) Named(rev uint32, result Result) ([]string, error) {
	exec, err := m.executed.Row(rev)
	if err != nil {
		return nil, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	pass, _ := m.passed.Row(rev)

	var names []string

	for id := range m.testcases.Len() {
		if outcome(exec.Get(id), pass.Get(id)) != result {
			continue
		}

		if name, ok := m.testcases.Name(id); ok {
			names = append(names, name)
		}
	}

	return names, nil
}

// Failed returns the test cases that ran and failed in rev.
func (m *Matrix) Failed(rev uint32) ([]string, error) {
	return m.Named(rev, Failed)
}

// Summary counts the outcomes of one revision.
type Summary struct {
	Revision    uint32 `json:"revision"     yaml:"revision"`
	Executed    int    `json:"executed"     yaml:"executed"`
	Passed      int    `json:"passed"       yaml:"passed"`
	Failed      int    `json:"failed"       yaml:"failed"`
	NotExecuted int    `json:"not_executed" yaml:"not_executed"`
}

// Summarize counts the outcomes of rev.
func (m *Matrix) Summarize(rev uint32) (Summary, error) {
	exec, err := m.executed.Row(rev)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: revision %d", ErrNotFound, rev)
	}

	pass, _ := m.passed.Row(rev)

	s := Summary{Revision: rev}

	for id := range m.testcases.Len() {
		switch outcome(exec.Get(id), pass.Get(id)) {
		case Passed:
			s.Passed++
		case Failed:
			s.Failed++
		case NotExecuted:
			s.NotExecuted++
		}
	}

	s.Executed = s.Passed + s.Failed

	return s, nil
}
