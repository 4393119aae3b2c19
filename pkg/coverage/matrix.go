// Package coverage stores which code elements each test case exercises.
//
// A Matrix has one sparse row per test case and one column per code element.
// Like changesets it supports a two-phase build: register every name first,
// call RefitSize, then set the relation bits.
package coverage

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
	"github.com/Sumatoshi-tech/testfang/pkg/idmanager"
)

// ErrNotFound is returned when a test case or code element is unknown.
var ErrNotFound = errors.New("coverage: not found")

// Matrix is a test case by code element coverage relation. It is not safe for
// concurrent mutation; concurrent reads are fine.
type Matrix struct {
	testcases    *idmanager.Table
	codeElements *idmanager.Table
	rows         []*bitlist.List
}

// New returns an empty Matrix.
func New() *Matrix {
	return &Matrix{
		testcases:    idmanager.New(),
		codeElements: idmanager.New(),
	}
}

// Testcases returns the test case table.
func (m *Matrix) Testcases() *idmanager.Table { return m.testcases }

// CodeElements returns the code element table.
func (m *Matrix) CodeElements() *idmanager.Table { return m.codeElements }

// NumTestcases returns the number of registered test cases.
func (m *Matrix) NumTestcases() int { return m.testcases.Len() }

// NumCodeElements returns the number of registered code elements.
func (m *Matrix) NumCodeElements() int { return m.codeElements.Len() }

// Row returns the coverage row of test case tc, or nil for an unknown id.
// Rows created before a RefitSize may be narrower than NumCodeElements.
func (m *Matrix) Row(tc int) *bitlist.List {
	if tc < 0 || tc >= len(m.rows) {
		return nil
	}

	return m.rows[tc]
}

// Covers reports whether test case tc exercises code element ce.
func (m *Matrix) Covers(tc, ce int) bool {
	row := m.Row(tc)

	return row != nil && row.Get(ce)
}

// AddTestcaseName registers a test case without allocating its row.
func (m *Matrix) AddTestcaseName(name string) int {
	return m.testcases.Add(name)
}

// AddCodeElementName registers a code element without widening the rows.
func (m *Matrix) AddCodeElementName(name string) int {
	return m.codeElements.Add(name)
}

// AddTestcase registers a test case with a full-width row.
func (m *Matrix) AddTestcase(name string) int {
	id := m.testcases.Add(name)
	m.RefitSize()

	return id
}

// AddCodeElement registers a code element and widens every row.
func (m *Matrix) AddCodeElement(name string) int {
	id := m.codeElements.Add(name)
	m.RefitSize()

	return id
}

// RefitSize allocates missing rows and pads every row to the code element
// count.
func (m *Matrix) RefitSize() {
	width := m.codeElements.Len()

	for len(m.rows) < m.testcases.Len() {
		m.rows = append(m.rows, bitlist.NewSized(width))
	}

	for _, row := range m.rows {
		if row.Len() < width {
			row.Resize(width)
		}
	}
}

func (m *Matrix) resolve(tc, ce string) (*bitlist.List, int, error) {
	tcID, ok := m.testcases.ID(tc)
	if !ok || tcID >= len(m.rows) {
		return nil, 0, fmt.Errorf("%w: test case %q", ErrNotFound, tc)
	}

	ceID, ok := m.codeElements.ID(ce)
	if !ok {
		return nil, 0, fmt.Errorf("%w: code element %q", ErrNotFound, ce)
	}

	row := m.rows[tcID]
	if ceID >= row.Len() {
		row.Resize(m.codeElements.Len())
	}

	return row, ceID, nil
}

// SetRelation records whether test case tc covers code element ce. Both must
// be registered and the rows refit.
func (m *Matrix) SetRelation(tc, ce string, covered bool) error {
	row, ceID, err := m.resolve(tc, ce)
	if err != nil {
		return err
	}

	return row.Set(ceID, covered)
}

// AddOrSetRelation records the relation, registering missing names first.
func (m *Matrix) AddOrSetRelation(tc, ce string, covered bool) {
	m.testcases.Add(tc)
	m.codeElements.Add(ce)
	m.RefitSize()

	_ = m.SetRelation(tc, ce, covered)
}

// CoveredBy returns the names of the code elements test case tc covers.
func (m *Matrix) CoveredBy(tc string) ([]string, error) {
	id, ok := m.testcases.ID(tc)
	if !ok {
		return nil, fmt.Errorf("%w: test case %q", ErrNotFound, tc)
	}

	row := m.Row(id)
	if row == nil {
		return nil, nil
	}

	names := make([]string, 0, row.Count())

	for ce := range row.Ones() {
		if name, found := m.codeElements.Name(ce); found {
			names = append(names, name)
		}
	}

	return names, nil
}

// CoveringTests returns the names of the test cases covering code element ce.
func (m *Matrix) CoveringTests(ce string) ([]string, error) {
	id, ok := m.codeElements.ID(ce)
	if !ok {
		return nil, fmt.Errorf("%w: code element %q", ErrNotFound, ce)
	}

	var names []string

	for tc, row := range m.rows {
		if row.Get(id) {
			name, _ := m.testcases.Name(tc)
			names = append(names, name)
		}
	}

	return names, nil
}

// Subset returns a matrix over a copy of the same code elements holding the
// test cases ids, in the given order. Unknown and repeated ids are skipped.
func (m *Matrix) Subset(ids []int) *Matrix {
	out := &Matrix{
		testcases:    idmanager.New(),
		codeElements: m.codeElements.Clone(),
	}

	for _, tc := range ids {
		name, ok := m.testcases.Name(tc)
		if !ok || out.testcases.Contains(name) {
			continue
		}

		out.testcases.Add(name)

		if row := m.Row(tc); row != nil {
			out.rows = append(out.rows, row.Clone())
		} else {
			out.rows = append(out.rows, bitlist.NewSized(out.codeElements.Len()))
		}
	}

	out.RefitSize()

	return out
}

// Stats summarizes a coverage matrix.
type Stats struct {
	Testcases      int     `json:"testcases"       yaml:"testcases"`
	CodeElements   int     `json:"code_elements"   yaml:"code_elements"`
	Relations      int     `json:"relations"       yaml:"relations"`
	Density        float64 `json:"density"         yaml:"density"`
	UncoveredTests int     `json:"uncovered_tests" yaml:"uncovered_tests"`
}

// Stats computes relation counts and density.
func (m *Matrix) Stats() Stats {
	s := Stats{
		Testcases:    m.NumTestcases(),
		CodeElements: m.NumCodeElements(),
	}

	for _, row := range m.rows {
		s.Relations += row.Count()

		if row.Count() == 0 {
			s.UncoveredTests++
		}
	}

	if cells := s.Testcases * s.CodeElements; cells > 0 {
		s.Density = float64(s.Relations) / float64(cells)
	}

	return s
}
