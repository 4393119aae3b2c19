// Package prioritization orders test cases so that the most useful ones run
// first.
//
// Every Prioritizer grows a ready list of test ids one pick at a time.
// FillSelection extends that list only as far as asked, so repeated calls with
// growing sizes return prefixes of one another. SetState seeds the ready list,
// which is how an interrupted run is resumed.
package prioritization

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/testfang/pkg/bitlist"
)

// ErrInvalidState is returned by SetState for unknown or repeated test ids.
var ErrInvalidState = errors.New("prioritization: invalid state")

// ErrNotInitialized is returned by SetState before Init.
var ErrNotInitialized = errors.New("prioritization: not initialized")

// Coverage is the read-only view of a coverage matrix the prioritizers use.
type Coverage interface {
	NumTestcases() int
	NumCodeElements() int
	// Row returns the code elements test case tc covers. It may return nil.
	Row(tc int) *bitlist.List
}

// Prioritizer produces a priority order over the test cases of a coverage
// matrix.
type Prioritizer interface {
	Name() string
	Description() string
	// Init binds the coverage matrix and starts from an empty ready list.
	Init(cov Coverage) error
	// SetState replaces the ready list with prefix.
	SetState(prefix []int) error
	// Reset is called when the revision under test changes.
	Reset(rev uint32)
	// FillSelection returns the first min(size, NumTestcases) ids in priority
	// order.
	FillSelection(size int) []int
}

// selection is the ready/remaining bookkeeping shared by every prioritizer.
type selection struct {
	cov     Coverage
	ready   []int
	isReady []bool
}

func (s *selection) bind(cov Coverage) {
	s.cov = cov
	s.ready = nil
	s.isReady = make([]bool, cov.NumTestcases())
}

// seed validates prefix and makes it the ready list.
func (s *selection) seed(prefix []int) error {
	if s.cov == nil {
		return ErrNotInitialized
	}

	isReady := make([]bool, s.cov.NumTestcases())

	for _, tc := range prefix {
		if tc < 0 || tc >= len(isReady) {
			return fmt.Errorf("%w: unknown test id %d", ErrInvalidState, tc)
		}

		if isReady[tc] {
			return fmt.Errorf("%w: test id %d repeated", ErrInvalidState, tc)
		}

		isReady[tc] = true
	}

	s.ready = append([]int(nil), prefix...)
	s.isReady = isReady

	return nil
}

// remaining returns the ids not yet ready, ascending.
func (s *selection) remaining() []int {
	out := make([]int, 0, len(s.isReady)-len(s.ready))

	for tc, ready := range s.isReady {
		if !ready {
			out = append(out, tc)
		}
	}

	return out
}

func (s *selection) push(tc int) {
	s.ready = append(s.ready, tc)
	s.isReady[tc] = true
}

// prefix returns a copy of the first size ready ids.
func (s *selection) prefix(size int) []int {
	size = max(0, min(size, len(s.ready)))

	return append([]int(nil), s.ready[:size]...)
}

// count returns the number of covered elements of tc, zero for a missing row.
func count(cov Coverage, tc int) int {
	if row := cov.Row(tc); row != nil {
		return row.Count()
	}

	return 0
}
