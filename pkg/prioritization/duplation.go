package prioritization

import (
	"maps"
	"math"
	"slices"
)

// Duplation picks, at every step, the test that comes closest to splitting
// the largest group of still indistinguishable code elements in half.
//
// Code elements carry partition labels. All start in label 1. Selecting a
// test relabels every element to 2*label when the test covers it and to
// 2*label-1 otherwise, so the partition only ever gets finer.
//
// Ties go to the lowest label and then to the lowest test id. SetState resets
// the partition to the single initial label; the refinements of the supplied
// prefix are not replayed.
type Duplation struct {
	selection

	labels    []uint64
	sizes     map[uint64]int
	remaining []int
}

// NewDuplation returns an uninitialized Duplation prioritizer.
func NewDuplation() *Duplation {
	return &Duplation{}
}

// Name implements Prioritizer.
func (d *Duplation) Name() string { return "duplation" }

// Description implements Prioritizer.
func (d *Duplation) Description() string {
	return "Greedily picks the test that best halves the largest partition of code elements."
}

// Init implements Prioritizer.
func (d *Duplation) Init(cov Coverage) error {
	d.bind(cov)

	return d.SetState(nil)
}

// SetState implements Prioritizer.
func (d *Duplation) SetState(prefix []int) error {
	if err := d.seed(prefix); err != nil {
		return err
	}

	d.remaining = d.selection.remaining()

	d.labels = make([]uint64, d.cov.NumCodeElements())
	for i := range d.labels {
		d.labels[i] = 1
	}

	d.recount()

	return nil
}

// Reset implements Prioritizer. Coverage alone drives the order, so revision
// changes are ignored.
func (d *Duplation) Reset(uint32) {}

// FillSelection implements Prioritizer.
func (d *Duplation) FillSelection(size int) []int {
	for len(d.ready) < size && len(d.remaining) > 0 {
		d.next()
	}

	return d.prefix(size)
}

// Partition returns a copy of the current label of every code element.
func (d *Duplation) Partition() []uint64 {
	return slices.Clone(d.labels)
}

func (d *Duplation) next() {
	label, size := d.largest()

	best, bestIdx, bestDist := -1, -1, math.MaxInt

	for i, tc := range d.remaining {
		dist := 2*d.coveredWithLabel(tc, label) - size
		if dist < 0 {
			dist = -dist
		}

		if dist < bestDist {
			best, bestIdx, bestDist = tc, i, dist
		}
	}

	d.remaining = slices.Delete(d.remaining, bestIdx, bestIdx+1)
	d.push(best)
	d.refine(best)
}

// largest returns the label with the most elements, lowest label on ties.
func (d *Duplation) largest() (uint64, int) {
	var (
		label uint64
		size  int
	)

	for l, n := range d.sizes {
		if n > size || (n == size && l < label) {
			label, size = l, n
		}
	}

	return label, size
}

func (d *Duplation) coveredWithLabel(tc int, label uint64) int {
	row := d.cov.Row(tc)
	if row == nil {
		return 0
	}

	n := 0

	for ce := range row.Ones() {
		if ce < len(d.labels) && d.labels[ce] == label {
			n++
		}
	}

	return n
}

// refine splits every partition by whether tc covers its elements.
func (d *Duplation) refine(tc int) {
	if slices.ContainsFunc(d.labels, func(l uint64) bool { return l > math.MaxUint64/2 }) {
		d.compact()
	}

	covered := make([]bool, len(d.labels))

	if row := d.cov.Row(tc); row != nil {
		for ce := range row.Ones() {
			if ce < len(covered) {
				covered[ce] = true
			}
		}
	}

	for ce, l := range d.labels {
		if covered[ce] {
			d.labels[ce] = 2 * l
		} else {
			d.labels[ce] = 2*l - 1
		}
	}

	d.recount()
}

// compact renumbers labels densely from 1, keeping their relative order so
// the lowest-label tie-break picks the same partition as before.
func (d *Duplation) compact() {
	old := slices.Sorted(maps.Keys(d.sizes))

	renumber := make(map[uint64]uint64, len(old))
	for i, l := range old {
		renumber[l] = uint64(i) + 1
	}

	for ce, l := range d.labels {
		d.labels[ce] = renumber[l]
	}

	d.recount()
}

func (d *Duplation) recount() {
	d.sizes = make(map[uint64]int)

	for _, l := range d.labels {
		d.sizes[l]++
	}
}
