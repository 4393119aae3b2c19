package prioritization

// additional is the additional coverage greedy shared by the ignore and the
// reset variants.
type additional struct {
	selection

	pending []queued
	covered []bool

	// resets enables the saturation reset; rearmed blocks a second reset
	// before the next pick.
	resets  bool
	rearmed bool
}

func (a *additional) setState(prefix []int) error {
	if err := a.seed(prefix); err != nil {
		return err
	}

	remaining := a.selection.remaining()

	a.pending = make([]queued, len(remaining))
	for i, tc := range remaining {
		a.pending[i] = queued{tc: tc}
	}

	a.rescore()
	a.rearmed = true

	for _, tc := range prefix {
		a.markCovered(tc)
	}

	return nil
}

// rescore forgets every covered element and restores the full coverage
// count of each pending test.
func (a *additional) rescore() {
	a.covered = make([]bool, a.cov.NumCodeElements())

	for i := range a.pending {
		a.pending[i].priority = uint64(count(a.cov, a.pending[i].tc))
	}
}

func (a *additional) fill(size int) []int {
	for len(a.ready) < size && len(a.pending) > 0 {
		best := 0

		for i := 1; i < len(a.pending); i++ {
			if byPriority(a.pending[i], a.pending[best]) < 0 {
				best = i
			}
		}

		pick := a.pending[best]

		if pick.priority == 0 && a.resets && a.rearmed {
			a.rescore()
			a.rearmed = false

			continue
		}

		a.rearmed = true
		a.pending = append(a.pending[:best], a.pending[best+1:]...)
		a.push(pick.tc)

		if pick.priority > 0 {
			a.markCovered(pick.tc)
		}
	}

	return a.prefix(size)
}

// markCovered records the elements of tc as covered and lowers the priority
// of every pending test sharing them.
func (a *additional) markCovered(tc int) {
	row := a.cov.Row(tc)
	if row == nil {
		return
	}

	for ce := range row.Ones() {
		if ce >= len(a.covered) || a.covered[ce] {
			continue
		}

		a.covered[ce] = true

		for i := range a.pending {
			other := a.cov.Row(a.pending[i].tc)
			if other != nil && other.Get(ce) && a.pending[i].priority > 0 {
				a.pending[i].priority--
			}
		}
	}
}

// AdditionalGeneralIgnore is the additional coverage greedy: each pick is the
// test covering the most code elements that no earlier pick covered. Ties go
// to the lowest id. Once nothing new can be covered the rest follow in that
// same order with priority zero.
type AdditionalGeneralIgnore struct {
	additional
}

// NewAdditionalGeneralIgnore returns an uninitialized additional coverage
// prioritizer.
func NewAdditionalGeneralIgnore() *AdditionalGeneralIgnore {
	return &AdditionalGeneralIgnore{}
}

// Name implements Prioritizer.
func (a *AdditionalGeneralIgnore) Name() string { return "additional-general-ignore" }

// Description implements Prioritizer.
func (a *AdditionalGeneralIgnore) Description() string {
	return "Orders tests by the number of not yet covered code elements they add."
}

// Init implements Prioritizer.
func (a *AdditionalGeneralIgnore) Init(cov Coverage) error {
	a.bind(cov)

	return a.SetState(nil)
}

// SetState implements Prioritizer. The coverage of the prefix counts as
// already achieved.
func (a *AdditionalGeneralIgnore) SetState(prefix []int) error { return a.setState(prefix) }

// Reset implements Prioritizer. Revisions are ignored.
func (a *AdditionalGeneralIgnore) Reset(uint32) {}

// FillSelection implements Prioritizer.
func (a *AdditionalGeneralIgnore) FillSelection(size int) []int { return a.fill(size) }

// AdditionalWithResets is the additional coverage greedy with saturation
// resets. When no pending test adds anything new, the covered set is cleared
// and the pending tests are scored again by their full coverage, so the
// remaining order keeps favouring tests that cover the most.
type AdditionalWithResets struct {
	additional
}

// NewAdditionalWithResets returns an uninitialized resetting additional
// coverage prioritizer.
func NewAdditionalWithResets() *AdditionalWithResets {
	return &AdditionalWithResets{additional: additional{resets: true}}
}

// Name implements Prioritizer.
func (a *AdditionalWithResets) Name() string { return "additional-with-resets" }

// Description implements Prioritizer.
func (a *AdditionalWithResets) Description() string {
	return "Additional coverage ordering that starts over once every coverable element is covered."
}

// Init implements Prioritizer.
func (a *AdditionalWithResets) Init(cov Coverage) error {
	a.bind(cov)

	return a.SetState(nil)
}

// SetState implements Prioritizer. The coverage of the prefix counts as
// already achieved.
func (a *AdditionalWithResets) SetState(prefix []int) error { return a.setState(prefix) }

// Reset implements Prioritizer. A new revision starts a fresh saturation
// round: the covered set is forgotten while the ready list is kept.
func (a *AdditionalWithResets) Reset(uint32) {
	if a.cov == nil {
		return
	}

	a.rescore()
	a.rearmed = true
}

// FillSelection implements Prioritizer.
func (a *AdditionalWithResets) FillSelection(size int) []int { return a.fill(size) }
