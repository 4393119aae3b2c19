package prioritization

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"time"
)

// queued is a test id with its priority.
type queued struct {
	tc       int
	priority uint64
}

// byPriority orders higher priorities first, then lower ids.
func byPriority(a, b queued) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}

	return cmp.Compare(a.tc, b.tc)
}

// queue is the shared machinery of the one-shot sort based prioritizers.
type queue struct {
	selection

	pending []queued
	score   func(tc int) uint64
}

func (q *queue) setState(prefix []int) error {
	if err := q.seed(prefix); err != nil {
		return err
	}

	remaining := q.selection.remaining()

	q.pending = make([]queued, len(remaining))
	for i, tc := range remaining {
		q.pending[i] = queued{tc: tc, priority: q.score(tc)}
	}

	slices.SortFunc(q.pending, byPriority)

	return nil
}

func (q *queue) fill(size int) []int {
	for len(q.ready) < size && len(q.pending) > 0 {
		q.push(q.pending[0].tc)
		q.pending = q.pending[1:]
	}

	return q.prefix(size)
}

// GeneralIgnore orders tests by how many code elements each covers, highest
// first. Equal counts keep ascending id order.
type GeneralIgnore struct {
	queue
}

// NewGeneralIgnore returns an uninitialized coverage count prioritizer.
func NewGeneralIgnore() *GeneralIgnore {
	g := &GeneralIgnore{}
	g.score = func(tc int) uint64 { return uint64(count(g.cov, tc)) }

	return g
}

// Name implements Prioritizer.
func (g *GeneralIgnore) Name() string { return "general-ignore" }

// Description implements Prioritizer.
func (g *GeneralIgnore) Description() string {
	return "Orders tests by the number of code elements they cover, highest first."
}

// Init implements Prioritizer.
func (g *GeneralIgnore) Init(cov Coverage) error {
	g.bind(cov)

	return g.SetState(nil)
}

// SetState implements Prioritizer.
func (g *GeneralIgnore) SetState(prefix []int) error { return g.setState(prefix) }

// Reset implements Prioritizer. Revisions are ignored.
func (g *GeneralIgnore) Reset(uint32) {}

// FillSelection implements Prioritizer.
func (g *GeneralIgnore) FillSelection(size int) []int { return g.fill(size) }

// RandomIgnore orders tests by a random priority drawn on every SetState.
type RandomIgnore struct {
	queue

	rng *rand.Rand
}

// NewRandomIgnore returns an uninitialized random prioritizer. A nil rng
// selects a time seeded source.
func NewRandomIgnore(rng *rand.Rand) *RandomIgnore {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	r := &RandomIgnore{rng: rng}
	r.score = func(int) uint64 { return r.rng.Uint64() }

	return r
}

// Name implements Prioritizer.
func (r *RandomIgnore) Name() string { return "random-ignore" }

// Description implements Prioritizer.
func (r *RandomIgnore) Description() string {
	return "Orders tests randomly; reshuffles on every state change."
}

// Init implements Prioritizer.
func (r *RandomIgnore) Init(cov Coverage) error {
	r.bind(cov)

	return r.SetState(nil)
}

// SetState implements Prioritizer.
func (r *RandomIgnore) SetState(prefix []int) error { return r.setState(prefix) }

// Reset implements Prioritizer. Revisions are ignored.
func (r *RandomIgnore) Reset(uint32) {}

// FillSelection implements Prioritizer.
func (r *RandomIgnore) FillSelection(size int) []int { return r.fill(size) }
