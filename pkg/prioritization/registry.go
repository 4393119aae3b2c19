package prioritization

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

var (
	// ErrUnknownAlgorithm is returned when a registry lookup fails.
	ErrUnknownAlgorithm = errors.New("unknown prioritization algorithm")

	// ErrDuplicateAlgorithm is returned when a name is registered twice.
	ErrDuplicateAlgorithm = errors.New("duplicate prioritization algorithm")
)

// Options carries construction parameters shared by the factories.
type Options struct {
	// Rand drives randomized algorithms. Nil means time seeded.
	Rand *rand.Rand
}

// Option customizes Options.
type Option func(*Options)

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(o *Options) { o.Rand = rng }
}

// WithSeed sets a PCG random source seeded with seed.
func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Rand = rand.New(rand.NewPCG(seed, seed)) }
}

// Factory builds a fresh prioritizer.
type Factory func(opts Options) Prioritizer

// Descriptor describes a registered algorithm.
type Descriptor struct {
	Name        string `json:"name"        yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

type registration struct {
	Descriptor

	factory Factory
}

// Registry maps algorithm names to factories, in registration order.
type Registry struct {
	ordered []registration
	index   map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a factory under the name and description of the prioritizer
// it builds.
func (r *Registry) Register(factory Factory) error {
	sample := factory(Options{})
	name := sample.Name()

	if _, exists := r.index[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAlgorithm, name)
	}

	r.index[name] = len(r.ordered)
	r.ordered = append(r.ordered, registration{
		Descriptor: Descriptor{Name: name, Description: sample.Description()},
		factory:    factory,
	})

	return nil
}

// New builds the prioritizer registered under name.
func (r *Registry) New(name string, opts ...Option) (Prioritizer, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownAlgorithm, name, r.Names())
	}

	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	return r.ordered[i].factory(o), nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, reg := range r.ordered {
		names = append(names, reg.Name)
	}

	slices.Sort(names)

	return names
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	for i, reg := range r.ordered {
		out[i] = reg.Descriptor
	}

	return out
}

// Default returns a registry holding every built-in algorithm.
func Default() *Registry {
	r := NewRegistry()

	for _, f := range []Factory{
		func(Options) Prioritizer { return NewDuplation() },
		func(Options) Prioritizer { return NewGeneralIgnore() },
		func(Options) Prioritizer { return NewAdditionalGeneralIgnore() },
		func(Options) Prioritizer { return NewAdditionalWithResets() },
		func(o Options) Prioritizer { return NewRandomIgnore(o.Rand) },
	} {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}

	return r
}
