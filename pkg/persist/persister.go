package persist

// Persister reads and writes one state type under a fixed basename.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister with the given basename and codec.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Filename returns the file name the persister reads and writes.
func (p *Persister[T]) Filename() string {
	return p.basename + p.codec.Extension()
}

// Save writes state into dir.
func (p *Persister[T]) Save(dir string, state *T) error {
	return SaveState(dir, p.basename, p.codec, state)
}

// Load reads the state stored in dir.
func (p *Persister[T]) Load(dir string) (*T, error) {
	var state T

	if err := LoadState(dir, p.basename, p.codec, &state); err != nil {
		return nil, err
	}

	return &state, nil
}
