package run

import (
	"fmt"
	"os"
	"time"

	"github.com/Sumatoshi-tech/testfang/pkg/cache"
	"github.com/Sumatoshi-tech/testfang/pkg/coverage"
)

// Rough in-memory cost of a loaded matrix.
const (
	relationBytes = 8
	nameBytes     = 64
)

type coverageKey struct {
	path    string
	size    int64
	modTime time.Time
}

// CoverageCache keeps loaded coverage matrices for long-lived processes.
// Entries are keyed by path, size and modification time, so a rewritten
// file is loaded again. Cached matrices are shared and must not be mutated.
type CoverageCache struct {
	lru *cache.LRU[coverageKey, *coverage.Matrix]
}

// NewCoverageCache creates a cache holding about maxBytes of matrices.
func NewCoverageCache(maxBytes int64) *CoverageCache {
	return &CoverageCache{lru: cache.New[coverageKey](maxBytes, matrixSize)}
}

func matrixSize(m *coverage.Matrix) int64 {
	s := m.Stats()

	return int64(s.Relations)*relationBytes + int64(s.Testcases+s.CodeElements)*nameBytes
}

// Open returns the matrix at path, loading it on a miss.
func (c *CoverageCache) Open(path string) (*coverage.Matrix, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat coverage: %w", err)
	}

	key := coverageKey{path: path, size: info.Size(), modTime: info.ModTime()}

	if m, ok := c.lru.Get(key); ok {
		return m, nil
	}

	m, err := coverage.Open(path)
	if err != nil {
		return nil, err
	}

	c.lru.Put(key, m)

	return m, nil
}

// Stats reports cache hits and misses.
func (c *CoverageCache) Stats() cache.Stats {
	return c.lru.Stats()
}
