// Package gitlib reads commit history through libgit2 for changeset imports.
package gitlib

import (
	"encoding/hex"

	git2go "github.com/libgit2/git2go/v34"
)

// HashSize is the size of a SHA-1 hash in bytes.
const HashSize = 20

// shortHashSize is the number of hex digits Short keeps.
const shortHashSize = 7

// Hash is a git object id.
type Hash [HashSize]byte

// NewHash parses a hex object id. Invalid input yields the zero hash.
func NewHash(hexStr string) Hash {
	var h Hash

	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != HashSize {
		return h
	}

	copy(h[:], raw)

	return h
}

// HashFromOid converts a libgit2 Oid to Hash.
func HashFromOid(oid *git2go.Oid) Hash {
	var h Hash
	if oid != nil {
		copy(h[:], oid[:])
	}

	return h
}

// String returns the hex representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the abbreviated hex form used in logs.
func (h Hash) Short() string {
	return h.String()[:shortHashSize]
}

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ToOid converts the hash back to a libgit2 Oid.
func (h Hash) ToOid() *git2go.Oid {
	oid := new(git2go.Oid)
	copy(oid[:], h[:])

	return oid
}
