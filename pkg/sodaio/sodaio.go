// Package sodaio reads and writes the chunked SoDA binary format.
//
// A file starts with the magic number 0x41446f53 ("SoDA" in little-endian
// byte order) followed by any number of chunks:
//
//	[id uint32][length uint64][payload: length bytes]
//
// All integers are little-endian. Readers skip chunks they do not understand,
// so a single file can carry a coverage matrix, a changeset and identifier
// tables side by side. Files whose name ends in ".lz4" are wrapped in an LZ4
// frame.
package sodaio

import (
	"errors"
	"fmt"
	"strings"
)

// Magic is the first word of every SoDA file.
const Magic uint32 = 0x41446f53

// ChunkID identifies the payload type of a chunk.
type ChunkID uint32

// Known chunk identifiers. Values past Coverage are sequential.
const (
	Unknown ChunkID = 0
)

const (
	Coverage ChunkID = iota + 123456
	Relation
	IDManager
	TCList
	PRList
	Revisions
	BitMatrix
	BitList
	Execution
	Passed
	Changeset
	CodeElementTrace
	RevList
	Bugset
)

var chunkNames = map[ChunkID]string{
	Unknown:          "UNKNOWN",
	Coverage:         "COVERAGE",
	Relation:         "RELATION",
	IDManager:        "IDMANAGER",
	TCList:           "TCLIST",
	PRList:           "PRLIST",
	Revisions:        "REVISIONS",
	BitMatrix:        "BITMATRIX",
	BitList:          "BITLIST",
	Execution:        "EXECUTION",
	Passed:           "PASSED",
	Changeset:        "CHANGESET",
	CodeElementTrace: "CODEELEMENT_TRACE",
	RevList:          "REVLIST",
	Bugset:           "BUGSET",
}

// String returns the conventional upper-case chunk name.
func (id ChunkID) String() string {
	if name, ok := chunkNames[id]; ok {
		return name
	}

	return fmt.Sprintf("CHUNK(%d)", uint32(id))
}

// ErrCorruptFormat is returned when a stream violates the chunk layout.
var ErrCorruptFormat = errors.New("sodaio: corrupt format")

// headerSize is the byte size of a chunk header (id + length).
const headerSize = 4 + 8

// compressedSuffix selects LZ4 frame wrapping in Create and Open.
const compressedSuffix = ".lz4"

func isCompressed(path string) bool {
	return strings.HasSuffix(path, compressedSuffix)
}
