// Package safeconv provides integer conversions that detect overflow.
//
// The Must variants panic and are meant for values whose range is already
// guaranteed by the caller. The checked variants return ErrOverflow and are
// used on values decoded from untrusted input.
package safeconv

import (
	"errors"
	"math"
)

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// MaxUint32 is the maximum value for uint32 type.
const MaxUint32 = uint32(math.MaxUint32)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("safeconv: integer overflow")

// MustUintToInt converts uint to int, panics on overflow.
func MustUintToInt(v uint) int {
	if v > uint(MaxInt) {
		panic("safeconv: uint to int overflow")
	}

	return int(v)
}

// MustIntToUint32 converts int to uint32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint32(v int) uint32 {
	if v < 0 || v > int(MaxUint32) {
		panic("safeconv: int to uint32 out of bounds")
	}

	return uint32(v)
}

// MustIntToUint64 converts int to uint64, panics if negative.
func MustIntToUint64(v int) uint64 {
	if v < 0 {
		panic("safeconv: negative int to uint64 conversion")
	}

	return uint64(v)
}

// IntToUint32 converts int to uint32.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || v > int(MaxUint32) {
		return 0, ErrOverflow
	}

	return uint32(v), nil
}

// Uint64ToInt converts uint64 to int.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(MaxInt) {
		return 0, ErrOverflow
	}

	return int(v), nil
}
