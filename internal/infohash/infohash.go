// Package infohash provides the fixed-width content identifier used
// throughout the coordinator.
package infohash

import (
	"encoding/hex"
	"fmt"
)

// Length is the fixed byte width of an Infohash (spec §3).
const Length = 20

// Infohash is a 20-byte opaque swarm identifier. Equality and hashing are
// byte-wise, which Go gives us for free by making it a comparable array
// type instead of a slice.
type Infohash [Length]byte

// Parse validates b and returns the corresponding Infohash. It returns an
// error rather than panicking because the byte slice may originate
// outside the process (e.g. a database row or wire message); callers
// that construct an Infohash from a value they control themselves should
// use MustParse, which treats a non-nil error as a programmer mistake.
func Parse(b []byte) (Infohash, error) {
	var ih Infohash
	if len(b) != Length {
		return ih, fmt.Errorf("infohash: invalid length %d, want %d", len(b), Length)
	}
	copy(ih[:], b)
	return ih, nil
}

// MustParse is Parse but panics on error. Used at boundaries where the
// length is already a compile-time or otherwise-checked invariant, per
// spec §7 "precondition violation... raised as a fatal programmer error".
func MustParse(b []byte) Infohash {
	ih, err := Parse(b)
	if err != nil {
		panic(err)
	}
	return ih
}

// Bytes returns a fresh copy of the underlying bytes.
func (ih Infohash) Bytes() []byte {
	b := make([]byte, Length)
	copy(b, ih[:])
	return b
}

// String renders the infohash as lowercase hex, the form spec §3
// requires for file names, log lines, and magnet URIs.
func (ih Infohash) String() string {
	return hex.EncodeToString(ih[:])
}

// Filename is the descriptor file name for this infohash, per spec §6.
func (ih Infohash) Filename() string {
	return ih.String() + ".torrent"
}
