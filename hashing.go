package incr

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash is a 64-bit content hash.
// Hashes are stable across processes and platforms, so they can be persisted
// and compared between builds.
type Hash uint64

// Hex returns the hash as a 16-character lowercase hex string.
func (h Hash) Hex() string {
	return fmt.Sprintf("%016x", uint64(h))
}

func (h Hash) String() string {
	return h.Hex()
}

// Hasher accumulates values into a single Hash.
// It uses xxHash64, the same function the cache uses for content addressing.
// The zero value is not usable; call NewHasher.
type Hasher struct {
	d *xxhash.Digest
}

// NewHasher returns a Hasher ready for use.
func NewHasher() *Hasher {
	return &Hasher{d: xxhash.New()}
}

// Write implements io.Writer so a Hasher can sit behind an io.MultiWriter.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.d.Write(p)
}

// PutBytes feeds raw bytes into the hash.
func (h *Hasher) PutBytes(p []byte) *Hasher {
	_, _ = h.d.Write(p)
	return h
}

// PutString feeds a string into the hash, length-prefixed so that
// consecutive strings cannot collide by concatenation.
func (h *Hasher) PutString(s string) *Hasher {
	h.PutUint64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
	return h
}

// PutUint64 feeds a big-endian uint64 into the hash.
func (h *Hasher) PutUint64(v uint64) *Hasher {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, _ = h.d.Write(buf[:])
	return h
}

// PutBool feeds a bool into the hash.
func (h *Hasher) PutBool(v bool) *Hasher {
	if v {
		return h.PutUint64(1)
	}
	return h.PutUint64(0)
}

// PutHash feeds another hash into this one.
func (h *Hasher) PutHash(v Hash) *Hasher {
	return h.PutUint64(uint64(v))
}

// Finish returns the accumulated hash.
func (h *Hasher) Finish() Hash {
	return Hash(h.d.Sum64())
}

// HashBytes hashes a byte slice in one call.
func HashBytes(p []byte) Hash {
	return Hash(xxhash.Sum64(p))
}

// HashString hashes a string in one call.
func HashString(s string) Hash {
	return Hash(xxhash.Sum64String(s))
}
