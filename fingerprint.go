package incr

import (
	"fmt"
	"strings"
	"sync"
)

// LocationFingerprint is the fingerprint of a single filesystem location:
// its normalized path, content (or tree) hash, and location type.
type LocationFingerprint struct {
	NormalizedPath string
	Hash           Hash
	Type           LocationType
}

// fingerprintMap is an insertion-ordered map from normalized location key to
// LocationFingerprint. Aggregate hashing iterates it in insertion order, so
// the order must be deterministic for identical inputs; a walk over an
// immutable snapshot guarantees that.
type fingerprintMap struct {
	keys    []string
	entries map[string]LocationFingerprint
}

func newFingerprintMap() *fingerprintMap {
	return &fingerprintMap{entries: make(map[string]LocationFingerprint)}
}

// put inserts a fingerprint unless the key is already present.
// First entry wins, matching how duplicate normalized paths (e.g. two roots
// with the same name under name-only normalization) are resolved.
func (m *fingerprintMap) put(key string, fp LocationFingerprint) {
	if _, ok := m.entries[key]; ok {
		return
	}
	m.keys = append(m.keys, key)
	m.entries[key] = fp
}

func (m *fingerprintMap) len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *fingerprintMap) get(key string) (LocationFingerprint, bool) {
	if m == nil {
		return LocationFingerprint{}, false
	}
	fp, ok := m.entries[key]
	return fp, ok
}

// each visits entries in insertion order. Returning false stops the visit.
func (m *fingerprintMap) each(fn func(key string, fp LocationFingerprint) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.entries[k]) {
			return
		}
	}
}

// Fingerprint is an immutable, content-derived digest of a set of
// filesystem locations, used as (part of) a cache key. The aggregate hash
// is computed once, lazily, and cached for the fingerprint's lifetime.
type Fingerprint struct {
	fingerprints *fingerprintMap
	rootHashes   []RootHash
	identifier   string
	configHash   Hash
	hashing      hashingPolicy

	hashOnce sync.Once
	hash     Hash
}

// hashingPolicy folds per-location fingerprints into an aggregate hash.
// Strategies supply it; see Strategy.AppendToHasher.
type hashingPolicy func(h *Hasher, fps *fingerprintMap)

// FromSnapshot computes the fingerprint of roots under the given strategy.
//
// A candidate fingerprint from a previous build may be supplied; when its
// strategy configuration hash matches and its root hashes are entry-wise
// equal (order-sensitive) to the fresh ones, its per-location fingerprints
// are reused verbatim. The reuse is purely an optimization: recomputing is
// always correct, only slower.
//
// The canonical empty-snapshot and empty-result cases both return the
// strategy's empty fingerprint singleton, so "no fingerprints" has exactly
// one representation.
func FromSnapshot(roots Snapshot, strategy Strategy, candidate *Fingerprint) *Fingerprint {
	if roots == EmptySnapshot {
		return strategy.EmptyFingerprint()
	}

	rootHashes := RootHashes(roots)
	var fingerprints *fingerprintMap
	if candidate != nil &&
		candidate.configHash == strategy.ConfigurationHash() &&
		rootHashesEqual(candidate.rootHashes, rootHashes) {
		fingerprints = candidate.fingerprints
	} else {
		fingerprints = strategy.collectFingerprints(roots)
	}
	if fingerprints.len() == 0 {
		return strategy.EmptyFingerprint()
	}

	return &Fingerprint{
		fingerprints: fingerprints,
		rootHashes:   rootHashes,
		identifier:   strategy.Identifier(),
		configHash:   strategy.ConfigurationHash(),
		hashing:      strategy.appendToHasher,
	}
}

// Hash returns the aggregate hash over all per-location fingerprints,
// computed on first use.
func (f *Fingerprint) Hash() Hash {
	f.hashOnce.Do(func() {
		h := NewHasher()
		f.hashing(h, f.fingerprints)
		f.hash = h.Finish()
	})
	return f.hash
}

// Empty reports whether the fingerprint covers no locations.
func (f *Fingerprint) Empty() bool {
	return f.fingerprints.len() == 0
}

// Len returns the number of fingerprinted locations.
func (f *Fingerprint) Len() int {
	return f.fingerprints.len()
}

// Identifier returns the identifier of the strategy that produced this
// fingerprint.
func (f *Fingerprint) Identifier() string {
	return f.identifier
}

// ConfigurationHash returns the configuration hash of the producing
// strategy. Fingerprints from differently configured strategies are never
// interchangeable, even over identical content.
func (f *Fingerprint) ConfigurationHash() Hash {
	return f.configHash
}

// RootHashes returns the root hashes in traversal order.
func (f *Fingerprint) RootHashes() []RootHash {
	return f.rootHashes
}

// Location returns the fingerprint recorded for a normalized location key.
func (f *Fingerprint) Location(key string) (LocationFingerprint, bool) {
	return f.fingerprints.get(key)
}

// EachLocation visits per-location fingerprints in insertion order.
// Returning false from fn stops the visit.
func (f *Fingerprint) EachLocation(fn func(key string, fp LocationFingerprint) bool) {
	f.fingerprints.each(fn)
}

func (f *Fingerprint) String() string {
	var b strings.Builder
	b.WriteString(f.identifier)
	b.WriteByte('{')
	first := true
	f.fingerprints.each(func(key string, fp LocationFingerprint) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s=%s", key, fp.Hash)
		return true
	})
	b.WriteByte('}')
	return b.String()
}

// rootHashesEqual compares root hashes entry-wise, order-sensitively.
// Root hashes are collected in traversal order; if that collection ever
// becomes order-insensitive this comparison must change with it.
func rootHashesEqual(a, b []RootHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// storedFingerprint reconstructs a fingerprint decoded from the entry
// store. The aggregate hash was computed when the entry was written, so the
// lazy computation is pre-seeded with it.
func storedFingerprint(identifier string, configHash, aggregate Hash, rootHashes []RootHash, fps *fingerprintMap) *Fingerprint {
	f := &Fingerprint{
		fingerprints: fps,
		rootHashes:   rootHashes,
		identifier:   identifier,
		configHash:   configHash,
	}
	f.hashOnce.Do(func() { f.hash = aggregate })
	return f
}
