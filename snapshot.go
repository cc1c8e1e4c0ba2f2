package incr

// The snapshot model mirrors what the external snapshotter hands us: an
// immutable tree of filesystem locations with per-location content hashes
// already computed. Nothing in this package walks the real filesystem to
// build one.

// LocationType classifies a snapshotted filesystem location.
type LocationType uint8

const (
	// RegularFileLocation is a file with hashed content.
	RegularFileLocation LocationType = iota
	// DirLocation is a directory with a precomputed tree hash.
	DirLocation
	// MissingLocation is a declared input that did not exist at snapshot time.
	MissingLocation
)

func (t LocationType) String() string {
	switch t {
	case RegularFileLocation:
		return "file"
	case DirLocation:
		return "directory"
	case MissingLocation:
		return "missing"
	}
	return "unknown"
}

// Location is a single visited node during a snapshot walk.
// RelPath is the path from the enclosing root, using forward slashes;
// for a root node it equals Name.
type Location struct {
	Path    string
	RelPath string
	Name    string
	Hash    Hash
	Type    LocationType
}

// RootHash pairs a snapshot root path with its hash.
// A composite snapshot yields one pair per physical root, in traversal
// order. Candidate-reuse comparison depends on that order being stable.
type RootHash struct {
	Path string
	Hash Hash
}

// Snapshot is an immutable tree of filesystem locations.
type Snapshot interface {
	// walk visits every location depth-first. Returning false stops the walk.
	walk(prefix string, fn func(loc Location) bool) bool

	// appendRootHashes appends this snapshot's root hashes in traversal order.
	appendRootHashes(out []RootHash) []RootHash
}

// EmptySnapshot is the canonical snapshot of nothing. Fingerprinting it
// always yields the strategy's empty fingerprint without allocation.
var EmptySnapshot Snapshot = emptySnapshot{}

type emptySnapshot struct{}

func (emptySnapshot) walk(string, func(Location) bool) bool      { return true }
func (emptySnapshot) appendRootHashes(out []RootHash) []RootHash { return out }

// FileSnapshot is a snapshotted regular file.
type FileSnapshot struct {
	Path    string
	Name    string
	Content Hash
}

func (s FileSnapshot) walk(prefix string, fn func(Location) bool) bool {
	return fn(Location{
		Path:    s.Path,
		RelPath: joinRel(prefix, s.Name),
		Name:    s.Name,
		Hash:    s.Content,
		Type:    RegularFileLocation,
	})
}

func (s FileSnapshot) appendRootHashes(out []RootHash) []RootHash {
	return append(out, RootHash{Path: s.Path, Hash: s.Content})
}

// DirSnapshot is a snapshotted directory. TreeHash is the snapshotter's
// combined hash over the subtree; Children hold the subtree itself.
type DirSnapshot struct {
	Path     string
	Name     string
	TreeHash Hash
	Children []Snapshot
}

func (s DirSnapshot) walk(prefix string, fn func(Location) bool) bool {
	rel := joinRel(prefix, s.Name)
	if !fn(Location{
		Path:    s.Path,
		RelPath: rel,
		Name:    s.Name,
		Hash:    s.TreeHash,
		Type:    DirLocation,
	}) {
		return false
	}
	for _, child := range s.Children {
		if !child.walk(rel, fn) {
			return false
		}
	}
	return true
}

func (s DirSnapshot) appendRootHashes(out []RootHash) []RootHash {
	return append(out, RootHash{Path: s.Path, Hash: s.TreeHash})
}

// MissingSnapshot records a declared input that was absent.
type MissingSnapshot struct {
	Path string
	Name string
}

// missingContentHash marks absence in fingerprints and root hashes, so a
// file appearing where none existed changes the fingerprint.
var missingContentHash = HashString("absent location")

func (s MissingSnapshot) walk(prefix string, fn func(Location) bool) bool {
	return fn(Location{
		Path:    s.Path,
		RelPath: joinRel(prefix, s.Name),
		Name:    s.Name,
		Hash:    missingContentHash,
		Type:    MissingLocation,
	})
}

func (s MissingSnapshot) appendRootHashes(out []RootHash) []RootHash {
	return append(out, RootHash{Path: s.Path, Hash: missingContentHash})
}

// CompositeSnapshot groups multiple roots into one snapshot.
type CompositeSnapshot []Snapshot

// NewCompositeSnapshot combines parts into a single snapshot, canonicalizing
// the degenerate cases: no parts is EmptySnapshot, one part is the part.
func NewCompositeSnapshot(parts ...Snapshot) Snapshot {
	filtered := make([]Snapshot, 0, len(parts))
	for _, p := range parts {
		if p == nil || p == EmptySnapshot {
			continue
		}
		filtered = append(filtered, p)
	}
	switch len(filtered) {
	case 0:
		return EmptySnapshot
	case 1:
		return filtered[0]
	}
	return CompositeSnapshot(filtered)
}

func (s CompositeSnapshot) walk(prefix string, fn func(Location) bool) bool {
	for _, part := range s {
		if !part.walk(prefix, fn) {
			return false
		}
	}
	return true
}

func (s CompositeSnapshot) appendRootHashes(out []RootHash) []RootHash {
	for _, part := range s {
		out = part.appendRootHashes(out)
	}
	return out
}

// Walk visits every location of the snapshot depth-first.
// Returning false from fn stops the walk.
func Walk(s Snapshot, fn func(loc Location) bool) {
	s.walk("", fn)
}

// RootHashes collects the (root path, hash) pairs of a snapshot in
// traversal order. A root may contribute several pairs when it denotes
// multiple physical locations.
func RootHashes(s Snapshot) []RootHash {
	return s.appendRootHashes(nil)
}

func joinRel(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
