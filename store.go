package incr

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is the persisted cache record for one build: the fingerprints of
// every sub-unit's inputs plus metadata. One build owns exactly one entry,
// addressed by a single composite key.
type Entry struct {
	Key       string
	CreatedAt time.Time
	Metadata  map[string]string
	Projects  BuildFingerprints
}

// entrySchemaVersion is bumped whenever the payload format changes, so old
// entries decode as misses instead of garbage.
const entrySchemaVersion uint16 = 1

// entryPayload is the on-disk shape of an Entry.
type entryPayload struct {
	Schema    uint16
	Key       string
	CreatedAt time.Time
	Metadata  map[string]string
	Projects  map[string]projectPayload
}

type projectPayload struct {
	Properties map[string]fingerprintPayload
}

// fingerprintPayload flattens a Fingerprint for storage. Keys, Hashes and
// Types are parallel slices in map insertion order, so the iteration order
// the aggregate hash was computed over survives the round trip.
type fingerprintPayload struct {
	Identifier string
	ConfigHash uint64
	Aggregate  uint64
	RootPaths  []string
	RootHashes []uint64
	Keys       []string
	Hashes     []uint64
	Types      []uint8
}

// EntryStore persists one entry per composite build key. Corrupt or
// stale-schema entries are reported as misses, never as failures: a broken
// cache must only ever cost a rebuild.
type EntryStore struct {
	root string
	fs   afero.Fs
	log  Logger
	now  func() time.Time
	mu   sync.RWMutex
}

// OpenEntryStore creates a store rooted at the given directory, creating it
// if needed.
func OpenEntryStore(root string, opts ...StoreOption) (*EntryStore, error) {
	s := &EntryStore{
		root: root,
		fs:   afero.NewOsFs(),
		log:  NopLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.fs.MkdirAll(s.entriesDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create entries directory: %w", err)
	}
	return s, nil
}

// Lookup returns the entry stored under key, or ErrEntryNotFound.
func (s *EntryStore) Lookup(key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.entryPath(key)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	var payload entryPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		s.log.Warn("discarding corrupt cache entry", String("path", path), Err(err))
		return nil, ErrEntryNotFound
	}
	if payload.Schema != entrySchemaVersion {
		s.log.Warn("discarding cache entry with stale schema",
			String("path", path), Int("schema", int(payload.Schema)))
		return nil, ErrEntryNotFound
	}

	return decodeEntry(&payload), nil
}

// Store persists the entry under key, atomically replacing any previous
// one. The entry's Key and CreatedAt are filled in if unset.
func (s *EntryStore) Store(key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := encodeEntry(key, entry, s.now)
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	path := s.entryPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create entry directory: %w", err)
	}

	// Write through a temporary file so a crash never leaves a torn entry
	// at the final path.
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move entry into place: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (s *EntryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.entryPath(key)
	if exists, _ := afero.Exists(s.fs, path); !exists {
		return nil
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	return nil
}

func (s *EntryStore) entriesDir() string {
	return filepath.Join(s.root, "entries")
}

// entryPath shards entries by the first two hex digits of the key hash, the
// usual content-addressed layout.
func (s *EntryStore) entryPath(key string) string {
	keyHash := HashString(key).Hex()
	return filepath.Join(s.entriesDir(), keyHash[:2], keyHash+".bin")
}

func encodeEntry(key string, entry *Entry, now func() time.Time) *entryPayload {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	payload := &entryPayload{
		Schema:    entrySchemaVersion,
		Key:       key,
		CreatedAt: createdAt,
		Metadata:  entry.Metadata,
		Projects:  make(map[string]projectPayload, len(entry.Projects)),
	}
	for name, props := range entry.Projects {
		pp := projectPayload{Properties: make(map[string]fingerprintPayload, len(props))}
		for prop, fp := range props {
			pp.Properties[prop] = encodeFingerprint(fp)
		}
		payload.Projects[name] = pp
	}
	return payload
}

func encodeFingerprint(fp *Fingerprint) fingerprintPayload {
	out := fingerprintPayload{
		Identifier: fp.Identifier(),
		ConfigHash: uint64(fp.ConfigurationHash()),
		Aggregate:  uint64(fp.Hash()),
	}
	for _, rh := range fp.RootHashes() {
		out.RootPaths = append(out.RootPaths, rh.Path)
		out.RootHashes = append(out.RootHashes, uint64(rh.Hash))
	}
	fp.EachLocation(func(key string, lf LocationFingerprint) bool {
		out.Keys = append(out.Keys, key)
		out.Hashes = append(out.Hashes, uint64(lf.Hash))
		out.Types = append(out.Types, uint8(lf.Type))
		return true
	})
	return out
}

func decodeEntry(payload *entryPayload) *Entry {
	entry := &Entry{
		Key:       payload.Key,
		CreatedAt: payload.CreatedAt,
		Metadata:  payload.Metadata,
		Projects:  make(BuildFingerprints, len(payload.Projects)),
	}
	for name, pp := range payload.Projects {
		props := make(ProjectFingerprints, len(pp.Properties))
		for prop, fpp := range pp.Properties {
			props[prop] = decodeFingerprint(fpp)
		}
		entry.Projects[name] = props
	}
	return entry
}

func decodeFingerprint(payload fingerprintPayload) *Fingerprint {
	var roots []RootHash
	for i, path := range payload.RootPaths {
		roots = append(roots, RootHash{Path: path, Hash: Hash(payload.RootHashes[i])})
	}
	fps := newFingerprintMap()
	for i, key := range payload.Keys {
		fps.put(key, LocationFingerprint{
			NormalizedPath: key,
			Hash:           Hash(payload.Hashes[i]),
			Type:           LocationType(payload.Types[i]),
		})
	}
	return storedFingerprint(
		payload.Identifier,
		Hash(payload.ConfigHash),
		Hash(payload.Aggregate),
		roots,
		fps,
	)
}
