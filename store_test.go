package incr

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

func setupTestStore(t *testing.T) (*EntryStore, afero.Fs) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	store, err := OpenEntryStore("/cache", WithStoreFs(memFs), WithStoreNowFunc(fixedNowFunc))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store, memFs
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	strategy := NewRelativePathStrategy(DirSensitivityDefault)

	entry := &Entry{
		Metadata: map[string]string{"buildTool": "1.0"},
		Projects: buildFingerprints(strategy, map[string]map[string]map[string]string{
			"app": {"sources": {"a.txt": "alpha"}},
		}),
	}
	if err := store.Store("build-key", entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	loaded, err := store.Lookup("build-key")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if loaded.Key != "build-key" {
		t.Fatalf("expected key to round-trip, got %q", loaded.Key)
	}
	if !loaded.CreatedAt.Equal(fixedNowFunc()) {
		t.Fatalf("expected the injected clock's timestamp, got %s", loaded.CreatedAt)
	}
	if diff := cmp.Diff(entry.Metadata, loaded.Metadata); diff != "" {
		t.Fatalf("metadata corrupted (-stored +loaded):\n%s", diff)
	}

	want := entry.Projects["app"]["sources"]
	got := loaded.Projects["app"]["sources"]
	if got.Hash() != want.Hash() {
		t.Fatalf("aggregate hash corrupted: %s vs %s", got.Hash(), want.Hash())
	}
	if got.ConfigurationHash() != want.ConfigurationHash() {
		t.Fatal("configuration hash corrupted")
	}
	if got.Identifier() != want.Identifier() {
		t.Fatal("strategy identifier corrupted")
	}
	if diff := cmp.Diff(want.RootHashes(), got.RootHashes()); diff != "" {
		t.Fatalf("root hashes corrupted (-stored +loaded):\n%s", diff)
	}
}

func TestStoreRoundTripPreservesLocationOrder(t *testing.T) {
	store, _ := setupTestStore(t)
	strategy := NewRelativePathStrategy(DirSensitivityDefault)

	fp := FromSnapshot(snapshotOf("/p", "p", map[string]string{
		"a.txt": "1", "b.txt": "2", "c.txt": "3",
	}), strategy, nil)
	entry := &Entry{Projects: BuildFingerprints{"p": {"sources": fp}}}
	if err := store.Store("k", entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	loaded, err := store.Lookup("k")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	var wantKeys, gotKeys []string
	fp.EachLocation(func(key string, _ LocationFingerprint) bool {
		wantKeys = append(wantKeys, key)
		return true
	})
	loaded.Projects["p"]["sources"].EachLocation(func(key string, _ LocationFingerprint) bool {
		gotKeys = append(gotKeys, key)
		return true
	})
	if diff := cmp.Diff(wantKeys, gotKeys); diff != "" {
		t.Fatalf("location order not preserved (-stored +loaded):\n%s", diff)
	}
}

func TestStoreLookupMiss(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Lookup("never stored")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got: %v", err)
	}
}

func TestStoreCorruptEntryIsAMiss(t *testing.T) {
	store, memFs := setupTestStore(t)

	path := store.entryPath("corrupt")
	if err := memFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create entry directory: %v", err)
	}
	if err := afero.WriteFile(memFs, path, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatalf("failed to plant corrupt entry: %v", err)
	}

	_, err := store.Lookup("corrupt")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected a corrupt entry to read as a miss, got: %v", err)
	}
}

func TestStoreStaleSchemaIsAMiss(t *testing.T) {
	store, memFs := setupTestStore(t)

	stale, err := msgpack.Marshal(&entryPayload{Schema: entrySchemaVersion + 1, Key: "old"})
	if err != nil {
		t.Fatalf("failed to encode stale payload: %v", err)
	}
	path := store.entryPath("old")
	if err := memFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create entry directory: %v", err)
	}
	if err := afero.WriteFile(memFs, path, stale, 0o644); err != nil {
		t.Fatalf("failed to plant stale entry: %v", err)
	}

	_, err = store.Lookup("old")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected a stale-schema entry to read as a miss, got: %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, _ := setupTestStore(t)

	entry := &Entry{Projects: BuildFingerprints{}}
	if err := store.Store("k", entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Lookup("k"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected a miss after Delete, got: %v", err)
	}

	// Deleting a missing entry is not an error.
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete of a missing entry failed: %v", err)
	}
}
