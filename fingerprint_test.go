package incr

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// snapshotOf builds a single-root directory snapshot from name→content
// pairs. The tree hash is derived from the children, the way a snapshotter
// would compute it.
func snapshotOf(rootPath, rootName string, files map[string]string) Snapshot {
	var children []Snapshot
	h := NewHasher()
	for _, name := range sortedFileNames(files) {
		content := HashString(files[name])
		h.PutString(name).PutHash(content)
		children = append(children, FileSnapshot{
			Path:    rootPath + "/" + name,
			Name:    name,
			Content: content,
		})
	}
	return DirSnapshot{
		Path:     rootPath,
		Name:     rootName,
		TreeHash: h.Finish(),
		Children: children,
	}
}

func sortedFileNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestFingerprintDeterminism(t *testing.T) {
	strategy := NewAbsolutePathStrategy(DirSensitivityDefault)
	files := map[string]string{"a.txt": "alpha", "b.txt": "beta"}

	fp1 := FromSnapshot(snapshotOf("/src", "src", files), strategy, nil)
	fp2 := FromSnapshot(snapshotOf("/src", "src", files), strategy, nil)

	if fp1.Hash() != fp2.Hash() {
		t.Fatalf("identical inputs produced different aggregate hashes: %s vs %s", fp1.Hash(), fp2.Hash())
	}

	changed := map[string]string{"a.txt": "alpha", "b.txt": "beta prime"}
	fp3 := FromSnapshot(snapshotOf("/src", "src", changed), strategy, nil)
	if fp3.Hash() == fp1.Hash() {
		t.Fatal("changed content produced the same aggregate hash")
	}

	old, _ := fp1.Location("/src/b.txt")
	fresh, ok := fp3.Location("/src/b.txt")
	if !ok {
		t.Fatal("expected a fingerprint for /src/b.txt")
	}
	if old.Hash == fresh.Hash {
		t.Fatal("changed content left the per-location fingerprint unchanged")
	}
}

func TestEmptySnapshotYieldsEmptySingleton(t *testing.T) {
	strategy := NewRelativePathStrategy(DirSensitivityDefault)

	fp := FromSnapshot(EmptySnapshot, strategy, nil)
	if fp != strategy.EmptyFingerprint() {
		t.Fatal("expected the strategy's empty fingerprint singleton")
	}
	if !fp.Empty() {
		t.Fatal("empty fingerprint reports itself non-empty")
	}

	again := FromSnapshot(EmptySnapshot, strategy, nil)
	if again != fp {
		t.Fatal("empty fingerprint is not canonical across calls")
	}
}

func TestZeroFingerprintsYieldEmptySingleton(t *testing.T) {
	// A snapshot of a lone directory yields no fingerprints when
	// directories are ignored.
	strategy := NewAbsolutePathStrategy(IgnoreDirectories)
	roots := DirSnapshot{Path: "/empty", Name: "empty", TreeHash: HashString("empty dir")}

	fp := FromSnapshot(roots, strategy, nil)
	if fp != strategy.EmptyFingerprint() {
		t.Fatal("expected the empty singleton for a snapshot with zero fingerprints")
	}
}

func TestCandidateReuse(t *testing.T) {
	strategy := NewAbsolutePathStrategy(DirSensitivityDefault)
	roots := snapshotOf("/src", "src", map[string]string{"a.txt": "alpha"})

	fresh := FromSnapshot(roots, strategy, nil)

	// A candidate with matching configuration hash and root hashes is
	// reused verbatim, visible through its poisoned location map.
	poisoned := newFingerprintMap()
	poisoned.put("sentinel", LocationFingerprint{NormalizedPath: "sentinel", Hash: 1})
	candidate := storedFingerprint(
		strategy.Identifier(), strategy.ConfigurationHash(), 1,
		fresh.RootHashes(), poisoned,
	)
	reused := FromSnapshot(roots, strategy, candidate)
	if _, ok := reused.Location("sentinel"); !ok {
		t.Fatal("expected the candidate's fingerprints to be reused")
	}

	// A different configuration hash blocks reuse.
	otherConfig := storedFingerprint(
		strategy.Identifier(), strategy.ConfigurationHash()+1, 1,
		fresh.RootHashes(), poisoned,
	)
	recomputed := FromSnapshot(roots, strategy, otherConfig)
	if _, ok := recomputed.Location("sentinel"); ok {
		t.Fatal("candidate with a different configuration hash must not be reused")
	}

	// Different root hashes block reuse too; comparison is order-sensitive.
	otherRoots := storedFingerprint(
		strategy.Identifier(), strategy.ConfigurationHash(), 1,
		[]RootHash{{Path: "/src", Hash: 42}}, poisoned,
	)
	recomputed = FromSnapshot(roots, strategy, otherRoots)
	if _, ok := recomputed.Location("sentinel"); ok {
		t.Fatal("candidate with different root hashes must not be reused")
	}
}

func TestCandidateReuseIsOptimizationOnly(t *testing.T) {
	strategy := NewRelativePathStrategy(DirSensitivityDefault)
	roots := snapshotOf("/src", "src", map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	withoutCandidate := FromSnapshot(roots, strategy, nil)
	withCandidate := FromSnapshot(roots, strategy, withoutCandidate)

	if withCandidate.Hash() != withoutCandidate.Hash() {
		t.Fatal("candidate reuse changed the aggregate hash")
	}

	keysOf := func(fp *Fingerprint) []string {
		var keys []string
		fp.EachLocation(func(key string, _ LocationFingerprint) bool {
			keys = append(keys, key)
			return true
		})
		return keys
	}
	if diff := cmp.Diff(keysOf(withoutCandidate), keysOf(withCandidate)); diff != "" {
		t.Fatalf("candidate reuse changed the fingerprinted locations (-without +with):\n%s", diff)
	}
}

func TestConfigurationHashIsolation(t *testing.T) {
	files := map[string]string{"a.txt": "alpha"}
	roots := snapshotOf("/src", "src", files)

	defaultStrategy := NewAbsolutePathStrategy(DirSensitivityDefault)
	ignoringStrategy := NewAbsolutePathStrategy(IgnoreDirectories)

	fpDefault := FromSnapshot(roots, defaultStrategy, nil)
	fpIgnoring := FromSnapshot(roots, ignoringStrategy, nil)

	if fpDefault.ConfigurationHash() == fpIgnoring.ConfigurationHash() {
		t.Fatal("differently configured strategies share a configuration hash")
	}

	// Identical file content still fingerprints identically per location.
	a, _ := fpDefault.Location("/src/a.txt")
	b, ok := fpIgnoring.Location("/src/a.txt")
	if !ok || a.Hash != b.Hash {
		t.Fatal("identical content produced different per-location fingerprints")
	}

	// But the checker never treats them as interchangeable.
	if reason := compareFingerprints("classpath", fpDefault, fpIgnoring); reason == "" {
		t.Fatal("fingerprints from differently configured strategies were treated as interchangeable")
	}
}

func TestNormalizationPolicies(t *testing.T) {
	files := map[string]string{"a.txt": "alpha"}
	roots := snapshotOf("/work/src", "src", files)

	tests := []struct {
		strategy Strategy
		wantKey  string
	}{
		{NewAbsolutePathStrategy(IgnoreDirectories), "/work/src/a.txt"},
		{NewRelativePathStrategy(IgnoreDirectories), "src/a.txt"},
		{NewNameOnlyStrategy(IgnoreDirectories), "a.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.strategy.Identifier(), func(t *testing.T) {
			fp := FromSnapshot(roots, tc.strategy, nil)
			if _, ok := fp.Location(tc.wantKey); !ok {
				t.Fatalf("expected a fingerprint under key %q, have %s", tc.wantKey, fp)
			}
		})
	}
}
