package incr

// Strategy is a fingerprinting policy: it decides which attributes of a
// snapshotted location feed the fingerprint and under which normalized key.
// Strategies are stateless per invocation; their only state is their
// configuration, captured by ConfigurationHash.
type Strategy interface {
	// Identifier names the strategy, e.g. "absolute-path".
	Identifier() string

	// ConfigurationHash captures every normalization and sensitivity
	// parameter. Two strategies with different configuration hashes never
	// produce interchangeable fingerprints.
	ConfigurationHash() Hash

	// EmptyFingerprint returns the singleton fingerprint for "no locations".
	EmptyFingerprint() *Fingerprint

	// collectFingerprints walks the snapshot and produces per-location
	// fingerprints keyed by normalized path.
	collectFingerprints(roots Snapshot) *fingerprintMap

	// appendToHasher folds per-location fingerprints into the aggregate
	// hash, in map insertion order.
	appendToHasher(h *Hasher, fps *fingerprintMap)
}

// DirSensitivity controls whether directories themselves contribute
// fingerprints or only the files within them.
type DirSensitivity uint8

const (
	// DirSensitivityDefault fingerprints directories alongside files.
	DirSensitivityDefault DirSensitivity = iota
	// IgnoreDirectories fingerprints only regular files and missing inputs.
	IgnoreDirectories
)

func (s DirSensitivity) String() string {
	if s == IgnoreDirectories {
		return "ignore-directories"
	}
	return "default"
}

// dirSignature replaces a directory's tree hash in per-location
// fingerprints, so renaming files inside a directory changes the relevant
// file fingerprints without the directory entry drowning them out.
var dirSignature = HashString("directory signature")

// normalizeFunc maps a walked location to its normalized key, or reports
// that the location does not participate in the fingerprint.
type normalizeFunc func(loc Location) (string, bool)

// pathStrategy is the shared implementation behind the concrete
// normalization policies. Identifier and sensitivity feed the configuration
// hash; the empty fingerprint singleton is created once per strategy value.
type pathStrategy struct {
	identifier  string
	sensitivity DirSensitivity
	configHash  Hash
	normalize   normalizeFunc
	empty       *Fingerprint
}

func newPathStrategy(identifier string, sensitivity DirSensitivity, normalize normalizeFunc) *pathStrategy {
	s := &pathStrategy{
		identifier:  identifier,
		sensitivity: sensitivity,
		normalize:   normalize,
	}
	s.configHash = NewHasher().
		PutString(identifier).
		PutUint64(uint64(sensitivity)).
		Finish()
	s.empty = &Fingerprint{
		fingerprints: newFingerprintMap(),
		identifier:   identifier,
		configHash:   s.configHash,
		hashing:      s.appendToHasher,
	}
	return s
}

func (s *pathStrategy) Identifier() string {
	return s.identifier
}

func (s *pathStrategy) ConfigurationHash() Hash {
	return s.configHash
}

func (s *pathStrategy) EmptyFingerprint() *Fingerprint {
	return s.empty
}

func (s *pathStrategy) collectFingerprints(roots Snapshot) *fingerprintMap {
	fps := newFingerprintMap()
	Walk(roots, func(loc Location) bool {
		if loc.Type == DirLocation && s.sensitivity == IgnoreDirectories {
			return true
		}
		key, ok := s.normalize(loc)
		if !ok {
			return true
		}
		hash := loc.Hash
		if loc.Type == DirLocation {
			hash = dirSignature
		}
		fps.put(key, LocationFingerprint{
			NormalizedPath: key,
			Hash:           hash,
			Type:           loc.Type,
		})
		return true
	})
	return fps
}

func (s *pathStrategy) appendToHasher(h *Hasher, fps *fingerprintMap) {
	fps.each(func(_ string, fp LocationFingerprint) bool {
		h.PutString(fp.NormalizedPath)
		h.PutHash(fp.Hash)
		return true
	})
}

// NewAbsolutePathStrategy fingerprints locations under their absolute
// paths. Moving a file anywhere changes the fingerprint.
func NewAbsolutePathStrategy(sensitivity DirSensitivity) Strategy {
	return newPathStrategy("absolute-path", sensitivity, func(loc Location) (string, bool) {
		return loc.Path, true
	})
}

// NewRelativePathStrategy fingerprints locations under their path relative
// to the snapshot root. Moving a whole root does not change the
// fingerprint; moving files within it does.
func NewRelativePathStrategy(sensitivity DirSensitivity) Strategy {
	return newPathStrategy("relative-path", sensitivity, func(loc Location) (string, bool) {
		return loc.RelPath, true
	})
}

// NewNameOnlyStrategy fingerprints locations under their base name alone.
// Only renames and content changes are significant.
func NewNameOnlyStrategy(sensitivity DirSensitivity) Strategy {
	return newPathStrategy("name-only", sensitivity, func(loc Location) (string, bool) {
		return loc.Name, true
	})
}
