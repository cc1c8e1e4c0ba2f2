package incr

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Checked is the outcome of validating a stored entry against freshly
// observed fingerprints. Exactly one of the concrete variants below is
// produced per cache lookup; all of them are immutable.
type Checked interface {
	// Valid reports whether the stored entry can be reused as-is.
	Valid() bool
}

// CheckNotFound means no entry was stored under the key.
type CheckNotFound struct{}

func (CheckNotFound) Valid() bool { return false }

// CheckEntryInvalid means the whole entry is unusable, with a
// human-readable reason.
type CheckEntryInvalid struct {
	Reason string
}

func (CheckEntryInvalid) Valid() bool { return false }

// CheckProjectsInvalid means only some sub-units of the build are
// invalidated; everything else may be reused. Reasons maps each
// invalidated project to a human-readable explanation.
type CheckProjectsInvalid struct {
	Reasons map[string]string
}

func (CheckProjectsInvalid) Valid() bool { return false }

// CheckValid means every fingerprint still matches.
type CheckValid struct{}

func (CheckValid) Valid() bool { return true }

// ProjectFingerprints maps input property names to their fingerprints for
// one sub-unit of the build.
type ProjectFingerprints map[string]*Fingerprint

// BuildFingerprints maps sub-unit (project) names to their fingerprints.
type BuildFingerprints map[string]ProjectFingerprints

// Checker validates stored entries against current fingerprints.
// Invalidation is as fine-grained as the build's structure allows: a change
// confined to one project invalidates only that project.
type Checker struct {
	parallelism int
}

// NewChecker creates a checker. Per-project comparisons run in parallel,
// bounded by GOMAXPROCS unless overridden with WithCheckParallelism.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{parallelism: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check compares a stored entry against freshly computed fingerprints and
// classifies the outcome. Comparison is pure; the context only bounds the
// parallel fan-out.
func (c *Checker) Check(ctx context.Context, stored *Entry, current BuildFingerprints) Checked {
	if stored == nil {
		return CheckNotFound{}
	}

	// A changed project set cannot be confined to one sub-unit; it
	// invalidates the entry wholesale.
	if reason := projectSetChanged(stored.Projects, current); reason != "" {
		return CheckEntryInvalid{Reason: reason}
	}

	var (
		mu      sync.Mutex
		reasons = make(map[string]string)
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for name := range stored.Projects {
		name := name
		g.Go(func() error {
			if reason := compareProject(stored.Projects[name], current[name]); reason != "" {
				mu.Lock()
				reasons[name] = reason
				mu.Unlock()
			}
			return nil
		})
	}
	// Comparisons never fail; the group is used only to bound parallelism.
	_ = g.Wait()

	if len(reasons) > 0 {
		return CheckProjectsInvalid{Reasons: reasons}
	}
	return CheckValid{}
}

// projectSetChanged reports, as prose, a difference between the stored and
// current project sets, or "" when they match.
func projectSetChanged(stored BuildFingerprints, current BuildFingerprints) string {
	for name := range stored {
		if _, ok := current[name]; !ok {
			return fmt.Sprintf("project '%s' is no longer part of the build", name)
		}
	}
	for name := range current {
		if _, ok := stored[name]; !ok {
			return fmt.Sprintf("project '%s' has been added to the build", name)
		}
	}
	return ""
}

// compareProject explains the first relevant difference between one
// project's stored and current fingerprints, or returns "".
func compareProject(stored, current ProjectFingerprints) string {
	for _, prop := range sortedKeys(stored) {
		old := stored[prop]
		fresh, ok := current[prop]
		if !ok {
			return fmt.Sprintf("input property '%s' has been removed", prop)
		}
		if reason := compareFingerprints(prop, old, fresh); reason != "" {
			return reason
		}
	}
	for _, prop := range sortedKeys(current) {
		if _, ok := stored[prop]; !ok {
			return fmt.Sprintf("input property '%s' has been added", prop)
		}
	}
	return ""
}

// compareFingerprints explains why two fingerprints of the same property
// differ, or returns "" when they are interchangeable.
func compareFingerprints(prop string, old, fresh *Fingerprint) string {
	if old.ConfigurationHash() != fresh.ConfigurationHash() {
		return fmt.Sprintf("the fingerprinting configuration of input property '%s' has changed", prop)
	}
	if old.Hash() == fresh.Hash() {
		return ""
	}

	var reason string
	old.EachLocation(func(key string, fp LocationFingerprint) bool {
		freshFp, ok := fresh.Location(key)
		switch {
		case !ok:
			reason = fmt.Sprintf("%s '%s' of input property '%s' has been removed", fp.Type, key, prop)
		case freshFp.Hash != fp.Hash:
			reason = fmt.Sprintf("%s '%s' of input property '%s' has changed", fp.Type, key, prop)
		default:
			return true
		}
		return false
	})
	if reason != "" {
		return reason
	}
	fresh.EachLocation(func(key string, fp LocationFingerprint) bool {
		if _, ok := old.Location(key); !ok {
			reason = fmt.Sprintf("%s '%s' of input property '%s' has been added", fp.Type, key, prop)
			return false
		}
		return true
	})
	if reason != "" {
		return reason
	}
	// Same entries, different aggregate: the iteration order moved.
	return fmt.Sprintf("the fingerprint of input property '%s' has changed", prop)
}

func sortedKeys(m ProjectFingerprints) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
