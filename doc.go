/*
Package incr is the incremental-build caching core of a build
orchestration tool. It fingerprints build inputs so a previous build
result can be safely reused, validates a stored cache entry against the
current fingerprints reporting why it is invalid when it is, and persists
large report payloads to disk without blocking the computation thread.

# Core Architecture

Three pieces carry the weight:

  - Fingerprints: deterministic, content-derived digests of snapshotted
    filesystem locations, computed under a normalization Strategy
    (absolute-path, relative-path, name-only) and hashed lazily with
    xxHash. Matching root hashes let a candidate fingerprint from the
    previous build be reused without recomputation.
  - The Checker: compares a stored Entry against fresh fingerprints and
    classifies the outcome as not-found, entry-invalid, projects-invalid
    (with per-project reasons) or valid. Invalidation is as fine-grained
    as the build's structure allows.
  - The async persistence pipeline: a bounded BufferPool feeding an
    AsyncChannel whose single background writer owns the sink. Producers
    block only when the pool is exhausted; writer failures surface on the
    next pool operation instead of being lost.

The ReportSink sits on top of the pipeline: an idle/spooling/closed state
machine that streams diagnostics to a temporary file and commits them to a
content-addressed report under the output directory.

# Basic Usage

Fingerprinting and validation:

	strategy := incr.NewRelativePathStrategy(incr.DirSensitivityDefault)
	fp := incr.FromSnapshot(roots, strategy, nil)

	checker := incr.NewChecker()
	checked := checker.Check(ctx, stored, current)
	switch c := checked.(type) {
	case incr.CheckValid:
	    // reuse the entry
	case incr.CheckProjectsInvalid:
	    // rebuild only the projects in c.Reasons
	}

Recording diagnostics:

	sink := incr.NewReportSink(incr.WithReportLogger(log))
	_ = sink.OnDiagnostic(&incr.Diagnostic{Kind: incr.KindProblem, Trace: trace, Message: msg})
	path, err := sink.CommitReport(outDir, details)

All disk access goes through afero, so everything is testable against an
in-memory filesystem.
*/
package incr
