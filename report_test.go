package incr

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func testReportSink(fs afero.Fs) *ReportSink {
	return NewReportSink(
		WithReportFs(fs),
		WithSpoolDir("/spool"),
	)
}

func problemDiagnostic(property, detail string) *Diagnostic {
	trace := PropertyTraceOf(property, TaskTrace(":compile", ProjectTrace(":app", nil)))
	msg := Message(func(b *MessageBuilder) {
		b.Text("cannot serialize object of type ").Reference(detail)
	})
	return &Diagnostic{Kind: KindProblem, Trace: trace, Message: msg}
}

func TestIdleCommitAllocatesNoFile(t *testing.T) {
	memFs := afero.NewMemMapFs()
	sink := testReportSink(memFs)

	path, err := sink.CommitReport("/reports", ReportDetails{})
	if err != nil {
		t.Fatalf("CommitReport failed: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no report path with no diagnostics, got %q", path)
	}
	if exists, _ := afero.DirExists(memFs, "/reports"); exists {
		t.Fatal("idle commit created the output directory")
	}

	// The sink stays idle; a later commit behaves the same way.
	if path, err = sink.CommitReport("/reports", ReportDetails{}); err != nil || path != "" {
		t.Fatalf("second idle commit misbehaved: path=%q err=%v", path, err)
	}
}

func TestCommitAfterDiagnostics(t *testing.T) {
	memFs := afero.NewMemMapFs()
	sink := testReportSink(memFs)

	if err := sink.OnDiagnostic(problemDiagnostic("classpath", "java.lang.Thread")); err != nil {
		t.Fatalf("OnDiagnostic failed: %v", err)
	}
	if err := sink.OnDiagnostic(&Diagnostic{Kind: KindInput, Trace: RuntimeLocation,
		Message: Message(func(b *MessageBuilder) { b.Text("system property ").Reference("os.name") })}); err != nil {
		t.Fatalf("OnDiagnostic failed: %v", err)
	}

	path, err := sink.CommitReport("/reports", ReportDetails{CacheAction: "STORE", RequestedTasks: "build"})
	if err != nil {
		t.Fatalf("CommitReport failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected a report path once diagnostics were recorded")
	}
	if filepath.Base(path) != "build-report.html" {
		t.Fatalf("unexpected report file name: %s", path)
	}
	hashDir := filepath.Base(filepath.Dir(path))
	if len(hashDir) != 16 {
		t.Fatalf("expected a hash-named directory, got %q", hashDir)
	}

	content, err := afero.ReadFile(memFs, path)
	if err != nil {
		t.Fatalf("failed to read committed report: %v", err)
	}
	text := string(content)
	for _, want := range []string{
		"<!DOCTYPE html>",
		`"severity":"failure"`,
		`"severity":"info"`,
		`"java.lang.Thread"`,
		`"totalDiagnostics":2`,
		`"cacheAction":"STORE"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("committed report is missing %q:\n%s", want, text)
		}
	}

	// The spool directory holds no leftovers.
	entries, err := afero.ReadDir(memFs, "/spool")
	if err == nil && len(entries) != 0 {
		t.Fatalf("expected the spool file to be moved away, found %d leftovers", len(entries))
	}
}

func TestCommitIsIdempotentForIdenticalContent(t *testing.T) {
	memFs := afero.NewMemMapFs()

	commit := func() string {
		sink := testReportSink(memFs)
		if err := sink.OnDiagnostic(problemDiagnostic("classpath", "java.lang.Thread")); err != nil {
			t.Fatalf("OnDiagnostic failed: %v", err)
		}
		path, err := sink.CommitReport("/reports", ReportDetails{CacheAction: "STORE"})
		if err != nil {
			t.Fatalf("CommitReport failed: %v", err)
		}
		return path
	}

	first := commit()
	second := commit()
	if first != second {
		t.Fatalf("identical content committed to different paths:\n%s\n%s", first, second)
	}
}

func TestOperationsOnClosedSinkAreIllegal(t *testing.T) {
	memFs := afero.NewMemMapFs()
	sink := testReportSink(memFs)

	if err := sink.OnDiagnostic(problemDiagnostic("classpath", "x")); err != nil {
		t.Fatalf("OnDiagnostic failed: %v", err)
	}
	if _, err := sink.CommitReport("/reports", ReportDetails{}); err != nil {
		t.Fatalf("CommitReport failed: %v", err)
	}

	var illegal *IllegalStateError
	if err := sink.OnDiagnostic(problemDiagnostic("late", "y")); !errors.As(err, &illegal) {
		t.Fatalf("expected *IllegalStateError from OnDiagnostic, got: %v", err)
	}
	if _, err := sink.CommitReport("/reports", ReportDetails{}); !errors.As(err, &illegal) {
		t.Fatalf("expected *IllegalStateError from CommitReport, got: %v", err)
	}
	if err := sink.Close(); !errors.As(err, &illegal) {
		t.Fatalf("expected *IllegalStateError from Close, got: %v", err)
	}
}

func TestCloseIdleSinkIsNoop(t *testing.T) {
	sink := testReportSink(afero.NewMemMapFs())
	if err := sink.Close(); err != nil {
		t.Fatalf("Close of an idle sink failed: %v", err)
	}
	// Still idle: commit returns no file rather than an illegal state.
	path, err := sink.CommitReport("/reports", ReportDetails{})
	if err != nil || path != "" {
		t.Fatalf("expected the sink to stay idle after Close: path=%q err=%v", path, err)
	}
}

func TestCloseAbandonsSpool(t *testing.T) {
	memFs := afero.NewMemMapFs()
	sink := testReportSink(memFs)

	if err := sink.OnDiagnostic(problemDiagnostic("classpath", "x")); err != nil {
		t.Fatalf("OnDiagnostic failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := afero.ReadDir(memFs, "/spool")
	if err == nil && len(entries) != 0 {
		t.Fatalf("expected the abandoned spool to be removed, found %d files", len(entries))
	}
}
