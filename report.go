package incr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// reportFileName is the base name of the committed report file.
const reportFileName = "build-report"

// ReportDetails is the summary written into the report on commit.
type ReportDetails struct {
	CacheAction    string `json:"cacheAction"`
	RequestedTasks string `json:"requestedTasks"`
}

// ReportSink collects diagnostics during a build and, on demand, commits
// them to a content-addressed report file. Diagnostics are spooled to a
// temporary file through an AsyncChannel as they arrive, so recording one
// never blocks on report I/O.
//
// The sink is a three-state machine: idle until the first diagnostic,
// spooling while diagnostics accumulate, closed after commit or Close.
// Every transition runs under one lock; there is no other shared mutable
// state.
type ReportSink struct {
	fs       afero.Fs
	log      Logger
	spoolDir string
	cfg      Config

	mu    sync.Mutex
	state reportState
}

// NewReportSink creates an idle sink. Exactly one sink is live per build.
func NewReportSink(opts ...ReportOption) *ReportSink {
	r := &ReportSink{
		fs:       afero.NewOsFs(),
		log:      NopLogger(),
		spoolDir: os.TempDir(),
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = &idleReport{sink: r}
	return r
}

// OnDiagnostic records a diagnostic. The first one starts the spool; later
// ones enqueue a write on the background writer.
func (r *ReportSink) OnDiagnostic(d *Diagnostic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.state.onDiagnostic(d)
	r.state = next
	return err
}

// CommitReport finalizes the report and moves it under outputDir, into a
// directory named by the hash of everything written, as
// <hash>/build-report.html. With no diagnostics recorded it returns an
// empty path and allocates nothing. Committing identical content twice
// yields the same path both times without redoing the move.
func (r *ReportSink) CommitReport(outputDir string, details ReportDetails) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, path, err := r.state.commitReport(outputDir, details)
	r.state = next
	return path, err
}

// Close shuts the sink down, abandoning any uncommitted spool. Closing an
// idle sink is a no-op.
func (r *ReportSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.state.close()
	r.state = next
	return err
}

// reportState is one state of the sink. Each operation returns the next
// state explicitly; the sink stores it under its lock.
type reportState interface {
	onDiagnostic(d *Diagnostic) (reportState, error)
	commitReport(outputDir string, details ReportDetails) (reportState, string, error)
	close() (reportState, error)
}

// idleReport is the initial state: no diagnostics yet.
type idleReport struct {
	sink *ReportSink
}

func (s *idleReport) onDiagnostic(d *Diagnostic) (reportState, error) {
	spooling, err := startSpooling(s.sink)
	if err != nil {
		return s, err
	}
	if err := spooling.writeDiagnostic(d); err != nil {
		return spooling, err
	}
	return spooling, nil
}

func (s *idleReport) commitReport(string, ReportDetails) (reportState, string, error) {
	// Nothing was recorded; no report file must be allocated.
	return s, "", nil
}

func (s *idleReport) close() (reportState, error) {
	return s, nil
}

// spoolingReport is the active state: a background writer is streaming
// diagnostics to a temporary file, hashed as it is written.
type spoolingReport struct {
	sink      *ReportSink
	spoolPath string
	channel   *AsyncChannel
	hasher    *Hasher
	out       io.Writer
	count     int
}

func startSpooling(sink *ReportSink) (*spoolingReport, error) {
	if err := sink.fs.MkdirAll(sink.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	spoolPath := filepath.Join(sink.spoolDir, "report-"+uuid.NewString()+".tmp")

	pool := NewBufferPool(
		WithBufferCapacity(sink.cfg.BufferCapacityBytes),
		WithMaxBufferCount(sink.cfg.MaxBufferCount),
		WithTakeTimeout(sink.cfg.Timeout()),
	)
	channel := NewAsyncChannel(func() (io.WriteCloser, error) {
		return sink.fs.Create(spoolPath)
	}, pool, WithChannelLogger(sink.log))

	s := &spoolingReport{
		sink:      sink,
		spoolPath: spoolPath,
		channel:   channel,
		hasher:    NewHasher(),
	}
	// The hasher must see exactly the bytes the channel sees.
	s.out = io.MultiWriter(s.hasher, channel)

	if _, err := io.WriteString(s.out, reportPrologue); err != nil {
		_ = channel.Close()
		_ = sink.fs.Remove(spoolPath)
		return nil, err
	}
	return s, nil
}

func (s *spoolingReport) onDiagnostic(d *Diagnostic) (reportState, error) {
	return s, s.writeDiagnostic(d)
}

func (s *spoolingReport) writeDiagnostic(d *Diagnostic) error {
	record := diagnosticRecord{
		Severity: d.Kind.Severity().String(),
		Kind:     d.Kind.String(),
		Error:    d.Error,
	}
	if d.Trace != nil {
		record.Trace = d.Trace.Path()
	}
	if d.Message != nil {
		for _, f := range d.Message.Fragments() {
			if f.Reference {
				record.Message = append(record.Message, fragmentRecord{Name: f.Text})
			} else {
				record.Message = append(record.Message, fragmentRecord{Text: f.Text})
			}
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostic: %w", err)
	}
	if s.count > 0 {
		if _, err := io.WriteString(s.out, ",\n"); err != nil {
			return err
		}
	}
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *spoolingReport) commitReport(outputDir string, details ReportDetails) (reportState, string, error) {
	closed := &closedReport{}

	if err := s.writeEpilogue(details); err != nil {
		return closed, "", err
	}
	if err := s.channel.CloseWithin(s.sink.cfg.Timeout()); err != nil {
		var timeout *TimeoutError
		if !errors.As(err, &timeout) {
			return closed, "", err
		}
		// Best effort from here: commit whatever made it to disk.
		s.sink.log.Warn("report writer did not finish in time", Err(err))
	}

	hash := s.hasher.Finish()
	destDir := filepath.Join(outputDir, hash.Hex())
	destPath := filepath.Join(destDir, reportFileName+".html")

	exists, err := afero.Exists(s.sink.fs, destPath)
	if err != nil {
		return closed, "", fmt.Errorf("failed to check report file: %w", err)
	}
	if exists {
		// Identical content was committed before; the spool is redundant.
		_ = s.sink.fs.Remove(s.spoolPath)
		return closed, destPath, nil
	}

	if err := s.sink.fs.MkdirAll(destDir, 0o755); err != nil {
		return closed, "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := s.sink.fs.Rename(s.spoolPath, destPath); err != nil {
		return closed, "", fmt.Errorf("failed to move report into place: %w", err)
	}
	return closed, destPath, nil
}

func (s *spoolingReport) close() (reportState, error) {
	err := s.channel.CloseWithin(s.sink.cfg.Timeout())
	// An abandoned spool has no further use.
	_ = s.sink.fs.Remove(s.spoolPath)
	return &closedReport{}, err
}

func (s *spoolingReport) writeEpilogue(details ReportDetails) error {
	summary, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode report details: %w", err)
	}
	_, err = fmt.Fprintf(s.out, reportEpilogue, s.count, summary)
	return err
}

// closedReport is the terminal state. Every operation on it is a caller
// contract violation.
type closedReport struct{}

func (s *closedReport) onDiagnostic(*Diagnostic) (reportState, error) {
	return s, &IllegalStateError{State: "the report is closed", Op: "record a diagnostic"}
}

func (s *closedReport) commitReport(string, ReportDetails) (reportState, string, error) {
	return s, "", &IllegalStateError{State: "the report is closed", Op: "commit the report"}
}

func (s *closedReport) close() (reportState, error) {
	return s, &IllegalStateError{State: "the report is closed", Op: "close the report"}
}

// diagnosticRecord is the JSON shape of one spooled diagnostic.
type diagnosticRecord struct {
	Severity string           `json:"severity"`
	Kind     string           `json:"kind"`
	Trace    []string         `json:"trace,omitempty"`
	Message  []fragmentRecord `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type fragmentRecord struct {
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

const reportPrologue = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Build diagnostics</title></head>
<body>
<script type="application/json" id="report-data">
{"diagnostics":[
`

const reportEpilogue = `
],"totalDiagnostics":%d,"details":%s}
</script>
</body>
</html>
`
