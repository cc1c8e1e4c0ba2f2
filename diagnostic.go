package incr

// Severity defines the importance of a diagnostic in the report.
type Severity uint8

const (
	// SeverityInfo is for informational diagnostics.
	SeverityInfo Severity = iota
	// SeverityWarning is for diagnostics the build tolerates.
	SeverityWarning
	// SeverityFailure is for diagnostics that fail the build.
	SeverityFailure
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityFailure:
		return "failure"
	}
	return "unknown"
}

// DiagnosticKind classifies what kind of event a diagnostic records.
type DiagnosticKind uint8

const (
	// KindProblem is a build-configuration problem.
	KindProblem DiagnosticKind = iota
	// KindIncompatibleTask marks a task that opted out of caching.
	KindIncompatibleTask
	// KindInput records a build input that was observed during the run.
	KindInput
)

func (k DiagnosticKind) String() string {
	switch k {
	case KindProblem:
		return "problem"
	case KindIncompatibleTask:
		return "incompatible-task"
	case KindInput:
		return "input"
	}
	return "unknown"
}

// Severity maps a diagnostic kind to its report severity: problems fail the
// build, incompatible tasks warn, observed inputs inform.
func (k DiagnosticKind) Severity() Severity {
	switch k {
	case KindProblem:
		return SeverityFailure
	case KindIncompatibleTask:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Diagnostic is one recorded problem, warning or observed input. Trace says
// where it occurred, Message what happened. Error carries the rendered text
// of an associated exception, if any.
type Diagnostic struct {
	Kind    DiagnosticKind
	Trace   *PropertyTrace
	Message *StructuredMessage
	Error   string
}
