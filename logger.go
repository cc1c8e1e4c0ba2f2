package incr

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Logger is the structured logging capability injected into components that
// need one. There is no ambient global logger; callers pass one in via
// options, and everything defaults to NopLogger.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a single structured log field.
type Field struct {
	Key   string
	Value any
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// NewTextLogger returns a logger that writes one line per record to w.
// It is safe for concurrent use; the background writer and the producer
// may log at the same time.
func NewTextLogger(w io.Writer) Logger {
	return &textLogger{w: w}
}

type textLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *textLogger) log(level, msg string, fields []Field) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.w, b.String())
}

func (l *textLogger) Debug(msg string, fields ...Field) { l.log("DEBUG", msg, fields) }
func (l *textLogger) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields) }
func (l *textLogger) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields) }
func (l *textLogger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }
