package incr

import (
	"fmt"
)

// TraceKind identifies what a PropertyTrace node describes.
type TraceKind uint8

const (
	// TraceUnknown is the leaf for diagnostics with no known origin.
	TraceUnknown TraceKind = iota
	// TraceRuntime is the leaf for diagnostics raised inside the build
	// runtime itself rather than user build logic.
	TraceRuntime
	// TraceBuildLogic points at a build script source file and line.
	TraceBuildLogic
	// TraceBuildLogicClass points at a compiled build-logic class.
	TraceBuildLogicClass
	// TraceTask scopes the tail to a task.
	TraceTask
	// TraceBean scopes the tail to an object of some type.
	TraceBean
	// TraceProperty scopes the tail to a named property.
	TraceProperty
	// TraceProject scopes the tail to a project.
	TraceProject
	// TraceSystemProperty scopes the tail to a system property read.
	TraceSystemProperty
)

// PropertyTrace is a singly-linked chain of location descriptors telling
// where a diagnostic occurred, most specific node first. Every node except
// the two leaf kinds (unknown, runtime) wraps a tail trace. Traces are
// created once per diagnostic and never mutated.
type PropertyTrace struct {
	Kind TraceKind
	Name string
	Line int
	tail *PropertyTrace
}

// UnknownLocation is the shared leaf for diagnostics of unknown origin.
var UnknownLocation = &PropertyTrace{Kind: TraceUnknown}

// RuntimeLocation is the shared leaf for diagnostics raised by the build
// runtime.
var RuntimeLocation = &PropertyTrace{Kind: TraceRuntime}

// BuildLogicTrace locates a diagnostic at a line of a build script.
func BuildLogicTrace(source string, line int) *PropertyTrace {
	return &PropertyTrace{Kind: TraceBuildLogic, Name: source, Line: line}
}

// BuildLogicClassTrace locates a diagnostic in a compiled build-logic class.
func BuildLogicClassTrace(name string) *PropertyTrace {
	return &PropertyTrace{Kind: TraceBuildLogicClass, Name: name}
}

// TaskTrace scopes tail to the task with the given path.
func TaskTrace(path string, tail *PropertyTrace) *PropertyTrace {
	return &PropertyTrace{Kind: TraceTask, Name: path, tail: tail}
}

// BeanTrace scopes tail to an object of the given type.
func BeanTrace(typeName string, tail *PropertyTrace) *PropertyTrace {
	return &PropertyTrace{Kind: TraceBean, Name: typeName, tail: tail}
}

// PropertyTraceOf scopes tail to the named property.
func PropertyTraceOf(name string, tail *PropertyTrace) *PropertyTrace {
	return &PropertyTrace{Kind: TraceProperty, Name: name, tail: tail}
}

// ProjectTrace scopes tail to the project with the given path.
func ProjectTrace(path string, tail *PropertyTrace) *PropertyTrace {
	return &PropertyTrace{Kind: TraceProject, Name: path, tail: tail}
}

// SystemPropertyTrace scopes tail to a read of the named system property.
func SystemPropertyTrace(name string, tail *PropertyTrace) *PropertyTrace {
	return &PropertyTrace{Kind: TraceSystemProperty, Name: name, tail: tail}
}

// Tail returns the wrapped trace, or nil for a leaf.
func (t *PropertyTrace) Tail() *PropertyTrace {
	return t.tail
}

// Describe appends this node's description, and its tail's, to the builder.
func (t *PropertyTrace) Describe(b *MessageBuilder) {
	switch t.Kind {
	case TraceUnknown:
		b.Text("unknown location")
	case TraceRuntime:
		b.Text("build runtime")
	case TraceBuildLogic:
		if t.Line > 0 {
			b.Text(fmt.Sprintf("%s: line %d", t.Name, t.Line))
		} else {
			b.Text(t.Name)
		}
	case TraceBuildLogicClass:
		b.Text("class ").Reference(t.Name)
	case TraceTask:
		b.Text("task ").Reference(t.Name)
		if t.tail != nil && t.tail.Kind == TraceProject {
			b.Text(" of ")
			t.tail.Describe(b)
		}
	case TraceBean:
		b.Text("bean of type ").Reference(t.Name)
		t.describeTail(b)
	case TraceProperty:
		b.Text("property ").Reference(t.Name)
		t.describeTail(b)
	case TraceProject:
		b.Text("project ").Reference(t.Name)
	case TraceSystemProperty:
		b.Text("system property ").Reference(t.Name)
		t.describeTail(b)
	}
}

func (t *PropertyTrace) describeTail(b *MessageBuilder) {
	if t.tail == nil {
		return
	}
	b.Text(" of ")
	t.tail.Describe(b)
}

// String renders the trace as a breadcrumb with single-quoted references.
func (t *PropertyTrace) String() string {
	b := NewMessageBuilder()
	t.Describe(b)
	return b.Build().Render('\'')
}

// Path renders each node of the chain separately, most specific first.
func (t *PropertyTrace) Path() []string {
	var out []string
	for node := t; node != nil; node = node.tail {
		b := NewMessageBuilder()
		// Render just this node: describe with the tail detached, except
		// for task nodes whose project is part of their own description.
		n := *node
		if n.Kind != TraceTask {
			n.tail = nil
		}
		n.Describe(b)
		out = append(out, b.Build().Render('\''))
		if node.Kind == TraceTask {
			break
		}
	}
	return out
}
