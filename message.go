package incr

import "strings"

// Fragment is one piece of a structured message: literal text, or a
// symbolic reference that renders wrapped in a quoting character.
type Fragment struct {
	Text      string
	Reference bool
}

// StructuredMessage is an ordered sequence of fragments. It is built once
// through a MessageBuilder and immutable afterward. Rendering is not
// cached; callers may render the same message with different quoting.
type StructuredMessage struct {
	fragments []Fragment
}

// Fragments returns the fragments in order. The returned slice must not be
// modified.
func (m *StructuredMessage) Fragments() []Fragment {
	return m.fragments
}

// Render flattens the message to a string, wrapping reference fragments in
// the given quote character. Callers pick the quote that does not collide
// with text the message itself contains.
func (m *StructuredMessage) Render(quote byte) string {
	var b strings.Builder
	for _, f := range m.fragments {
		if f.Reference {
			b.WriteByte(quote)
			b.WriteString(f.Text)
			b.WriteByte(quote)
		} else {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func (m *StructuredMessage) String() string {
	return m.Render('\'')
}

// MessageBuilder assembles a StructuredMessage append-only.
type MessageBuilder struct {
	fragments []Fragment
}

// NewMessageBuilder returns an empty builder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// Text appends a literal text fragment.
func (b *MessageBuilder) Text(s string) *MessageBuilder {
	b.fragments = append(b.fragments, Fragment{Text: s})
	return b
}

// Reference appends a symbolic reference fragment.
func (b *MessageBuilder) Reference(s string) *MessageBuilder {
	b.fragments = append(b.fragments, Fragment{Text: s, Reference: true})
	return b
}

// Build finalizes the message. The builder can keep appending afterwards
// without affecting already-built messages.
func (b *MessageBuilder) Build() *StructuredMessage {
	return &StructuredMessage{fragments: append([]Fragment(nil), b.fragments...)}
}

// Message is shorthand for building a message in one expression.
func Message(build func(b *MessageBuilder)) *StructuredMessage {
	b := NewMessageBuilder()
	build(b)
	return b.Build()
}
