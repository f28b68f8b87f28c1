// Package message exposes the generic Message type delivered to
// subscription listeners: the raw source event, a body extracted from
// it, and properties describing the origin of the event.
package message

// Properties describe the origin of a Message, i.e. the database and
// collection the event was emitted from. Change stream events without
// namespace information, e.g. invalidate, carry "unknown" for both.
type Properties struct {
	DatabaseName   string
	CollectionName string
}

// Message carries a raw source event of type S together with a body of
// type T extracted, and possibly converted, from it.
//
// Raw returns the source event unmodified, as emitted by the cursor.
// It may be the zero value for synthetic messages.
//
// Body returns the payload of interest. For change stream events that
// is the full document, for tailable cursor events the emitted document
// itself. Body returns the zero value and no error when the source
// event carries no document, e.g. an update event without full document
// lookup. Conversion failures are reported to the Body caller.
type Message[S, T any] interface {
	Raw() S
	Body() (T, error)
	Properties() Properties
}

type simple[S, T any] struct {
	raw   S
	body  T
	props Properties
}

// New returns a Message holding the provided raw event and body as-is,
// without any conversion applied.
func New[S, T any](raw S, body T, props Properties) Message[S, T] {
	return simple[S, T]{raw: raw, body: body, props: props}
}

func (m simple[S, T]) Raw() S { return m.raw }

func (m simple[S, T]) Body() (T, error) { return m.body, nil }

func (m simple[S, T]) Properties() Properties { return m.props }
