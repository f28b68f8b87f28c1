package otelfeed

import "go.opentelemetry.io/otel/attribute"

var (
	// ErrorAttribute is set on a metric when an error is recorded.
	ErrorAttribute = attribute.Key("error")

	// ListenerNameAttribute contains the name an instrumented listener
	// was registered under.
	ListenerNameAttribute = attribute.Key("listener.name")

	// DatabaseNameAttribute contains the database a message originates
	// from.
	DatabaseNameAttribute = attribute.Key("message.database")

	// CollectionNameAttribute contains the collection a message
	// originates from.
	CollectionNameAttribute = attribute.Key("message.collection")
)
