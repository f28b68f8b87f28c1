package subscription

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChangeEvent is a single change stream event as emitted by the
// server. It is the raw type of messages delivered to change stream
// listeners.
type ChangeEvent struct {
	// ResumeToken is the opaque marker identifying this event's
	// position in the stream. Pass it to
	// ChangeStreamOptionsBuilder.ResumeToken to continue a stream
	// after this event.
	ResumeToken bson.Raw `bson:"_id"`

	// OperationType is the kind of mutation, e.g. "insert", "update",
	// "delete", "invalidate".
	OperationType string `bson:"operationType"`

	// FullDocument is the post-image of the document, when the server
	// attached one. Nil for update events without full document
	// lookup.
	FullDocument bson.Raw `bson:"fullDocument,omitempty"`

	// Namespace identifies the database and collection the event
	// originates from. Nil for events without a namespace, e.g.
	// invalidate.
	Namespace *Namespace `bson:"ns,omitempty"`

	// DocumentKey holds the _id of the document the event refers to.
	DocumentKey bson.Raw `bson:"documentKey,omitempty"`

	// UpdateDescription carries the field-level delta of update
	// events.
	UpdateDescription *UpdateDescription `bson:"updateDescription,omitempty"`

	ClusterTime primitive.Timestamp `bson:"clusterTime,omitempty"`
}

// Namespace is the database/collection pair an event originates from.
type Namespace struct {
	Database   string `bson:"db"`
	Collection string `bson:"coll"`
}

// UpdateDescription describes the modifications of an update event.
type UpdateDescription struct {
	UpdatedFields bson.Raw `bson:"updatedFields,omitempty"`
	RemovedFields []string `bson:"removedFields,omitempty"`
}
