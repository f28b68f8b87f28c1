package subscription

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RequestOptions describe what a subscription request targets. The two
// variants are ChangeStreamOptions and TailableOptions.
type RequestOptions interface {
	CollectionName() string
}

// ChangeStreamOptions configure a change stream subscription. Values
// are immutable snapshots produced by ChangeStreamOptionsBuilder.
type ChangeStreamOptions struct {
	collectionName string
	filter         interface{}
	resumeToken    bson.Raw
	fullDocument   *options.FullDocument
	collation      *options.Collation
}

// CollectionName returns the collection the change stream is opened on.
func (o ChangeStreamOptions) CollectionName() string { return o.collectionName }

// ResumeToken returns the configured resume token, nil if unset.
func (o ChangeStreamOptions) ResumeToken() bson.Raw { return o.resumeToken }

// FullDocumentLookup returns the configured full document policy and
// whether the caller set one.
func (o ChangeStreamOptions) FullDocumentLookup() (options.FullDocument, bool) {
	if o.fullDocument == nil {
		return options.Default, false
	}

	return *o.fullDocument, true
}

// Collation returns the configured collation, nil if unset.
func (o ChangeStreamOptions) Collation() *options.Collation { return o.collation }

// ChangeStreamOptionsBuilder assembles ChangeStreamOptions. Build
// returns a frozen snapshot and resets the builder.
type ChangeStreamOptionsBuilder struct {
	opts ChangeStreamOptions
}

// NewChangeStreamOptionsBuilder returns an empty builder.
func NewChangeStreamOptionsBuilder() *ChangeStreamOptionsBuilder {
	return &ChangeStreamOptionsBuilder{}
}

// Collection sets the collection to open the change stream on.
func (b *ChangeStreamOptionsBuilder) Collection(name string) *ChangeStreamOptionsBuilder {
	b.opts.collectionName = name
	return b
}

// Filter sets a structured aggregation filter, authored against the
// fields of the user document. At registration time every field
// reference is prefixed with "fullDocument." to match the change event
// envelope, so callers write filters the way they would for a plain
// query.
func (b *ChangeStreamOptionsBuilder) Filter(stages ...bson.D) *ChangeStreamOptionsBuilder {
	b.opts.filter = stages
	return b
}

// FilterPipeline sets a pre-compiled aggregation pipeline. It is
// passed to the change stream untouched, without field prefixing.
func (b *ChangeStreamOptionsBuilder) FilterPipeline(pipeline mongo.Pipeline) *ChangeStreamOptionsBuilder {
	b.opts.filter = pipeline
	return b
}

// ResumeToken sets the opaque token to resume the stream after.
func (b *ChangeStreamOptionsBuilder) ResumeToken(token bson.Raw) *ChangeStreamOptionsBuilder {
	b.opts.resumeToken = token
	return b
}

// FullDocumentLookup sets the full document policy for update events.
// When unset, the policy defaults to options.UpdateLookup if the
// request targets a typed body, options.Default otherwise.
func (b *ChangeStreamOptionsBuilder) FullDocumentLookup(lookup options.FullDocument) *ChangeStreamOptionsBuilder {
	b.opts.fullDocument = &lookup
	return b
}

// ReturnFullDocumentOnUpdate is shorthand for
// FullDocumentLookup(options.UpdateLookup).
func (b *ChangeStreamOptionsBuilder) ReturnFullDocumentOnUpdate() *ChangeStreamOptionsBuilder {
	return b.FullDocumentLookup(options.UpdateLookup)
}

// Collation sets the collation applied to the change stream.
func (b *ChangeStreamOptionsBuilder) Collation(collation *options.Collation) *ChangeStreamOptionsBuilder {
	b.opts.collation = collation
	return b
}

// Build returns the assembled options and resets the builder.
func (b *ChangeStreamOptionsBuilder) Build() ChangeStreamOptions {
	opts := b.opts
	b.opts = ChangeStreamOptions{}

	return opts
}

// TailableOptions configure a tailable-await cursor subscription on a
// capped collection. Values are immutable snapshots produced by
// TailableOptionsBuilder.
type TailableOptions struct {
	collectionName string
	filter         bson.D
	collation      *options.Collation
}

// CollectionName returns the capped collection to tail.
func (o TailableOptions) CollectionName() string { return o.collectionName }

// Filter returns the configured query filter, nil if unset.
func (o TailableOptions) Filter() bson.D { return o.filter }

// Collation returns the configured collation, nil if unset.
func (o TailableOptions) Collation() *options.Collation { return o.collation }

// TailableOptionsBuilder assembles TailableOptions. Build returns a
// frozen snapshot and resets the builder.
type TailableOptionsBuilder struct {
	opts TailableOptions
}

// NewTailableOptionsBuilder returns an empty builder.
func NewTailableOptionsBuilder() *TailableOptionsBuilder {
	return &TailableOptionsBuilder{}
}

// Collection sets the capped collection to tail.
func (b *TailableOptionsBuilder) Collection(name string) *TailableOptionsBuilder {
	b.opts.collectionName = name
	return b
}

// Filter restricts the tailed documents to those matching the query.
func (b *TailableOptionsBuilder) Filter(filter bson.D) *TailableOptionsBuilder {
	b.opts.filter = filter
	return b
}

// Collation sets the collation applied to the query.
func (b *TailableOptionsBuilder) Collation(collation *options.Collation) *TailableOptionsBuilder {
	b.opts.collation = collation
	return b
}

// Build returns the assembled options and resets the builder.
func (b *TailableOptionsBuilder) Build() TailableOptions {
	opts := b.opts
	b.opts = TailableOptions{}

	return opts
}
