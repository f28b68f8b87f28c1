package subscription

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mongofeed/go-mongofeed/message"
)

// changeStreamStrategy opens and reads server-side change stream
// cursors. The filter pipeline and full document policy are resolved
// once, at registration time, so configuration errors surface to the
// caller instead of the retry loop.
type changeStreamStrategy struct {
	options      ChangeStreamOptions
	pipeline     mongo.Pipeline
	fullDocument options.FullDocument
}

func newChangeStreamStrategy(opts ChangeStreamOptions, documentTarget bool) (*changeStreamStrategy, error) {
	pipeline, err := opts.preparePipeline()
	if err != nil {
		return nil, err
	}

	// Callers asking for typed bodies need the post-image on updates,
	// otherwise update events could not be mapped.
	fullDocument, ok := opts.FullDocumentLookup()
	if !ok {
		fullDocument = options.UpdateLookup
		if documentTarget {
			fullDocument = options.Default
		}
	}

	return &changeStreamStrategy{
		options:      opts,
		pipeline:     pipeline,
		fullDocument: fullDocument,
	}, nil
}

func (s *changeStreamStrategy) initCursor(ctx context.Context, db Database) (Cursor, error) {
	opts := options.ChangeStream().SetFullDocument(s.fullDocument)

	if len(s.options.resumeToken) > 0 {
		opts = opts.SetResumeAfter(s.options.resumeToken)
	}

	if s.options.collation != nil {
		opts = opts.SetCollation(*s.options.collation)
	}

	pipeline := s.pipeline
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}

	return db.Collection(s.options.collectionName).Watch(ctx, pipeline, opts)
}

func (s *changeStreamStrategy) createEvent(cursor Cursor, _ Database) (rawEvent, error) {
	var event ChangeEvent
	if err := cursor.Decode(&event); err != nil {
		return rawEvent{}, err
	}

	// Namespace is absent on some events, e.g. invalidate.
	props := message.Properties{DatabaseName: "unknown", CollectionName: "unknown"}
	if ns := event.Namespace; ns != nil {
		props = message.Properties{DatabaseName: ns.Database, CollectionName: ns.Collection}
	}

	return rawEvent{raw: &event, body: event.FullDocument, props: props}, nil
}
