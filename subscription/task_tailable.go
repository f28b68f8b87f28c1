package subscription

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mongofeed/go-mongofeed/message"
)

// tailableStrategy opens and reads tailable-await cursors on capped
// collections.
type tailableStrategy struct {
	options TailableOptions
}

func (s *tailableStrategy) initCursor(ctx context.Context, db Database) (Cursor, error) {
	filter := s.options.filter
	if filter == nil {
		filter = bson.D{}
	}

	opts := options.Find().
		SetCursorType(options.TailableAwait).
		SetNoCursorTimeout(true)

	if s.options.collation != nil {
		opts = opts.SetCollation(s.options.collation)
	}

	return db.Collection(s.options.collectionName).Find(ctx, filter, opts)
}

func (s *tailableStrategy) createEvent(cursor Cursor, db Database) (rawEvent, error) {
	var doc bson.Raw
	if err := cursor.Decode(&doc); err != nil {
		return rawEvent{}, err
	}

	props := message.Properties{
		DatabaseName:   db.Name(),
		CollectionName: s.options.collectionName,
	}

	return rawEvent{raw: doc, body: doc, props: props}, nil
}
