package subscription

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor is the subset of the driver cursor surface consumed by
// subscription tasks. Both *mongo.Cursor and *mongo.ChangeStream
// satisfy it.
//
// ID returns the server-side cursor id; a zero id indicates the cursor
// is exhausted or was never established, and fails the task's health
// check.
type Cursor interface {
	ID() int64
	TryNext(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Collection is the subset of *mongo.Collection consumed by
// subscription tasks.
type Collection interface {
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (Cursor, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
}

// Database is the subset of *mongo.Database consumed by the container
// and its tasks.
type Database interface {
	Name() string
	Collection(name string) Collection
}

var (
	_ Cursor = &mongo.Cursor{}
	_ Cursor = &mongo.ChangeStream{}
)

// WrapDatabase adapts a *mongo.Database to the Database interface.
func WrapDatabase(db *mongo.Database) Database {
	return mongoDatabase{db: db}
}

type mongoDatabase struct {
	db *mongo.Database
}

func (d mongoDatabase) Name() string { return d.db.Name() }

func (d mongoDatabase) Collection(name string) Collection {
	return mongoCollection{coll: d.db.Collection(name)}
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) Watch(
	ctx context.Context,
	pipeline interface{},
	opts ...*options.ChangeStreamOptions,
) (Cursor, error) {
	cs, err := c.coll.Watch(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}

	return cs, nil
}

func (c mongoCollection) Find(
	ctx context.Context,
	filter interface{},
	opts ...*options.FindOptions,
) (Cursor, error) {
	cursor, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	return cursor, nil
}
