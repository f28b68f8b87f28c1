package subscription

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCursor is a scripted Cursor emitting pre-encoded documents.
type fakeCursor struct {
	mu       sync.Mutex
	id       int64
	events   []bson.Raw
	pos      int
	current  bson.Raw
	nextErr  error
	closed   bool
	closedCh chan struct{}
}

func newFakeCursor(id int64, events ...bson.Raw) *fakeCursor {
	return &fakeCursor{id: id, events: events, closedCh: make(chan struct{})}
}

func (c *fakeCursor) push(events ...bson.Raw) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, events...)
}

func (c *fakeCursor) failNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextErr = err
}

func (c *fakeCursor) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.id
}

func (c *fakeCursor) TryNext(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil || c.closed || c.nextErr != nil {
		return false
	}

	if c.pos < len(c.events) {
		c.current = c.events[c.pos]
		c.pos++

		return true
	}

	return false
}

func (c *fakeCursor) Decode(val interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return bson.Unmarshal(c.current, val)
}

func (c *fakeCursor) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.nextErr
	c.nextErr = nil

	return err
}

func (c *fakeCursor) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}

	return nil
}

func (c *fakeCursor) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// fakeCollection hands out scripted cursors and records the calls made
// against it.
type fakeCollection struct {
	mu         sync.Mutex
	cursors    []*fakeCursor
	watchCalls []watchCall
	findCalls  []findCall
}

type watchCall struct {
	pipeline interface{}
	opts     *options.ChangeStreamOptions
}

type findCall struct {
	filter interface{}
	opts   *options.FindOptions
}

func (c *fakeCollection) enqueue(cursors ...*fakeCursor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cursors = append(c.cursors, cursors...)
}

func (c *fakeCollection) next() *fakeCursor {
	if len(c.cursors) == 0 {
		return newFakeCursor(1)
	}

	cursor := c.cursors[0]
	c.cursors = c.cursors[1:]

	return cursor
}

func (c *fakeCollection) Watch(
	_ context.Context,
	pipeline interface{},
	opts ...*options.ChangeStreamOptions,
) (Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := watchCall{pipeline: pipeline}
	if len(opts) > 0 {
		call.opts = opts[0]
	}

	c.watchCalls = append(c.watchCalls, call)

	return c.next(), nil
}

func (c *fakeCollection) Find(
	_ context.Context,
	filter interface{},
	opts ...*options.FindOptions,
) (Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := findCall{filter: filter}
	if len(opts) > 0 {
		call.opts = opts[0]
	}

	c.findCalls = append(c.findCalls, call)

	return c.next(), nil
}

func (c *fakeCollection) watchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.watchCalls)
}

type fakeDatabase struct {
	mu          sync.Mutex
	name        string
	collections map[string]*fakeCollection
}

func newFakeDatabase(name string) *fakeDatabase {
	return &fakeDatabase{name: name, collections: make(map[string]*fakeCollection)}
}

func (d *fakeDatabase) Name() string { return d.name }

func (d *fakeDatabase) Collection(name string) Collection {
	return d.collection(name)
}

func (d *fakeDatabase) collection(name string) *fakeCollection {
	d.mu.Lock()
	defer d.mu.Unlock()

	coll, ok := d.collections[name]
	if !ok {
		coll = &fakeCollection{}
		d.collections[name] = coll
	}

	return coll
}

// recordingExecutor delegates to GoExecutor while counting submissions.
type recordingExecutor struct {
	mu        sync.Mutex
	submitted int
}

func (e *recordingExecutor) Execute(fn func()) {
	e.mu.Lock()
	e.submitted++
	e.mu.Unlock()

	go fn()
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.submitted
}

func mustRaw(t *testing.T, v interface{}) bson.Raw {
	t.Helper()

	raw, err := bson.Marshal(v)
	require.NoError(t, err)

	return bson.Raw(raw)
}

func changeEventDoc(t *testing.T, op string, fullDocument interface{}, db, coll string) bson.Raw {
	t.Helper()

	event := bson.D{
		{Key: "_id", Value: bson.D{{Key: "_data", Value: "resume-" + op}}},
		{Key: "operationType", Value: op},
		{Key: "ns", Value: bson.D{{Key: "db", Value: db}, {Key: "coll", Value: coll}}},
	}

	if fullDocument != nil {
		event = append(event, bson.E{Key: "fullDocument", Value: fullDocument})
	}

	return mustRaw(t, event)
}
