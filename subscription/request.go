package subscription

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mongofeed/go-mongofeed/message"
)

// Listener receives the messages delivered by a subscription task. It
// is invoked synchronously on the task's worker: a slow listener blocks
// its own subscription's progress, never other subscriptions. Errors
// returned here propagate into the task's error handling path and do
// not cancel the subscription.
type Listener[S, T any] interface {
	OnMessage(ctx context.Context, msg message.Message[S, T]) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc[S, T any] func(ctx context.Context, msg message.Message[S, T]) error

// OnMessage executes the function.
func (f ListenerFunc[S, T]) OnMessage(ctx context.Context, msg message.Message[S, T]) error {
	return f(ctx, msg)
}

// TeeListener returns a Listener delivering each message to primary
// first and secondary afterwards, regardless of the primary outcome.
// Errors from both are joined.
func TeeListener[S, T any](primary, secondary Listener[S, T]) Listener[S, T] {
	return ListenerFunc[S, T](func(ctx context.Context, msg message.Message[S, T]) error {
		return errors.Join(
			primary.OnMessage(ctx, msg),
			secondary.OnMessage(ctx, msg),
		)
	})
}

// rawEvent is the type-erased form of a cursor event inside the task
// pipeline, before the generic request materialises a typed message.
type rawEvent struct {
	raw   interface{}
	body  bson.Raw
	props message.Properties
}

// Request binds a listener to the options describing what to subscribe
// to. The two implementations are ChangeStreamRequest and
// TailableRequest.
type Request interface {
	RequestOptions() RequestOptions

	validate() error
	deliver(ctx context.Context, converter message.Converter, event rawEvent) error
	documentTarget() bool
}

// isDocumentTarget reports whether T is a generic BSON document type,
// i.e. the caller did not ask for conversion into a domain type.
func isDocumentTarget[T any]() bool {
	var target T

	switch any(target).(type) {
	case bson.Raw, bson.D, bson.M:
		return true
	default:
		return false
	}
}

// ChangeStreamRequest subscribes a listener to the change stream of a
// collection, with event bodies converted into T on demand.
type ChangeStreamRequest[T any] struct {
	listener Listener[*ChangeEvent, T]
	options  ChangeStreamOptions
}

var _ Request = &ChangeStreamRequest[bson.Raw]{}

// NewChangeStreamRequest binds listener to the given change stream
// options. The message body is the event's full document, converted
// into T when the listener reads it.
func NewChangeStreamRequest[T any](listener Listener[*ChangeEvent, T], opts ChangeStreamOptions) *ChangeStreamRequest[T] {
	return &ChangeStreamRequest[T]{listener: listener, options: opts}
}

// RequestOptions returns the change stream options of this request.
func (r *ChangeStreamRequest[T]) RequestOptions() RequestOptions { return r.options }

func (r *ChangeStreamRequest[T]) validate() error {
	if r.listener == nil {
		return ErrNilListener
	}

	if r.options.collectionName == "" {
		return ErrNoCollection
	}

	return nil
}

func (r *ChangeStreamRequest[T]) documentTarget() bool { return isDocumentTarget[T]() }

func (r *ChangeStreamRequest[T]) deliver(ctx context.Context, converter message.Converter, event rawEvent) error {
	raw, _ := event.raw.(*ChangeEvent)
	msg := message.NewLazy[*ChangeEvent, T](raw, event.body, event.props, converter)

	return r.listener.OnMessage(ctx, msg)
}

// TailableRequest subscribes a listener to a tailable-await cursor on
// a capped collection, with document bodies converted into T on
// demand.
type TailableRequest[T any] struct {
	listener Listener[bson.Raw, T]
	options  TailableOptions
}

var _ Request = &TailableRequest[bson.Raw]{}

// NewTailableRequest binds listener to the given tailable cursor
// options. The message body is the emitted document itself, converted
// into T when the listener reads it.
func NewTailableRequest[T any](listener Listener[bson.Raw, T], opts TailableOptions) *TailableRequest[T] {
	return &TailableRequest[T]{listener: listener, options: opts}
}

// RequestOptions returns the tailable cursor options of this request.
func (r *TailableRequest[T]) RequestOptions() RequestOptions { return r.options }

func (r *TailableRequest[T]) validate() error {
	if r.listener == nil {
		return ErrNilListener
	}

	if r.options.collectionName == "" {
		return ErrNoCollection
	}

	return nil
}

func (r *TailableRequest[T]) documentTarget() bool { return isDocumentTarget[T]() }

func (r *TailableRequest[T]) deliver(ctx context.Context, converter message.Converter, event rawEvent) error {
	raw, _ := event.raw.(bson.Raw)
	msg := message.NewLazy[bson.Raw, T](raw, event.body, event.props, converter)

	return r.listener.OnMessage(ctx, msg)
}
