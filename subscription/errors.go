package subscription

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mongofeed/go-mongofeed/logger"
)

// Configuration errors surfaced at registration time.
var (
	// ErrNilDatabase is returned by NewContainer when no database
	// handle was provided.
	ErrNilDatabase = errors.New("subscription: database must not be nil")

	// ErrNilRequest is returned by Container.Register for a nil
	// request.
	ErrNilRequest = errors.New("subscription: request must not be nil")

	// ErrNilListener is returned by Container.Register for a request
	// without a listener.
	ErrNilListener = errors.New("subscription: request listener must not be nil")

	// ErrNoCollection is returned by Container.Register for a request
	// whose options name no collection.
	ErrNoCollection = errors.New("subscription: request options must name a collection")
)

// errTaskNotRunning reports a poll attempted after the task left the
// RUNNING state. Benign: the read loop observes it and exits.
var errTaskNotRunning = errors.New("subscription: task is no longer running, cursor is closed")

// ErrorHandler is the terminal receiver for errors raised while a task
// polls its cursor or delivers to its listener. The task loop never
// terminates on error by itself; a handler that wants a failing
// subscription stopped must cancel it through the Subscription handle.
type ErrorHandler interface {
	HandleError(err error)
}

// ErrorHandlerFunc adapts a function to the ErrorHandler interface.
type ErrorHandlerFunc func(err error)

// HandleError executes the function.
func (f ErrorHandlerFunc) HandleError(err error) { f(err) }

// NewLoggingErrorHandler returns the default ErrorHandler, reporting
// every error through the provided logger.
func NewLoggingErrorHandler(log logger.Logger) ErrorHandler {
	return ErrorHandlerFunc(func(err error) {
		logger.Error(log, "error while processing subscription", logger.With("error", err))
	})
}

// ErrorTranslator optionally converts driver-level errors into the
// domain-level hierarchy before they reach the ErrorHandler. Translate
// returns nil to indicate no translation applies, in which case the
// original error is handed over unchanged.
type ErrorTranslator interface {
	Translate(err error) error
}

// ErrorTranslatorFunc adapts a function to the ErrorTranslator
// interface.
type ErrorTranslatorFunc func(err error) error

// Translate executes the function.
func (f ErrorTranslatorFunc) Translate(err error) error { return f(err) }

// DataAccessError is the domain-level wrapper the default translator
// produces for driver failures.
type DataAccessError struct {
	Op    string
	Cause error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("subscription: data access failure during %s: %v", e.Op, e.Cause)
}

func (e *DataAccessError) Unwrap() error { return e.Cause }

// DriverErrorTranslator translates mongo driver errors into
// *DataAccessError. Errors that are not driver failures, including
// context cancellation, are left untranslated.
func DriverErrorTranslator() ErrorTranslator {
	return ErrorTranslatorFunc(func(err error) error {
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}

		var (
			serverErr  mongo.ServerError
			commandErr mongo.CommandError
		)

		switch {
		case errors.As(err, &commandErr):
			return &DataAccessError{Op: "command", Cause: err}
		case errors.As(err, &serverErr):
			return &DataAccessError{Op: "server roundtrip", Cause: err}
		case errors.Is(err, mongo.ErrClientDisconnected):
			return &DataAccessError{Op: "connection", Cause: err}
		case mongo.IsTimeout(err) || mongo.IsNetworkError(err):
			return &DataAccessError{Op: "network", Cause: err}
		default:
			return nil
		}
	})
}
