package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mongofeed/go-mongofeed/logger"
	"github.com/mongofeed/go-mongofeed/message"
)

// State describes the lifecycle of a subscription task.
//
// A task starts out CREATED, moves to STARTING on its first execution,
// to RUNNING once a healthy cursor is obtained, and to CANCELLED on
// external cancellation. CANCELLED is terminal: a fresh task is built
// from the original request when the subscription is restarted.
type State int

// The task lifecycle states.
const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

const (
	// cursorRetryInterval is the fixed backoff between cursor health
	// check attempts during task startup.
	cursorRetryInterval = 100 * time.Millisecond

	// emptyPollInterval is how long the read loop sleeps after a poll
	// that returned no event.
	emptyPollInterval = 10 * time.Millisecond
)

// cursorStrategy supplies the variant-specific pieces of a task:
// opening the cursor and shaping the emitted event.
type cursorStrategy interface {
	initCursor(ctx context.Context, db Database) (Cursor, error)
	createEvent(cursor Cursor, db Database) (rawEvent, error)
}

// task is the cursor-reading worker behind a single subscription. Its
// lifecycle mutex guards state and cursor; the cursor is closed exactly
// once, on cancel.
type task struct {
	id         uuid.UUID
	db         Database
	request    Request
	strategy   cursorStrategy
	converter  message.Converter
	errHandler ErrorHandler
	translator ErrorTranslator
	log        logger.Logger

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu     sync.Mutex
	state  State
	cursor Cursor
}

func newTask(
	db Database,
	request Request,
	strategy cursorStrategy,
	converter message.Converter,
	errHandler ErrorHandler,
	translator ErrorTranslator,
	log logger.Logger,
) *task {
	ctx, cancel := context.WithCancel(context.Background())

	return &task{
		id:         uuid.New(),
		db:         db,
		request:    request,
		strategy:   strategy,
		converter:  converter,
		errHandler: errHandler,
		translator: translator,
		log:        log,
		ctx:        ctx,
		cancelCtx:  cancel,
		state:      StateCreated,
	}
}

// isLongLived signals that the task occupies a worker for its whole
// lifetime and must be dispatched on a dedicated long-running worker
// rather than a bounded queue.
func (t *task) isLongLived() bool { return true }

// State returns the current lifecycle state.
func (t *task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *task) isRunning() bool { return t.State() == StateRunning }

// Run drives the task until cancelled: obtain a healthy cursor, then
// poll it, delivering every event to the listener in emission order.
// Errors never terminate the loop; they are translated and handed to
// the error handler, and only Cancel ends the task.
func (t *task) Run() {
	t.start()

	for t.isRunning() {
		event, ok, err := t.pollNext()

		switch {
		case errors.Is(err, errTaskNotRunning) || errors.Is(err, context.Canceled):
			// Cancelled between polls; the loop condition ends it.
		case err != nil:
			t.handleError(err)
		case ok:
			if err := t.request.deliver(t.ctx, t.converter, event); err != nil {
				t.handleError(err)
			}
		default:
			t.sleep(emptyPollInterval)
		}
	}
}

// start moves the task to STARTING and repeatedly opens a cursor until
// one passes the health check (non-nil, non-zero server cursor id) or
// the task is cancelled. Unhealthy candidates are closed immediately
// and retried after a fixed backoff.
func (t *task) start() {
	t.mu.Lock()
	if t.state == StateCancelled {
		t.mu.Unlock()
		return
	}

	if t.state != StateRunning {
		t.state = StateStarting
	}
	t.mu.Unlock()

	policy := backoff.WithContext(backoff.NewConstantBackOff(cursorRetryInterval), t.ctx)

	err := backoff.RetryNotify(t.tryActivateCursor, policy, func(err error, _ time.Duration) {
		logger.Debug(t.log, "subscription cursor not ready, retrying",
			logger.With("taskID", t.id),
			logger.With("error", err),
		)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errTaskNotRunning) {
		logger.Error(t.log, "subscription task failed to start",
			logger.With("taskID", t.id),
			logger.With("error", err),
		)
	}
}

var errCursorUnhealthy = errors.New("subscription: cursor did not pass the health check")

// tryActivateCursor performs a single startup attempt under the
// lifecycle mutex. A permanent error ends the retry loop when the task
// left the STARTING state.
func (t *task) tryActivateCursor() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateStarting {
		return backoff.Permanent(errTaskNotRunning)
	}

	cursor, err := t.strategy.initCursor(t.ctx, t.db)
	if err != nil {
		return err
	}

	if cursor == nil || cursor.ID() == 0 {
		if cursor != nil {
			_ = cursor.Close(t.ctx)
		}

		return errCursorUnhealthy
	}

	t.cursor = cursor
	t.state = StateRunning

	logger.Debug(t.log, "subscription cursor established",
		logger.With("taskID", t.id),
		logger.With("collection", t.request.RequestOptions().CollectionName()),
	)

	return nil
}

// pollNext performs one non-blocking poll of the cursor under the
// lifecycle mutex. It reports errTaskNotRunning when the task left the
// RUNNING state, which the read loop treats as the end of the
// subscription.
func (t *task) pollNext() (rawEvent, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return rawEvent{}, false, errTaskNotRunning
	}

	if t.cursor.TryNext(t.ctx) {
		event, err := t.strategy.createEvent(t.cursor, t.db)
		if err != nil {
			return rawEvent{}, false, err
		}

		return event, true, nil
	}

	if err := t.cursor.Err(); err != nil {
		return rawEvent{}, false, err
	}

	return rawEvent{}, false, nil
}

// Cancel stops the task and closes its cursor. Safe to call
// repeatedly; a no-op unless the task is STARTING or RUNNING.
func (t *task) Cancel() {
	t.mu.Lock()
	if t.state != StateStarting && t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// Unblock a poll in flight before taking the mutex back.
	t.cancelCtx()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateStarting && t.state != StateRunning {
		return
	}

	t.state = StateCancelled

	if t.cursor != nil {
		_ = t.cursor.Close(context.Background())
		t.cursor = nil
	}

	logger.Debug(t.log, "subscription task cancelled", logger.With("taskID", t.id))
}

func (t *task) handleError(err error) {
	if t.translator != nil {
		if translated := t.translator.Translate(err); translated != nil {
			err = translated
		}
	}

	if t.errHandler != nil {
		t.errHandler.HandleError(err)
	}
}

func (t *task) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-t.ctx.Done():
	case <-timer.C:
	}
}
