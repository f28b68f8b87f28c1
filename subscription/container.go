package subscription

import (
	"math"
	"sync"

	"github.com/mongofeed/go-mongofeed/logger"
	"github.com/mongofeed/go-mongofeed/message"
)

// Executor runs subscription workers. Tasks are long-lived and occupy
// their worker for the whole subscription lifetime, so implementations
// must be able to run an unbounded number of concurrent workers;
// handing a long-lived task to a bounded queue starves the queue.
type Executor interface {
	Execute(fn func())
}

// GoExecutor is the default Executor, running every submitted worker
// on a dedicated goroutine.
type GoExecutor struct{}

// Execute runs fn on a new goroutine.
func (GoExecutor) Execute(fn func()) { go fn() }

// DefaultPhase is the lifecycle phase the container reports to host
// frameworks when none is configured: start last, stop first.
const DefaultPhase = math.MaxInt

// ContainerConfig carries the collaborators of a Container. Database
// is required; every other field has a default.
type ContainerConfig struct {
	// Database is the handle subscriptions read from. Wrap a
	// *mongo.Database with WrapDatabase.
	Database Database

	// Executor runs the subscription workers. Defaults to GoExecutor.
	Executor Executor

	// Converter turns event bodies into listener target types.
	// Defaults to message.DefaultConverter.
	Converter message.Converter

	// ErrorHandler receives translated task errors. Defaults to a
	// handler logging through Logger.
	ErrorHandler ErrorHandler

	// ErrorTranslator maps driver errors into the domain hierarchy
	// before they reach the ErrorHandler. Defaults to
	// DriverErrorTranslator.
	ErrorTranslator ErrorTranslator

	// Logger reports container and task lifecycle. Nil disables
	// logging.
	Logger logger.Logger

	// Phase orders this container among other lifecycle components of
	// a host framework. Defaults to DefaultPhase.
	Phase int
}

// Container coordinates an arbitrary set of subscriptions: a registry
// of requests, a start/stop lifecycle, and worker dispatch. See the
// package documentation for the lifecycle contract.
type Container struct {
	db         Database
	executor   Executor
	factory    taskFactory
	errHandler ErrorHandler
	log        logger.Logger
	phase      int

	mu            sync.Mutex
	running       bool
	subscriptions map[*Subscription]struct{}
}

// NewContainer builds a Container from the provided configuration.
func NewContainer(config ContainerConfig) (*Container, error) {
	if config.Database == nil {
		return nil, ErrNilDatabase
	}

	if config.Executor == nil {
		config.Executor = GoExecutor{}
	}

	if config.Converter == nil {
		config.Converter = message.DefaultConverter
	}

	if config.ErrorHandler == nil {
		config.ErrorHandler = NewLoggingErrorHandler(config.Logger)
	}

	if config.ErrorTranslator == nil {
		config.ErrorTranslator = DriverErrorTranslator()
	}

	if config.Phase == 0 {
		config.Phase = DefaultPhase
	}

	return &Container{
		db:       config.Database,
		executor: config.Executor,
		factory: taskFactory{
			db:         config.Database,
			converter:  config.Converter,
			translator: config.ErrorTranslator,
			log:        config.Logger,
		},
		errHandler:    config.ErrorHandler,
		log:           config.Logger,
		phase:         config.Phase,
		subscriptions: make(map[*Subscription]struct{}),
	}, nil
}

// Register adds a new subscription request to the container. If the
// container is running the subscription starts immediately, otherwise
// it starts when the container does. Registering the same request
// twice yields two independent subscriptions.
//
// Configuration errors (nil request, missing listener or collection,
// malformed filter, unknown variant) are reported here, before any
// cursor is opened.
func (c *Container) Register(request Request) (*Subscription, error) {
	task, err := c.factory.forRequest(request, c.errHandler)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{request: request, task: task}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscriptions[sub] = struct{}{}

	logger.Debug(c.log, "subscription registered",
		logger.With("taskID", task.id),
		logger.With("collection", request.RequestOptions().CollectionName()),
	)

	if c.running {
		c.submit(sub)
	}

	return sub, nil
}

// Remove cancels the subscription if active and drops it from the
// container. Removed subscriptions do not restart on the next Start.
func (c *Container) Remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscriptions[sub]; !ok {
		return
	}

	if sub.IsActive() {
		sub.Cancel()
	}

	delete(c.subscriptions, sub)
}

// Start submits every registered, not yet active subscription to the
// executor and marks the container running. Subscriptions whose task
// already ran to cancellation get a fresh task rebuilt from their
// original request.
func (c *Container) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	for sub := range c.subscriptions {
		if sub.IsActive() {
			continue
		}

		if sub.taskState() == StateCancelled {
			fresh, err := c.factory.forRequest(sub.request, c.errHandler)
			if err != nil {
				// The request was validated at registration; reaching
				// this means the error handler gets to decide.
				c.errHandler.HandleError(err)
				continue
			}

			sub.replaceTask(fresh)
		}

		c.submit(sub)
	}

	c.running = true

	logger.Info(c.log, "subscription container started",
		logger.With("subscriptions", len(c.subscriptions)),
	)
}

// Stop cancels every registered subscription and marks the container
// stopped. Registrations are retained: a subsequent Start resumes
// them with fresh tasks.
func (c *Container) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

// StopWithCallback stops the container and invokes callback once every
// subscription has been cancelled.
func (c *Container) StopWithCallback(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	callback()
}

func (c *Container) stopLocked() {
	if !c.running {
		return
	}

	for sub := range c.subscriptions {
		sub.Cancel()
	}

	c.running = false

	logger.Info(c.log, "subscription container stopped")
}

// IsRunning reports whether the container has been started and not yet
// stopped.
func (c *Container) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// IsAutoStartup reports whether a host lifecycle framework should
// start the container automatically. Always false: the host decides
// when to start.
func (c *Container) IsAutoStartup() bool { return false }

// Phase returns the lifecycle ordering hint for host frameworks.
func (c *Container) Phase() int { return c.phase }

// submit hands the subscription's task to the executor. Caller holds
// the container mutex.
func (c *Container) submit(sub *Subscription) {
	task := sub.currentTask()

	if !task.isLongLived() {
		return
	}

	logger.Debug(c.log, "submitting subscription task",
		logger.With("taskID", task.id),
		logger.With("collection", sub.request.RequestOptions().CollectionName()),
	)

	c.executor.Execute(task.Run)
}

// Subscription is the caller's handle on a registered request: it
// exposes whether the backing task is running and allows cancelling
// it. Cancelling does not unregister the request; use
// Container.Remove for that.
type Subscription struct {
	request Request

	mu   sync.Mutex
	task *task
}

// IsActive reports whether the backing task currently has a healthy
// cursor and is delivering events.
func (s *Subscription) IsActive() bool {
	return s.currentTask().State() == StateRunning
}

// Cancel stops the backing task and closes its cursor. In-flight
// listener invocations are not interrupted; no further events are
// delivered after the task observes the cancellation.
func (s *Subscription) Cancel() {
	s.currentTask().Cancel()
}

func (s *Subscription) currentTask() *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.task
}

func (s *Subscription) taskState() State {
	return s.currentTask().State()
}

func (s *Subscription) replaceTask(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.task = t
}
