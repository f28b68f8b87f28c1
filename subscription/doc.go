// Package subscription implements a container for long-lived MongoDB
// change-feed subscriptions.
//
// Application code describes what to subscribe to with a
// ChangeStreamRequest (server-side change streams) or a
// TailableRequest (tailable-await cursors on capped collections),
// binds a Listener to it, and registers the request with a Container.
// The container runs one cursor-reading task per subscription on its
// Executor, delivering every emitted event to the listener as a lazily
// converting message.Message.
//
// Requests may be registered before or after the container is started.
// Stopping the container cancels all active subscriptions but retains
// their registrations: a subsequent Start rebuilds fresh tasks from the
// original requests. Register, Start, Stop and Cancel are safe to call
// concurrently.
package subscription
