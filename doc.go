// Package mongofeed hosts a change-feed subscription container for
// MongoDB.
//
// The library lets application code subscribe to server-side event
// streams, both change streams and tailable-await cursors on capped
// collections, delivering every event asynchronously to a registered
// listener with lazy conversion of the event body into a caller-chosen
// target type.
//
// Start from the `subscription` package for the container and request
// types, and `message` for the value delivered to listeners. The
// `zaplogger` and `otelfeed` packages plug in logging and telemetry.
package mongofeed
