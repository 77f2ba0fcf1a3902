// Package app runs the event pipeline.
//
// The Subscriber keeps the broker subscription alive with a capped
// exponential backoff and publishes its health through the shared
// availability flag. The Supervisor builds the state shared by both
// transports and runs the hub, the subscriber and the spool poller until the
// process shuts down.
package app
