// Package spool is the on-disk fallback transport.
//
// The Poller consumes envelope files dropped into a spool directory while
// the broker subscription is down. The Writer is the producing side: it
// places files there atomically so the poller never sees a partial write.
package spool
