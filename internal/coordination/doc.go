// Package coordination holds the state shared between the two upstream
// transports: the primary-availability flag and the set of spool files
// already taken by the poller.
package coordination
