// Package broadcast fans tournament envelopes out to connected websocket
// clients.
//
// Both upstream transports hand envelopes to the Hub, a bounded queue drained
// by a single dispatch goroutine. For every envelope the Engine serializes
// once and enqueues the bytes on each registered Connection. Client I/O never
// happens on the dispatch goroutine: every Client owns a writer goroutine with
// a small buffer, and a full buffer counts as a failed send.
package broadcast
