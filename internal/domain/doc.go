// Package domain defines the core domain types and interfaces.
//
// Holds the event envelope relayed by the hub and the ports implemented by
// transports and adapters. No implementation code beyond envelope decoding.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
