// Package subscription tracks, per exchange connection, which consumers are
// attached to which symbols and holds each symbol's trade buffer.
//
// A Registry is not safe for concurrent use; its owning connection serializes
// access. Deliveries are built under that lock and dispatched after it is
// released, each consumer receiving its own copy of the buffer.
package subscription
