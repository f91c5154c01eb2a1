// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Keeps exactly one WebSocket connection per exchange, opened on the first
//     subscribe and closed when the last subscription on it goes away
//   - Multiplexes symbol subscriptions over that connection, sending one
//     physical subscribe/unsubscribe per symbol regardless of consumer count
//   - Runs one dispatch goroutine per connection: parse, merge, prune, deliver
//   - Delivers snapshots in the order they were built, one at a time per
//     connection, never holding a lock while a consumer runs
//   - Treats connection failures as terminal; it never reconnects on its own
package connection
