// Package adapter translates exchange wire protocols into canonical trades.
//
// Each exchange supplies one Adapter:
//   - bitfinex: array frames, channel ids bound by a subscribe acknowledgment
//   - bitmex:   {action, table, data} batches, aggregated per print
//   - gdax:     match events, side field inverted
//   - bitflyer: JSON-RPC channel messages carrying execution lists
//
// Parse never fails: malformed or irrelevant frames produce an Ignore result.
package adapter
