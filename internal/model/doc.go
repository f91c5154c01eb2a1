// Package model defines the canonical trade types shared by every exchange feed.
//
// Conventions:
//   - Timestamps: int64 milliseconds since Unix epoch, as reported by the exchange
//   - Prices and sizes: decimal.Decimal, never float64
//   - Symbols: upper-case, exchange-native (e.g. "BTCUSD", "XBTUSD", "BTC-USD", "BTC_JPY")
package model
