package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "b"
	SideSell Side = "s"
)

// Trade is one canonical execution record after exchange-specific normalization.
// Prints sharing the same Time are folded into a single Trade by the merger.
type Trade struct {
	Symbol   string            `json:"symbol"`             // Upper-case symbol
	Time     int64             `json:"time"`               // Exchange event time (ms since epoch)
	Side     Side              `json:"side"`               // SideBuy or SideSell
	Size     decimal.Decimal   `json:"size"`               // Absolute quantity
	Price    decimal.Decimal   `json:"price"`              // Price of the first print at this Time
	Slippage []decimal.Decimal `json:"slippage,omitempty"` // Prices of later prints folded into this Time
}

// Clone returns a deep copy; the slippage slice is not shared.
func (t Trade) Clone() Trade {
	c := t
	if t.Slippage != nil {
		c.Slippage = make([]decimal.Decimal, len(t.Slippage))
		copy(c.Slippage, t.Slippage)
	}
	return c
}

// CloneTrades deep-copies a trade sequence.
func CloneTrades(trades []Trade) []Trade {
	out := make([]Trade, len(trades))
	for i, t := range trades {
		out[i] = t.Clone()
	}
	return out
}

// NormalizeSymbol upper-cases a symbol and trims surrounding whitespace.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SideFromWord maps "Buy", "BUY", "sell"... to a Side by its first letter.
// Returns false for anything that doesn't start with b or s.
func SideFromWord(word string) (Side, bool) {
	if word == "" {
		return "", false
	}
	switch strings.ToLower(word[:1]) {
	case "b":
		return SideBuy, true
	case "s":
		return SideSell, true
	}
	return "", false
}

// -----------------------------------------------------------------------------
// Exchanges
// -----------------------------------------------------------------------------

// Exchange identifies a supported trade feed.
type Exchange string

const (
	Bitfinex Exchange = "bitfinex" // array-wire
	BitMEX   Exchange = "bitmex"   // batch-JSON
	GDAX     Exchange = "gdax"     // match-event
	BitFlyer Exchange = "bitflyer" // channel-push execution lists
)

// Precision is the display precision descriptor handed to presentation code.
type Precision struct {
	Size  int
	Price int
}

// ExchangeInfo describes static properties of an exchange.
type ExchangeInfo struct {
	Caption       string
	DefaultSymbol string
	Precision     Precision
}

var exchanges = map[Exchange]ExchangeInfo{
	Bitfinex: {Caption: "BitFinex", DefaultSymbol: "BTCUSD", Precision: Precision{Size: 8, Price: 2}},
	BitMEX:   {Caption: "BitMEX", DefaultSymbol: "XBTUSD", Precision: Precision{Size: 2, Price: 2}},
	GDAX:     {Caption: "GDAX", DefaultSymbol: "BTC-USD", Precision: Precision{Size: 8, Price: 2}},
	BitFlyer: {Caption: "BitFlyer", DefaultSymbol: "BTC_JPY", Precision: Precision{Size: 8, Price: 2}},
}

// Exchanges returns all supported exchanges in a stable order.
func Exchanges() []Exchange {
	return []Exchange{Bitfinex, BitMEX, GDAX, BitFlyer}
}

// ParseExchange resolves a case-insensitive exchange name.
func ParseExchange(name string) (Exchange, error) {
	ex := Exchange(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := exchanges[ex]; !ok {
		return "", fmt.Errorf("unknown exchange %q", name)
	}
	return ex, nil
}

// Info returns the static description of the exchange.
func (e Exchange) Info() ExchangeInfo {
	return exchanges[e]
}

func (e Exchange) String() string {
	return string(e)
}
