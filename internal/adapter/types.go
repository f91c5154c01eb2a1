package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tradeflow/internal/model"
)

// Adapter parses inbound frames and builds outbound commands for one exchange.
type Adapter interface {
	// Exchange identifies the feed.
	Exchange() model.Exchange

	// URL is the WebSocket endpoint to dial.
	URL() string

	// Parse classifies one inbound frame. idx resolves channel handles to symbols.
	Parse(raw []byte, idx ChannelIndex) Result

	// SubscribeCommand builds the physical subscribe frame for symbol.
	SubscribeCommand(symbol string) ([]byte, error)

	// UnsubscribeCommand builds the physical release frame for symbol.
	// handle is the bound channel handle, or "" if none was bound.
	UnsubscribeCommand(symbol, handle string) ([]byte, error)

	// Channel returns the channel handle for symbol when it is known before
	// any acknowledgment arrives.
	Channel(symbol string) (string, bool)
}

// ChannelIndex resolves exchange channel handles to subscribed symbols.
type ChannelIndex interface {
	SymbolForChannel(handle string) (string, bool)
}

// Kind classifies a Parse result.
type Kind int

const (
	Ignore Kind = iota // Nothing to do
	Trades             // Trades carries one or more canonical trades
	Bind               // Binding correlates a channel handle with a symbol
)

// Binding is a subscribe acknowledgment.
type Binding struct {
	Symbol string
	Handle string
}

// Result is the outcome of parsing one frame.
type Result struct {
	Kind    Kind
	Trades  []model.Trade
	Binding Binding
}

func ignore() Result { return Result{} }

func trades(t ...model.Trade) Result {
	if len(t) == 0 {
		return ignore()
	}
	return Result{Kind: Trades, Trades: t}
}

func bind(symbol, handle string) Result {
	return Result{Kind: Bind, Binding: Binding{Symbol: model.NormalizeSymbol(symbol), Handle: handle}}
}

// Options configure an adapter.
type Options struct {
	// URL overrides the default endpoint.
	URL string

	// ReleaseEvent is the bitfinex "event" value sent when the last consumer
	// of a symbol goes away. Defaults to DefaultBitfinexReleaseEvent.
	ReleaseEvent string
}

// Default endpoints.
const (
	DefaultBitfinexURL = "wss://api.bitfinex.com/ws/2"
	DefaultBitMEXURL   = "wss://www.bitmex.com/realtime"
	DefaultGDAXURL     = "wss://ws-feed.exchange.coinbase.com"
	DefaultBitFlyerURL = "wss://ws.lightstream.bitflyer.com/json-rpc"
)

// New returns the adapter for exchange.
func New(exchange model.Exchange, opts Options) (Adapter, error) {
	switch exchange {
	case model.Bitfinex:
		return newBitfinex(opts), nil
	case model.BitMEX:
		return newBitMEX(opts), nil
	case model.GDAX:
		return newGDAX(opts), nil
	case model.BitFlyer:
		return newBitFlyer(opts), nil
	}
	return nil, fmt.Errorf("no adapter for exchange %q", exchange)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decode unmarshals keeping JSON numbers exact for decimal conversion.
func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// parseDecimal accepts a json.Number or a decimal string.
func parseDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// zonelessLayout covers timestamps sent without an offset; they are UTC.
const zonelessLayout = "2006-01-02T15:04:05.999999999"

// parseMillis converts an ISO-8601 timestamp to ms since epoch.
func parseMillis(s string) (int64, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t, err = time.Parse(zonelessLayout, s); err != nil {
			return 0, false
		}
	}
	return t.UnixMilli(), true
}

// firstByte returns the first non-space byte of raw, or 0.
func firstByte(raw []byte) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
