package adapter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rickgao/tradeflow/internal/model"
)

// DefaultBitfinexReleaseEvent is the "event" sent when a symbol's last consumer
// leaves. It is "subscribe", not "unsubscribe", matching the feed's observed
// behavior; see ReleaseEvent in Options.
const DefaultBitfinexReleaseEvent = "subscribe"

// bitfinexCommand is the outbound subscribe/release frame.
type bitfinexCommand struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	ChanID  *int64 `json:"chanId,omitempty"`
}

// bitfinexEvent is the object form used for acknowledgments and info frames.
type bitfinexEvent struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int64  `json:"chanId"`
	Symbol  string `json:"symbol"`
	Pair    string `json:"pair"`
}

type bitfinex struct {
	url          string
	releaseEvent string
}

func newBitfinex(opts Options) *bitfinex {
	return &bitfinex{
		url:          orDefault(opts.URL, DefaultBitfinexURL),
		releaseEvent: orDefault(opts.ReleaseEvent, DefaultBitfinexReleaseEvent),
	}
}

func (b *bitfinex) Exchange() model.Exchange { return model.Bitfinex }

func (b *bitfinex) URL() string { return b.url }

func (b *bitfinex) Channel(string) (string, bool) { return "", false }

func (b *bitfinex) SubscribeCommand(symbol string) ([]byte, error) {
	return json.Marshal(bitfinexCommand{Event: "subscribe", Channel: "trades", Symbol: symbol})
}

func (b *bitfinex) UnsubscribeCommand(symbol, handle string) ([]byte, error) {
	cmd := bitfinexCommand{Event: b.releaseEvent, Channel: "trades", Symbol: symbol}
	if b.releaseEvent == "unsubscribe" {
		if id, err := strconv.ParseInt(handle, 10, 64); err == nil {
			cmd.ChanID = &id
		}
	}
	return json.Marshal(cmd)
}

// Parse handles
//
//	{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD","pair":"BTCUSD"}
//	[17,"te",[401597393,1574694475039,-0.005,7245.3]]
func (b *bitfinex) Parse(raw []byte, idx ChannelIndex) Result {
	switch firstByte(raw) {
	case '{':
		return b.parseEvent(raw)
	case '[':
		return b.parseTrade(raw, idx)
	}
	return ignore()
}

func (b *bitfinex) parseEvent(raw []byte) Result {
	var ev bitfinexEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ignore()
	}
	if ev.Event != "subscribed" || ev.Channel != "trades" {
		return ignore()
	}

	symbol := ev.Pair
	if symbol == "" {
		symbol = strings.TrimPrefix(ev.Symbol, "t")
	}
	if symbol == "" {
		return ignore()
	}
	return bind(symbol, strconv.FormatInt(ev.ChanID, 10))
}

func (b *bitfinex) parseTrade(raw []byte, idx ChannelIndex) Result {
	var frame []any
	if err := decode(raw, &frame); err != nil || len(frame) < 3 {
		return ignore()
	}

	if kind, _ := frame[1].(string); kind != "te" {
		return ignore()
	}

	chanID, ok := frame[0].(json.Number)
	if !ok {
		return ignore()
	}
	symbol, ok := idx.SymbolForChannel(chanID.String())
	if !ok {
		return ignore()
	}

	fields, ok := frame[2].([]any)
	if !ok || len(fields) < 4 {
		return ignore()
	}

	mts, ok := fields[1].(json.Number)
	if !ok {
		return ignore()
	}
	ts, err := mts.Int64()
	if err != nil {
		return ignore()
	}
	amount, ok := parseDecimal(fields[2])
	if !ok {
		return ignore()
	}
	price, ok := parseDecimal(fields[3])
	if !ok {
		return ignore()
	}

	side := model.SideBuy
	if amount.IsNegative() {
		side = model.SideSell
	}

	return trades(model.Trade{
		Symbol: symbol,
		Time:   ts,
		Side:   side,
		Size:   amount.Abs(),
		Price:  price,
	})
}
