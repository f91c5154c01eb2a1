package adapter

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tradeflow/internal/model"
)

// bitmexCommand is the outbound {"op", "args"} frame.
type bitmexCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// bitmexWire is the table-update envelope.
type bitmexWire struct {
	Table  string            `json:"table"`
	Action string            `json:"action"`
	Data   []bitmexTradeWire `json:"data"`
}

type bitmexTradeWire struct {
	Timestamp string      `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Size      json.Number `json:"size"`
	Price     json.Number `json:"price"`
}

type bitmex struct {
	url string
}

func newBitMEX(opts Options) *bitmex {
	return &bitmex{url: orDefault(opts.URL, DefaultBitMEXURL)}
}

func (b *bitmex) Exchange() model.Exchange { return model.BitMEX }

func (b *bitmex) URL() string { return b.url }

func (b *bitmex) Channel(string) (string, bool) { return "", false }

func (b *bitmex) SubscribeCommand(symbol string) ([]byte, error) {
	return json.Marshal(bitmexCommand{Op: "subscribe", Args: []string{"trade:" + symbol}})
}

func (b *bitmex) UnsubscribeCommand(symbol, _ string) ([]byte, error) {
	return json.Marshal(bitmexCommand{Op: "unsubscribe", Args: []string{"trade:" + symbol}})
}

// printKey identifies records belonging to the same print.
type printKey struct {
	symbol string
	time   int64
}

// Parse aggregates an insert batch: records sharing symbol and timestamp
// become one trade whose size is their sum, whose price is the first record's
// price and whose slippage lists the later distinct prices.
func (b *bitmex) Parse(raw []byte, _ ChannelIndex) Result {
	var wire bitmexWire
	if err := decode(raw, &wire); err != nil {
		return ignore()
	}
	if wire.Table != "trade" || wire.Action != "insert" || len(wire.Data) == 0 {
		return ignore()
	}

	var (
		order  []printKey
		groups = make(map[printKey]*model.Trade)
	)

	for _, rec := range wire.Data {
		ts, ok := parseMillis(rec.Timestamp)
		if !ok {
			return ignore()
		}
		side, ok := model.SideFromWord(rec.Side)
		if !ok {
			return ignore()
		}
		size, ok := parseDecimal(rec.Size)
		if !ok {
			return ignore()
		}
		price, ok := parseDecimal(rec.Price)
		if !ok {
			return ignore()
		}

		key := printKey{symbol: model.NormalizeSymbol(rec.Symbol), time: ts}
		if key.symbol == "" {
			return ignore()
		}

		t, seen := groups[key]
		if !seen {
			order = append(order, key)
			groups[key] = &model.Trade{
				Symbol: key.symbol,
				Time:   ts,
				Side:   side,
				Size:   size,
				Price:  price,
			}
			continue
		}

		t.Size = t.Size.Add(size)
		if !price.Equal(t.Price) && !lastEquals(t.Slippage, price) {
			t.Slippage = append(t.Slippage, price)
		}
	}

	out := make([]model.Trade, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return trades(out...)
}

func lastEquals(s []decimal.Decimal, d decimal.Decimal) bool {
	return len(s) > 0 && s[len(s)-1].Equal(d)
}
