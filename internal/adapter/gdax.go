package adapter

import (
	"encoding/json"

	"github.com/rickgao/tradeflow/internal/model"
)

type gdaxChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

// gdaxCommand is the outbound subscribe/unsubscribe frame.
type gdaxCommand struct {
	Type     string        `json:"type"`
	Channels []gdaxChannel `json:"channels"`
}

// gdaxMatchWire is the wire format for match and last_match messages.
type gdaxMatchWire struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Time      string `json:"time"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Price     string `json:"price"`
}

type gdax struct {
	url string
}

func newGDAX(opts Options) *gdax {
	return &gdax{url: orDefault(opts.URL, DefaultGDAXURL)}
}

func (g *gdax) Exchange() model.Exchange { return model.GDAX }

func (g *gdax) URL() string { return g.url }

func (g *gdax) Channel(string) (string, bool) { return "", false }

func (g *gdax) SubscribeCommand(symbol string) ([]byte, error) {
	return g.command("subscribe", symbol)
}

func (g *gdax) UnsubscribeCommand(symbol, _ string) ([]byte, error) {
	return g.command("unsubscribe", symbol)
}

func (g *gdax) command(typ, symbol string) ([]byte, error) {
	return json.Marshal(gdaxCommand{
		Type:     typ,
		Channels: []gdaxChannel{{Name: "matches", ProductIDs: []string{symbol}}},
	})
}

// Parse accepts match and last_match messages. The feed's side field names
// the maker side, so "sell" maps to a buy and anything else to a sell.
func (g *gdax) Parse(raw []byte, _ ChannelIndex) Result {
	var wire gdaxMatchWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ignore()
	}
	if wire.Type != "match" && wire.Type != "last_match" {
		return ignore()
	}

	side := model.SideSell
	if wire.Side == "sell" {
		side = model.SideBuy
	}

	ts, ok := parseMillis(wire.Time)
	if !ok {
		return ignore()
	}
	size, ok := parseDecimal(wire.Size)
	if !ok {
		return ignore()
	}
	price, ok := parseDecimal(wire.Price)
	if !ok {
		return ignore()
	}
	symbol := model.NormalizeSymbol(wire.ProductID)
	if symbol == "" {
		return ignore()
	}

	return trades(model.Trade{
		Symbol: symbol,
		Time:   ts,
		Side:   side,
		Size:   size.Abs(),
		Price:  price,
	})
}
