package adapter

import (
	"encoding/json"
	"strings"

	"github.com/rickgao/tradeflow/internal/model"
)

const bitflyerChannelPrefix = "lightning_executions_"

// bitflyerCommand is a JSON-RPC subscribe/unsubscribe call.
type bitflyerCommand struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  bitflyerParams `json:"params"`
}

type bitflyerParams struct {
	Channel string `json:"channel"`
}

// bitflyerWire is the channelMessage notification.
type bitflyerWire struct {
	Method string `json:"method"`
	Params struct {
		Channel string              `json:"channel"`
		Message []bitflyerExecution `json:"message"`
	} `json:"params"`
}

type bitflyerExecution struct {
	Side     string      `json:"side"`
	Size     json.Number `json:"size"`
	Price    json.Number `json:"price"`
	ExecDate string      `json:"exec_date"`
}

type bitflyer struct {
	url string
}

func newBitFlyer(opts Options) *bitflyer {
	return &bitflyer{url: orDefault(opts.URL, DefaultBitFlyerURL)}
}

func (b *bitflyer) Exchange() model.Exchange { return model.BitFlyer }

func (b *bitflyer) URL() string { return b.url }

// Channel is derived from the symbol, so it is bound at subscribe time.
func (b *bitflyer) Channel(symbol string) (string, bool) {
	return bitflyerChannelPrefix + symbol, true
}

func (b *bitflyer) SubscribeCommand(symbol string) ([]byte, error) {
	return b.command("subscribe", symbol)
}

func (b *bitflyer) UnsubscribeCommand(symbol, _ string) ([]byte, error) {
	return b.command("unsubscribe", symbol)
}

func (b *bitflyer) command(method, symbol string) ([]byte, error) {
	channel, _ := b.Channel(symbol)
	return json.Marshal(bitflyerCommand{
		JSONRPC: "2.0",
		Method:  method,
		Params:  bitflyerParams{Channel: channel},
	})
}

// Parse emits one trade per execution. Executions without a usable side,
// date, size or price are skipped individually.
func (b *bitflyer) Parse(raw []byte, idx ChannelIndex) Result {
	var wire bitflyerWire
	if err := decode(raw, &wire); err != nil {
		return ignore()
	}
	if wire.Method != "channelMessage" || !strings.HasPrefix(wire.Params.Channel, bitflyerChannelPrefix) {
		return ignore()
	}

	symbol, ok := idx.SymbolForChannel(wire.Params.Channel)
	if !ok {
		return ignore()
	}

	out := make([]model.Trade, 0, len(wire.Params.Message))
	for _, exec := range wire.Params.Message {
		side, ok := model.SideFromWord(exec.Side)
		if !ok {
			continue
		}
		ts, ok := parseMillis(exec.ExecDate)
		if !ok {
			continue
		}
		size, ok := parseDecimal(exec.Size)
		if !ok {
			continue
		}
		price, ok := parseDecimal(exec.Price)
		if !ok {
			continue
		}

		out = append(out, model.Trade{
			Symbol: symbol,
			Time:   ts,
			Side:   side,
			Size:   size.Abs(),
			Price:  price,
		})
	}
	return trades(out...)
}
