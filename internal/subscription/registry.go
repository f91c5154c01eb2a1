package subscription

import (
	"slices"

	"github.com/rickgao/tradeflow/internal/merge"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
)

// Subscription is the per-symbol state on one exchange connection.
type Subscription struct {
	Symbol string

	consumers []*Consumer // registration order
	trades    []model.Trade
	channel   string // exchange-assigned handle, "" until bound
}

// index returns the position of the consumer with c's ID, or -1.
func (s *Subscription) index(c *Consumer) int {
	return slices.IndexFunc(s.consumers, func(x *Consumer) bool { return x.ID() == c.ID() })
}

// Stats describes one subscription.
type Stats struct {
	Symbol      string   `json:"symbol"`
	Consumers   int      `json:"consumers"`
	ConsumerIDs []string `json:"consumer_ids"`
	Trades      int      `json:"trades"`
	Channel     string   `json:"channel,omitempty"`
}

// Removal is the outcome of Registry.Remove.
type Removal struct {
	Count     int    // Consumers left on the symbol
	Destroyed bool   // The subscription was removed
	Handle    string // Channel handle of a destroyed subscription
}

// Delivery is a snapshot ready to be sent to a set of consumers. Callers
// that need ordered delivery must dispatch deliveries in the order they were
// built, from one goroutine at a time.
type Delivery struct {
	Symbol    string
	Trades    []model.Trade
	Consumers []*Consumer
}

// Dispatch hands every consumer its own copy of the snapshot, in
// registration order. It returns how many consumers were called.
func (d Delivery) Dispatch() int {
	for _, c := range d.Consumers {
		c.deliver(model.CloneTrades(d.Trades))
	}
	return len(d.Consumers)
}

// Registry maps symbols to subscriptions for one exchange connection.
type Registry struct {
	subs     map[string]*Subscription
	channels map[string]string // handle -> symbol
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:     make(map[string]*Subscription),
		channels: make(map[string]string),
	}
}

// Add attaches c to symbol, creating the subscription if needed. created is
// true only on the transition from no subscription to one consumer.
func (r *Registry) Add(symbol string, c *Consumer) (count int, created bool) {
	sub, ok := r.subs[symbol]
	if !ok {
		sub = &Subscription{Symbol: symbol}
		r.subs[symbol] = sub
		created = true
	}

	if sub.index(c) < 0 {
		sub.consumers = append(sub.consumers, c)
	}
	return len(sub.consumers), created
}

// Remove detaches c from symbol. ok is false if symbol has no subscription.
func (r *Registry) Remove(symbol string, c *Consumer) (Removal, bool) {
	sub, ok := r.subs[symbol]
	if !ok {
		return Removal{}, false
	}

	if i := sub.index(c); i >= 0 {
		sub.consumers = slices.Delete(sub.consumers, i, i+1)
	}

	if len(sub.consumers) > 0 {
		return Removal{Count: len(sub.consumers)}, true
	}

	delete(r.subs, symbol)
	if sub.channel != "" {
		delete(r.channels, sub.channel)
	}
	return Removal{Destroyed: true, Handle: sub.channel}, true
}

// Bind records the channel handle for symbol. Bindings for symbols without a
// subscription are dropped.
func (r *Registry) Bind(symbol, handle string) bool {
	sub, ok := r.subs[symbol]
	if !ok {
		return false
	}
	if sub.channel != "" {
		delete(r.channels, sub.channel)
	}
	sub.channel = handle
	r.channels[handle] = symbol
	return true
}

// SymbolForChannel resolves a bound channel handle.
func (r *Registry) SymbolForChannel(handle string) (string, bool) {
	symbol, ok := r.channels[handle]
	return symbol, ok
}

// Channel returns the handle bound to symbol, if any.
func (r *Registry) Channel(symbol string) string {
	if sub, ok := r.subs[symbol]; ok {
		return sub.channel
	}
	return ""
}

// Apply merges t into its symbol's buffer, prunes it with spec and returns the
// resulting delivery. ok is false if nobody is subscribed to t.Symbol.
func (r *Registry) Apply(t model.Trade, spec retention.Spec) (Delivery, bool) {
	sub, ok := r.subs[t.Symbol]
	if !ok {
		return Delivery{}, false
	}

	sub.trades = merge.Merge(sub.trades, t.Clone())
	sub.trades = retention.Prune(sub.trades, spec)

	return r.delivery(sub, sub.consumers), true
}

// Snapshot builds a delivery of symbol's current buffer for the given consumers.
func (r *Registry) Snapshot(symbol string, to ...*Consumer) (Delivery, bool) {
	sub, ok := r.subs[symbol]
	if !ok {
		return Delivery{}, false
	}
	return r.delivery(sub, to), true
}

func (r *Registry) delivery(sub *Subscription, to []*Consumer) Delivery {
	return Delivery{
		Symbol:    sub.Symbol,
		Trades:    model.CloneTrades(sub.trades),
		Consumers: slices.Clone(to),
	}
}

// Count returns the number of consumers on symbol.
func (r *Registry) Count(symbol string) int {
	if sub, ok := r.subs[symbol]; ok {
		return len(sub.consumers)
	}
	return 0
}

// Len returns the number of subscribed symbols.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Symbols returns the subscribed symbols, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.subs))
	for s := range r.subs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Stats returns per-subscription statistics, sorted by symbol.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.subs))
	for _, s := range r.Symbols() {
		sub := r.subs[s]
		ids := make([]string, len(sub.consumers))
		for i, c := range sub.consumers {
			ids[i] = c.ID().String()
		}
		out = append(out, Stats{
			Symbol:      s,
			Consumers:   len(sub.consumers),
			ConsumerIDs: ids,
			Trades:      len(sub.trades),
			Channel:     sub.channel,
		})
	}
	return out
}
