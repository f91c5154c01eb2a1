package subscription

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
)

// recorder collects every snapshot a consumer receives.
type recorder struct {
	calls [][]model.Trade
}

func (r *recorder) consumer() *Consumer {
	return NewConsumer(func(trades []model.Trade) {
		r.calls = append(r.calls, trades)
	})
}

func (r *recorder) last() []model.Trade {
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func trade(symbol string, ts, price int64) model.Trade {
	return model.Trade{
		Symbol: symbol,
		Time:   ts,
		Side:   model.SideBuy,
		Size:   decimal.NewFromInt(1),
		Price:  decimal.NewFromInt(price),
	}
}

func TestRegistry_AddCountsDistinctConsumers(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	a, b := rec.consumer(), rec.consumer()

	n, created := r.Add("BTCUSD", a)
	assert.Equal(t, 1, n)
	assert.True(t, created)

	n, created = r.Add("BTCUSD", a)
	assert.Equal(t, 1, n, "same consumer twice is a no-op")
	assert.False(t, created)

	n, created = r.Add("BTCUSD", b)
	assert.Equal(t, 2, n)
	assert.False(t, created)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	a, b := rec.consumer(), rec.consumer()
	r.Add("BTCUSD", a)
	r.Add("BTCUSD", b)
	require.True(t, r.Bind("BTCUSD", "17"))

	rm, ok := r.Remove("BTCUSD", a)
	require.True(t, ok)
	assert.Equal(t, Removal{Count: 1}, rm)

	// Removing an unknown consumer leaves the count alone.
	rm, ok = r.Remove("BTCUSD", NewConsumer(func([]model.Trade) {}))
	require.True(t, ok)
	assert.Equal(t, 1, rm.Count)

	rm, ok = r.Remove("BTCUSD", b)
	require.True(t, ok)
	assert.Equal(t, Removal{Destroyed: true, Handle: "17"}, rm)
	assert.Equal(t, 0, r.Len())

	_, found := r.SymbolForChannel("17")
	assert.False(t, found, "handle must be released with its subscription")

	_, ok = r.Remove("BTCUSD", b)
	assert.False(t, ok)
}

func TestRegistry_Bind(t *testing.T) {
	r := NewRegistry()
	var rec recorder

	assert.False(t, r.Bind("BTCUSD", "1"), "no subscription yet")

	r.Add("BTCUSD", rec.consumer())
	require.True(t, r.Bind("BTCUSD", "1"))
	require.True(t, r.Bind("BTCUSD", "2"))

	_, ok := r.SymbolForChannel("1")
	assert.False(t, ok, "rebinding drops the old handle")
	symbol, ok := r.SymbolForChannel("2")
	assert.True(t, ok)
	assert.Equal(t, "BTCUSD", symbol)
	assert.Equal(t, "2", r.Channel("BTCUSD"))
}

func TestRegistry_ApplyDeliversToAllConsumers(t *testing.T) {
	r := NewRegistry()
	var ra, rb recorder
	r.Add("BTCUSD", ra.consumer())
	r.Add("BTCUSD", rb.consumer())

	d, ok := r.Apply(trade("BTCUSD", 100, 10), retention.Spec{})
	require.True(t, ok)
	assert.Equal(t, 2, d.Dispatch())

	d, _ = r.Apply(trade("BTCUSD", 200, 11), retention.Spec{})
	d.Dispatch()

	require.Len(t, ra.calls, 2)
	require.Len(t, rb.calls, 2)
	assert.Equal(t, int64(200), ra.last()[0].Time)
	assert.Equal(t, int64(100), ra.last()[1].Time)

	// Each consumer owns its copy.
	ra.last()[0].Time = -1
	assert.Equal(t, int64(200), rb.last()[0].Time)
}

func TestRegistry_ApplyUnknownSymbol(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Apply(trade("ETHUSD", 1, 1), retention.Spec{})
	assert.False(t, ok)
}

func TestRegistry_ApplyPrunesStoredBuffer(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	r.Add("BTCUSD", rec.consumer())

	spec := retention.NewCount(3)
	for ts := int64(1); ts <= 5; ts++ {
		d, _ := r.Apply(trade("BTCUSD", ts, 1), spec)
		d.Dispatch()
	}

	require.Len(t, rec.last(), 3)
	assert.Equal(t, int64(5), rec.last()[0].Time)
	assert.Equal(t, 3, r.Stats()[0].Trades)
}

func TestRegistry_SnapshotMutationDoesNotLeak(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	r.Add("BTCUSD", rec.consumer())

	d, _ := r.Apply(trade("BTCUSD", 100, 10), retention.Spec{})
	d.Dispatch()
	rec.last()[0].Size = decimal.NewFromInt(1000)

	d, _ = r.Apply(trade("BTCUSD", 100, 11), retention.Spec{})
	d.Dispatch()

	assert.True(t, rec.last()[0].Size.Equal(decimal.NewFromInt(2)))
}

func TestRegistry_LateSubscriberSnapshot(t *testing.T) {
	r := NewRegistry()
	var early, late recorder
	r.Add("BTCUSD", early.consumer())

	for ts := int64(1); ts <= 3; ts++ {
		d, _ := r.Apply(trade("BTCUSD", ts, 1), retention.Spec{})
		d.Dispatch()
	}

	c := late.consumer()
	r.Add("BTCUSD", c)
	d, ok := r.Snapshot("BTCUSD", c)
	require.True(t, ok)
	d.Dispatch()

	require.Len(t, late.calls, 1)
	assert.Len(t, late.last(), 3)
	assert.Len(t, early.calls, 3, "existing consumers are not re-notified")
}

func TestRegistry_ConsumerOnSeveralSymbols(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	c := rec.consumer()
	r.Add("BTCUSD", c)

	for ts := int64(1); ts <= 3; ts++ {
		d, _ := r.Apply(trade("BTCUSD", ts, 1), retention.Spec{})
		d.Dispatch()
	}

	r.Add("ETHUSD", c)
	d, ok := r.Snapshot("ETHUSD", c)
	require.True(t, ok)
	assert.Equal(t, 1, d.Dispatch())
	require.Len(t, rec.calls, 4)
	assert.Empty(t, rec.last())

	d, _ = r.Apply(trade("ETHUSD", 10, 2), retention.Spec{})
	assert.Equal(t, 1, d.Dispatch())
	require.Len(t, rec.calls, 5)
	require.Len(t, rec.last(), 1)
	assert.Equal(t, "ETHUSD", rec.last()[0].Symbol)
}

func TestRegistry_ConsumersKeyedByID(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	c := rec.consumer()
	alias := &Consumer{id: c.ID(), handle: func([]model.Trade) {}}

	r.Add("BTCUSD", c)
	n, _ := r.Add("BTCUSD", alias)
	assert.Equal(t, 1, n, "same identity counts once")

	rm, ok := r.Remove("BTCUSD", alias)
	require.True(t, ok)
	assert.True(t, rm.Destroyed)
}

func TestRegistry_SymbolsAndStats(t *testing.T) {
	r := NewRegistry()
	var rec recorder
	r.Add("XBTUSD", rec.consumer())
	r.Add("ETHUSD", rec.consumer())
	r.Bind("ETHUSD", "9")

	assert.Equal(t, []string{"ETHUSD", "XBTUSD"}, r.Symbols())
	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "ETHUSD", stats[0].Symbol)
	assert.Equal(t, 1, stats[0].Consumers)
	assert.Equal(t, "9", stats[0].Channel)
	assert.Equal(t, "XBTUSD", stats[1].Symbol)
	assert.Empty(t, stats[1].Channel)

	var ids []string
	for _, s := range stats {
		require.Len(t, s.ConsumerIDs, 1)
		ids = append(ids, s.ConsumerIDs[0])
	}
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, 1, r.Count("ETHUSD"))
	assert.Equal(t, 0, r.Count("LTCUSD"))
}
