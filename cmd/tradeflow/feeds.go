package main

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rickgao/tradeflow/internal/config"
	"github.com/rickgao/tradeflow/internal/model"
	"github.com/rickgao/tradeflow/internal/retention"
	"github.com/rickgao/tradeflow/internal/subscription"
)

// feedState is the latest view of one subscribed feed.
type feedState struct {
	Exchange  model.Exchange   `json:"exchange"`
	Symbol    string           `json:"symbol"`
	Updates   int64            `json:"updates"`
	Trades    int              `json:"trades"`
	NewestMs  int64            `json:"newest_ms,omitempty"`
	LastPrice string           `json:"last_price,omitempty"`
	Minimum   string           `json:"minimum,omitempty"`
	Window    string           `json:"totals_window"`
	Volume    retention.Totals `json:"volume"`
}

// feedTracker keeps a feedState per feed, updated by its consumer.
type feedTracker struct {
	logger *slog.Logger

	mu    sync.RWMutex
	feeds []*feedState // config order
}

func newFeedTracker(logger *slog.Logger) *feedTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &feedTracker{logger: logger}
}

// consumer registers a feed and returns the consumer that keeps it current.
// Trades below the feed's minimum size are left out of its view, but not out
// of its volume totals.
func (t *feedTracker) consumer(ex model.Exchange, f config.FeedConfig) *subscription.Consumer {
	minimum, err := f.MinimumSize()
	if err != nil || minimum.IsNegative() {
		t.logger.Warn("ignoring invalid feed minimum", "exchange", ex.String(), "minimum", f.Minimum)
		minimum = decimal.Zero
	}

	st := &feedState{
		Exchange: ex,
		Symbol:   model.NormalizeSymbol(f.Symbol),
		Window:   f.Totals,
	}
	if minimum.IsPositive() {
		st.Minimum = minimum.String()
	}
	t.mu.Lock()
	t.feeds = append(t.feeds, st)
	t.mu.Unlock()

	window := retention.Parse(f.Totals)
	precision := ex.Info().Precision

	return subscription.NewConsumer(func(trades []model.Trade) {
		volume := retention.Sum(trades, window)
		trades = aboveMinimum(trades, minimum)

		t.mu.Lock()
		st.Updates++
		st.Trades = len(trades)
		st.Volume = volume
		if len(trades) > 0 {
			st.NewestMs = trades[0].Time
			st.LastPrice = trades[0].Price.StringFixed(int32(precision.Price))
		}
		t.mu.Unlock()

		if len(trades) == 0 {
			return
		}
		newest := trades[0]
		t.logger.Debug("trade",
			"exchange", ex.String(),
			"symbol", newest.Symbol,
			"side", string(newest.Side),
			"price", newest.Price.StringFixed(int32(precision.Price)),
			"size", newest.Size.StringFixed(int32(precision.Size)),
			"slippage", len(newest.Slippage),
			"buy_volume", volume.Buy.StringFixed(int32(precision.Size)),
			"sell_volume", volume.Sell.StringFixed(int32(precision.Size)),
		)
	})
}

// aboveMinimum returns the trades whose size is at least minimum.
func aboveMinimum(trades []model.Trade, minimum decimal.Decimal) []model.Trade {
	if !minimum.IsPositive() {
		return trades
	}
	out := trades[:0]
	for _, tr := range trades {
		if tr.Size.GreaterThanOrEqual(minimum) {
			out = append(out, tr)
		}
	}
	return out
}

// snapshot copies the current feed states.
func (t *feedTracker) snapshot() []feedState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]feedState, len(t.feeds))
	for i, st := range t.feeds {
		out[i] = *st
	}
	return out
}
