// Package merge folds incoming trades into a newest-first trade buffer.
package merge

import "github.com/rickgao/tradeflow/internal/model"

// Merge inserts t into buf, which must be sorted by Time descending with no
// duplicate Time values, and returns the updated buffer.
//
// A trade whose Time already exists is aggregated into that entry: its size is
// added and, if the price differs, the price is appended to Slippage. Otherwise
// t is inserted before the first older entry, or appended if none is older.
// buf may be modified in place.
func Merge(buf []model.Trade, t model.Trade) []model.Trade {
	for i := range buf {
		existing := &buf[i]

		if existing.Time == t.Time {
			existing.Size = existing.Size.Add(t.Size)
			if !existing.Price.Equal(t.Price) {
				existing.Slippage = append(existing.Slippage, t.Price)
			}
			return buf
		}

		if existing.Time < t.Time {
			buf = append(buf, model.Trade{})
			copy(buf[i+1:], buf[i:])
			buf[i] = t
			return buf
		}
	}

	return append(buf, t)
}
