package retention

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/tradeflow/internal/model"
)

// Totals is the traded volume per side over a window.
type Totals struct {
	Buy  decimal.Decimal `json:"buy"`
	Sell decimal.Decimal `json:"sell"`
}

// Sum adds up the sizes of the trades in buf (newest first) that fall inside
// the window spec measured back from the newest trade. Specs that are not
// windows yield zero totals.
func Sum(buf []model.Trade, window Spec) Totals {
	var out Totals
	if window.kind != Window || len(buf) == 0 {
		return out
	}

	cutoff := window.Cutoff(buf[0].Time)
	for _, t := range buf {
		if t.Time < cutoff {
			break
		}
		if t.Side == model.SideBuy {
			out.Buy = out.Buy.Add(t.Size)
		} else {
			out.Sell = out.Sell.Add(t.Size)
		}
	}
	return out
}
