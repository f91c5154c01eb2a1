// Package drift estimates the offset between exchange event time and local time.
package drift

import "sync/atomic"

// Estimator keeps a smoothed exchange-to-local clock offset in milliseconds.
// Updates come from a single dispatch goroutine; Value may be read from any.
type Estimator struct {
	value atomic.Int64
}

// Update folds one observation into the estimate:
// drift = floor((drift + (nowMs - tradeMs)) / 2).
func (e *Estimator) Update(tradeMs, nowMs int64) int64 {
	v := floorHalf(e.value.Load() + (nowMs - tradeMs))
	e.value.Store(v)
	return v
}

// Value returns the current estimate.
func (e *Estimator) Value() int64 {
	return e.value.Load()
}

func floorHalf(n int64) int64 {
	return n >> 1
}
