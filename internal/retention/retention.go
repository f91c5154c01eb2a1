// Package retention parses trade retention specs and trims trade buffers.
//
// A spec is either a relative window ("10m", "1h", "2d") measured back from
// the newest trade in the buffer, or a record count ("500"). Anything else,
// including "0" and the empty string, disables pruning.
package retention

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/rickgao/tradeflow/internal/model"
)

// Kind classifies a parsed spec.
type Kind int

const (
	None Kind = iota
	Window
	Count
)

func (k Kind) String() string {
	switch k {
	case Window:
		return "window"
	case Count:
		return "count"
	}
	return "none"
}

var windowPattern = regexp.MustCompile(`^([0-9]+)(\S)$`)

var units = map[string]time.Duration{
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// Spec is a parsed retention spec. The zero value keeps everything.
type Spec struct {
	raw  string
	kind Kind

	// Window: calendar part and fixed part, applied in that order.
	months int
	days   int
	dur    time.Duration

	// Count
	count int
}

// Parse interprets s as a window first, then as a count.
// It never fails; unusable input yields a None spec.
func Parse(s string) Spec {
	if spec, ok := parseWindow(s); ok {
		return spec
	}

	n, err := strconv.Atoi(s)
	if err == nil && n > 0 {
		return Spec{raw: s, kind: Count, count: n}
	}

	return Spec{raw: s}
}

// Valid reports whether s is usable as a retention spec. "0" is valid and
// means keep everything.
func Valid(s string) bool {
	if _, ok := parseWindow(s); ok {
		return true
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0
}

// NewWindow returns a window spec of a fixed duration.
func NewWindow(d time.Duration) Spec {
	if d <= 0 {
		return Spec{}
	}
	return Spec{raw: d.String(), kind: Window, dur: d}
}

// NewCount returns a spec keeping the n newest records.
func NewCount(n int) Spec {
	if n <= 0 {
		return Spec{}
	}
	return Spec{raw: strconv.Itoa(n), kind: Count, count: n}
}

// Kind returns the spec classification.
func (s Spec) Kind() Kind { return s.kind }

// Limit returns the record count of a Count spec, 0 otherwise.
func (s Spec) Limit() int { return s.count }

// String returns the text the spec was parsed from.
func (s Spec) String() string { return s.raw }

// Cutoff returns the oldest time (ms) retained by a Window spec relative to newest.
func (s Spec) Cutoff(newest int64) int64 {
	return s.subtract(time.UnixMilli(newest).UTC()).UnixMilli()
}

func (s Spec) subtract(t time.Time) time.Time {
	return t.AddDate(0, -s.months, -s.days).Add(-s.dur)
}

func (s Spec) add(t time.Time) time.Time {
	return t.AddDate(0, s.months, s.days).Add(s.dur)
}

// Prune trims buf (sorted newest first) according to spec and returns it.
// Dropped entries are cleared so their slippage can be collected.
func Prune(buf []model.Trade, spec Spec) []model.Trade {
	if len(buf) == 0 {
		return buf
	}

	switch spec.kind {
	case Window:
		cutoff := spec.Cutoff(buf[0].Time)
		for i, t := range buf {
			if t.Time < cutoff {
				clear(buf[i:])
				return buf[:i]
			}
		}
	case Count:
		if len(buf) > spec.count {
			clear(buf[spec.count:])
			return buf[:spec.count]
		}
	}

	return buf
}

func parseWindow(s string) (Spec, bool) {
	m := windowPattern.FindStringSubmatch(s)
	if m == nil {
		return Spec{}, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n > math.MaxInt32 {
		return Spec{}, false
	}

	spec := Spec{raw: s, kind: Window}
	switch m[2] {
	case "y":
		spec.months = n * 12
	case "Q":
		spec.months = n * 3
	case "M":
		spec.months = n
	case "w":
		spec.days = n * 7
	case "d":
		spec.days = n
	case "h", "m", "s":
		unit := units[m[2]]
		if int64(n) > math.MaxInt64/int64(unit) {
			return Spec{}, false
		}
		spec.dur = time.Duration(n) * unit
	default:
		return Spec{}, false
	}

	// A window must move "now" strictly forward; this rejects "0m".
	now := time.Now()
	if !spec.add(now).After(now) {
		return Spec{}, false
	}
	return spec, true
}
