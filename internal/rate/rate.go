// Package rate turns pairs of cumulative counter readings into per-second
// rates and utilization percentages.
package rate

import (
	"math"
	"time"
)

// Sample is one raw reading of a source's cumulative counters.
type Sample struct {
	Source   string
	At       time.Time // must carry a monotonic reading, i.e. come from time.Now
	Counters map[string]uint64
}

// Delta is the change of one counter over an interval.
// Indeterminate is set when the counter went backwards (reset or wrap).
type Delta struct {
	Value         uint64
	PerSecond     float64
	Indeterminate bool
}

// Interval is the result of comparing two samples of the same source.
type Interval struct {
	Elapsed time.Duration
	Deltas  map[string]Delta
	Reused  bool // elapsed was below resolution; deltas are from the last good interval
}

// Compute derives per-counter deltas between prev and curr. Counters present
// in only one sample are skipped. The caller guarantees curr is after prev.
func Compute(prev, curr Sample) Interval {
	elapsed := curr.At.Sub(prev.At)
	iv := Interval{Elapsed: elapsed, Deltas: make(map[string]Delta, len(curr.Counters))}
	secs := elapsed.Seconds()
	for name, c := range curr.Counters {
		p, ok := prev.Counters[name]
		if !ok {
			continue
		}
		if c < p {
			iv.Deltas[name] = Delta{Indeterminate: true}
			continue
		}
		d := Delta{Value: c - p}
		if secs > 0 {
			d.PerSecond = float64(d.Value) / secs
		} else {
			d.Indeterminate = true
		}
		iv.Deltas[name] = d
	}
	return iv
}

// Rate returns the per-second rate of a counter; ok is false when the counter
// is absent or indeterminate for this interval.
func (iv Interval) Rate(name string) (float64, bool) {
	d, ok := iv.Deltas[name]
	if !ok || d.Indeterminate {
		return 0, false
	}
	return d.PerSecond, true
}

// Sum adds the raw deltas of the named counters. ok is false when any of them
// is absent or indeterminate.
func (iv Interval) Sum(names ...string) (uint64, bool) {
	var total uint64
	for _, name := range names {
		d, ok := iv.Deltas[name]
		if !ok || d.Indeterminate {
			return 0, false
		}
		total += d.Value
	}
	return total, true
}

// Utilization is busy_delta / total_delta * 100, clamped to [0, 100].
func (iv Interval) Utilization(busy, total string) (float64, bool) {
	b, ok := iv.Deltas[busy]
	if !ok || b.Indeterminate {
		return 0, false
	}
	t, ok := iv.Deltas[total]
	if !ok || t.Indeterminate || t.Value == 0 {
		return 0, false
	}
	return Clamp(float64(b.Value) / float64(t.Value) * 100), true
}

// Clamp bounds a percentage to [0, 100]. NaN becomes 0.
func Clamp(pct float64) float64 {
	if math.IsNaN(pct) || pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
