package rate

import "time"

// DefaultResolution is the smallest interval the engine will divide by.
const DefaultResolution = 100 * time.Millisecond

// Engine keeps exactly one previous sample per source. It is not safe for
// concurrent use; the sampling goroutine owns it.
type Engine struct {
	resolution time.Duration
	prev       map[string]Sample
	last       map[string]Interval
}

func NewEngine(resolution time.Duration) *Engine {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Engine{
		resolution: resolution,
		prev:       make(map[string]Sample),
		last:       make(map[string]Interval),
	}
}

// Observe compares curr with the cached sample of the same source and caches
// curr for the next call. ok is false on the first sample of a source.
//
// When the samples are closer together than the resolution the last interval
// is returned with Reused set, and the older sample stays cached so the next
// interval covers the whole elapsed time.
func (e *Engine) Observe(curr Sample) (Interval, bool) {
	prev, seen := e.prev[curr.Source]
	if !seen || curr.At.Before(prev.At) {
		e.prev[curr.Source] = curr
		delete(e.last, curr.Source)
		return Interval{}, false
	}
	if curr.At.Sub(prev.At) < e.resolution {
		last, ok := e.last[curr.Source]
		if !ok {
			return Interval{}, false
		}
		last.Reused = true
		return last, true
	}
	iv := Compute(prev, curr)
	e.prev[curr.Source] = curr
	e.last[curr.Source] = iv
	return iv, true
}

// Retain forgets every source keep rejects, so devices and processes that
// disappeared do not pin memory or pair with a later namesake.
func (e *Engine) Retain(keep func(source string) bool) {
	for src := range e.prev {
		if !keep(src) {
			delete(e.prev, src)
			delete(e.last, src)
		}
	}
}

// Sources is the number of cached previous samples.
func (e *Engine) Sources() int { return len(e.prev) }
