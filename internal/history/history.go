// Package history keeps bounded per-metric time series fed by snapshots.
package history

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// DefaultCapacity is two minutes at the default one-second interval.
const DefaultCapacity = 120

// Point is one value of a series.
type Point struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// Store holds one ring per series. Record is called from the sampling
// goroutine; Series and Names may be called from any goroutine.
type Store struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*Ring[Point]
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity, series: make(map[string]*Ring[Point])}
}

func (s *Store) Capacity() int { return s.capacity }

// Record appends one value per tracked series found in snap. Absent and
// indeterminate values are skipped rather than recorded as zero.
func (s *Store) Record(snap *model.SystemSnapshot) {
	if snap == nil {
		return
	}
	vals := Extract(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range vals {
		r, ok := s.series[name]
		if !ok {
			r = NewRing[Point](s.capacity)
			s.series[name] = r
		}
		r.Push(Point{At: snap.Timestamp, Value: v})
	}
}

// Series returns a copy of the named series, oldest first. Unknown names yield nil.
func (s *Store) Series(name string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.series[name]
	if !ok {
		return nil
	}
	return r.Slice()
}

// Names lists every series recorded so far, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := lo.Keys(s.series)
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}
