// Package scheduler drives periodic snapshot assembly and publishes the
// result.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/notify"
)

var (
	ErrInvalidInterval = errors.New("sampling interval must be positive")
	ErrAlreadyRunning  = errors.New("scheduler already running")
)

// Assembler produces one snapshot per call. It is only ever called from the
// scheduler goroutine.
type Assembler interface {
	Assemble(ctx context.Context) (*model.SystemSnapshot, error)
}

// Recorder receives every published snapshot before it becomes visible.
type Recorder interface {
	Record(snap *model.SystemSnapshot)
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Update is published once per tick: a new snapshot, or the error that
// prevented one.
type Update struct {
	Snapshot *model.SystemSnapshot
	Err      error
}

type Scheduler struct {
	asm     Assembler
	rec     Recorder
	logger  *zap.Logger
	metrics *Metrics
	updates *notify.Hub[Update]
	latest  atomic.Pointer[model.SystemSnapshot]
	now     func() time.Time

	mu       sync.Mutex
	state    State
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// New builds an idle scheduler. rec and metrics may be nil.
func New(asm Assembler, rec Recorder, logger *zap.Logger, metrics *Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{
		asm:     asm,
		rec:     rec,
		logger:  logger.With(zap.String("component", "scheduler")),
		metrics: metrics,
		updates: notify.NewHub[Update](),
		now:     time.Now,
	}
}

// Start fires the first tick immediately and then one tick per interval on a
// background goroutine. A stopped scheduler may be started again.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Running {
		return ErrAlreadyRunning
	}
	// A tick from the previous run may still be finishing; the assembler
	// must never see two callers.
	if s.done != nil {
		<-s.done
	}
	s.state = Running
	s.interval = interval
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(interval, s.stop, s.done)
	s.logger.Info("sampling started", zap.Duration("interval", interval))
	return nil
}

// Stop prevents future ticks. A tick already in flight runs to completion.
// Calling Stop more than once, or before Start, is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return
	}
	close(s.stop)
	s.state = Stopped
	s.logger.Info("sampling stopped")
}

// Wait blocks until the loop of the last run has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Latest returns the most recently published snapshot, or nil before the
// first successful tick. It never blocks.
func (s *Scheduler) Latest() *model.SystemSnapshot {
	return s.latest.Load()
}

// Subscribe registers for tick updates. A reader that falls behind only
// loses older updates.
func (s *Scheduler) Subscribe(buffer int) (<-chan Update, func()) {
	return s.updates.Subscribe(buffer)
}

func (s *Scheduler) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	next := s.now()
	for {
		select {
		case <-stop:
			return
		default:
		}

		s.tick(next)

		now := s.now()
		var missed int
		next, missed = nextDeadline(next, interval, now)
		if missed > 0 {
			s.metrics.Missed.Add(float64(missed))
			s.logger.Warn("tick overran interval, skipping",
				zap.Int("missed", missed),
				zap.Duration("interval", interval))
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) tick(scheduled time.Time) {
	defer func(begin time.Time) {
		s.metrics.TickDuration.Observe(time.Since(begin).Seconds())
	}(time.Now())
	s.metrics.Ticks.Inc()

	snap, err := s.asm.Assemble(context.Background())
	if err != nil {
		s.metrics.Failures.Inc()
		s.logger.Warn("collection failed", zap.Error(err), zap.Time("scheduled", scheduled))
		s.updates.Publish(Update{Err: err})
		return
	}
	if s.rec != nil {
		s.rec.Record(snap)
	}
	s.latest.Store(snap)
	s.updates.Publish(Update{Snapshot: snap})
}

// nextDeadline returns the first deadline on the prev+k*interval grid that is
// still in the future, and how many grid points were skipped to reach it.
func nextDeadline(prev time.Time, interval time.Duration, now time.Time) (time.Time, int) {
	next := prev.Add(interval)
	missed := 0
	for !next.After(now) {
		next = next.Add(interval)
		missed++
	}
	return next, missed
}
