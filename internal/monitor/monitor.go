// Package monitor is the single entry point used by front ends: it owns the
// scheduler, history and process controller and exposes them as one API.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/config"
	"github.com/Dicklesworthstone/sysmoni/internal/history"
	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/procctl"
	"github.com/Dicklesworthstone/sysmoni/internal/sampler"
	"github.com/Dicklesworthstone/sysmoni/internal/scheduler"
	"github.com/Dicklesworthstone/sysmoni/internal/source"
)

type Monitor struct {
	logger  *zap.Logger
	history *history.Store
	sched   *scheduler.Scheduler
	procs   *procctl.Controller
}

// Options wire a Monitor. Zero values pick defaults: no metrics
// registration and the host signaler.
type Options struct {
	HistoryCapacity int
	Registerer      prometheus.Registerer
	Signaler        procctl.Signaler
}

// New assembles a monitor around any snapshot source.
func New(asm scheduler.Assembler, opts Options, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := history.New(opts.HistoryCapacity)
	sched := scheduler.New(asm, store, logger, scheduler.NewMetrics(opts.Registerer))
	return &Monitor{
		logger:  logger,
		history: store,
		sched:   sched,
		procs:   procctl.New(sched.Latest, opts.Signaler, logger),
	}
}

// NewHost detects this machine's adapters and returns a monitor sampling
// them. Nothing is sampled until StartMonitoring.
func NewHost(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set, err := source.Detect(ctx, source.Options{
		GPUBackend:      cfg.GPU(),
		IncludeLoopback: cfg.IncludeLoopback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("detect sources: %w", err)
	}
	s := sampler.New(ctx, set, sampler.Options{
		AdapterTimeout: cfg.AdapterTimeout,
		MinResolution:  cfg.MinResolution,
	}, logger)
	return New(s, Options{HistoryCapacity: cfg.HistoryCapacity, Registerer: reg}, logger), nil
}

// StartMonitoring begins sampling at interval. The first snapshot is taken
// immediately.
func (m *Monitor) StartMonitoring(interval time.Duration) error {
	return m.sched.Start(interval)
}

// StopMonitoring prevents further ticks; it is safe to call repeatedly.
func (m *Monitor) StopMonitoring() {
	m.sched.Stop()
}

// LatestSnapshot returns the most recent complete snapshot, or nil before the
// first one.
func (m *Monitor) LatestSnapshot() *model.SystemSnapshot {
	return m.sched.Latest()
}

// History returns the named series oldest first.
func (m *Monitor) History(name string) []history.Point {
	return m.history.Series(name)
}

func (m *Monitor) HistoryNames() []string {
	return m.history.Names()
}

func (m *Monitor) HistoryCapacity() int {
	return m.history.Capacity()
}

// TerminateProcess asks pid to exit, or kills it when forceful. Validation
// errors are returned; the OS outcome arrives on CommandResults.
func (m *Monitor) TerminateProcess(pid int32, forceful bool) error {
	return m.procs.Terminate(pid, forceful)
}

// Updates subscribes to one notification per tick.
func (m *Monitor) Updates(buffer int) (<-chan scheduler.Update, func()) {
	return m.sched.Subscribe(buffer)
}

// CommandResults subscribes to process command outcomes.
func (m *Monitor) CommandResults(buffer int) (<-chan procctl.Result, func()) {
	return m.procs.Results(buffer)
}

func (m *Monitor) State() scheduler.State {
	return m.sched.State()
}

// Close stops sampling and waits for in-flight work to finish.
func (m *Monitor) Close() {
	m.sched.Stop()
	m.sched.Wait()
	m.procs.Wait()
	m.logger.Debug("monitor closed")
}
