// Package sampler assembles one consistent SystemSnapshot per tick from the
// host adapters and the rate engine.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
	"github.com/Dicklesworthstone/sysmoni/internal/source"
)

// ErrTotalCollectionFailure is returned when no adapter produced data for a tick.
var ErrTotalCollectionFailure = errors.New("no resource could be read")

// Adapters that turned unsupported at runtime are probed again this often.
const recheckTicks = 60

// Options tune a Sampler.
type Options struct {
	AdapterTimeout time.Duration
	MinResolution  time.Duration
}

// Sampler owns the previous-sample cache and builds snapshots. Assemble must
// only be called from one goroutine at a time.
type Sampler struct {
	sources source.Set
	timeout time.Duration
	logger  *zap.Logger
	rates   *rate.Engine
	now     func() time.Time

	supported map[string]bool
	lost      map[string]source.Adapter // became unsupported after startup
	tick      uint64
}

// New checks every adapter's support once and caches the answer.
func New(ctx context.Context, set source.Set, opts Options, logger *zap.Logger) *Sampler {
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sampler{
		sources:   set,
		timeout:   opts.AdapterTimeout,
		logger:    logger.With(zap.String("component", "sampler")),
		rates:     rate.NewEngine(opts.MinResolution),
		now:       time.Now,
		supported: make(map[string]bool),
		lost:      make(map[string]source.Adapter),
	}
	for _, a := range s.adapters() {
		ok, _ := source.Bounded(ctx, s.timeout, func(ctx context.Context) (bool, error) {
			return a.Supported(ctx), nil
		})
		s.supported[a.Name()] = ok
		s.logger.Info("adapter probed", zap.String("adapter", a.Name()), zap.Bool("supported", ok))
	}
	return s
}

func (s *Sampler) adapters() []source.Adapter {
	var out []source.Adapter
	for _, a := range []source.Adapter{s.sources.CPU, s.sources.Memory, s.sources.Disks, s.sources.Networks, s.sources.GPUs, s.sources.Fans, s.sources.Processes} {
		if !lo.IsNil(a) {
			out = append(out, a)
		}
	}
	return out
}

// Supported reports the cached support answer for an adapter by name.
func (s *Sampler) Supported(name string) bool { return s.supported[name] }

// InvalidateTopology forwards a topology-change signal to the CPU adapter.
func (s *Sampler) InvalidateTopology() {
	if s.sources.CPU != nil {
		s.sources.CPU.InvalidateTopology()
	}
}

// readings holds one tick's raw adapter output.
type readings struct {
	cpu   source.CPUReading
	mem   model.Memory
	disks []source.DiskReading
	nets  []source.NetReading
	gpus  []model.GPU
	fans  []model.Fan
	procs []source.ProcessReading
}

// outcome is what one adapter call did this tick.
type outcome struct {
	name string
	err  error
	ran  bool
}

// Assemble runs one full tick.
func (s *Sampler) Assemble(ctx context.Context) (*model.SystemSnapshot, error) {
	s.tick++
	stamp := s.now()
	if s.tick%recheckTicks == 0 {
		s.recheck(ctx)
	}

	var r readings
	outcomes := make([]outcome, 7)
	var g errgroup.Group
	set := s.sources
	if set.CPU != nil {
		collect(ctx, s, &g, set.CPU, set.CPU.SampleCPU, &r.cpu, &outcomes[0])
	}
	if set.Memory != nil {
		collect(ctx, s, &g, set.Memory, set.Memory.SampleMemory, &r.mem, &outcomes[1])
	}
	if set.Disks != nil {
		collect(ctx, s, &g, set.Disks, set.Disks.SampleDisks, &r.disks, &outcomes[2])
	}
	if set.Networks != nil {
		collect(ctx, s, &g, set.Networks, set.Networks.SampleNetworks, &r.nets, &outcomes[3])
	}
	if set.GPUs != nil {
		collect(ctx, s, &g, set.GPUs, set.GPUs.SampleGPUs, &r.gpus, &outcomes[4])
	}
	if set.Fans != nil {
		collect(ctx, s, &g, set.Fans, set.Fans.SampleFans, &r.fans, &outcomes[5])
	}
	if set.Processes != nil {
		collect(ctx, s, &g, set.Processes, set.Processes.SampleProcesses, &r.procs, &outcomes[6])
	}
	_ = g.Wait()

	snap := &model.SystemSnapshot{Tick: s.tick, Timestamp: stamp}
	ok := make(map[string]bool)
	var failures []error
	for _, a := range s.adapters() {
		if !s.supported[a.Name()] {
			snap.Issues = append(snap.Issues, model.Issue{Resource: a.Name(), Kind: model.IssueUnsupported})
		}
	}
	for _, o := range outcomes {
		switch {
		case !o.ran:
		case o.err == nil:
			ok[o.name] = true
		case errors.Is(o.err, source.ErrUnsupported):
			s.markLost(o.name)
			snap.Issues = append(snap.Issues, model.Issue{Resource: o.name, Kind: model.IssueUnsupported, Message: o.err.Error()})
		default:
			failures = append(failures, fmt.Errorf("%s: %w", o.name, o.err))
			snap.Issues = append(snap.Issues, model.Issue{Resource: o.name, Kind: model.IssueTransient, Message: o.err.Error()})
			s.logger.Debug("adapter read failed", zap.String("adapter", o.name), zap.Error(o.err))
		}
	}
	if len(ok) == 0 {
		if len(failures) == 0 {
			return nil, fmt.Errorf("%w: no supported adapters", ErrTotalCollectionFailure)
		}
		return nil, fmt.Errorf("%w: %w", ErrTotalCollectionFailure, errors.Join(failures...))
	}

	seen := make(map[string]struct{})
	observe := func(smp rate.Sample) (rate.Interval, bool) {
		if smp.Source == "" {
			return rate.Interval{}, false
		}
		seen[smp.Source] = struct{}{}
		return s.rates.Observe(smp)
	}

	if ok[nameOf(set.CPU)] {
		snap.CPU, snap.Interval = buildCPU(r.cpu, observe)
	}
	if ok[nameOf(set.Memory)] {
		snap.Memory = r.mem
	}
	if ok[nameOf(set.Disks)] {
		snap.Disks = buildDisks(r.disks, observe)
	}
	if ok[nameOf(set.Networks)] {
		snap.Networks = buildNetworks(r.nets, observe)
	}
	if ok[nameOf(set.GPUs)] {
		snap.GPUs = append([]model.GPU(nil), r.gpus...)
		sort.SliceStable(snap.GPUs, func(i, j int) bool { return snap.GPUs[i].ID < snap.GPUs[j].ID })
	}
	if ok[nameOf(set.Fans)] {
		snap.Fans = append([]model.Fan(nil), r.fans...)
		sort.SliceStable(snap.Fans, func(i, j int) bool { return snap.Fans[i].ID < snap.Fans[j].ID })
	}
	if ok[nameOf(set.Processes)] {
		snap.Processes = buildProcesses(r.procs, observe)
	}
	snap.Tree = model.BuildTree(snap.Processes)

	// Sources of a kind that failed this tick keep their previous sample.
	failedKinds := make([]string, 0, 4)
	for kind, a := range map[string]source.Adapter{"cpu": set.CPU, "disk/": set.Disks, "net/": set.Networks, "proc/": set.Processes} {
		if !ok[nameOf(a)] {
			failedKinds = append(failedKinds, kind)
		}
	}
	s.rates.Retain(func(src string) bool {
		if _, hit := seen[src]; hit {
			return true
		}
		return lo.SomeBy(failedKinds, func(k string) bool { return strings.HasPrefix(src, k) })
	})
	return snap, nil
}

// collect reads one adapter on g. dst is written by g's goroutine only after
// the bounded call returned, so an abandoned read can never race the tick.
func collect[T any](ctx context.Context, s *Sampler, g *errgroup.Group, a source.Adapter, read func(context.Context) (T, error), dst *T, o *outcome) {
	if !s.supported[a.Name()] {
		return
	}
	g.Go(func() error {
		v, err := source.Bounded(ctx, s.timeout, read)
		if err == nil {
			*dst = v
		}
		*o = outcome{name: a.Name(), err: err, ran: true}
		return nil
	})
}

func nameOf(a source.Adapter) string {
	if lo.IsNil(a) {
		return ""
	}
	return a.Name()
}

func (s *Sampler) markLost(name string) {
	for _, a := range s.adapters() {
		if a.Name() == name {
			s.supported[name] = false
			s.lost[name] = a
			s.logger.Warn("adapter became unsupported", zap.String("adapter", name))
		}
	}
}

func (s *Sampler) recheck(ctx context.Context) {
	for name, a := range s.lost {
		ok, _ := source.Bounded(ctx, s.timeout, func(ctx context.Context) (bool, error) {
			return a.Supported(ctx), nil
		})
		if ok {
			s.supported[name] = true
			delete(s.lost, name)
			s.logger.Info("adapter recovered", zap.String("adapter", name))
		}
	}
}
