package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
)

// HostProcesses walks the process table through gopsutil.
type HostProcesses struct{}

func (HostProcesses) Name() string { return "processes" }

func (HostProcesses) Supported(ctx context.Context) bool {
	_, err := process.PidsWithContext(ctx)
	return err == nil
}

func (HostProcesses) SampleProcesses(ctx context.Context) ([]ProcessReading, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return readUntil(ctx, procs, readProcess), nil
}

// readUntil reads items in order and stops early once three quarters of the
// time left on ctx is spent, returning what it has. Large process tables then
// come back partial instead of missing the adapter deadline as a whole.
func readUntil[T, R any](ctx context.Context, items []T, read func(context.Context, T) (R, bool)) []R {
	var stop time.Time
	if deadline, ok := ctx.Deadline(); ok {
		stop = time.Now().Add(time.Until(deadline) * 3 / 4)
	}
	out := make([]R, 0, len(items))
	for _, it := range items {
		if ctx.Err() != nil || (!stop.IsZero() && time.Now().After(stop)) {
			break
		}
		if r, ok := read(ctx, it); ok {
			out = append(out, r)
		}
	}
	return out
}

// readProcess reports false when the process exited mid-read or is a kernel
// thread without a name. Any other field that fails to read is left absent.
func readProcess(ctx context.Context, p *process.Process) (ProcessReading, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil || name == "" {
		return ProcessReading{}, false
	}
	r := ProcessReading{Process: model.Process{PID: p.Pid, Name: name}}
	r.PPID, _ = p.PpidWithContext(ctx)
	r.Cmdline, _ = p.CmdlineWithContext(ctx)
	r.Exe, _ = p.ExeWithContext(ctx)
	r.User, _ = p.UsernameWithContext(ctx)

	status, err := p.StatusWithContext(ctx)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return ProcessReading{}, false
	}
	r.Status = StatusOf(status)

	var createMs int64
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		createMs = ms
		r.CreateTime = time.UnixMilli(ms)
	}
	if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
		r.RSSBytes = model.Uint(mi.RSS)
	}
	if fds, err := p.NumFDsWithContext(ctx); err == nil {
		r.FDCount = &fds
	}
	counters := make(map[string]uint64, 3)
	if t, err := p.TimesWithContext(ctx); err == nil && t != nil {
		counters[CounterCPUTime] = centis(t.User) + centis(t.System)
	}
	if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
		counters[CounterReadBytes] = io.ReadBytes
		counters[CounterWriteBytes] = io.WriteBytes
	}
	if len(counters) > 0 {
		r.Counters = rate.Sample{
			// The creation time keeps a recycled pid from pairing with its predecessor.
			Source:   fmt.Sprintf("proc/%d/%d", p.Pid, createMs),
			At:       time.Now(),
			Counters: counters,
		}
	}
	return r, true
}

// StatusOf folds gopsutil's status letters into the five states we report.
func StatusOf(status []string) model.ProcessStatus {
	if len(status) == 0 {
		return model.StatusUnknown
	}
	switch status[0] {
	case process.Running:
		return model.StatusRunning
	case process.Sleep, process.Idle, process.Wait, process.Lock, process.Blocked:
		return model.StatusSleeping
	case process.Stop:
		return model.StatusStopped
	case process.Zombie:
		return model.StatusZombie
	default:
		return model.StatusUnknown
	}
}
