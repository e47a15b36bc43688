package sampler

import (
	"strings"
	"time"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
	"github.com/Dicklesworthstone/sysmoni/internal/source"
)

type observeFunc func(rate.Sample) (rate.Interval, bool)

// CPU percentages from the busy/total tick deltas. The returned duration is
// the interval the aggregate was computed over.
func buildCPU(r source.CPUReading, observe observeFunc) (model.CPU, time.Duration) {
	out := model.CPU{
		ModelName:    r.ModelName,
		LogicalCores: r.LogicalCores,
		Physical:     r.Physical,
		FrequencyMHz: r.FrequencyMHz,
		TemperatureC: r.TemperatureC,
		Load:         r.Load,
	}
	var elapsed time.Duration
	if iv, ok := observe(r.Aggregate); ok {
		elapsed = iv.Elapsed
		if pct, ok := iv.Utilization(source.CounterBusy, source.CounterTotal); ok {
			out.Total = model.Float(pct)
		}
	}
	out.PerCore = make([]model.Core, 0, len(r.PerCore))
	for _, c := range r.PerCore {
		core := model.Core{Name: strings.TrimPrefix(c.Source, "cpu/")}
		if iv, ok := observe(c); ok {
			if pct, ok := iv.Utilization(source.CounterBusy, source.CounterTotal); ok {
				core.Percent = model.Float(pct)
			}
		}
		out.PerCore = append(out.PerCore, core)
	}
	return out, elapsed
}

func buildDisks(rs []source.DiskReading, observe observeFunc) []model.Disk {
	out := make([]model.Disk, 0, len(rs))
	for _, r := range rs {
		d := model.Disk{Name: r.Name, Serial: r.Serial, Model: r.Model, Kind: r.Kind, CapacityBytes: r.CapacityBytes}
		if iv, ok := observe(r.Counters); ok {
			d.ReadBytesPS = optRate(iv, source.CounterReadBytes)
			d.WriteBytesPS = optRate(iv, source.CounterWriteBytes)
			d.ReadOpsPS = optRate(iv, source.CounterReadOps)
			d.WriteOpsPS = optRate(iv, source.CounterWriteOps)
			// io_time is milliseconds busy per second of wall time.
			if ms, ok := iv.Rate(source.CounterIOTime); ok {
				d.BusyPercent = model.Float(rate.Clamp(ms / 10))
			}
			d.ResponseMs = responseMs(iv)
		}
		out = append(out, d)
	}
	return out
}

// responseMs is the time spent on requests completed in the interval divided
// by their number.
func responseMs(iv rate.Interval) *float64 {
	spent, ok := iv.Sum(source.CounterReadTime, source.CounterWriteTime)
	if !ok {
		return nil
	}
	ops, ok := iv.Sum(source.CounterReadOps, source.CounterWriteOps)
	if !ok {
		return nil
	}
	if ops == 0 {
		return model.Float(0)
	}
	return model.Float(float64(spent) / float64(ops))
}

func buildNetworks(rs []source.NetReading, observe observeFunc) []model.Network {
	out := make([]model.Network, 0, len(rs))
	for _, r := range rs {
		n := model.Network{Name: r.Name, Kind: r.Kind}
		if iv, ok := observe(r.Counters); ok {
			n.RxBytesPS = optRate(iv, source.CounterRxBytes)
			n.TxBytesPS = optRate(iv, source.CounterTxBytes)
			n.RxPacketPS = optRate(iv, source.CounterRxPackets)
			n.TxPacketPS = optRate(iv, source.CounterTxPackets)
		}
		out = append(out, n)
	}
	return out
}

// Per-process CPU is centiseconds of CPU time per second, i.e. percent of one
// core; it can exceed 100 for multi-threaded processes.
func buildProcesses(rs []source.ProcessReading, observe observeFunc) []model.Process {
	out := make([]model.Process, 0, len(rs))
	for _, r := range rs {
		p := r.Process
		p.CPU, p.ReadBytesPS, p.WriteBytesPS = nil, nil, nil
		if iv, ok := observe(r.Counters); ok {
			p.CPU = optRate(iv, source.CounterCPUTime)
			p.ReadBytesPS = optRate(iv, source.CounterReadBytes)
			p.WriteBytesPS = optRate(iv, source.CounterWriteBytes)
		}
		out = append(out, p)
	}
	return out
}

func optRate(iv rate.Interval, name string) *float64 {
	v, ok := iv.Rate(name)
	if !ok {
		return nil
	}
	return model.Float(v)
}
