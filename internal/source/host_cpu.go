package source

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
)

// HostCPU reads CPU time accounting through gopsutil.
type HostCPU struct {
	mu       sync.Mutex
	logical  int
	physical int
	known    bool
}

func NewHostCPU() *HostCPU { return &HostCPU{} }

func (c *HostCPU) Name() string { return "cpu" }

func (c *HostCPU) Supported(ctx context.Context) bool {
	times, err := cpu.TimesWithContext(ctx, false)
	return err == nil && len(times) > 0
}

func (c *HostCPU) InvalidateTopology() {
	c.mu.Lock()
	c.known = false
	c.mu.Unlock()
}

func (c *HostCPU) topology(ctx context.Context) (logical, physical int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known {
		c.logical, _ = cpu.CountsWithContext(ctx, true)
		c.physical, _ = cpu.CountsWithContext(ctx, false)
		c.known = c.logical > 0
	}
	return c.logical, c.physical
}

func (c *HostCPU) SampleCPU(ctx context.Context) (CPUReading, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUReading{}, err
	}
	if len(times) == 0 {
		return CPUReading{}, ErrUnsupported
	}
	now := time.Now()
	r := CPUReading{Aggregate: cpuSample("cpu", times[0], now)}
	r.LogicalCores, r.Physical = c.topology(ctx)

	// Per-core, frequency, temperature and load are best effort.
	if cores, err := cpu.TimesWithContext(ctx, true); err == nil {
		r.PerCore = make([]rate.Sample, 0, len(cores))
		for _, ct := range cores {
			r.PerCore = append(r.PerCore, cpuSample("cpu/"+ct.CPU, ct, now))
		}
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		var best float64
		for _, in := range infos {
			best = math.Max(best, in.Mhz)
			if r.ModelName == "" {
				r.ModelName = strings.TrimSpace(in.ModelName)
			}
		}
		if best > 0 {
			r.FrequencyMHz = model.Float(best)
		}
	}
	if temps, _ := host.SensorsTemperaturesWithContext(ctx); len(temps) > 0 {
		r.TemperatureC = cpuTemperature(temps)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		r.Load = &model.LoadAvg{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}
	return r, nil
}

// cpuSample converts seconds to centiseconds so the rate engine works on
// integral tick counters. gopsutil reports ticks/100 as floats; each field is
// rounded on its own so busy never drops while only idle time grows. Guest
// time is already inside user time on Linux.
func cpuSample(src string, t cpu.TimesStat, at time.Time) rate.Sample {
	idle := centis(t.Idle) + centis(t.Iowait)
	total := centis(t.User) + centis(t.System) + centis(t.Nice) + centis(t.Irq) +
		centis(t.Softirq) + centis(t.Steal) + idle
	return rate.Sample{
		Source: src,
		At:     at,
		Counters: map[string]uint64{
			CounterBusy:  total - idle,
			CounterTotal: total,
		},
	}
}

// centis rounds a seconds value to whole centiseconds. Negative readings,
// seen on some virtualized hosts, count as zero.
func centis(sec float64) uint64 {
	if sec <= 0 {
		return 0
	}
	return uint64(math.Round(sec * 100))
}

// Package sensors in preference order; the first match wins.
var cpuSensorPrefixes = []string{
	"coretemp_package",
	"k10temp_tctl",
	"k10temp_tdie",
	"zenpower_tdie",
	"cpu_thermal",
	"coretemp_core",
	"acpitz",
}

func cpuTemperature(temps []host.TemperatureStat) *float64 {
	for _, prefix := range cpuSensorPrefixes {
		for _, t := range temps {
			if strings.HasPrefix(strings.ToLower(t.SensorKey), prefix) && t.Temperature > 0 {
				return model.Float(t.Temperature)
			}
		}
	}
	return nil
}
