// Package source reads raw OS counters and gauges, one adapter per resource kind.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
)

var (
	// ErrUnsupported means the platform lacks the capability. It is permanent.
	ErrUnsupported = errors.New("resource unsupported")
	// ErrTransient means this read failed; the next tick may succeed.
	ErrTransient = errors.New("resource read failed")
)

// Counter names shared between adapters and the assembler.
const (
	CounterBusy       = "busy_cs"
	CounterTotal      = "total_cs"
	CounterReadBytes  = "read_bytes"
	CounterWriteBytes = "write_bytes"
	CounterReadOps    = "read_ops"
	CounterWriteOps   = "write_ops"
	CounterIOTime     = "io_time_ms"
	CounterReadTime   = "read_time_ms"
	CounterWriteTime  = "write_time_ms"
	CounterRxBytes    = "rx_bytes"
	CounterTxBytes    = "tx_bytes"
	CounterRxPackets  = "rx_packets"
	CounterTxPackets  = "tx_packets"
	CounterCPUTime    = "cpu_cs"
)

// Adapter is the part of the contract every resource kind shares.
type Adapter interface {
	Name() string
	// Supported is checked once at startup; the answer is cached by the caller.
	Supported(ctx context.Context) bool
}

// CPUReading is one read of CPU accounting.
type CPUReading struct {
	Aggregate    rate.Sample
	PerCore      []rate.Sample // Source is "cpu/<core name>"
	LogicalCores int
	Physical     int
	ModelName    string
	FrequencyMHz *float64
	TemperatureC *float64
	Load         *model.LoadAvg
}

// DiskReading is one block device's cumulative I/O counters plus what sysfs
// says about the device itself.
type DiskReading struct {
	Name          string
	Serial        string
	Model         string
	Kind          model.DiskKind
	CapacityBytes *uint64
	Counters      rate.Sample
}

// NetReading is one interface's cumulative traffic counters.
type NetReading struct {
	Name     string
	Kind     model.NetKind
	Counters rate.Sample
}

// ProcessReading is one process table entry. CPU and the I/O rates are left
// nil; the assembler derives them from Counters (cpu_cs, read_bytes,
// write_bytes), whichever could be read.
type ProcessReading struct {
	model.Process
	Counters rate.Sample
}

type CPUSource interface {
	Adapter
	SampleCPU(ctx context.Context) (CPUReading, error)
	// InvalidateTopology drops the cached core counts so the next read queries them.
	InvalidateTopology()
}

type MemorySource interface {
	Adapter
	SampleMemory(ctx context.Context) (model.Memory, error)
}

type DiskSource interface {
	Adapter
	SampleDisks(ctx context.Context) ([]DiskReading, error)
}

type NetSource interface {
	Adapter
	SampleNetworks(ctx context.Context) ([]NetReading, error)
}

type GPUSource interface {
	Adapter
	SampleGPUs(ctx context.Context) ([]model.GPU, error)
}

type FanSource interface {
	Adapter
	SampleFans(ctx context.Context) ([]model.Fan, error)
}

type ProcessSource interface {
	Adapter
	SampleProcesses(ctx context.Context) ([]ProcessReading, error)
}

// Set is the adapters selected for this host. A nil member is unsupported.
type Set struct {
	CPU       CPUSource
	Memory    MemorySource
	Disks     DiskSource
	Networks  NetSource
	GPUs      GPUSource
	Fans      FanSource
	Processes ProcessSource
}

// Bounded runs fn with a deadline. A call that outlives it yields ErrTransient
// and its goroutine is abandoned; the result is dropped when it finally returns.
func Bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, classify(r.err)
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnsupported) || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
