package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// GPU backend names accepted by Detect.
const (
	GPUAuto   = "auto"
	GPUNvidia = "nvidia"
	GPUAMD    = "amd"
	GPUNone   = "none"
)

// Options select and tune the host adapters.
type Options struct {
	GPUBackend      string
	IncludeLoopback bool
	ProbeTimeout    time.Duration
}

// NoGPU is the backend for hosts without a readable GPU.
type NoGPU struct{}

func (NoGPU) Name() string                                    { return "gpu" }
func (NoGPU) Supported(context.Context) bool                  { return false }
func (NoGPU) SampleGPUs(context.Context) ([]model.GPU, error) { return nil, ErrUnsupported }

// Detect builds the adapter set for this host once, at startup.
func Detect(ctx context.Context, opts Options, logger *zap.Logger) (Set, error) {
	gpu, err := detectGPU(ctx, opts, logger)
	if err != nil {
		return Set{}, err
	}
	return Set{
		CPU:       NewHostCPU(),
		Memory:    HostMemory{},
		Disks:     NewHostDisks(),
		Networks:  &HostNetworks{IncludeLoopback: opts.IncludeLoopback},
		GPUs:      gpu,
		Fans:      NewHostFans(),
		Processes: HostProcesses{},
	}, nil
}

func detectGPU(ctx context.Context, opts Options, logger *zap.Logger) (GPUSource, error) {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	probe := func(g GPUSource) bool {
		ok, _ := Bounded(ctx, timeout, func(ctx context.Context) (bool, error) {
			return g.Supported(ctx), nil
		})
		return ok
	}

	switch opts.GPUBackend {
	case GPUNone:
		return NoGPU{}, nil
	case GPUNvidia:
		return NewNvidiaSMI(), nil
	case GPUAMD:
		return NewAMDSysfs(), nil
	case "", GPUAuto:
		for _, g := range []GPUSource{NewNvidiaSMI(), NewAMDSysfs()} {
			if probe(g) {
				logger.Info("gpu backend selected", zap.String("backend", g.Name()))
				return g, nil
			}
		}
		logger.Info("no gpu backend available")
		return NoGPU{}, nil
	default:
		return nil, fmt.Errorf("unknown gpu backend %q", opts.GPUBackend)
	}
}
