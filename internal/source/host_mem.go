package source

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// HostMemory reads memory accounting through gopsutil.
type HostMemory struct{}

func (HostMemory) Name() string { return "memory" }

func (HostMemory) Supported(ctx context.Context) bool {
	_, err := mem.VirtualMemoryWithContext(ctx)
	return err == nil
}

func (HostMemory) SampleMemory(ctx context.Context) (model.Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return model.Memory{}, err
	}
	m := model.Memory{
		UsedBytes:      model.Uint(vm.Used),
		TotalBytes:     model.Uint(vm.Total),
		AvailableBytes: model.Uint(vm.Available),
		Cached:         model.Uint(vm.Cached),
		Buffers:        model.Uint(vm.Buffers),
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		m.SwapUsed = model.Uint(sw.Used)
		m.SwapTotal = model.Uint(sw.Total)
	}
	return m, nil
}
