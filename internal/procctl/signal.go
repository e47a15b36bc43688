package procctl

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// HostSignaler acts on real processes through gopsutil.
type HostSignaler struct{}

func (HostSignaler) Terminate(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return terminate(ctx, p)
}

func (HostSignaler) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

func (HostSignaler) CreateTime(ctx context.Context, pid int32) (time.Time, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
