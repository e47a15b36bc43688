//go:build !windows

package procctl

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// terminate sends SIGTERM so the target can exit cleanly.
func terminate(ctx context.Context, p *process.Process) error {
	return p.TerminateWithContext(ctx)
}
