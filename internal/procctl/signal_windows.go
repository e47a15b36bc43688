//go:build windows

package procctl

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// Windows has no graceful stop request for arbitrary processes; gopsutil's
// Terminate there is a hard kill.
func terminate(context.Context, *process.Process) error {
	return ErrUnsupported
}
