package source

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// HostFans reads fan channels from the hwmon sysfs tree. Hosts without it
// (or without fans) report unsupported.
type HostFans struct {
	Root string // normally /sys/class/hwmon
}

func NewHostFans() *HostFans { return &HostFans{Root: "/sys/class/hwmon"} }

func (f *HostFans) Name() string { return "fans" }

func (f *HostFans) Supported(context.Context) bool { return len(f.inputs()) > 0 }

func (f *HostFans) inputs() []string {
	m, _ := filepath.Glob(filepath.Join(f.Root, "hwmon[0-9]*", "fan[0-9]*_input"))
	return m
}

func (f *HostFans) SampleFans(ctx context.Context) ([]model.Fan, error) {
	inputs := f.inputs()
	if len(inputs) == 0 {
		return nil, ErrUnsupported
	}
	fans := make([]model.Fan, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Dir(in)
		idx := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(in), "fan"), "_input")
		if _, err := strconv.Atoi(idx); err != nil {
			continue
		}
		fan := model.Fan{
			ID:      filepath.Base(dir) + "/fan" + idx,
			Label:   readTrimmed(filepath.Join(dir, "fan"+idx+"_label")),
			RPM:     readUint(in),
			Percent: readFloat(filepath.Join(dir, "pwm"+idx), 2.55),
			TempC:   readFloat(filepath.Join(dir, "temp"+idx+"_input"), 1000),
		}
		if top := readUint(filepath.Join(dir, "fan"+idx+"_max")); top != nil && *top > 0 {
			fan.MaxRPM = top
		}
		if fan.Label == "" {
			fan.Label = strings.TrimSpace(readTrimmed(filepath.Join(dir, "name")) + " fan" + idx)
		}
		fans = append(fans, fan)
	}
	sort.Slice(fans, func(i, j int) bool { return fans[i].ID < fans[j].ID })
	return fans, nil
}

func readUint(path string) *uint64 {
	v, err := strconv.ParseUint(readTrimmed(path), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
