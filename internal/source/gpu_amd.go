package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

// AMDSysfs reads amdgpu counters from the DRM sysfs tree.
type AMDSysfs struct {
	Root string // normally /sys/class/drm
}

func NewAMDSysfs() *AMDSysfs { return &AMDSysfs{Root: "/sys/class/drm"} }

func (a *AMDSysfs) Name() string { return "gpu/amd" }

func (a *AMDSysfs) Supported(context.Context) bool { return len(a.devices()) > 0 }

func (a *AMDSysfs) devices() []string {
	matches, _ := filepath.Glob(filepath.Join(a.Root, "card[0-9]*", "device", "gpu_busy_percent"))
	devs := make([]string, 0, len(matches))
	for _, m := range matches {
		devs = append(devs, filepath.Dir(m))
	}
	sort.Strings(devs)
	return devs
}

func (a *AMDSysfs) SampleGPUs(ctx context.Context) ([]model.GPU, error) {
	devs := a.devices()
	if len(devs) == 0 {
		return nil, ErrUnsupported
	}
	gpus := make([]model.GPU, 0, len(devs))
	for _, dev := range devs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := model.GPU{
			ID:     pciSlot(dev),
			Name:   readTrimmed(filepath.Join(dev, "product_name")),
			Vendor: "AMD",
			Util:   readFloat(filepath.Join(dev, "gpu_busy_percent"), 1),
		}
		if g.Name == "" {
			g.Name = "AMD GPU"
		}
		if v := readFloat(filepath.Join(dev, "mem_info_vram_used"), 1); v != nil {
			g.MemUsedBytes = model.Uint(uint64(*v))
		}
		if v := readFloat(filepath.Join(dev, "mem_info_vram_total"), 1); v != nil {
			g.MemTotalBytes = model.Uint(uint64(*v))
		}
		if hw := firstGlob(filepath.Join(dev, "hwmon", "hwmon*")); hw != "" {
			g.TempC = readFloat(filepath.Join(hw, "temp1_input"), 1000)
			g.PowerW = readFloat(filepath.Join(hw, "power1_average"), 1e6)
			if g.PowerW == nil {
				g.PowerW = readFloat(filepath.Join(hw, "power1_input"), 1e6)
			}
			g.ClockMHz = readFloat(filepath.Join(hw, "freq1_input"), 1e6)
		}
		gpus = append(gpus, g)
	}
	return gpus, nil
}

// pciSlot is stable across reboots and hot-plug, unlike the card index.
func pciSlot(dev string) string {
	b, err := os.ReadFile(filepath.Join(dev, "uevent"))
	if err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			if v, ok := strings.CutPrefix(line, "PCI_SLOT_NAME="); ok {
				return strings.TrimSpace(v)
			}
		}
	}
	return filepath.Base(filepath.Dir(dev))
}

func firstGlob(pattern string) string {
	m, _ := filepath.Glob(pattern)
	if len(m) == 0 {
		return ""
	}
	sort.Strings(m)
	return m[0]
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// readFloat parses a sysfs integer file and divides it by scale.
func readFloat(path string, scale float64) *float64 {
	s := readTrimmed(path)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v /= scale
	return &v
}
