package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/rate"
)

var skippedDiskPrefixes = []string{"loop", "ram", "zram", "fd"}

// HostDisks reads block-device I/O counters through gopsutil. Devices are
// enumerated on every read.
type HostDisks struct {
	// SysBlock lists whole disks on Linux; partitions are dropped when it exists.
	SysBlock string
}

func NewHostDisks() *HostDisks { return &HostDisks{SysBlock: "/sys/block"} }

func (d *HostDisks) Name() string { return "disk" }

func (d *HostDisks) Supported(ctx context.Context) bool {
	_, err := disk.IOCountersWithContext(ctx)
	return err == nil
}

func (d *HostDisks) SampleDisks(ctx context.Context) ([]DiskReading, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]DiskReading, 0, len(counters))
	for name, st := range counters {
		if !d.keep(name) {
			continue
		}
		r := d.describe(name)
		r.Serial = st.SerialNumber
		r.Counters = rate.Sample{
			Source: "disk/" + name,
			At:     now,
			Counters: map[string]uint64{
				CounterReadBytes:  st.ReadBytes,
				CounterWriteBytes: st.WriteBytes,
				CounterReadOps:    st.ReadCount,
				CounterWriteOps:   st.WriteCount,
				CounterIOTime:     st.IoTime,
				CounterReadTime:   st.ReadTime,
				CounterWriteTime:  st.WriteTime,
			},
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// describe reads the device model, size and kind from sysfs. Anything it
// cannot read stays empty.
func (d *HostDisks) describe(name string) DiskReading {
	r := DiskReading{Name: name, Kind: model.DiskUnknown}
	if d.SysBlock == "" {
		return r
	}
	dir := filepath.Join(d.SysBlock, name)
	r.Model = readTrimmed(filepath.Join(dir, "device", "model"))
	if sectors, err := strconv.ParseUint(readTrimmed(filepath.Join(dir, "size")), 10, 64); err == nil && sectors > 0 {
		r.CapacityBytes = model.Uint(sectors * sectorSize)
	}
	r.Kind = diskKind(name, readTrimmed(filepath.Join(dir, "queue", "rotational")))
	return r
}

// sysfs reports sizes in 512-byte sectors whatever the device's block size.
const sectorSize = 512

func diskKind(name, rotational string) model.DiskKind {
	switch rotational {
	case "0":
		switch {
		case strings.HasPrefix(name, "nvme"):
			return model.DiskNVMe
		case strings.HasPrefix(name, "mmcblk"):
			return model.DiskEMMC
		default:
			return model.DiskSSD
		}
	case "1":
		if strings.HasPrefix(name, "sr") {
			return model.DiskOptical
		}
		return model.DiskHDD
	default:
		return model.DiskUnknown
	}
}

func (d *HostDisks) keep(name string) bool {
	for _, p := range skippedDiskPrefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	if d.SysBlock == "" {
		return true
	}
	if _, err := os.Stat(d.SysBlock); err != nil {
		return true
	}
	_, err := os.Stat(filepath.Join(d.SysBlock, name))
	return err == nil
}
