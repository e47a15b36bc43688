package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Dicklesworthstone/sysmoni/internal/model"
)

func TestBoundedReturnsResult(t *testing.T) {
	v, err := Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestBoundedTimesOutAsTransient(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Bounded(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrTransient)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBoundedClassifiesErrors(t *testing.T) {
	_, err := Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, errors.New("permission denied")
	})
	assert.ErrorIs(t, err, ErrTransient)

	_, err = Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, ErrUnsupported
	})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestParseNvidiaCSV(t *testing.T) {
	out := "0, GPU-1234, NVIDIA GeForce RTX 3080, 45, 2048, 10240, 61, 1710, 220.50, 38\n" +
		"1, [N/A], Tesla T4, 0, 0, 15360, [N/A], [Not Supported], [N/A], [N/A]\n" +
		"garbage line\n"
	gpus := parseNvidiaCSV(out)
	require.Len(t, gpus, 2)

	g := gpus[0]
	assert.Equal(t, "GPU-1234", g.ID)
	assert.Equal(t, "NVIDIA GeForce RTX 3080", g.Name)
	assert.Equal(t, 45.0, *g.Util)
	assert.Equal(t, uint64(2048*mib), *g.MemUsedBytes)
	assert.Equal(t, uint64(10240*mib), *g.MemTotalBytes)
	assert.Equal(t, 61.0, *g.TempC)
	assert.Equal(t, 220.5, *g.PowerW)

	t4 := gpus[1]
	assert.Equal(t, "nvidia1", t4.ID)
	assert.Nil(t, t4.TempC)
	assert.Nil(t, t4.ClockMHz)
	assert.Nil(t, t4.FanPercent)
	assert.NotNil(t, t4.Util)
}

func TestNvidiaSMIRunnerFailure(t *testing.T) {
	n := &NvidiaSMI{Binary: "nvidia-smi", Run: func(context.Context, string, ...string) (string, error) {
		return "", errors.New("NVML: driver not loaded")
	}}
	_, err := n.SampleGPUs(context.Background())
	assert.Error(t, err)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAMDSysfs(t *testing.T) {
	root := t.TempDir()
	dev := filepath.Join(root, "card1", "device")
	writeFile(t, filepath.Join(dev, "gpu_busy_percent"), "37\n")
	writeFile(t, filepath.Join(dev, "mem_info_vram_used"), "1073741824\n")
	writeFile(t, filepath.Join(dev, "mem_info_vram_total"), "8589934592\n")
	writeFile(t, filepath.Join(dev, "uevent"), "DRIVER=amdgpu\nPCI_SLOT_NAME=0000:03:00.0\n")
	writeFile(t, filepath.Join(dev, "hwmon", "hwmon4", "temp1_input"), "52000\n")
	writeFile(t, filepath.Join(dev, "hwmon", "hwmon4", "power1_average"), "35000000\n")
	writeFile(t, filepath.Join(root, "card1-DP-1", "status"), "connected\n")

	a := &AMDSysfs{Root: root}
	require.True(t, a.Supported(context.Background()))

	gpus, err := a.SampleGPUs(context.Background())
	require.NoError(t, err)
	require.Len(t, gpus, 1)
	g := gpus[0]
	assert.Equal(t, "0000:03:00.0", g.ID)
	assert.Equal(t, "AMD GPU", g.Name)
	assert.Equal(t, 37.0, *g.Util)
	assert.Equal(t, uint64(1<<30), *g.MemUsedBytes)
	assert.Equal(t, uint64(8<<30), *g.MemTotalBytes)
	assert.InDelta(t, 52.0, *g.TempC, 1e-9)
	assert.InDelta(t, 35.0, *g.PowerW, 1e-9)
	assert.Nil(t, g.ClockMHz)
}

func TestAMDSysfsMissing(t *testing.T) {
	a := &AMDSysfs{Root: t.TempDir()}
	assert.False(t, a.Supported(context.Background()))
	_, err := a.SampleGPUs(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestClassifyInterface(t *testing.T) {
	cases := map[string]model.NetKind{
		"lo":             model.NetLoopback,
		"lo0":            model.NetLoopback,
		"eth0":           model.NetWired,
		"enp3s0":         model.NetWired,
		"wlp2s0":         model.NetWireless,
		"wlan0":          model.NetWireless,
		"docker0":        model.NetDocker,
		"br-5f2a":        model.NetDocker,
		"br0":            model.NetBridge,
		"virbr0":         model.NetVirtual,
		"veth12ab":       model.NetVirtual,
		"wg0":            model.NetVPN,
		"tun0":           model.NetVPN,
		"wwan0":          model.NetWWAN,
		"ib0":            model.NetInfiniBand,
		"bnep0":          model.NetBluetooth,
		"something-else": model.NetOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, ClassifyInterface(name), name)
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, model.StatusRunning, StatusOf([]string{"running"}))
	assert.Equal(t, model.StatusSleeping, StatusOf([]string{"sleep"}))
	assert.Equal(t, model.StatusSleeping, StatusOf([]string{"idle"}))
	assert.Equal(t, model.StatusStopped, StatusOf([]string{"stop"}))
	assert.Equal(t, model.StatusZombie, StatusOf([]string{"zombie"}))
	assert.Equal(t, model.StatusUnknown, StatusOf([]string{"orphan"}))
	assert.Equal(t, model.StatusUnknown, StatusOf(nil))
}

func TestCPUSampleCentiseconds(t *testing.T) {
	cases := []struct {
		desc  string
		times cpu.TimesStat
		busy  uint64
		total uint64
	}{
		{
			desc:  "whole seconds",
			times: cpu.TimesStat{User: 10, System: 4, Idle: 5, Iowait: 1},
			busy:  1400,
			total: 2000,
		},
		{
			desc:  "fractional ticks round instead of truncating",
			times: cpu.TimesStat{User: 0.29, Idle: 0.07},
			busy:  29,
			total: 36,
		},
		{
			desc:  "large counters",
			times: cpu.TimesStat{User: float64(4231874) / 100, System: float64(1000000) / 100, Idle: float64(987654321) / 100, Steal: 0.03},
			busy:  5231877,
			total: 992886198,
		},
		{
			desc:  "negative readings count as zero",
			times: cpu.TimesStat{User: 1, Steal: -0.5, Idle: 1},
			busy:  100,
			total: 200,
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			s := cpuSample("cpu", tc.times, time.Now())
			assert.Equal(t, tc.busy, s.Counters[CounterBusy])
			assert.Equal(t, tc.total, s.Counters[CounterTotal])
		})
	}
}

func TestCPUSampleBusyStableWhileIdleGrows(t *testing.T) {
	// gopsutil hands out kernel ticks divided by 100.
	secs := func(ticks uint64) float64 { return float64(ticks) / 100 }
	user, system, nice, irq := uint64(5231874), uint64(1733421), uint64(9137), uint64(22219)

	var prev uint64
	for i := uint64(0); i < 5000; i++ {
		idle := 987654321 + i*37
		s := cpuSample("cpu/cpu3", cpu.TimesStat{
			User: secs(user), System: secs(system), Nice: secs(nice), Irq: secs(irq),
			Idle: secs(idle), Iowait: secs(1234 + i),
		}, time.Now())
		busy := s.Counters[CounterBusy]
		require.Equal(t, user+system+nice+irq, busy, "idle-only growth at step %d", i)
		if i > 0 {
			require.GreaterOrEqual(t, busy, prev)
		}
		prev = busy
	}
}

func TestReadUntilReturnsPartialTable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	start := time.Now()
	got := readUntil(ctx, items, func(_ context.Context, i int) (int, bool) {
		time.Sleep(5 * time.Millisecond)
		return i, i%2 == 0
	})
	assert.Less(t, time.Since(start), 80*time.Millisecond, "stops before the deadline")
	require.NotEmpty(t, got)
	assert.Less(t, len(got), len(items)/2)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, 2, got[1], "skipped rows are dropped")
}

func TestReadUntilWithoutDeadlineReadsAll(t *testing.T) {
	got := readUntil(context.Background(), []string{"a", "", "c"}, func(_ context.Context, s string) (string, bool) {
		return s, s != ""
	})
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestCPUTemperaturePreference(t *testing.T) {
	temps := []host.TemperatureStat{
		{SensorKey: "acpitz", Temperature: 30},
		{SensorKey: "coretemp_core_0", Temperature: 48},
		{SensorKey: "coretemp_package_id_0", Temperature: 55},
	}
	got := cpuTemperature(temps)
	require.NotNil(t, got)
	assert.Equal(t, 55.0, *got)

	assert.Nil(t, cpuTemperature([]host.TemperatureStat{{SensorKey: "nvme_composite", Temperature: 40}}))
}

func TestDiskFilter(t *testing.T) {
	sysBlock := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(sysBlock, "sda"), 0o755))
	d := &HostDisks{SysBlock: sysBlock}

	assert.True(t, d.keep("sda"))
	assert.False(t, d.keep("sda1"), "partitions are not whole disks")
	assert.False(t, d.keep("loop0"))

	d.SysBlock = filepath.Join(sysBlock, "absent")
	assert.True(t, d.keep("disk0"), "no sysfs means no partition filter")
	assert.False(t, d.keep("ram0"))
}

func TestDetectGPUBackends(t *testing.T) {
	logger := zap.NewNop()

	set, err := Detect(context.Background(), Options{GPUBackend: GPUNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, NoGPU{}, set.GPUs)
	assert.False(t, set.GPUs.Supported(context.Background()))

	set, err = Detect(context.Background(), Options{GPUBackend: GPUAMD}, logger)
	require.NoError(t, err)
	assert.Equal(t, "gpu/amd", set.GPUs.Name())

	_, err = Detect(context.Background(), Options{GPUBackend: "voodoo"}, logger)
	assert.Error(t, err)
}

func TestDiskDescribe(t *testing.T) {
	sysBlock := t.TempDir()
	writeFile(t, filepath.Join(sysBlock, "nvme0n1", "size"), "1953525168\n")
	writeFile(t, filepath.Join(sysBlock, "nvme0n1", "device", "model"), "Samsung SSD 980 PRO 1TB   \n")
	writeFile(t, filepath.Join(sysBlock, "nvme0n1", "queue", "rotational"), "0\n")
	require.NoError(t, os.MkdirAll(filepath.Join(sysBlock, "sdb"), 0o755))

	d := &HostDisks{SysBlock: sysBlock}
	r := d.describe("nvme0n1")
	assert.Equal(t, "Samsung SSD 980 PRO 1TB", r.Model)
	assert.Equal(t, model.DiskNVMe, r.Kind)
	require.NotNil(t, r.CapacityBytes)
	assert.Equal(t, uint64(1953525168*512), *r.CapacityBytes)

	bare := d.describe("sdb")
	assert.Empty(t, bare.Model)
	assert.Nil(t, bare.CapacityBytes)
	assert.Equal(t, model.DiskUnknown, bare.Kind)
}

func TestDiskKind(t *testing.T) {
	cases := []struct {
		name       string
		rotational string
		want       model.DiskKind
	}{
		{"nvme0n1", "0", model.DiskNVMe},
		{"mmcblk0", "0", model.DiskEMMC},
		{"sda", "0", model.DiskSSD},
		{"sda", "1", model.DiskHDD},
		{"sr0", "1", model.DiskOptical},
		{"sda", "", model.DiskUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, diskKind(tc.name, tc.rotational), "%s rotational=%q", tc.name, tc.rotational)
	}
}

func TestHostFans(t *testing.T) {
	root := t.TempDir()
	hw := filepath.Join(root, "hwmon2")
	writeFile(t, filepath.Join(hw, "name"), "nct6775\n")
	writeFile(t, filepath.Join(hw, "fan1_input"), "1200\n")
	writeFile(t, filepath.Join(hw, "fan1_max"), "0\n")
	writeFile(t, filepath.Join(hw, "pwm1"), "255\n")
	writeFile(t, filepath.Join(hw, "temp1_input"), "45000\n")
	writeFile(t, filepath.Join(hw, "fan2_input"), "0\n")
	writeFile(t, filepath.Join(hw, "fan2_label"), "Rear\n")
	writeFile(t, filepath.Join(hw, "fan2_max"), "3000\n")

	f := &HostFans{Root: root}
	require.True(t, f.Supported(context.Background()))
	fans, err := f.SampleFans(context.Background())
	require.NoError(t, err)
	require.Len(t, fans, 2)

	cpuFan := fans[0]
	assert.Equal(t, "hwmon2/fan1", cpuFan.ID)
	assert.Equal(t, "nct6775 fan1", cpuFan.Label)
	assert.Equal(t, uint64(1200), *cpuFan.RPM)
	assert.Nil(t, cpuFan.MaxRPM, "zero max means not reported")
	assert.InDelta(t, 100.0, *cpuFan.Percent, 1e-9)
	assert.InDelta(t, 45.0, *cpuFan.TempC, 1e-9)

	rear := fans[1]
	assert.Equal(t, "Rear", rear.Label)
	assert.Equal(t, uint64(0), *rear.RPM, "a stopped fan reads zero, not absent")
	assert.Equal(t, uint64(3000), *rear.MaxRPM)
	assert.Nil(t, rear.Percent)
}

func TestHostFansMissing(t *testing.T) {
	f := &HostFans{Root: t.TempDir()}
	assert.False(t, f.Supported(context.Background()))
	_, err := f.SampleFans(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)
}
