package history

import "github.com/Dicklesworthstone/sysmoni/internal/model"

// Well-known series names. Per-device series are built with the helpers below.
const (
	CPUTotal     = "cpu.total"
	CPUFrequency = "cpu.freq_mhz"
	CPUTemp      = "cpu.temp_c"
	MemoryUsed   = "memory.used"
	SwapUsed     = "memory.swap_used"
	ProcessCount = "processes.count"
)

func CoreSeries(core string) string { return "cpu.core." + core }
func DiskRead(dev string) string    { return "disk." + dev + ".read" }
func DiskWrite(dev string) string   { return "disk." + dev + ".write" }
func DiskBusy(dev string) string    { return "disk." + dev + ".busy" }
func NetRx(iface string) string     { return "net." + iface + ".rx" }
func NetTx(iface string) string     { return "net." + iface + ".tx" }
func GPUUtil(id string) string      { return "gpu." + id + ".util" }
func GPUMemUsed(id string) string   { return "gpu." + id + ".mem_used" }
func GPUTemp(id string) string      { return "gpu." + id + ".temp_c" }

// Extract pulls every tracked scalar out of a snapshot.
func Extract(snap *model.SystemSnapshot) map[string]float64 {
	out := make(map[string]float64)
	putF := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	putU := func(name string, v *uint64) {
		if v != nil {
			out[name] = float64(*v)
		}
	}

	putF(CPUTotal, snap.CPU.Total)
	putF(CPUFrequency, snap.CPU.FrequencyMHz)
	putF(CPUTemp, snap.CPU.TemperatureC)
	for _, c := range snap.CPU.PerCore {
		putF(CoreSeries(c.Name), c.Percent)
	}
	putU(MemoryUsed, snap.Memory.UsedBytes)
	putU(SwapUsed, snap.Memory.SwapUsed)
	for _, d := range snap.Disks {
		putF(DiskRead(d.Name), d.ReadBytesPS)
		putF(DiskWrite(d.Name), d.WriteBytesPS)
		putF(DiskBusy(d.Name), d.BusyPercent)
	}
	for _, n := range snap.Networks {
		putF(NetRx(n.Name), n.RxBytesPS)
		putF(NetTx(n.Name), n.TxBytesPS)
	}
	for _, g := range snap.GPUs {
		putF(GPUUtil(g.ID), g.Util)
		putU(GPUMemUsed(g.ID), g.MemUsedBytes)
		putF(GPUTemp(g.ID), g.TempC)
	}
	if snap.Processes != nil {
		out[ProcessCount] = float64(len(snap.Processes))
	}
	return out
}
