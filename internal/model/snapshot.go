package model

import "time"

// CPU aggregates instantaneous CPU usage. Nil fields are absent on this host or tick.
type CPU struct {
	ModelName    string   // empty when the OS does not say
	Total        *float64 // percent 0-100
	PerCore      []Core
	LogicalCores int
	Physical     int
	FrequencyMHz *float64
	TemperatureC *float64
	Load         *LoadAvg
}

// Core is one logical core keyed by the name the OS reports (cpu0, cpu1, ...).
type Core struct {
	Name    string
	Percent *float64
}

// LoadAvg is the 1/5/15 minute run-queue average.
type LoadAvg struct {
	Load1  float64
	Load5  float64
	Load15 float64
}

// Memory captures RAM and swap usage in bytes for precision.
type Memory struct {
	UsedBytes      *uint64
	TotalBytes     *uint64
	AvailableBytes *uint64
	Cached         *uint64
	Buffers        *uint64
	SwapUsed       *uint64
	SwapTotal      *uint64
}

// DiskKind is the storage technology behind a block device.
type DiskKind string

const (
	DiskUnknown DiskKind = "unknown"
	DiskHDD     DiskKind = "hdd"
	DiskSSD     DiskKind = "ssd"
	DiskNVMe    DiskKind = "nvme"
	DiskEMMC    DiskKind = "emmc"
	DiskOptical DiskKind = "optical"
)

// Disk holds one block device's description and throughput.
type Disk struct {
	Name          string
	Serial        string
	Model         string
	Kind          DiskKind
	CapacityBytes *uint64
	ReadBytesPS   *float64
	WriteBytesPS  *float64
	ReadOpsPS     *float64
	WriteOpsPS    *float64
	BusyPercent   *float64
	ResponseMs    *float64 // mean per completed request, 0 when none completed
}

// NetKind classifies an interface by its naming convention.
type NetKind string

const (
	NetWired      NetKind = "wired"
	NetWireless   NetKind = "wireless"
	NetBridge     NetKind = "bridge"
	NetDocker     NetKind = "docker"
	NetVirtual    NetKind = "virtual"
	NetVPN        NetKind = "vpn"
	NetWWAN       NetKind = "wwan"
	NetInfiniBand NetKind = "infiniband"
	NetBluetooth  NetKind = "bluetooth"
	NetLoopback   NetKind = "loopback"
	NetOther      NetKind = "other"
)

// Network holds one interface's throughput.
type Network struct {
	Name       string
	Kind       NetKind
	RxBytesPS  *float64
	TxBytesPS  *float64
	RxPacketPS *float64
	TxPacketPS *float64
}

// GPU holds a single device snapshot.
type GPU struct {
	ID            string // stable across ticks: UUID or PCI slot
	Name          string
	Vendor        string
	Util          *float64 // percent
	MemUsedBytes  *uint64
	MemTotalBytes *uint64
	TempC         *float64
	ClockMHz      *float64
	PowerW        *float64
	FanPercent    *float64
}

// Fan is one hwmon fan channel.
type Fan struct {
	ID      string // "<hwmon chip>/fan<n>", stable across ticks
	Label   string
	RPM     *uint64
	MaxRPM  *uint64
	Percent *float64 // commanded PWM duty
	TempC   *float64 // paired temperature channel, when the chip has one
}

// SystemSnapshot is the full, immutable view of the machine for one tick.
// Every sub-snapshot was derived from the same tick and the same pair of raw readings.
type SystemSnapshot struct {
	Tick      uint64
	Timestamp time.Time
	Interval  time.Duration
	CPU       CPU
	Memory    Memory
	Disks     []Disk
	Networks  []Network
	GPUs      []GPU
	Fans      []Fan
	Processes []Process
	Tree      ProcessTree `json:"-"`
	Issues    []Issue
}

// Process returns the entry for pid, if it was present at this tick.
func (s *SystemSnapshot) Process(pid int32) (Process, bool) {
	if s == nil {
		return Process{}, false
	}
	i, ok := s.Tree.index[pid]
	if !ok {
		return Process{}, false
	}
	return s.Processes[i], true
}

// IssueKind distinguishes permanent from per-tick adapter failures.
type IssueKind string

const (
	IssueUnsupported IssueKind = "unsupported"
	IssueTransient   IssueKind = "transient"
)

// Issue records why a resource is absent from a snapshot.
type Issue struct {
	Resource string
	Kind     IssueKind
	Message  string
}

// Float returns a pointer to v; handy when filling optional fields.
func Float(v float64) *float64 { return &v }

// Uint returns a pointer to v.
func Uint(v uint64) *uint64 { return &v }
