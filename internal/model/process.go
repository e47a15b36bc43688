package model

import (
	"sort"
	"time"
)

// ProcessStatus is the scheduler state of a process, folded to five values.
type ProcessStatus string

const (
	StatusRunning  ProcessStatus = "running"
	StatusSleeping ProcessStatus = "sleeping"
	StatusStopped  ProcessStatus = "stopped"
	StatusZombie   ProcessStatus = "zombie"
	StatusUnknown  ProcessStatus = "unknown"
)

// Process is one entry of the process table.
type Process struct {
	PID          int32
	PPID         int32
	Name         string
	Cmdline      string
	Exe          string
	User         string
	CPU          *float64 // percent of one core
	RSSBytes     *uint64
	ReadBytesPS  *float64 // storage I/O, where the OS accounts it per process
	WriteBytesPS *float64
	FDCount      *int32
	Status       ProcessStatus
	CreateTime   time.Time // zero when unknown
}

// ProcessTree is the parent/child lookup relation for one snapshot.
// It is rebuilt from scratch every tick and never mutated afterwards.
type ProcessTree struct {
	index    map[int32]int
	children map[int32][]int32
	roots    []int32
}

// BuildTree sorts procs by pid in place and derives the lookup relation.
// A process whose parent is missing, is itself, or was created after it
// (the parent pid was recycled) becomes a root.
func BuildTree(procs []Process) ProcessTree {
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	t := ProcessTree{
		index:    make(map[int32]int, len(procs)),
		children: make(map[int32][]int32),
	}
	for i, p := range procs {
		t.index[p.PID] = i
	}
	for _, p := range procs {
		parent, ok := t.index[p.PPID]
		if !ok || p.PPID == p.PID || recycled(procs[parent], p) {
			t.roots = append(t.roots, p.PID)
			continue
		}
		t.children[p.PPID] = append(t.children[p.PPID], p.PID)
	}
	return t
}

func recycled(parent, child Process) bool {
	if parent.CreateTime.IsZero() || child.CreateTime.IsZero() {
		return false
	}
	return parent.CreateTime.After(child.CreateTime)
}

// Roots returns the pids that have no resolvable parent, ascending.
func (t ProcessTree) Roots() []int32 { return t.roots }

// Children returns the direct children of pid, ascending.
func (t ProcessTree) Children(pid int32) []int32 { return t.children[pid] }

// Parent reports the resolved parent of pid. Roots have none.
func (t ProcessTree) Parent(procs []Process, pid int32) (int32, bool) {
	i, ok := t.index[pid]
	if !ok {
		return 0, false
	}
	ppid := procs[i].PPID
	for _, c := range t.children[ppid] {
		if c == pid {
			return ppid, true
		}
	}
	return 0, false
}

// Len is the number of processes in the tree.
func (t ProcessTree) Len() int { return len(t.index) }
