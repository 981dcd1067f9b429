// Package memory implements the flat, first-fit, equal-partition memory
// allocator (spec §3 Partition, §4.3) that gates core admission.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/process"
)

type partition struct {
	slot       int
	occupied   bool
	owner      *process.Process
}

// Allocator is a flat, first-fit partitioned memory manager. All
// operations are internally synchronized and atomic with respect to each
// other.
type Allocator struct {
	mu         sync.Mutex
	partitions []partition
	memPerProc uint64
	maxOverall uint64
	logDir     string
}

// New builds an Allocator with floor(maxOverallMem/memPerProc) equal-sized
// partitions. logDir is the directory memory snapshots are written under
// (spec §6 "Memory_Logs/memory_stamp_<N>.txt"); callers typically pass
// "Memory_Logs".
func New(maxOverallMem, memPerProc uint64, logDir string) *Allocator {
	if memPerProc == 0 {
		memPerProc = 1
	}
	n := int(maxOverallMem / memPerProc)
	parts := make([]partition, n)
	for i := range parts {
		parts[i] = partition{slot: i}
	}
	if logDir == "" {
		logDir = "Memory_Logs"
	}
	return &Allocator{
		partitions: parts,
		memPerProc: memPerProc,
		maxOverall: maxOverallMem,
		logDir:     logDir,
	}
}

// Allocate attempts first-fit admission for p. Returns false if p is
// already allocated a partition (idempotent re-admission) without error,
// or if no free partition exists.
func (a *Allocator) Allocate(p *process.Process) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, part := range a.partitions {
		if part.owner == p {
			return false
		}
	}

	for i := range a.partitions {
		if !a.partitions[i].occupied {
			a.partitions[i].occupied = true
			a.partitions[i].owner = p
			return true
		}
	}
	return false
}

// Deallocate frees every partition owned by p. A no-op if p holds none.
func (a *Allocator) Deallocate(p *process.Process) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.partitions {
		if a.partitions[i].owner == p {
			a.partitions[i].owner = nil
			a.partitions[i].occupied = false
		}
	}
}

// IsAllocated reports whether p currently holds a partition.
func (a *Allocator) IsAllocated(p *process.Process) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, part := range a.partitions {
		if part.owner == p {
			return true
		}
	}
	return false
}

// HasFreeSlots reports whether at least one partition is unoccupied.
func (a *Allocator) HasFreeSlots() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, part := range a.partitions {
		if !part.occupied {
			return true
		}
	}
	return false
}

// AllocatedSlotCount returns the number of currently occupied partitions.
func (a *Allocator) AllocatedSlotCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, part := range a.partitions {
		if part.occupied {
			count++
		}
	}
	return count
}

// Fragmentation returns the sum of free-partition sizes (free_count *
// mem_per_process).
func (a *Allocator) Fragmentation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	free := 0
	for _, part := range a.partitions {
		if !part.occupied {
			free++
		}
	}
	return uint64(free) * a.memPerProc
}

// Snapshot writes a textual memory map artifact to
// <logDir>/memory_stamp_<counter>.txt, in the format of the original
// simulator's per-cycle memory dump (see DESIGN.md).
func (a *Allocator) Snapshot(counter int) error {
	a.mu.Lock()
	buf := a.renderLocked()
	a.mu.Unlock()

	if err := os.MkdirAll(a.logDir, 0o755); err != nil {
		return fmt.Errorf("memory: failed to create log directory: %w", err)
	}

	path := filepath.Join(a.logDir, fmt.Sprintf("memory_stamp_%d.txt", counter))
	if err := os.WriteFile(path, []byte(buf), 0o644); err != nil {
		return fmt.Errorf("memory: failed to write snapshot: %w", err)
	}
	return nil
}

func (a *Allocator) renderLocked() string {
	var sb []byte
	app := func(s string) { sb = append(sb, s...) }

	now := time.Now()
	app(fmt.Sprintf("\nTimestamp: (%s)\n", now.Format("01/02/2006 03:04:05PM")))

	occupied := 0
	for _, part := range a.partitions {
		if part.occupied {
			occupied++
		}
	}
	app(fmt.Sprintf("Number of processes in memory: %d\n", occupied))

	free := len(a.partitions) - occupied
	app(fmt.Sprintf("Total external fragmentation in KB: %d\n", uint64(free)*a.memPerProc))

	total := a.maxOverall
	app(fmt.Sprintf("----end---- = %d\n", total))

	top := total
	for _, part := range a.partitions {
		upper := top
		lower := top - a.memPerProc
		if part.occupied && part.owner != nil {
			app(fmt.Sprintf("%d\n", upper))
			app(part.owner.Name() + "\n")
			app(fmt.Sprintf("%d\n\n", lower))
		}
		top -= a.memPerProc
	}

	app("----start---- = 0\n")
	return string(sb)
}
