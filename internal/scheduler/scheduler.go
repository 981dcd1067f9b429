// Package scheduler implements the scheduler dispatcher (spec §4.5, C6)
// and its two worker policies, FCFS and Round-Robin (§4.5.1-§4.5.2, C7).
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/coreclock"
	"github.com/jasonKoogler/cpu-sim/internal/memory"
	"github.com/jasonKoogler/cpu-sim/internal/process"
	"github.com/jasonKoogler/cpu-sim/internal/queue"
)

// Policy selects the dispatch discipline.
type Policy int

const (
	FCFS Policy = iota
	RR
)

func (p Policy) String() string {
	if p == RR {
		return "rr"
	}
	return "fcfs"
}

// snapshotEvery is the quantum-expiry cadence at which the dispatcher
// triggers a memory snapshot artifact (spec §4.5 "every N (=4) expiries").
const snapshotEvery = 4

// waitTimeout bounds how long the dispatch loop blocks between passes
// when the ready queue is empty, purely to keep shutdown responsive; it
// must never influence scheduling decisions (spec §5).
const waitTimeout = time.Millisecond

// sleepPoll is how long a worker backs off when its process is sleeping,
// per spec §5 "~10ms when the assigned process is sleeping".
const sleepPoll = 10 * time.Millisecond

type coreSlot struct {
	mu   sync.Mutex
	busy bool
	proc *process.Process
	done chan struct{}
}

// Config holds the dispatcher's static configuration (spec §6).
type Config struct {
	NumCores      int
	Policy        Policy
	QuantumCycles int // RR only; ignored for FCFS
	DelaysPerExec int // ms of simulated per-instruction delay
}

// Dispatcher drives the scheduler's dispatch loop: on every pass it
// finish-checks, quantum-checks (RR), and admits for every core in index
// order (spec §4.5, ordering: finish -> quantum -> admission).
type Dispatcher struct {
	cfg   Config
	queue *queue.ReadyQueue
	alloc *memory.Allocator

	clocks    []*coreclock.Clock
	tallies   []*coreclock.UnitTally
	slots     []*coreSlot

	running         atomic.Bool
	stopCh          chan struct{}
	wg              sync.WaitGroup
	quantumExpiries atomic.Int64
}

// New constructs a Dispatcher bound to the given ready queue and memory
// allocator. Cores are not started until Start is called.
func New(cfg Config, q *queue.ReadyQueue, alloc *memory.Allocator) *Dispatcher {
	if cfg.NumCores <= 0 {
		cfg.NumCores = 1
	}
	d := &Dispatcher{
		cfg:     cfg,
		queue:   q,
		alloc:   alloc,
		clocks:  make([]*coreclock.Clock, cfg.NumCores),
		tallies: make([]*coreclock.UnitTally, cfg.NumCores),
		slots:   make([]*coreSlot, cfg.NumCores),
	}
	for i := 0; i < cfg.NumCores; i++ {
		d.slots[i] = &coreSlot{}
		d.tallies[i] = coreclock.NewUnitTally()
	}
	return d
}

// Start launches the per-core tick clocks and the dispatch loop. Returns
// an error if already running.
func (d *Dispatcher) Start() error {
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler: dispatcher already running")
	}
	d.stopCh = make(chan struct{})
	for i := range d.clocks {
		d.clocks[i] = coreclock.NewClock()
	}
	d.wg.Add(1)
	go d.dispatchLoop()
	return nil
}

// Stop halts the dispatch loop, joins every worker and tick goroutine it
// started, and releases all core slots. Idempotent.
func (d *Dispatcher) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	close(d.stopCh)
	d.wg.Wait()

	for _, c := range d.clocks {
		if c != nil {
			c.Stop()
		}
	}

	for _, s := range d.slots {
		s.mu.Lock()
		s.proc = nil
		s.busy = false
		s.mu.Unlock()
	}
}

func (d *Dispatcher) isRunning() bool {
	return d.running.Load()
}

func (d *Dispatcher) dispatchLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.dispatchPass()
		d.queue.Wait(waitTimeout, d.stopCh)
	}
}

// dispatchPass runs one iteration over every core in index order,
// handling finish -> quantum -> admission in that order per core.
func (d *Dispatcher) dispatchPass() {
	for idx, slot := range d.slots {
		slot.mu.Lock()
		d.finishOrQuantumCheckLocked(idx, slot)
		if slot.proc == nil && !slot.busy {
			d.tryAdmitLocked(idx, slot)
		}
		slot.mu.Unlock()
	}
}

func (d *Dispatcher) finishOrQuantumCheckLocked(idx int, slot *coreSlot) {
	if slot.proc == nil {
		return
	}

	select {
	case <-slot.done:
	default:
		return // worker for this binding is still running
	}

	p := slot.proc

	if p.IsFinished() {
		d.alloc.Deallocate(p)
		p.SetCore(-1)
		p.SetState(process.Finished)
		slot.proc = nil
		slot.busy = false
		return
	}

	if d.cfg.Policy == RR && p.QuantumUsed() >= d.cfg.QuantumCycles {
		p.ResetQuantumUsed()
		p.SetCore(-1)
		p.SetState(process.Ready)
		slot.proc = nil
		slot.busy = false
		d.queue.Push(p)

		n := d.quantumExpiries.Add(1)
		if n%snapshotEvery == 0 {
			_ = d.alloc.Snapshot(int(n))
		}
		return
	}

	// The worker exited without finishing or reaching quantum: only
	// possible if the dispatcher was asked to stop mid-binding. Release
	// the slot; the process is simply abandoned (spec §4.7: "any ->
	// FINISHED on engine stop is NOT forced").
	slot.proc = nil
	slot.busy = false
}

func (d *Dispatcher) tryAdmitLocked(idx int, slot *coreSlot) {
	p, ok := d.queue.Pop()
	if !ok {
		return
	}

	if !d.alloc.IsAllocated(p) {
		if !d.alloc.Allocate(p) {
			d.queue.Push(p) // AdmissionDenied: re-enqueue at tail, not user-visible
			return
		}
	}

	p.SetCore(idx)
	p.SetState(process.Running)
	p.ResetQuantumUsed()

	slot.proc = p
	slot.busy = true
	slot.done = make(chan struct{})

	d.wg.Add(1)
	go d.runWorker(idx, slot, p)
}

func (d *Dispatcher) runWorker(idx int, slot *coreSlot, p *process.Process) {
	defer d.wg.Done()
	defer close(slot.done)

	clock := d.clocks[idx]
	tally := d.tallies[idx]

	switch d.cfg.Policy {
	case RR:
		d.runRR(idx, clock, tally, p)
	default:
		d.runFCFS(idx, clock, tally, p)
	}
}

// runFCFS runs the assigned process to completion (spec §4.5.1).
func (d *Dispatcher) runFCFS(coreID int, clock *coreclock.Clock, tally *coreclock.UnitTally, p *process.Process) {
	for d.isRunning() && !p.IsFinished() {
		tick := clock.Tick()
		if p.IsSleeping(tick) {
			p.SetState(process.Waiting)
			sleepWithEarlyWake(sleepPoll, d.stopCh)
			continue
		}
		p.SetState(process.Running)
		d.execute(coreID, tick, tally, p)
		d.applyDelay()
	}
}

// runRR runs at most QuantumCycles non-sleep instruction executions
// (spec §4.5.2); sleeping ticks do not count toward the quantum.
func (d *Dispatcher) runRR(coreID int, clock *coreclock.Clock, tally *coreclock.UnitTally, p *process.Process) {
	executed := 0
	for d.isRunning() && !p.IsFinished() && executed < d.cfg.QuantumCycles {
		tick := clock.Tick()
		if p.IsSleeping(tick) {
			p.SetState(process.Waiting)
			sleepWithEarlyWake(sleepPoll, d.stopCh)
			continue
		}
		p.SetState(process.Running)
		d.execute(coreID, tick, tally, p)
		p.IncrementQuantumUsed()
		executed++
		d.applyDelay()
	}
}

func (d *Dispatcher) execute(coreID, tick int, tally *coreclock.UnitTally, p *process.Process) {
	p.ExecuteOne(coreID, tick)
	if kind, ok := p.LastKind(); ok {
		tally.Record(coreclock.UnitFor(kind))
	}
}

// applyDelay sleeps 1ms DelaysPerExec times, matching the teacher/original
// per-instruction delay idiom.
func (d *Dispatcher) applyDelay() {
	for i := 0; i < d.cfg.DelaysPerExec; i++ {
		if !d.isRunning() {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func sleepWithEarlyWake(d time.Duration, stop <-chan struct{}) {
	select {
	case <-time.After(d):
	case <-stop:
	}
}

// BusyCores returns the number of cores currently bound to a process.
func (d *Dispatcher) BusyCores() int {
	count := 0
	for _, s := range d.slots {
		s.mu.Lock()
		if s.busy {
			count++
		}
		s.mu.Unlock()
	}
	return count
}

// AvailableCores returns the number of idle cores.
func (d *Dispatcher) AvailableCores() int {
	return d.cfg.NumCores - d.BusyCores()
}

// RunningProcesses returns a snapshot of the processes currently bound to
// a core.
func (d *Dispatcher) RunningProcesses() []*process.Process {
	out := make([]*process.Process, 0, d.cfg.NumCores)
	for _, s := range d.slots {
		s.mu.Lock()
		if s.proc != nil {
			out = append(out, s.proc)
		}
		s.mu.Unlock()
	}
	return out
}

// QuantumExpiries returns the total number of RR quantum-expiry events
// observed so far (used to test the every-4th-expiry snapshot cadence).
func (d *Dispatcher) QuantumExpiries() int64 {
	return d.quantumExpiries.Load()
}
