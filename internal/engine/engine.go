// Package engine assembles the ready queue, memory allocator, scheduler
// dispatcher, and batch producer into the single owned value the REPL
// talks to (spec §9 "Global mutable state" / Design Notes): the original
// exposes these as process-wide singletons; here a single Engine value
// owns them all and is responsible for teardown.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/batch"
	"github.com/jasonKoogler/cpu-sim/internal/config"
	"github.com/jasonKoogler/cpu-sim/internal/generator"
	"github.com/jasonKoogler/cpu-sim/internal/memory"
	"github.com/jasonKoogler/cpu-sim/internal/process"
	"github.com/jasonKoogler/cpu-sim/internal/queue"
	"github.com/jasonKoogler/cpu-sim/internal/scheduler"
)

// Engine is the top-level owned value: exactly one per REPL session.
// Start and Stop are safe to call from any goroutine. Stop is idempotent
// and always fully joins every thread the Engine started (spec P6); a
// second Start returns an error.
type Engine struct {
	cfg *config.Config

	mu         sync.Mutex
	started    bool
	nextID     atomic.Int64
	byName     map[string]*process.Process
	queue      *queue.ReadyQueue
	alloc      *memory.Allocator
	dispatcher *scheduler.Dispatcher
	producer   *batch.Producer

	batchMu      sync.Mutex
	batchRunning bool
}

// New constructs an Engine from a validated configuration. Nothing is
// started until Start is called.
func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:    cfg,
		byName: make(map[string]*process.Process),
	}
}

// Start wires up the ready queue, allocator, and dispatcher and launches
// the dispatch loop. Returns *Error{Code: CodeInvariantViolation} if
// already started.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return newError("start", CodeInvariantViolation, "engine already started")
	}

	e.queue = queue.New()
	e.alloc = memory.New(e.cfg.MaxOverallMem, e.cfg.MaxMemPerProc, "Memory_Logs")

	policy := scheduler.FCFS
	if e.cfg.Scheduler == "rr" {
		policy = scheduler.RR
	}
	e.dispatcher = scheduler.New(scheduler.Config{
		NumCores:      e.cfg.NumCPU,
		Policy:        policy,
		QuantumCycles: e.cfg.QuantumCycles,
		DelaysPerExec: e.cfg.DelaysPerExec,
	}, e.queue, e.alloc)

	if err := e.dispatcher.Start(); err != nil {
		return wrapError("start", CodeInvariantViolation, "dispatcher failed to start", err)
	}

	e.started = true
	return nil
}

// Stop tears down the batch producer (if running) and the dispatcher,
// joining every thread the Engine started. Idempotent.
func (e *Engine) Stop() error {
	e.StopBatch()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.dispatcher.Stop()
	e.started = false
	return nil
}

// Submit registers ins as a new process's instruction stream and enqueues
// it. name must be unique among the currently active set (spec §3 "name
// (unique across active set)"); a name held by a FINISHED process may be
// reused (original_source/Process.h console-layer behavior, see
// SPEC_FULL.md), so a collision is only rejected while the prior holder
// is still READY/RUNNING/WAITING.
func (e *Engine) Submit(name string, memSize uint16, instructions func(*process.Process)) (*process.Process, error) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil, newError("submit", CodeShutdown, "engine is not started")
	}
	if prior, exists := e.byName[name]; exists && prior.State() != process.Finished {
		e.mu.Unlock()
		return nil, newError("submit", CodeInvariantViolation, "process name already in use: "+name)
	}
	id := int(e.nextID.Add(1))
	q := e.queue
	e.mu.Unlock()

	p := process.New(id, name, memSize)
	if instructions != nil {
		instructions(p)
	}
	p.Finalize()

	e.mu.Lock()
	e.byName[name] = p
	e.mu.Unlock()

	q.Push(p)
	return p, nil
}

// StartBatch launches the periodic batch producer (spec §4.6). A no-op
// (returning nil) if already running.
func (e *Engine) StartBatch() error {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	if e.batchRunning {
		return nil
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return newError("start_batch", CodeShutdown, "engine is not started")
	}
	q := e.queue
	memPerProc := e.cfg.MaxMemPerProc
	e.mu.Unlock()

	gen := generator.New(time.Now().UnixNano())
	e.producer = batch.New(batch.Config{
		FreqTicks:  e.cfg.BatchProcessFreq,
		MinIns:     e.cfg.MinIns,
		MaxIns:     e.cfg.MaxIns,
		MemPerProc: uint16(memPerProc),
	}, q, gen, e.nextProcessID)

	if err := e.producer.Start(); err != nil {
		return wrapError("start_batch", CodeInvariantViolation, "batch producer failed to start", err)
	}
	e.batchRunning = true
	return nil
}

// StopBatch halts the batch producer and joins its goroutine. Idempotent.
func (e *Engine) StopBatch() {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	if !e.batchRunning {
		return
	}
	e.producer.Stop()
	e.batchRunning = false
}

func (e *Engine) nextProcessID() int {
	return int(e.nextID.Add(1))
}

// RunningProcesses returns a snapshot of every process currently bound to
// a core.
func (e *Engine) RunningProcesses() []process.View {
	e.mu.Lock()
	d := e.dispatcher
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil
	}

	procs := d.RunningProcesses()
	out := make([]process.View, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Snapshot())
	}
	return out
}

// BusyCores returns the number of cores currently bound to a process.
func (e *Engine) BusyCores() int {
	e.mu.Lock()
	d := e.dispatcher
	started := e.started
	e.mu.Unlock()
	if !started {
		return 0
	}
	return d.BusyCores()
}

// AvailableCores returns the number of idle cores.
func (e *Engine) AvailableCores() int {
	e.mu.Lock()
	d := e.dispatcher
	started := e.started
	e.mu.Unlock()
	if !started {
		return 0
	}
	return d.AvailableCores()
}
