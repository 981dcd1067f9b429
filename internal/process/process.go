// Package process implements the process state machine and instruction
// interpreter (spec §3 Process, §4.1-§4.2): variable table, nested loop
// contexts, sleep semantics, and quantum accounting.
package process

import (
	"fmt"
	"sync"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/instruction"
)

// State is the process lifecycle flag.
type State int

const (
	Ready State = iota
	Running
	Waiting
	Finished
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Waiting:
		return "WAITING"
	case Finished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

const maxVariables = 32

// loopContext is one entry of the loop-context stack pushed by FOR.
type loopContext struct {
	body    []instruction.Instruction
	repeat  int
	iter    int
	pointer int
}

// View is an atomically-consistent snapshot of a Process, used by status
// printers (spec §4.2 snapshot()).
type View struct {
	Name      string
	Running   bool
	Core      int
	Completed int
	Total     int
	Created   string
}

// Process owns one synthetic program's instruction stream, variable
// table, and execution cursor. All exported methods are safe for
// concurrent use; internal state is guarded by mu across any multi-field
// read or write.
type Process struct {
	mu sync.Mutex

	name string
	id   int

	stream     []instruction.Instruction
	dispatched bool // true once Finalize has been called; stream is then frozen
	total      int
	completed  int

	core        int // -1 when unassigned
	state       State
	sleepUntil  int // -1 when not sleeping
	quantumUsed int
	pointer     int // top-level stream cursor
	loopStack   []loopContext

	vars map[string]uint16

	memSize uint16
	mem     map[uint16]uint16

	createdAt time.Time
	logLines  []string

	lastKind      instruction.Kind
	lastKindValid bool
}

// New creates a Process with the given unique name and declared memory
// size (in 16-bit words). id should be a monotonically increasing value
// assigned by the caller (the engine owns the counter, per spec's
// "numeric id (monotonic)").
func New(id int, name string, memSize uint16) *Process {
	return &Process{
		id:         id,
		name:       name,
		core:       -1,
		state:      Ready,
		sleepUntil: -1,
		vars:       make(map[string]uint16),
		memSize:    memSize,
		mem:        make(map[uint16]uint16),
		createdAt:  time.Now(),
	}
}

// ID returns the process's monotonic numeric id.
func (p *Process) ID() int { return p.id }

// Name returns the process's unique name.
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// AddInstruction appends ins to the top-level stream. May only be called
// before Finalize (i.e. before dispatch); calling it afterward is a no-op,
// matching the "never throws" failure model.
func (p *Process) AddInstruction(ins instruction.Instruction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatched {
		return
	}
	p.stream = append(p.stream, ins)
}

// Finalize computes the expanded total from the current stream and locks
// the stream against further AddInstruction calls. Total is set once and
// never changes afterward (spec P5).
func (p *Process) Finalize() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatched {
		return
	}
	p.dispatched = true
	p.total = instruction.ExpandedCount(p.stream)
}

// Core returns the assigned core id, or -1 if unassigned.
func (p *Process) Core() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.core
}

// SetCore assigns (or clears, with -1) the core this process runs on.
func (p *Process) SetCore(core int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.core = core
}

// State returns the current lifecycle flag.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState transitions the lifecycle flag.
func (p *Process) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// QuantumUsed returns the current quantum-used counter (RR only).
func (p *Process) QuantumUsed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quantumUsed
}

// IncrementQuantumUsed bumps the quantum-used counter by one.
func (p *Process) IncrementQuantumUsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quantumUsed++
}

// ResetQuantumUsed zeroes the quantum-used counter (on admission and on
// quantum expiry requeue).
func (p *Process) ResetQuantumUsed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quantumUsed = 0
}

// Completed returns the number of instructions executed so far.
func (p *Process) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Total returns the expanded instruction count (fixed after Finalize).
func (p *Process) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// IsFinished reports whether the process has completed execution (spec I2).
func (p *Process) IsFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isFinishedLocked()
}

func (p *Process) isFinishedLocked() bool {
	if p.completed >= p.total {
		return true
	}
	return p.pointer >= len(p.stream) && len(p.loopStack) == 0
}

// IsSleeping reports whether sleepUntil > currentTick. The scheduler must
// treat a sleeping process as WAITING and not call ExecuteOne on it.
func (p *Process) IsSleeping(currentTick int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleepUntil > currentTick
}

// Snapshot returns an atomically-consistent view for status reporting.
func (p *Process) Snapshot() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return View{
		Name:      p.name,
		Running:   p.state == Running,
		Core:      p.core,
		Completed: p.completed,
		Total:     p.total,
		Created:   p.createdAt.Format("01/02/2006 03:04:05 PM"),
	}
}

// LogLines returns a copy of the buffered log lines.
func (p *Process) LogLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.logLines))
	copy(out, p.logLines)
	return out
}

// ExecuteOne advances the process by one logical step, per spec §4.1-4.2.
// Returns false only when the process was already at the end with an
// empty loop stack (nothing left to do); true otherwise, including for
// SLEEP and FOR, which both count as one executed step without
// necessarily incrementing completed.
func (p *Process) ExecuteOne(coreID int, currentTick int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isFinishedLocked() {
		return false
	}

	in, ok := p.nextLocked()
	if !ok {
		return false
	}

	p.lastKind = in.Kind
	p.lastKindValid = true

	switch in.Kind {
	case instruction.PRINT:
		p.execPrintLocked(in, coreID)
		p.completed++
	case instruction.DECLARE:
		p.setVarLocked(in.DeclareName, in.DeclareValue)
		p.completed++
	case instruction.ADD:
		v2 := p.readOperandLocked(in.Src2)
		v3 := p.readOperandLocked(in.Src3)
		p.setVarLocked(in.Dest, v2+v3)
		p.completed++
	case instruction.SUB:
		v2 := p.readOperandLocked(in.Src2)
		v3 := p.readOperandLocked(in.Src3)
		p.setVarLocked(in.Dest, v2-v3) // uint16 subtraction wraps mod 2^16
		p.completed++
	case instruction.SLEEP:
		p.sleepUntil = currentTick + int(in.SleepTicks)
		// SLEEP does not append a log line and per spec is "counted as
		// one completed step" like any other non-FOR instruction.
		p.completed++
	case instruction.FOR:
		p.loopStack = append(p.loopStack, loopContext{
			body:   in.Body,
			repeat: in.Repeat,
		})
		// Pushing a loop context does not itself increment completed
		// (see DESIGN.md open-question resolution); only the body
		// instructions it expands into do, keeping completed <= total
		// (P1) and R3's exact K*R contribution intact.
	case instruction.READ:
		val := p.readMemLocked(in.Address)
		p.setVarLocked(in.Dest2, val)
		p.completed++
	case instruction.WRITE:
		val := p.readOperandLocked(in.Src)
		p.writeMemLocked(in.Address, val)
		p.completed++
	}

	return true
}

// nextLocked implements the instruction-fetch algorithm of spec §4.1: if
// the loop stack is non-empty, consult its top; if the top's body pointer
// is at the end, zero the pointer and bump the iteration; if iteration
// has reached repeat, pop and re-ask. Otherwise return the top-level
// stream, or (nil, false) if the top-level pointer is at end.
func (p *Process) nextLocked() (instruction.Instruction, bool) {
	for len(p.loopStack) > 0 {
		top := &p.loopStack[len(p.loopStack)-1]
		if top.pointer >= len(top.body) {
			top.pointer = 0
			top.iter++
		}
		if top.iter >= top.repeat {
			p.loopStack = p.loopStack[:len(p.loopStack)-1]
			continue
		}
		in := top.body[top.pointer]
		top.pointer++
		return in, true
	}

	if p.pointer >= len(p.stream) {
		return instruction.Instruction{}, false
	}
	in := p.stream[p.pointer]
	p.pointer++
	return in, true
}

func (p *Process) readOperandLocked(op instruction.Operand) uint16 {
	if op.IsImmediate {
		return op.Immediate
	}
	if op.VarName == "" {
		return 0
	}
	return p.vars[op.VarName]
}

// setVarLocked creates the variable if absent and the table has room, or
// updates it in place if already present. Declarations beyond the 32-slot
// cap are silently dropped (spec I4).
func (p *Process) setVarLocked(name string, value uint16) {
	if name == "" {
		return
	}
	if _, exists := p.vars[name]; !exists && len(p.vars) >= maxVariables {
		return
	}
	p.vars[name] = value
}

func (p *Process) readMemLocked(addr uint16) uint16 {
	if p.memSize == 0 {
		return 0
	}
	idx := addr % p.memSize
	return p.mem[idx]
}

func (p *Process) writeMemLocked(addr uint16, value uint16) {
	if p.memSize == 0 || addr >= p.memSize {
		return
	}
	p.mem[addr] = value
}

func (p *Process) execPrintLocked(in instruction.Instruction, coreID int) {
	ts := timestamp(time.Now())
	var line string
	if in.HasVarRef {
		val := p.readOperandLocked(in.VarRef)
		line = fmt.Sprintf("%s Core: %d Value from %s: %d", ts, coreID, in.VarRef.VarName, val)
	} else {
		line = fmt.Sprintf("%s Core: %d Hello world from %s!", ts, coreID, p.name)
	}
	p.logLines = append(p.logLines, line)
}

// LastKind returns the kind of the most recently executed instruction and
// true, or (zero-value, false) if ExecuteOne has never executed one. Used
// by the scheduler to tally per-core instruction-mix statistics without
// duplicating the fetch logic.
func (p *Process) LastKind() (instruction.Kind, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastKind, p.lastKindValid
}

// timestamp renders spec §6's log timestamp format: (MM/DD/YYYY HH:MM:SS AM/PM).
func timestamp(t time.Time) string {
	return "(" + t.Format("01/02/2006 03:04:05 PM") + ")"
}
