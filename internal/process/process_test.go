package process

import (
	"testing"

	"github.com/jasonKoogler/cpu-sim/internal/instruction"
)

func runToCompletion(p *Process, core int) {
	tick := 0
	for !p.IsFinished() {
		if p.IsSleeping(tick) {
			tick++
			continue
		}
		p.ExecuteOne(core, tick)
		tick++
	}
}

func TestNonFORStreamCompletesWithCompletedEqualsN(t *testing.T) {
	p := New(1, "p1", 0)
	for i := 0; i < 5; i++ {
		p.AddInstruction(instruction.Print(""))
	}
	p.Finalize()

	runToCompletion(p, 0)

	if p.Completed() != 5 {
		t.Errorf("Completed() = %d, want 5", p.Completed())
	}
	if !p.IsFinished() {
		t.Errorf("IsFinished() = false, want true")
	}
}

func TestForDoesNotItselfCountAsCompleted(t *testing.T) {
	p := New(1, "p1", 0)
	body := []instruction.Instruction{
		instruction.Declare("y", 1),
		instruction.Add("y", instruction.Var("y"), instruction.Imm(1)),
	}
	p.AddInstruction(instruction.For(body, 2))
	p.Finalize()

	if p.Total() != 4 {
		t.Fatalf("Total() = %d, want 4 (K*R with K=2,R=2)", p.Total())
	}

	runToCompletion(p, 0)

	if p.Completed() != 4 {
		t.Errorf("Completed() = %d, want 4 (exactly K*R, no +1 for the FOR push)", p.Completed())
	}
	if p.Completed() > p.Total() {
		t.Errorf("Completed() = %d exceeds Total() = %d, violates P1", p.Completed(), p.Total())
	}
}

func TestNestedForExpansion(t *testing.T) {
	// S5: outer repeat 2 wrapping [DECLARE y 1; ADD y y 1]; y should end at 4.
	p := New(1, "p1", 0)
	body := []instruction.Instruction{
		instruction.Declare("y", 1),
		instruction.Add("y", instruction.Var("y"), instruction.Imm(1)),
	}
	p.AddInstruction(instruction.For(body, 2))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["y"]; got != 4 {
		t.Errorf("y = %d, want 4", got)
	}
}

func TestDeeplyNestedForExpansion(t *testing.T) {
	// R3: FOR with body of K non-FOR instructions and repeat R contributes K*R.
	inner := []instruction.Instruction{
		instruction.Declare("a", 0),
		instruction.Declare("b", 0),
		instruction.Declare("c", 0),
	}
	outer := []instruction.Instruction{
		instruction.For(inner, 3), // contributes 3*3=9
		instruction.Print(""),     // contributes 1
	}
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.For(outer, 2)) // contributes (9+1)*2=20
	p.Finalize()

	if p.Total() != 20 {
		t.Fatalf("Total() = %d, want 20", p.Total())
	}

	runToCompletion(p, 0)

	if p.Completed() != 20 {
		t.Errorf("Completed() = %d, want 20", p.Completed())
	}
}

func TestSubWraps(t *testing.T) {
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Sub("x", instruction.Imm(0), instruction.Imm(1)))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 65535 {
		t.Errorf("x = %d, want 65535 (wrapping subtraction)", got)
	}
}

func TestAddWraps(t *testing.T) {
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Add("x", instruction.Imm(65535), instruction.Imm(2)))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 1 {
		t.Errorf("x = %d, want 1 (mod 2^16 wraparound)", got)
	}
}

func TestVariableTableCapSilentlyDropsExcess(t *testing.T) {
	// I4: declarations beyond 32 are silently dropped, not an error.
	p := New(1, "p1", 0)
	for i := 0; i < 40; i++ {
		p.AddInstruction(instruction.Declare(varName(i), uint16(i)))
	}
	p.Finalize()

	runToCompletion(p, 0)

	if len(p.vars) != maxVariables {
		t.Errorf("len(vars) = %d, want %d", len(p.vars), maxVariables)
	}
	// A declaration beyond the cap leaves no table entry for its name.
	dropped := varName(39)
	if _, exists := p.vars[dropped]; exists {
		t.Fatalf("expected %s to have been dropped", dropped)
	}
}

func varName(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestUndefinedVariableReadsZero(t *testing.T) {
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Add("x", instruction.Var("undefined"), instruction.Imm(5)))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 5 {
		t.Errorf("x = %d, want 5 (undefined var reads as 0)", got)
	}
}

func TestSleepZeroTicksDoesNotSleepOnNextCheck(t *testing.T) {
	// B4: SLEEP with ticks = 0 must not be treated as sleeping on the very
	// next check.
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Sleep(0))
	p.AddInstruction(instruction.Print(""))
	p.Finalize()

	p.ExecuteOne(0, 10) // executes SLEEP, sleepUntil = 10+0 = 10

	if p.IsSleeping(10) {
		t.Errorf("IsSleeping(10) = true immediately after SLEEP 0, want false")
	}
}

func TestSleepDelaysPrint(t *testing.T) {
	// S4: DECLARE x 5; SLEEP 3; PRINT x. The PRINT must not execute before
	// the sleep deadline has passed.
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Declare("x", 5))
	p.AddInstruction(instruction.Sleep(3))
	p.AddInstruction(instruction.Print("x"))
	p.Finalize()

	tick := 0
	p.ExecuteOne(0, tick) // DECLARE
	tick++
	p.ExecuteOne(0, tick) // SLEEP 3, sleepUntil = tick+3
	sleepDeadline := tick + 3
	tick++

	for p.IsSleeping(tick) {
		tick++
	}

	if tick < sleepDeadline {
		t.Fatalf("woke at tick %d before deadline %d", tick, sleepDeadline)
	}

	p.ExecuteOne(0, tick) // PRINT x

	lines := p.LogLines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
}

func TestReadWriteMemory(t *testing.T) {
	p := New(1, "p1", 16)
	p.AddInstruction(instruction.Write(4, instruction.Imm(42)))
	p.AddInstruction(instruction.Read("x", 4))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 42 {
		t.Errorf("x = %d, want 42", got)
	}
}

func TestWriteOutOfRangeIgnored(t *testing.T) {
	p := New(1, "p1", 4)
	p.AddInstruction(instruction.Write(100, instruction.Imm(7)))
	p.AddInstruction(instruction.Read("x", 100))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 0 {
		t.Errorf("x = %d, want 0 (out-of-range write ignored, masked read of undefined byte)", got)
	}
}

func TestReadWithNoDeclaredMemoryReturnsZero(t *testing.T) {
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Read("x", 0))
	p.Finalize()

	runToCompletion(p, 0)

	if got := p.vars["x"]; got != 0 {
		t.Errorf("x = %d, want 0", got)
	}
}

func TestExecuteOneReturnsFalseAtEnd(t *testing.T) {
	p := New(1, "p1", 0)
	p.AddInstruction(instruction.Print(""))
	p.Finalize()

	if !p.ExecuteOne(0, 0) {
		t.Fatalf("ExecuteOne() = false on first call, want true")
	}
	if p.ExecuteOne(0, 0) {
		t.Errorf("ExecuteOne() = true after stream exhausted, want false")
	}
}
