// Package generator synthesizes random instruction streams for processes
// created by the batch producer (spec §4.6), adapted from the original
// simulator's InstructionUtils.h generateRandomInstructions/makeRandomForLoop.
package generator

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/jasonKoogler/cpu-sim/internal/instruction"
)

// maxForDepth bounds nested FOR generation, mirroring the original's
// "depth < 2" guard (process.go's loop-context stack is in practice
// bounded to <=2 nested per spec I5).
const maxForDepth = 2

// Generator produces a random instruction stream of a target expanded
// length. Implementations must be safe for concurrent use by multiple
// batch-producer goroutines (only one is ever configured, but the
// interface does not assume that).
type Generator interface {
	Generate(targetCount int) []instruction.Instruction
}

// DefaultGenerator is the stock random generator: PRINT/DECLARE/ADD/SUB/
// SLEEP/FOR in equal proportion, biasing ADD/SUB operands toward already
// declared variables when any exist.
type DefaultGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a DefaultGenerator seeded from seed. Callers that want
// reproducible streams (tests) should pass a fixed seed; the batch
// producer seeds from wall-clock time.
func New(seed int64) *DefaultGenerator {
	return &DefaultGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Generate synthesizes a stream whose expanded instruction count is
// exactly targetCount, skipping any candidate FOR loop that would
// overshoot it (mirroring the original's "else skip this FOR").
func (g *DefaultGenerator) Generate(targetCount int) []instruction.Instruction {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []instruction.Instruction
	var declared []string
	actual := 0
	varCounter := 0

	nextVar := func() string {
		varCounter++
		return fmt.Sprintf("v%d", varCounter)
	}

	for actual < targetCount {
		switch g.rng.Intn(6) {
		case 0: // PRINT
			ins := instruction.Print("")
			if len(declared) > 0 {
				ins = instruction.Print(declared[g.rng.Intn(len(declared))])
			}
			out = append(out, ins)
			actual++

		case 1: // DECLARE
			name := nextVar()
			out = append(out, instruction.Declare(name, uint16(g.rng.Intn(100))))
			declared = append(declared, name)
			actual++

		case 2: // ADD
			name := nextVar()
			out = append(out, instruction.Add(name, g.randomOperand(declared), g.randomOperand(declared)))
			declared = append(declared, name)
			actual++

		case 3: // SUB
			name := nextVar()
			out = append(out, instruction.Sub(name, g.randomOperand(declared), g.randomOperand(declared)))
			declared = append(declared, name)
			actual++

		case 4: // SLEEP
			out = append(out, instruction.Sleep(uint8(1+g.rng.Intn(10))))
			actual++

		case 5: // FOR
			for_, count := g.makeForLoop(0)
			if actual+count <= targetCount {
				out = append(out, for_)
				actual += count
			}
			// else: skip this candidate, try again next iteration
		}
	}

	return out
}

func (g *DefaultGenerator) randomOperand(declared []string) instruction.Operand {
	if len(declared) > 0 && g.rng.Intn(2) == 0 {
		return instruction.Var(declared[g.rng.Intn(len(declared))])
	}
	return instruction.Imm(uint16(g.rng.Intn(100)))
}

// makeForLoop builds a FOR instruction with 1-3 repeats and 1-5 body
// instructions, recursively nesting another FOR with low probability up
// to maxForDepth. Returns the instruction and its expanded instruction
// count (so the caller can check it against the remaining budget without
// re-deriving it via instruction.ExpandedCount).
func (g *DefaultGenerator) makeForLoop(depth int) (instruction.Instruction, int) {
	repeat := 1 + g.rng.Intn(3)
	numBody := 1 + g.rng.Intn(5)

	var body []instruction.Instruction
	bodyCount := 0
	for i := 0; i < numBody; i++ {
		if depth < maxForDepth && g.rng.Intn(5) == 0 {
			inner, innerCount := g.makeForLoop(depth + 1)
			body = append(body, inner)
			bodyCount += innerCount
			continue
		}
		body = append(body, g.oneSimpleInstruction())
		bodyCount++
	}

	return instruction.For(body, repeat), bodyCount * repeat
}

// oneSimpleInstruction produces a single non-FOR instruction for use
// inside a loop body.
func (g *DefaultGenerator) oneSimpleInstruction() instruction.Instruction {
	switch g.rng.Intn(5) {
	case 0:
		return instruction.Print("")
	case 1:
		return instruction.Declare(fmt.Sprintf("lv%d", g.rng.Intn(1000)), uint16(g.rng.Intn(100)))
	case 2:
		return instruction.Add(fmt.Sprintf("lv%d", g.rng.Intn(1000)), instruction.Imm(uint16(g.rng.Intn(100))), instruction.Imm(uint16(g.rng.Intn(100))))
	case 3:
		return instruction.Sub(fmt.Sprintf("lv%d", g.rng.Intn(1000)), instruction.Imm(uint16(g.rng.Intn(100))), instruction.Imm(uint16(g.rng.Intn(100))))
	default:
		return instruction.Sleep(uint8(1 + g.rng.Intn(10)))
	}
}
