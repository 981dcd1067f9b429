package generator

import (
	"testing"

	"github.com/jasonKoogler/cpu-sim/internal/instruction"
)

func TestGenerateProducesExactExpandedCount(t *testing.T) {
	g := New(1)
	for _, target := range []int{1, 5, 17, 50} {
		stream := g.Generate(target)
		if got := instruction.ExpandedCount(stream); got != target {
			t.Errorf("Generate(%d): ExpandedCount() = %d, want %d", target, got, target)
		}
	}
}

func TestGenerateIsDeterministicForFixedSeed(t *testing.T) {
	a := New(42).Generate(30)
	b := New(42).Generate(30)
	if len(a) != len(b) {
		t.Fatalf("same-seed generators produced different lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			t.Errorf("instruction %d: kind mismatch %v vs %v", i, a[i].Kind, b[i].Kind)
		}
	}
}

func TestGenerateRespectsMaxForDepth(t *testing.T) {
	g := New(7)
	stream := g.Generate(200)
	var checkDepth func(ins []instruction.Instruction, depth int) int
	maxSeen := 0
	checkDepth = func(ins []instruction.Instruction, depth int) int {
		max := depth
		for _, in := range ins {
			if in.Kind == instruction.FOR {
				if d := checkDepth(in.Body, depth+1); d > max {
					max = d
				}
			}
		}
		return max
	}
	maxSeen = checkDepth(stream, 0)
	if maxSeen > maxForDepth+1 {
		t.Errorf("nested FOR depth = %d, want <= %d", maxSeen, maxForDepth+1)
	}
}
