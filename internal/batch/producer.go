// Package batch implements the periodic batch process producer (spec
// §4.6, C8): a single ticker task that synthesizes a new process every
// batch-process-freq ticks and pushes it onto the ready queue.
package batch

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/generator"
	"github.com/jasonKoogler/cpu-sim/internal/process"
	"github.com/jasonKoogler/cpu-sim/internal/queue"
)

// Config holds the producer's static configuration (spec §6).
type Config struct {
	FreqTicks  int // ticks between spawns
	MinIns     int // inclusive
	MaxIns     int // inclusive
	MemPerProc uint16
}

// IDSource hands out the next process id. The engine owns the single
// counter shared between user-submitted and batch-produced processes.
type IDSource func() int

// Producer drives the periodic generator described in spec §4.6. It is
// started by engine.start_batch() and stopped by engine.stop_batch();
// Stop blocks until the producer's goroutine has exited.
type Producer struct {
	cfg   Config
	queue *queue.ReadyQueue
	gen   generator.Generator
	ids   IDSource

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	produced atomic.Int64

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a Producer. gen supplies instruction streams for newly
// synthesized processes; ids supplies their monotonic numeric ids.
func New(cfg Config, q *queue.ReadyQueue, gen generator.Generator, ids IDSource) *Producer {
	return &Producer{
		cfg:   cfg,
		queue: q,
		gen:   gen,
		ids:   ids,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start launches the producer's ticker goroutine. Returns an error if
// already running.
func (p *Producer) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("batch: producer already running")
	}
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.run()
	return nil
}

// Stop halts the producer and joins its goroutine. Idempotent.
func (p *Producer) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

// Produced returns the total number of processes synthesized so far.
func (p *Producer) Produced() int64 {
	return p.produced.Load()
}

func (p *Producer) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	counter := 0
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			counter++
			if counter < p.cfg.FreqTicks {
				continue
			}
			counter = 0
			p.spawn()
		}
	}
}

func (p *Producer) spawn() {
	p.produced.Add(1)
	id := p.ids()
	name := fmt.Sprintf("p%02d", id)

	target := p.cfg.MinIns
	if p.cfg.MaxIns > p.cfg.MinIns {
		p.mu.Lock()
		target += p.rng.Intn(p.cfg.MaxIns - p.cfg.MinIns + 1)
		p.mu.Unlock()
	}
	if target < 1 {
		target = 1
	}

	proc := process.New(id, name, p.cfg.MemPerProc)
	for _, ins := range p.gen.Generate(target) {
		proc.AddInstruction(ins)
	}
	proc.Finalize()

	p.queue.Push(proc)
}
