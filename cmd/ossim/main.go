package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jasonKoogler/cpu-sim/internal/config"
	"github.com/jasonKoogler/cpu-sim/internal/engine"
)

func main() {
	configPath := flag.String("config", "configs/default.yaml", "Path to the configuration file")
	verbose := flag.Bool("v", false, "Enable verbose output")
	runFor := flag.Duration("run-for", 0, "Stop automatically after this duration (0 = run until Ctrl-C)")
	autoBatch := flag.Bool("batch", false, "Start the batch process producer immediately")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if *verbose {
		logger.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}

	logger.Println("OS Scheduler Simulator")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("	Cores: %d\n", cfg.NumCPU)
	fmt.Printf("	Scheduler: %s\n", cfg.Scheduler)
	if cfg.Scheduler == "rr" {
		fmt.Printf("	Quantum Cycles: %d\n", cfg.QuantumCycles)
	}
	fmt.Printf("	Batch Process Freq: %d ticks\n", cfg.BatchProcessFreq)
	fmt.Printf("	Instruction Bounds: [%d, %d]\n", cfg.MinIns, cfg.MaxIns)
	fmt.Printf("	Delay Per Exec: %d ms\n", cfg.DelaysPerExec)
	fmt.Printf("	Memory: %d total, %d-%d per process\n", cfg.MaxOverallMem, cfg.MinMemPerProc, cfg.MaxMemPerProc)

	eng := engine.New(cfg)
	if err := eng.Start(); err != nil {
		logger.Fatalf("Failed to start engine: %v", err)
	}

	if *autoBatch {
		if err := eng.StartBatch(); err != nil {
			logger.Fatalf("Failed to start batch producer: %v", err)
		}
		logger.Println("Batch producer started.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var timeoutChan <-chan time.Time
	if *runFor > 0 {
		timeoutChan = time.After(*runFor)
	}

	select {
	case <-sigChan:
		logger.Println("Received termination signal. Shutting down...")
	case <-timeoutChan:
		logger.Println("Run duration elapsed. Shutting down...")
	}

	if err := eng.Stop(); err != nil {
		logger.Fatalf("Engine shutdown failed: %v", err)
	}
	logger.Println("Engine terminated successfully")
}
