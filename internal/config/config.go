// Package config loads and validates the scheduler engine's configuration
// (spec §6): number of cores, scheduling policy, quantum, batch producer
// cadence, generator bounds, simulated per-instruction delay, and the
// flat memory allocator's sizing. Unknown keys are ignored by yaml.v3's
// default decoding; missing keys fall back to DefaultConfig's values only
// when the caller starts from it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized configuration key from spec §6.
type Config struct {
	NumCPU    int    `yaml:"num-cpu"`
	Scheduler string `yaml:"scheduler"` // "fcfs" or "rr"

	QuantumCycles    int `yaml:"quantum-cycles"` // RR only
	BatchProcessFreq int `yaml:"batch-process-freq"`

	MinIns int `yaml:"min-ins"`
	MaxIns int `yaml:"max-ins"`

	DelaysPerExec int `yaml:"delays-per-exec"`

	MaxOverallMem uint64 `yaml:"max-overall-mem"`
	MemPerFrame   uint64 `yaml:"mem-per-frame"` // reserved for a paged allocator; unused by the flat one
	MinMemPerProc uint64 `yaml:"min-mem-per-proc"`
	MaxMemPerProc uint64 `yaml:"max-mem-per-proc"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfig checks that every key recognized by spec §6 is within
// the bounds the engine requires to start.
func validateConfig(cfg *Config) error {
	if cfg.NumCPU <= 0 {
		return fmt.Errorf("num-cpu must be positive")
	}

	switch cfg.Scheduler {
	case "fcfs", "rr":
	default:
		return fmt.Errorf("scheduler must be \"fcfs\" or \"rr\", got %q", cfg.Scheduler)
	}

	if cfg.Scheduler == "rr" && cfg.QuantumCycles <= 0 {
		return fmt.Errorf("quantum-cycles must be positive under rr")
	}

	if cfg.BatchProcessFreq <= 0 {
		return fmt.Errorf("batch-process-freq must be positive")
	}

	if cfg.MinIns <= 0 || cfg.MaxIns < cfg.MinIns {
		return fmt.Errorf("min-ins/max-ins must satisfy 0 < min-ins <= max-ins")
	}

	if cfg.DelaysPerExec < 0 {
		return fmt.Errorf("delays-per-exec must not be negative")
	}

	if cfg.MaxOverallMem == 0 {
		return fmt.Errorf("max-overall-mem must be positive")
	}

	if cfg.MinMemPerProc == 0 || cfg.MaxMemPerProc < cfg.MinMemPerProc {
		return fmt.Errorf("min-mem-per-proc/max-mem-per-proc must satisfy 0 < min <= max")
	}

	if cfg.MaxMemPerProc > cfg.MaxOverallMem {
		return fmt.Errorf("max-mem-per-proc must not exceed max-overall-mem")
	}

	return nil
}

// DefaultConfig returns the engine's default configuration: 4 cores, RR
// with a quantum of 4, a modest batch cadence, and a memory layout that
// yields a handful of partitions.
func DefaultConfig() *Config {
	return &Config{
		NumCPU:    4,
		Scheduler: "rr",

		QuantumCycles:    4,
		BatchProcessFreq: 10,

		MinIns: 1000,
		MaxIns: 2000,

		DelaysPerExec: 0,

		MaxOverallMem: 16384,
		MemPerFrame:   16,
		MinMemPerProc: 4096,
		MaxMemPerProc: 4096,
	}
}
