package bench

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slitherrisc/machine32/pkg/machine"
	"github.com/slitherrisc/machine32/pkg/memory"
)

// Mode is one point in the cache/pipeline configuration matrix
// (original_source/run_benchmarks.py's self.modes).
type Mode struct {
	Name            string
	CacheEnabled    bool
	PipelineEnabled bool
}

// Modes is the canonical four-point matrix: every combination of cache
// on/off crossed with pipeline on/off.
var Modes = []Mode{
	{Name: "no_cache_no_pipe", CacheEnabled: false, PipelineEnabled: false},
	{Name: "cache_only", CacheEnabled: true, PipelineEnabled: false},
	{Name: "pipe_only", CacheEnabled: false, PipelineEnabled: true},
	{Name: "cache_and_pipe", CacheEnabled: true, PipelineEnabled: true},
}

// MaxCycles bounds a single benchmark run, matching the original's
// 100000-cycle safety valve against a program that never sets the
// halt word.
const MaxCycles = 100000

// Result is one benchmark-in-one-mode's outcome, mirroring the fields
// BenchmarkRunner.run_benchmark collected into its stats dict.
type Result struct {
	Cycles                int     `json:"cycles"`
	Instructions          int     `json:"instructions"`
	CyclesPerInstruction  float64 `json:"cycles_per_instruction"`
	InstructionsPerCycle  float64 `json:"instructions_per_cycle"`
	PipelineStalls        int     `json:"pipeline_stalls"`
	PipelineFlushes       int     `json:"pipeline_flushes"`
	HitMaxCycles          bool    `json:"hit_max_cycles"`
}

// Run assembles source and executes it under mode, returning its
// performance counters. Assembly errors are returned directly rather
// than folded into a zero Result, since a benchmark that fails to
// assemble ran zero cycles of anything.
func Run(source string, mode Mode) (Result, []error) {
	var opts []machine.Option
	if !mode.CacheEnabled {
		opts = append(opts, memory.WithCacheDisabled())
	}
	m := machine.New(opts...)
	m.SetPipelined(mode.PipelineEnabled)

	if errs := m.LoadAssembly(strings.NewReader(source)); len(errs) != 0 {
		return Result{}, errs
	}

	cycles := m.Run(MaxCycles)
	stats := m.Dump()

	result := Result{
		Cycles:          stats.Pipeline.Cycles,
		Instructions:    stats.Pipeline.Instructions,
		PipelineStalls:  stats.Pipeline.Stalls,
		PipelineFlushes: stats.Pipeline.Flushes,
		HitMaxCycles:    cycles >= MaxCycles && !m.Halted(),
	}
	if result.Instructions > 0 {
		result.CyclesPerInstruction = float64(result.Cycles) / float64(result.Instructions)
	}
	if result.Cycles > 0 {
		result.InstructionsPerCycle = float64(result.Instructions) / float64(result.Cycles)
	}
	return result, nil
}

// Report is the full benchmark-name -> mode-name -> Result matrix,
// the shape BenchmarkRunner.save_results wrote out as JSON.
type Report map[string]map[string]Result

// RunAll runs every program in Programs across every Mode in Modes.
// If any program fails to assemble, it returns an error and no report.
func RunAll() (Report, error) {
	report := make(Report, len(Programs))
	for name, source := range Programs {
		perMode := make(map[string]Result, len(Modes))
		for _, mode := range Modes {
			result, errs := Run(source, mode)
			if len(errs) != 0 {
				return nil, fmt.Errorf("bench: assembling %s: %v", name, errs)
			}
			perMode[mode.Name] = result
		}
		report[name] = perMode
	}
	return report, nil
}

// SaveJSON renders the report the way json.dump(..., indent=2) did:
// two-space indentation.
func (r Report) SaveJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
