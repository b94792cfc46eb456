// Package machine bundles the register file, memory system, and
// pipeline engine into the single unit the CLI's subcommands drive:
// load a program, step it, and read back its state. It is the
// reusable core behind what the teacher's cmd/interp wired inline.
package machine

import (
	"fmt"
	"io"

	"github.com/slitherrisc/machine32/pkg/asm"
	"github.com/slitherrisc/machine32/pkg/isa"
	"github.com/slitherrisc/machine32/pkg/memory"
	"github.com/slitherrisc/machine32/pkg/pipeline"
	"github.com/slitherrisc/machine32/pkg/registers"
)

// haltWord is the program-end convention (spec §6.3): writing this
// word to memory word 0 signals the running program is done.
const haltWord = 0xFFFF

// Machine is the assembled register file + memory system + pipeline
// engine triple, plus the convenience of loading assembly or raw
// words directly.
type Machine struct {
	Regs *registers.File
	Mem  *memory.System
	Eng  *pipeline.Engine
}

// Option configures a Machine's memory system at construction time.
type Option = memory.Option

// New builds a Machine with a fresh register file, a memory system
// configured by opts, and a pipeline engine wired to both.
func New(opts ...Option) *Machine {
	regs := registers.New()
	mem := memory.New(opts...)
	eng := pipeline.New(mem, regs)
	return &Machine{Regs: regs, Mem: mem, Eng: eng}
}

// SetPipelined toggles the engine between pipelined and strictly
// sequential stepping.
func (m *Machine) SetPipelined(enabled bool) { m.Eng.SetPipelined(enabled) }

// LoadWords loads an already-assembled program into memory and resets
// the register file and pipeline engine so execution starts clean.
func (m *Machine) LoadWords(words []uint32) {
	m.Mem.LoadProgram(words)
	m.Regs.Reset()
	m.Eng.Reset()
}

// LoadAssembly assembles source text and loads the result, as
// LoadWords. Assembly errors are returned without loading anything; a
// Machine is left in its prior state when assembly fails.
func (m *Machine) LoadAssembly(r io.Reader) []error {
	words, errs := asm.Assemble(r)
	if len(errs) > 0 {
		return errs
	}
	m.LoadWords(words)
	return nil
}

// Halted reports whether the program-end convention has fired: memory
// word 0 holds 0xFFFF. This is a driver-side peek (spec §6.3), not
// something the pipeline itself checks.
func (m *Machine) Halted() bool {
	word, err := m.Mem.PeekWord(0)
	return err == nil && word == haltWord
}

// Step advances the engine by exactly one cycle.
func (m *Machine) Step() { m.Eng.Step() }

// Run steps the machine until it halts (Halted), or until the PC is
// past the loaded program with every pipeline latch empty, up to
// maxCycles. Words past the program are fetched like any others and
// zeroed memory decodes as "add r0, r0, r0", so the latches only empty
// once the PC has run past the end of memory. An
// invalid memory address encountered along the way (spec §7) is not
// fatal here — the pipeline already turned it into a bubble on the
// affected stage — so Run only reports how many cycles it ran.
func (m *Machine) Run(maxCycles int) (cycles int) {
	programEnd := m.Mem.ProgramEnd() * 4
	for cycles = 0; cycles < maxCycles; cycles++ {
		if m.Halted() {
			return cycles
		}
		if m.Eng.PC() >= programEnd && m.Eng.Idle() {
			return cycles
		}
		m.Step()
	}
	return cycles
}

// Disassemble decodes the loaded program's words back into their
// canonical assembly text, one instruction per line.
func (m *Machine) Disassemble() []string {
	var lines []string
	for i := uint32(0); i < m.Mem.ProgramEnd(); i++ {
		word, err := m.Mem.PeekWord(i)
		if err != nil {
			break
		}
		instr, ok := isa.Decode(word)
		if !ok {
			lines = append(lines, fmt.Sprintf("# <invalid word %#08x>", word))
			continue
		}
		lines = append(lines, instr.String())
	}
	return lines
}

// Snapshot is a point-in-time view of the machine's state, used by the
// CLI's step inspector and the benchmark report.
type Snapshot struct {
	Registers registers.Snapshot
	Pipeline  pipeline.Stats
	Memory    memory.Stats
}

// Dump captures a Snapshot of the machine's current state.
func (m *Machine) Dump() Snapshot {
	return Snapshot{
		Registers: m.Regs.Dump(),
		Pipeline:  m.Eng.GetStats(),
		Memory:    m.Mem.GetStats(),
	}
}
