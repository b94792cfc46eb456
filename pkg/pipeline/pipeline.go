// Package pipeline implements the five-stage in-order pipeline engine:
// FETCH, DECODE, EXECUTE, MEMORY, WRITEBACK, stepped either in
// lock-step (pipelined) or one stage at a time (strictly sequential).
package pipeline

import (
	"github.com/slitherrisc/machine32/pkg/isa"
	"github.com/slitherrisc/machine32/pkg/memory"
	"github.com/slitherrisc/machine32/pkg/registers"
)

// Latch is one pipeline stage's register. A nil Instr means the stage
// holds a bubble.
type Latch struct {
	Instr      *isa.Instruction
	PC         uint32
	Rs1Value   uint32
	Rs2Value   uint32
	Imm        int32
	ALUResult  uint32
	MemoryData uint32
	WriteBack  bool
}

// writesBack reports whether an instruction's opcode commits a value
// to a register on retirement.
func writesBack(op isa.Opcode) bool {
	switch op {
	case isa.CMP, isa.STR, isa.JMP, isa.BEQ, isa.BLT, isa.CAL, isa.FLUSH:
		return false
	default:
		return true
	}
}

// Engine is the pipeline: its four in-flight latches (fetch, decode,
// execute, memory — writeback commits immediately and is not latched),
// the shared register file and memory system it drives, and its
// performance counters.
type Engine struct {
	mem  *memory.System
	regs *registers.File

	pc uint32

	fetch   Latch
	decode  Latch
	execute Latch
	memoryL Latch

	stalled bool
	flushed bool

	enabled         bool // true = pipelined, false = strictly sequential
	sequentialStage int

	cycles       int
	instructions int
	stallCount   int
	flushCount   int

	lastErr error
}

// New builds a pipeline engine over the given memory system and
// register file, starting in pipelined mode.
func New(mem *memory.System, regs *registers.File) *Engine {
	return &Engine{mem: mem, regs: regs, enabled: true}
}

// Reset clears every latch, counter, and the program counter, but
// does not touch the register file or memory system (callers reset
// those separately, e.g. via memory.System.LoadProgram).
func (e *Engine) Reset() {
	e.pc = 0
	e.fetch = Latch{}
	e.decode = Latch{}
	e.execute = Latch{}
	e.memoryL = Latch{}
	e.stalled = false
	e.flushed = false
	e.sequentialStage = 0
	e.cycles = 0
	e.instructions = 0
	e.stallCount = 0
	e.flushCount = 0
	e.lastErr = nil
}

// SetPipelined toggles between pipelined and strictly sequential
// stepping.
func (e *Engine) SetPipelined(enabled bool) { e.enabled = enabled }

// Pipelined reports whether the engine steps in lock-step mode.
func (e *Engine) Pipelined() bool { return e.enabled }

// PC returns the current program counter.
func (e *Engine) PC() uint32 { return e.pc }

// SetPC sets the program counter, e.g. to load a program at a
// non-default entry point.
func (e *Engine) SetPC(pc uint32) { e.pc = pc }

// LastError returns the most recent memory error encountered during a
// MEMORY stage access, if any.
func (e *Engine) LastError() error { return e.lastErr }

// Idle reports whether every latch is empty — the program has
// drained and no further progress is possible without a new fetch.
func (e *Engine) Idle() bool {
	return e.fetch.Instr == nil && e.decode.Instr == nil &&
		e.execute.Instr == nil && e.memoryL.Instr == nil
}

// Stats is a point-in-time snapshot of the pipeline's performance
// counters.
type Stats struct {
	Cycles       int
	Instructions int
	CPI          float64
	Stalls       int
	Flushes      int
}

// GetStats returns the pipeline's cycle/instruction counters and
// derived cycles-per-instruction.
func (e *Engine) GetStats() Stats {
	cpi := 0.0
	if e.instructions > 0 {
		cpi = float64(e.cycles) / float64(e.instructions)
	}
	return Stats{
		Cycles:       e.cycles,
		Instructions: e.instructions,
		CPI:          cpi,
		Stalls:       e.stallCount,
		Flushes:      e.flushCount,
	}
}

// Step advances the engine by one cycle, in whichever mode is
// currently selected.
func (e *Engine) Step() {
	if e.enabled {
		e.stepPipelined()
	} else {
		e.stepSequential()
	}
}

// stepPipelined runs all five stages in WRITEBACK -> MEMORY -> EXECUTE
// -> DECODE -> FETCH order, so each stage reads last-cycle state and
// writes this-cycle state without aliasing (spec.md §9's "reverse-order
// step loop", preserved exactly from the machine this pipeline is
// modeled on).
func (e *Engine) stepPipelined() {
	e.flushed = false

	e.writebackOnce()
	e.memoryOnce()
	e.executeOnce()

	var stalling bool
	if e.flushed {
		e.decode = Latch{}
	} else {
		stalling = e.decodeOnce()
		if stalling {
			e.stallCount++
		}
	}

	switch {
	case e.flushed:
		e.fetch = Latch{}
	case stalling:
		// hold: the instruction that hit a hazard stays in FETCH and
		// is re-decoded next cycle, once the hazard has cleared.
	default:
		e.fetchOnce()
	}

	if !stalling && !e.flushed {
		e.pc += 4
	}
	e.stalled = stalling
	e.cycles++
}

// stepSequential advances exactly one stage per call, cycling FETCH ->
// DECODE -> EXECUTE -> MEMORY -> WRITEBACK -> FETCH ...; the PC only
// advances once a full instruction has retired.
func (e *Engine) stepSequential() {
	switch e.sequentialStage {
	case 0:
		e.stalled = false
		e.flushed = false
		e.fetchOnce()
	case 1:
		e.decodeOnce()
	case 2:
		e.executeOnce()
	case 3:
		e.memoryOnce()
	case 4:
		e.writebackOnce()
		if !e.stalled && !e.flushed {
			e.pc += 4
		}
	}
	e.sequentialStage = (e.sequentialStage + 1) % 5
	e.cycles++
}

func (e *Engine) fetchOnce() {
	word, _, err := e.mem.Read(e.pc, true)
	if err != nil {
		e.lastErr = err
		e.fetch = Latch{}
		return
	}
	instr, ok := isa.Decode(word)
	if !ok {
		e.fetch = Latch{}
		return
	}
	e.fetch = Latch{Instr: &instr, PC: e.pc}
}

// decodeOnce latches FETCH's instruction into DECODE, reads its
// operand registers (R0/XZR as zero) with forwarding from EXECUTE
// (priority) and MEMORY applied, and reports whether a hazard forced
// this instruction to stay in FETCH instead — leaving DECODE a bubble
// for this cycle.
func (e *Engine) decodeOnce() (stall bool) {
	f := e.fetch
	if f.Instr == nil {
		e.decode = Latch{}
		return false
	}
	instr := f.Instr
	if e.hazard(instr) {
		e.decode = Latch{}
		return true
	}

	d := Latch{Instr: instr, PC: f.PC, Imm: instr.Imm, WriteBack: writesBack(instr.Op)}
	if instr.Rs1 != 0 {
		d.Rs1Value = e.regs.Get(int(instr.Rs1))
	}
	if instr.Rs2 != 0 {
		d.Rs2Value = e.regs.Get(int(instr.Rs2))
	}
	e.forward(&d, instr)
	e.decode = d
	return false
}

// hazard reports whether instr must wait another cycle in FETCH
// before decoding: either a load-use hazard (its value, unlike an
// ordinary ALU result, isn't ready until the producing LDR reaches
// MEMORY) or a WAW/WAR clash against an in-flight write.
func (e *Engine) hazard(instr *isa.Instruction) bool {
	ex, mem := e.execute, e.memoryL

	if ex.Instr != nil && ex.Instr.Op == isa.LDR && ex.Instr.Rd != 0 {
		if instr.Rs1 == ex.Instr.Rd || instr.Rs2 == ex.Instr.Rd {
			return true
		}
	}

	if writesBack(instr.Op) && instr.Rd != 0 {
		if ex.Instr != nil && ex.WriteBack && instr.Rd == ex.Instr.Rd {
			return true // WAW against EXECUTE
		}
		if mem.Instr != nil && mem.WriteBack && instr.Rd == mem.Instr.Rd {
			return true // WAW against MEMORY
		}
		if ex.Instr != nil && (instr.Rd == ex.Instr.Rs1 || instr.Rd == ex.Instr.Rs2) {
			return true // WAR against EXECUTE
		}
		if mem.Instr != nil && (instr.Rd == mem.Instr.Rs1 || instr.Rd == mem.Instr.Rs2) {
			return true // WAR against MEMORY
		}
	}
	return false
}

// forward implements the RAW resolution: EXECUTE's alu_result takes
// priority over MEMORY's result; a load in MEMORY forwards its
// memory_data, everything else forwards alu_result. Never forwards
// from R0. A load still in EXECUTE forwards nothing (see the
// load-use check in decodeOnce): its alu_result is an address, not
// data.
func (e *Engine) forward(d *Latch, instr *isa.Instruction) {
	var rs1Done, rs2Done bool
	ex := e.execute
	if ex.Instr != nil && ex.WriteBack && ex.Instr.Rd != 0 && ex.Instr.Op != isa.LDR {
		if instr.Rs1 == ex.Instr.Rd {
			d.Rs1Value = ex.ALUResult
			rs1Done = true
		}
		if instr.Rs2 == ex.Instr.Rd {
			d.Rs2Value = ex.ALUResult
			rs2Done = true
		}
	}
	mem := e.memoryL
	if mem.Instr != nil && mem.WriteBack && mem.Instr.Rd != 0 {
		value := mem.ALUResult
		if mem.Instr.Op == isa.LDR {
			value = mem.MemoryData
		}
		if !rs1Done && instr.Rs1 == mem.Instr.Rd {
			d.Rs1Value = value
		}
		if !rs2Done && instr.Rs2 == mem.Instr.Rd {
			d.Rs2Value = value
		}
	}
}

func (e *Engine) executeOnce() {
	d := e.decode
	if d.Instr == nil {
		e.execute = Latch{}
		return
	}
	instr := d.Instr
	ex := Latch{Instr: instr, PC: d.PC, Rs1Value: d.Rs1Value, Rs2Value: d.Rs2Value, Imm: d.Imm}

	switch instr.Format {
	case isa.Arithmetic:
		ex.ALUResult = e.alu(instr.Op, d.Rs1Value, d.Rs2Value, d.Imm)
		ex.WriteBack = instr.Op != isa.CMP
	case isa.Memory:
		ex.ALUResult = uint32(int32(d.Rs1Value) + d.Imm)
		ex.WriteBack = instr.Op == isa.LDR
	case isa.Control:
		e.executeControl(instr, d)
		ex.WriteBack = false
	}
	e.execute = ex
}

func (e *Engine) alu(op isa.Opcode, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	var result uint32
	switch op {
	case isa.ADD:
		result = rs1 + rs2
	case isa.ADDS:
		result = rs1 + rs2
		e.regs.UpdateFlags(result, false, false)
	case isa.ADDI:
		result = rs1 + u
	case isa.ADDIS:
		result = rs1 + u
		e.regs.UpdateFlags(result, false, false)
	case isa.SUB:
		result = rs1 - rs2
	case isa.SUBS:
		result = rs1 - rs2
		e.regs.UpdateFlags(result, false, false)
	case isa.SUBI:
		result = rs1 - u
	case isa.SUBIS:
		result = rs1 - u
		e.regs.UpdateFlags(result, false, false)
	case isa.MUL:
		result = rs1 * rs2
	case isa.MULI:
		result = rs1 * u
	case isa.DIV:
		if rs2 != 0 {
			result = rs1 / rs2
		}
	case isa.DIVI:
		if imm != 0 {
			result = rs1 / u
		}
	case isa.AND:
		result = rs1 & rs2
	case isa.ANDI:
		result = rs1 & u
	case isa.OR:
		result = rs1 | rs2
	case isa.ORI:
		result = rs1 | u
	case isa.XOR:
		result = rs1 ^ rs2
	case isa.XORI:
		result = rs1 ^ u
	case isa.SHL:
		result = rs1 << uint(imm&0x1F)
	case isa.SHR:
		result = rs1 >> uint(imm&0x1F)
	case isa.CMP:
		result = rs1 - rs2
		e.regs.UpdateFlags(result, false, false)
	case isa.MOD:
		if rs2 != 0 {
			result = rs1 % rs2
		}
	case isa.MODI:
		if imm != 0 {
			result = rs1 % u
		}
	case isa.MOV:
		result = rs1
	case isa.MOVI:
		result = u
	}
	return result
}

// executeControl resolves branches and jumps, redirecting the PC and
// raising a flush on any taken control transfer, and invokes the
// memory system's cache-line flush for FLUSH.
func (e *Engine) executeControl(instr *isa.Instruction, d Latch) {
	switch instr.Op {
	case isa.JMP, isa.CAL:
		e.pc = d.Rs1Value + uint32(d.Imm)
		e.raiseFlush()
	case isa.BEQ:
		if e.regs.Flags().Zero {
			e.pc = uint32(int32(d.PC) + d.Imm)
			e.raiseFlush()
		}
	case isa.BLT:
		if e.regs.Flags().Negative {
			e.pc = uint32(int32(d.PC) + d.Imm)
			e.raiseFlush()
		}
	case isa.FLUSH:
		if err := e.mem.FlushCacheLine(d.Rs1Value); err != nil {
			e.lastErr = err
		}
	}
}

func (e *Engine) raiseFlush() {
	e.flushed = true
	e.flushCount++
}

func (e *Engine) memoryOnce() {
	ex := e.execute
	e.execute = Latch{}
	if ex.Instr == nil {
		e.memoryL = Latch{}
		return
	}
	m := Latch{
		Instr:     ex.Instr,
		PC:        ex.PC,
		Rs1Value:  ex.Rs1Value,
		Rs2Value:  ex.Rs2Value,
		Imm:       ex.Imm,
		ALUResult: ex.ALUResult,
		WriteBack: ex.WriteBack,
	}
	if ex.Instr.Format == isa.Memory {
		addr := ex.ALUResult
		switch ex.Instr.Op {
		case isa.LDR:
			data, _, err := e.mem.Read(addr, false)
			if err != nil {
				e.lastErr = err
			}
			m.MemoryData = data
			m.WriteBack = true
		case isa.STR:
			if _, err := e.mem.Write(addr, ex.Rs2Value); err != nil {
				e.lastErr = err
			}
			m.WriteBack = false
		}
	}
	e.memoryL = m
}

func (e *Engine) writebackOnce() {
	m := e.memoryL
	e.memoryL = Latch{}
	if m.Instr == nil {
		return
	}
	if m.WriteBack && m.Instr.Rd != 0 {
		value := m.ALUResult
		if m.Instr.Op == isa.LDR {
			value = m.MemoryData
		}
		e.regs.Set(int(m.Instr.Rd), value)
	}
	e.instructions++
}
