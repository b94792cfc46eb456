// Command machine32 is the CLI front end over pkg/machine: assemble
// source, run or single-step a program, and drive the benchmark
// suite. Subcommand layout follows
// _examples/oisee-z80-optimizer/cmd/z80opt/main.go's cobra
// registration pattern; each subcommand's flag surface is the
// teacher's three single-purpose tools (cmd/asm, cmd/vm, cmd/interp)
// folded into one binary.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/slitherrisc/machine32/internal/buildinfo"
	"github.com/slitherrisc/machine32/pkg/bench"
	"github.com/slitherrisc/machine32/pkg/isa"
	"github.com/slitherrisc/machine32/pkg/machine"
	"github.com/slitherrisc/machine32/pkg/memory"
)

func main() {
	log.SetFlags(0)
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose, debug bool

	root := &cobra.Command{
		Use:   "machine32",
		Short: "SlitherRISC machine32: assembler, pipelined simulator, and benchmark runner",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "trace every cycle to stderr")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "pause for input after every cycle")

	root.AddCommand(newAsmCmd())
	root.AddCommand(newRunCmd(&verbose, &debug))
	root.AddCommand(newStepCmd(&verbose, &debug))
	root.AddCommand(newBenchCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the machine32 build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildinfo.String())
			return nil
		},
	}
}

func newAsmCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "asm",
		Short: "Assemble a source file and print its encoded words",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("usage: machine32 asm --file <assembly-code-file>")
			}
			fp, err := os.Open(file)
			if err != nil {
				return err
			}
			defer fp.Close()

			m := machine.New()
			if errs := m.LoadAssembly(fp); len(errs) != 0 {
				for _, e := range errs {
					fmt.Fprintln(os.Stderr, e)
				}
				return fmt.Errorf("asm: %d error(s)", len(errs))
			}
			for i, line := range m.Disassemble() {
				fmt.Printf("%04x: %s\n", i*4, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to assemble")
	return cmd
}

func newRunCmd(verbose, debug *bool) *cobra.Command {
	var file string
	var noCache, noPipeline bool
	var maxCycles int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Assemble and run a program to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMachine(file, noCache, noPipeline)
			if err != nil {
				return err
			}
			cycles := runTraced(m, maxCycles, *verbose, *debug)
			fmt.Printf("halted=%v cycles=%d\n", m.Halted(), cycles)
			printSnapshot(m.Dump())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to run")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the L1/L2 cache hierarchy")
	cmd.Flags().BoolVar(&noPipeline, "no-pipeline", false, "run strictly sequentially instead of pipelined")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", bench.MaxCycles, "cycle budget before giving up on halt")
	return cmd
}

func newStepCmd(verbose, debug *bool) *cobra.Command {
	var file string
	var noCache, noPipeline bool

	cmd := &cobra.Command{
		Use:   "step",
		Short: "Single-step a program, tracing each cycle (implies --verbose --debug)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMachine(file, noCache, noPipeline)
			if err != nil {
				return err
			}
			runTraced(m, bench.MaxCycles, true, true)
			printSnapshot(m.Dump())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file to step through")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the L1/L2 cache hierarchy")
	cmd.Flags().BoolVar(&noPipeline, "no-pipeline", false, "run strictly sequentially instead of pipelined")
	return cmd
}

func loadMachine(file string, noCache, noPipeline bool) (*machine.Machine, error) {
	if file == "" {
		return nil, fmt.Errorf("usage: machine32 run|step --file <assembly-code-file>")
	}
	fp, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fp.Close()

	var opts []machine.Option
	if noCache {
		opts = append(opts, memory.WithCacheDisabled())
	}
	m := machine.New(opts...)
	m.SetPipelined(!noPipeline)
	if errs := m.LoadAssembly(fp); len(errs) != 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return nil, fmt.Errorf("asm: %d error(s)", len(errs))
	}
	return m, nil
}

// runTraced steps m one cycle at a time (rather than calling m.Run),
// since verbose/debug tracing needs a hook between every cycle — the
// same reason the teacher's cmd/interp inlined its own Fetch/Execute
// loop instead of calling a black-box Run.
func runTraced(m *machine.Machine, maxCycles int, verbose, debug bool) int {
	cycles := 0
	for ; cycles < maxCycles; cycles++ {
		if m.Halted() {
			break
		}
		if verbose {
			log.Printf("pc=%#x %s", m.Eng.PC(), disassembleAt(m, m.Eng.PC()))
		}
		if debug {
			log.Print("machine32: paused...")
			fmt.Scanln()
		}
		m.Step()
	}
	return cycles
}

func disassembleAt(m *machine.Machine, pc uint32) string {
	word, err := m.Mem.PeekWord(pc / 4)
	if err != nil {
		return "<out of range>"
	}
	instr, ok := isa.Decode(word)
	if !ok {
		return fmt.Sprintf("<invalid word %#08x>", word)
	}
	return instr.String()
}

func printSnapshot(s machine.Snapshot) {
	fmt.Printf("registers: pc=%#x lr=%#x sp=%#x %s\n", s.Registers.PC, s.Registers.LR, s.Registers.SP, s.Registers.Flags)
	fmt.Printf("  gpr: %v\n", s.Registers.GPR)
	fmt.Printf("pipeline: cycles=%d instructions=%d cpi=%.2f stalls=%d flushes=%d\n",
		s.Pipeline.Cycles, s.Pipeline.Instructions, s.Pipeline.CPI, s.Pipeline.Stalls, s.Pipeline.Flushes)
	fmt.Printf("memory: cycles=%d l1=%+v l2=%+v\n", s.Memory.Cycles, s.Memory.L1, s.Memory.L2)
}

func newBenchCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the exchange-sort and matrix-multiply benchmarks across the cache/pipeline mode matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := bench.RunAll()
			if err != nil {
				return err
			}
			for name, modes := range report {
				fmt.Printf("%s:\n", name)
				for _, mode := range bench.Modes {
					r := modes[mode.Name]
					fmt.Printf("  %-16s cycles=%-8d instructions=%-6d cpi=%.2f ipc=%.2f stalls=%d flushes=%d\n",
						mode.Name, r.Cycles, r.Instructions, r.CyclesPerInstruction, r.InstructionsPerCycle, r.PipelineStalls, r.PipelineFlushes)
				}
			}
			if output != "" {
				data, err := report.SaveJSON()
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				fmt.Printf("results saved to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "json", "", "write the full report as JSON to this path")
	return cmd
}
