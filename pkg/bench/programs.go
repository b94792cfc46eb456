// Package bench holds the two seed benchmark programs (exchange sort
// and 4x4 matrix multiply) and a runner that exercises each across the
// cache/pipeline mode matrix (spec §5.4), reporting the same
// cycles/instructions/CPI/stall/flush statistics the original
// benchmark driver printed.
package bench

// ExchangeSort sorts a 10-element array at word address 0x100 into
// ascending order. Ported from
// original_source/run_benchmarks.py's get_exchange_sort_code, with the
// array size already reduced from the original's 100 elements to 10 —
// kept as-is since the reduction is the actual benchmark the original
// shipped, not a size cut of our own. The original's unconditional
// `JMP label` back-edges don't exist in this grammar (jmp takes only a
// register); each is rewritten as `CMP r0, r0` / `BEQ label`, which is
// always taken since r0-r0 is always zero.
const ExchangeSort = `# Exchange Sort (Bubble Sort) Benchmark
# Sorts an array of 10 integers in ascending order

    MOVI r1, 0x100    # r1 = array base address
    MOVI r2, 10       # r2 = array size
    MOVI r3, 0        # r3 = counter

init_loop:
    CMP r3, r2
    BEQ init_done
    MOVI r4, 10
    SUB r4, r4, r3
    STR r4, [r1, r3]
    ADDI r3, r3, 1
    CMP r0, r0
    BEQ init_loop

init_done:
    MOVI r1, 0x100
    MOVI r2, 10
    MOVI r3, 0

outer_loop:
    MOVI r4, 0
    MOVI r5, 10
    SUB r5, r5, r3
    SUBI r5, r5, 1

inner_loop:
    CMP r4, r5
    BEQ inner_done

    LDR r6, [r1, r4]
    ADDI r7, r4, 1
    LDR r8, [r1, r7]

    CMP r6, r8
    BLT no_swap

    STR r8, [r1, r4]
    STR r6, [r1, r7]

no_swap:
    ADDI r4, r4, 1
    CMP r0, r0
    BEQ inner_loop

inner_done:
    ADDI r3, r3, 1
    CMP r3, r2
    BLT outer_loop

    MOVI r1, 0xFF
    SHL  r1, r1, 8
    ORI  r1, r1, 0xFF
    MOVI r2, 0
    STR r1, [r2, 0]
`

// MatrixMultiply multiplies two 4x4 matrices, A at word address 0x100
// and B at 0x200, storing the product C at 0x300. Ported from
// original_source/run_benchmarks.py's get_matrix_multiply_code, with
// the same `JMP label` -> `CMP r0, r0` / `BEQ label` rewrite as
// ExchangeSort.
const MatrixMultiply = `# Matrix Multiplication Benchmark
# Multiplies two 4x4 matrices

    MOVI r1, 0x100    # r1 = matrix A base address
    MOVI r2, 0x200    # r2 = matrix B base address
    MOVI r3, 0x300    # r3 = matrix C (result) base address

    MOVI r4, 0
    MOVI r5, 16
init_a_loop:
    CMP r4, r5
    BEQ init_b
    ADDI r6, r4, 1
    STR r6, [r1, r4]
    ADDI r4, r4, 1
    CMP r0, r0
    BEQ init_a_loop

init_b:
    MOVI r4, 0
init_b_loop:
    CMP r4, r5
    BEQ init_c
    MOVI r6, 1
    STR r6, [r2, r4]
    ADDI r4, r4, 1
    CMP r0, r0
    BEQ init_b_loop

init_c:
    MOVI r4, 0
init_c_loop:
    CMP r4, r5
    BEQ matrix_mult
    MOVI r6, 0
    STR r6, [r3, r4]
    ADDI r4, r4, 1
    CMP r0, r0
    BEQ init_c_loop

matrix_mult:
    MOVI r4, 0        # r4 = i
    MOVI r5, 4        # r5 = dimension

outer_loop_mm:
    CMP r4, r5
    BEQ mm_done

    MOVI r6, 0        # r6 = j
middle_loop_mm:
    CMP r6, r5
    BEQ next_row

    MOVI r7, 0        # r7 = accumulator
    MOVI r8, 0        # r8 = k

inner_loop_mm:
    CMP r8, r5
    BEQ store_result

    MULI r9, r4, 4
    ADD r9, r9, r8
    MULI r10, r8, 4
    ADD r10, r10, r6

    LDR r11, [r1, r9]
    LDR r12, [r2, r10]

    MUL r13, r11, r12
    ADD r7, r7, r13

    ADDI r8, r8, 1
    CMP r0, r0
    BEQ inner_loop_mm

store_result:
    MULI r9, r4, 4
    ADD r9, r9, r6
    STR r7, [r3, r9]

    ADDI r6, r6, 1
    CMP r0, r0
    BEQ middle_loop_mm

next_row:
    ADDI r4, r4, 1
    CMP r0, r0
    BEQ outer_loop_mm

mm_done:
    MOVI r1, 0xFF
    SHL  r1, r1, 8
    ORI  r1, r1, 0xFF
    MOVI r2, 0
    STR r1, [r2, 0]
`

// Program names the two seed benchmark sources by key, mirroring
// BenchmarkRunner.benchmarks.
var Programs = map[string]string{
	"exchange_sort":   ExchangeSort,
	"matrix_multiply": MatrixMultiply,
}
