package isa

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   Instruction
	}{
		{"add", Instruction{Format: Arithmetic, Op: ADD, Rd: 3, Rs1: 4, Rs2: 5}},
		{"addi", Instruction{Format: Arithmetic, Op: ADDI, Rd: 1, Rs1: 2, Imm: -7}},
		{"movi", Instruction{Format: Arithmetic, Op: MOVI, Rd: 9, Imm: 511}},
		{"movi-negative", Instruction{Format: Arithmetic, Op: MOVI, Rd: 9, Imm: -512}},
		{"cmp", Instruction{Format: Arithmetic, Op: CMP, Rs1: 6, Rs2: 7}},
		{"ldr", Instruction{Format: Memory, Op: LDR, Rd: 2, Rs1: 3, Imm: 40}},
		{"str", Instruction{Format: Memory, Op: STR, Rs2: 2, Rs1: 3, Imm: -40}},
		{"jmp", Instruction{Format: Control, Op: JMP, Rs1: 5}},
		{"cal", Instruction{Format: Control, Op: CAL, Rs1: 5}},
		{"flush", Instruction{Format: Control, Op: FLUSH, Rs1: 5}},
		{"beq", Instruction{Format: Control, Op: BEQ, Imm: 100}},
		{"blt", Instruction{Format: Control, Op: BLT, Imm: -100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			word := tc.in.Encode()
			got, ok := Decode(word)
			if !ok {
				t.Fatalf("Decode(%#08x) = not ok, want ok", word)
			}
			if got != tc.in {
				t.Fatalf("Decode(Encode(%+v)) = %+v, want %+v", tc.in, got, tc.in)
			}
		})
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	// ARITHMETIC format with opcode bits 31 (unassigned).
	word := uint32(31) << 25
	if _, ok := Decode(word); ok {
		t.Fatalf("Decode(%#08x) = ok, want not ok", word)
	}
}

func TestOpcodeFormat(t *testing.T) {
	cases := []struct {
		op   Opcode
		want Format
	}{
		{ADD, Arithmetic},
		{MOVI, Arithmetic},
		{LDR, Memory},
		{STR, Memory},
		{JMP, Control},
		{FLUSH, Control},
	}
	for _, tc := range cases {
		if got := tc.op.Format(); got != tc.want {
			t.Errorf("Opcode(%d).Format() = %v, want %v", tc.op, got, tc.want)
		}
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Format: Arithmetic, Op: ADD, Rd: 1, Rs1: 2, Rs2: 3}, "add r1, r2, r3"},
		{Instruction{Format: Arithmetic, Op: MOVI, Rd: 4, Imm: 7}, "movi r4, 7"},
		{Instruction{Format: Arithmetic, Op: CMP, Rs1: 1, Rs2: 2}, "cmp r1, r2"},
		{Instruction{Format: Arithmetic, Op: SHL, Rd: 1, Rs1: 2, Imm: 3}, "shl r1, r2, 3"},
		{Instruction{Format: Memory, Op: LDR, Rd: 1, Rs1: 2, Imm: 8}, "ldr r1, [r2, 8]"},
		{Instruction{Format: Memory, Op: STR, Rs2: 1, Rs1: 2, Imm: 8}, "str r1, [r2, 8]"},
		{Instruction{Format: Control, Op: JMP, Rs1: 3}, "jmp r3"},
		{Instruction{Format: Control, Op: BEQ, Imm: -4}, "beq -4"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestSignExtend(t *testing.T) {
	if got := signExtend(0x3FF, 10); got != -1 {
		t.Errorf("signExtend(0x3FF, 10) = %d, want -1", got)
	}
	if got := signExtend(0x1FF, 10); got != 511 {
		t.Errorf("signExtend(0x1FF, 10) = %d, want 511", got)
	}
	if got := signExtend(0x200, 10); got != -512 {
		t.Errorf("signExtend(0x200, 10) = %d, want -512", got)
	}
}
