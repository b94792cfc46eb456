package registers

import "testing"

func TestResetState(t *testing.T) {
	f := New()
	if got := f.Get(SP); got != InitialSP {
		t.Errorf("Get(SP) = %#x, want %#x", got, uint32(InitialSP))
	}
	if got := f.Get(PC); got != 0 {
		t.Errorf("Get(PC) = %#x, want 0", got)
	}
}

func TestZeroRegisterIsReadOnly(t *testing.T) {
	f := New()
	f.Set(0, 42)
	if got := f.Get(0); got != 0 {
		t.Errorf("Get(R0) = %d after Set(R0, 42), want 0", got)
	}
	f.Set(XZR, 42)
	if got := f.Get(XZR); got != 0 {
		t.Errorf("Get(XZR) = %d after Set(XZR, 42), want 0", got)
	}
}

func TestGPRReadWrite(t *testing.T) {
	f := New()
	f.Set(5, 123)
	if got := f.Get(5); got != 123 {
		t.Errorf("Get(5) = %d, want 123", got)
	}
}

func TestSTATReadOnly(t *testing.T) {
	f := New()
	f.UpdateFlags(0, true, false)
	before := f.Get(STAT)
	f.Set(STAT, 0)
	if got := f.Get(STAT); got != before {
		t.Errorf("Get(STAT) = %#x after Set(STAT, 0), want unchanged %#x", got, before)
	}
}

func TestUpdateFlags(t *testing.T) {
	f := New()
	f.UpdateFlags(0, true, false)
	fl := f.Flags()
	if !fl.Zero || !fl.Carry || fl.Negative || fl.Overflow {
		t.Errorf("Flags() = %+v, want Zero=true Carry=true Negative=false Overflow=false", fl)
	}

	f.UpdateFlags(0x80000000, false, true)
	fl = f.Flags()
	if fl.Zero || !fl.Negative || fl.Carry || !fl.Overflow {
		t.Errorf("Flags() = %+v, want Zero=false Negative=true Carry=false Overflow=true", fl)
	}
}

func TestDumpSnapshotsGPR(t *testing.T) {
	f := New()
	f.Set(1, 10)
	f.Set(2, 20)
	snap := f.Dump()
	if snap.GPR[1] != 10 || snap.GPR[2] != 20 {
		t.Errorf("Dump().GPR = %v, want [_, 10, 20, ...]", snap.GPR)
	}
	f.Set(1, 999)
	if snap.GPR[1] != 10 {
		t.Errorf("Dump() snapshot mutated after later Set: GPR[1] = %d, want 10", snap.GPR[1])
	}
}
