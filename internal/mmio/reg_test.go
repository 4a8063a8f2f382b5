package mmio

import "testing"

func TestReg32_BitOps(t *testing.T) {
	var r Reg32
	r.Set(0xF0)
	r.SetBits(0x0F)
	if got := r.Get(); got != 0xFF {
		t.Fatalf("got %#x, want 0xFF", got)
	}
	r.ClearBits(0x3C)
	if got := r.Get(); got != 0xC3 {
		t.Fatalf("got %#x, want 0xC3", got)
	}
	if !r.HasBits(0xC0) || r.HasBits(0xC4) {
		t.Fatalf("HasBits wrong for %#x", r.Get())
	}
}

func TestReg32_ReplaceBits(t *testing.T) {
	var r Reg32
	r.Set(0xFFFF_FFFF)
	r.ReplaceBits(0x0000_FF00, 0x0000_1200)
	if got := r.Get(); got != 0xFFFF_12FF {
		t.Fatalf("got %#x, want 0xFFFF_12FF", got)
	}
}

func TestBank_Zero(t *testing.T) {
	b := NewBank(8)
	for i := 0; i < 8; i++ {
		b.Reg(i).Set(0xDEAD)
	}
	b.Zero(2, 6)
	for i := 0; i < 8; i++ {
		want := uint32(0xDEAD)
		if i >= 2 && i < 6 {
			want = 0
		}
		if got := b.Reg(i).Get(); got != want {
			t.Fatalf("reg %d: %#x, want %#x", i, got, want)
		}
	}
}
