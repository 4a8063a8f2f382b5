package mmio

// Bank is a window of consecutive 32-bit registers addressed by word
// offset. A Bank is either backed by process memory (simulated hardware)
// or overlaid on a mapped physical register window.
type Bank struct {
	regs []Reg32
}

// NewBank allocates a zeroed in-memory bank of n words.
func NewBank(n int) *Bank {
	return &Bank{regs: make([]Reg32, n)}
}

// Reg returns the register at word offset off. Offsets are validated by
// construction (the register layout constants are all in range); an
// out-of-range offset panics like any slice access would.
func (b *Bank) Reg(off int) *Reg32 { return &b.regs[off] }

// Words returns the bank size in 32-bit words.
func (b *Bank) Words() int { return len(b.regs) }

// Slice returns a view of n words starting at word offset from, sharing
// the underlying cells. Used to carve per-peripheral banks out of one
// mapped window.
func (b *Bank) Slice(from, n int) *Bank {
	return &Bank{regs: b.regs[from : from+n]}
}

// Zero clears every register in [from, to). Used during bring-up for
// message-buffer RAM, which survives reset and must be scrubbed.
func (b *Bank) Zero(from, to int) {
	for i := from; i < to; i++ {
		b.regs[i].Set(0)
	}
}
