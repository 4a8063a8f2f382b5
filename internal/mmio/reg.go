// Package mmio models 32-bit peripheral registers. The driver and the
// hardware (real, via a /dev/mem mapping, or simulated, via a goroutine
// standing in for the peripheral) share the same cells, so every access
// goes through sync/atomic.
package mmio

import "sync/atomic"

// Reg32 is a single 32-bit register cell.
type Reg32 struct {
	v uint32
}

// Get returns the current register value.
func (r *Reg32) Get() uint32 { return atomic.LoadUint32(&r.v) }

// Set stores a full register value.
func (r *Reg32) Set(v uint32) { atomic.StoreUint32(&r.v, v) }

// SetBits sets the given bits, leaving others untouched.
func (r *Reg32) SetBits(mask uint32) {
	for {
		old := atomic.LoadUint32(&r.v)
		if atomic.CompareAndSwapUint32(&r.v, old, old|mask) {
			return
		}
	}
}

// ClearBits clears the given bits, leaving others untouched.
func (r *Reg32) ClearBits(mask uint32) {
	for {
		old := atomic.LoadUint32(&r.v)
		if atomic.CompareAndSwapUint32(&r.v, old, old&^mask) {
			return
		}
	}
}

// HasBits reports whether all bits in mask are set.
func (r *Reg32) HasBits(mask uint32) bool { return r.Get()&mask == mask }

// ReplaceBits writes value into the field selected by mask, preserving
// the rest of the register. value must already be shifted into position.
func (r *Reg32) ReplaceBits(mask, value uint32) {
	for {
		old := atomic.LoadUint32(&r.v)
		if atomic.CompareAndSwapUint32(&r.v, old, (old&^mask)|(value&mask)) {
			return
		}
	}
}
