package sim

import (
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// run is the hardware model: it advances clock locks, timer counters,
// freeze and low-power acknowledgments and transmit completions until
// Close.
func (b *Board) run() {
	defer close(b.done)
	t := time.NewTicker(modelTick)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			b.stepClocks()
			b.stepTimers()
			for i := 0; i < b.n; i++ {
				b.stepController(i)
			}
		}
	}
}

func (b *Board) stepClocks() {
	sosc := b.sys.Reg(s32k.SOSCCSR)
	if sosc.HasBits(s32k.SOSCCSREN) && !b.deadOsc {
		sosc.SetBits(s32k.SOSCCSRVALID)
	}
	spll := b.sys.Reg(s32k.SPLLCSR)
	if spll.HasBits(s32k.SPLLCSREN) && sosc.HasBits(s32k.SOSCCSRVALID) {
		spll.SetBits(s32k.SPLLCSRLOCK)
	}
}

// stepTimers advances the PIT down-counters in real time: one tick per
// microsecond. Channel 1 chains on channel 0's overflow to form the high
// word of the 64-bit timestamp.
func (b *Board) stepTimers() {
	if b.sys.Reg(s32k.PITMCR).HasBits(s32k.PITMCRMDIS) {
		return
	}
	now := time.Now()
	for ch := 0; ch < 4; ch++ {
		tctrl := b.sys.Reg(s32k.PITTCTRL(ch))
		c := &b.pit[ch]
		if !tctrl.HasBits(s32k.TCTRLTEN) {
			c.running = false
			continue
		}
		if !c.running {
			c.running = true
			c.ldval = b.sys.Reg(s32k.PITLDVAL(ch)).Get()
			c.started = now
		}
		elapsed := uint64(now.Sub(c.started) / time.Microsecond)
		if ch == s32k.PITChTimestampHigh {
			// Chained: decrements once per low-channel wrap.
			low := &b.pit[s32k.PITChTimestampLow]
			if low.running {
				wraps := uint32(uint64(now.Sub(low.started)/time.Microsecond) >> 32)
				b.sys.Reg(s32k.PITCVAL(ch)).Set(c.ldval - wraps)
			}
			continue
		}
		b.sys.Reg(s32k.PITCVAL(ch)).Set(c.ldval - uint32(elapsed))
	}
}

func (b *Board) stepController(i int) {
	if !b.sys.Reg(s32k.CCGR).HasBits(1 << uint(i)) {
		return // clock gated off: registers hold their state, nothing runs
	}
	bank := b.ctrl[i]
	mcr := bank.Reg(s32k.MCR)
	v := mcr.Get()

	if v&s32k.MCRMDIS != 0 {
		mcr.SetBits(s32k.MCRLPMACK | s32k.MCRNOTRDY)
		return
	}
	mcr.ClearBits(s32k.MCRLPMACK)

	if v&(s32k.MCRFRZ|s32k.MCRHALT) == s32k.MCRFRZ|s32k.MCRHALT {
		mcr.SetBits(s32k.MCRFRZACK | s32k.MCRNOTRDY)
		return
	}
	mcr.ClearBits(s32k.MCRFRZACK | s32k.MCRNOTRDY)

	b.stepTransmit(i, bank)
	b.rearmReceive(bank)
}

// stepTransmit completes any message buffer holding a transmit-data code:
// the frame goes to the observer and, with loopback, back onto the bus;
// the buffer reverts to inactive with its completion flag raised.
func (b *Board) stepTransmit(i int, bank *mmio.Bank) {
	for mb := 0; mb < s32k.NumTxMB; mb++ {
		base := s32k.MB(mb)
		cs := bank.Reg(base).Get()
		if (cs&s32k.CSCodeMask)>>s32k.CSCodeShift != s32k.CodeTxData {
			continue
		}
		fr := decodeMB(bank, base, cs)
		bank.Reg(base).ReplaceBits(s32k.CSCodeMask, uint32(s32k.CodeTxInactive)<<s32k.CSCodeShift)
		bank.Reg(s32k.IFLAG1).SetBits(1 << uint(mb))
		if b.txObs != nil {
			b.txObs(i, fr)
		}
		if b.loopback {
			for j := 0; j < b.n; j++ {
				if j == i && bank.Reg(s32k.MCR).HasBits(s32k.MCRSRXDIS) {
					continue
				}
				b.Inject(j, fr)
			}
		}
	}
}

// rearmReceive returns consumed receive buffers to armed-empty. A full
// buffer whose pending flag has been cleared has completed the driver's
// unlock protocol and belongs to the peripheral again.
func (b *Board) rearmReceive(bank *mmio.Bank) {
	flags := bank.Reg(s32k.IFLAG1).Get()
	for mb := s32k.NumTxMB; mb < s32k.NumMB; mb++ {
		base := s32k.MB(mb)
		cs := bank.Reg(base)
		code := (cs.Get() & s32k.CSCodeMask) >> s32k.CSCodeShift
		if code == s32k.CodeRxFull && flags&(1<<uint(mb)) == 0 {
			cs.ReplaceBits(s32k.CSCodeMask, uint32(s32k.CodeRxEmpty)<<s32k.CSCodeShift)
		}
	}
}

// Inject delivers a frame to controller i as if it arrived on the bus:
// the first armed-empty receive buffer whose filter accepts the
// identifier is filled and the receive interrupt fires on the calling
// goroutine (the board's interrupt context). It reports false when no
// buffer accepted the frame.
func (b *Board) Inject(i int, fr can.Frame) bool {
	bank := b.ctrl[i]
	// Fold in any pending rearms so back-to-back arrivals on one filter
	// slot do not depend on the model goroutine's tick.
	b.rearmReceive(bank)
	for mb := s32k.NumTxMB; mb < s32k.NumMB; mb++ {
		base := s32k.MB(mb)
		cs := bank.Reg(base)
		if (cs.Get()&s32k.CSCodeMask)>>s32k.CSCodeShift != s32k.CodeRxEmpty {
			continue
		}
		mask := bank.Reg(s32k.RXIMR(mb)).Get()
		mbID := bank.Reg(base+1).Get() & s32k.IDExtMask
		if (fr.ID^mbID)&mask&s32k.IDExtMask != 0 {
			continue
		}
		encodeMB(bank, base, fr)
		cs.Set(s32k.CSEDL | s32k.CSBRS | s32k.CSIDE |
			uint32(fr.DLC)<<s32k.CSDLCShift |
			uint32(s32k.CodeRxFull)<<s32k.CSCodeShift)
		bank.Reg(s32k.IFLAG1).SetBits(1 << uint(mb))
		if bank.Reg(s32k.IMASK1).Get()&(1<<uint(mb)) != 0 {
			b.handlerMu.RLock()
			fn := b.handlers[i]
			b.handlerMu.RUnlock()
			if fn != nil {
				fn()
			}
		}
		return true
	}
	return false
}

// encodeMB stores a frame's identifier and payload into a message
// buffer, big-endian within each 32-bit word, the tail of a non-multiple
// of four occupying the high bytes of its word. The model implements the
// packing independently of the driver so the two cross-check each other.
func encodeMB(bank *mmio.Bank, base int, fr can.Frame) {
	bank.Reg(base + 1).Set(fr.ID & s32k.IDExtMask)
	n := fr.Length()
	for w := 0; w*4 < n; w++ {
		var v uint32
		for k := 0; k < 4 && w*4+k < n; k++ {
			v |= uint32(fr.Data[w*4+k]) << (24 - 8*k)
		}
		bank.Reg(base + 2 + w).Set(v)
	}
}

// decodeMB reads a frame back out of a message buffer.
func decodeMB(bank *mmio.Bank, base int, cs uint32) can.Frame {
	var fr can.Frame
	fr.DLC = uint8((cs & s32k.CSDLCMask) >> s32k.CSDLCShift)
	fr.ID = bank.Reg(base+1).Get() & s32k.IDExtMask
	n := fr.Length()
	for w := 0; w*4 < n; w++ {
		v := bank.Reg(base + 2 + w).Get()
		for k := 0; k < 4 && w*4+k < n; k++ {
			fr.Data[w*4+k] = byte(v >> (24 - 8*k))
		}
	}
	return fr
}
