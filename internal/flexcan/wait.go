package flexcan

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// Bounded busy-wait over PIT channel 2. The channel is programmed to its
// maximum value and left running; elapsed ticks are counterMax minus the
// current value. The primitive is reused sequentially by every blocking
// operation and only ever runs on the mainline context; the interrupt
// path never calls it.
const (
	tickHz     = 1_000_000 // PIT reference: 1 MHz, one tick per microsecond
	counterMax = 0xFFFFFFFF

	// maxWaitTicks caps every bounded wait (~1.05 s at 1 MHz).
	maxWaitTicks = 1 << 20
)

// waiter owns the shared deadline channel.
type waiter struct {
	sys *mmio.Bank
}

// start restarts the deadline counter and returns a deadline observing at
// most bound ticks. bound is clamped to maxWaitTicks.
func (w waiter) start(bound uint32) deadline {
	if bound > maxWaitTicks {
		bound = maxWaitTicks
	}
	tctrl := w.sys.Reg(s32k.PITTCTRL(s32k.PITChDeadline))
	tctrl.ClearBits(s32k.TCTRLTEN)
	w.sys.Reg(s32k.PITLDVAL(s32k.PITChDeadline)).Set(counterMax)
	w.sys.Reg(s32k.PITCVAL(s32k.PITChDeadline)).Set(counterMax)
	tctrl.SetBits(s32k.TCTRLTEN)
	return deadline{sys: w.sys, bound: bound}
}

type deadline struct {
	sys   *mmio.Bank
	bound uint32
}

// expired reports whether the deadline's tick budget has elapsed.
func (d deadline) expired() bool {
	elapsed := counterMax - d.sys.Reg(s32k.PITCVAL(s32k.PITChDeadline)).Get()
	return elapsed >= d.bound
}

// untilSet polls r until every bit in mask reads set, bounded by
// maxWaitTicks. what names the condition in the returned error.
func (w waiter) untilSet(r *mmio.Reg32, mask uint32, what string) error {
	d := w.start(maxWaitTicks)
	for {
		if r.HasBits(mask) {
			return nil
		}
		if d.expired() {
			return fmt.Errorf("%w: %s", ErrFailure, what)
		}
		runtime.Gosched()
	}
}

// untilClear polls r until every bit in mask reads clear, bounded by
// maxWaitTicks.
func (w waiter) untilClear(r *mmio.Reg32, mask uint32, what string) error {
	d := w.start(maxWaitTicks)
	for {
		if r.Get()&mask == 0 {
			return nil
		}
		if d.expired() {
			return fmt.Errorf("%w: %s", ErrFailure, what)
		}
		runtime.Gosched()
	}
}

// ticksFor converts a caller timeout to deadline ticks, clamped to the
// global wait bound.
func ticksFor(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	t := d.Microseconds() // 1 tick per microsecond at tickHz
	if t >= maxWaitTicks {
		return maxWaitTicks
	}
	return uint32(t)
}
