package flexcan

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/logging"
	"github.com/kstaniek/go-flexcan-media/internal/media"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// TxCapacity is the number of frames a single Write call can accept.
// Two buffers are dedicated to transmission but each call loads at most
// one frame; this mirrors the peripheral's one-shot transmit codes rather
// than providing a batching facility.
const TxCapacity = 1

const (
	rxMBMask = 0x7C // IFLAG/IMASK bits for MB2..MB6
)

// Group drives all CAN FD controllers of one board as a single interface
// group. One Group exists per physical board; its queues and discard
// counters live for the life of the process.
//
// Concurrency: Write, Read, ReconfigureFilters, Select, Start and Stop
// belong to the mainline context and must be called from a single
// goroutine. The receive interrupt handler is the sole producer into the
// per-controller queues; Read is the sole consumer.
type Group struct {
	hw     Hardware
	n      int
	logger *slog.Logger
	wait   waiter

	queues    []frameQueue
	discarded []atomic.Uint64
}

var (
	_ media.Interface = (*Group)(nil)
	_ media.Lifecycle = (*Group)(nil)
)

// Option customizes a Group.
type Option func(*Group)

// WithLogger overrides the default global logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Group) {
		if l != nil {
			g.logger = l
		}
	}
}

// New builds the driver context for a board with n controllers. n is the
// chip variant's controller count and must be 1..3.
func New(hw Hardware, n int, opts ...Option) (*Group, error) {
	if n < 1 || n > s32k.MaxControllers {
		return nil, fmt.Errorf("%w: controller count %d", ErrBadArgument, n)
	}
	g := &Group{
		hw:        hw,
		n:         n,
		logger:    logging.L(),
		wait:      waiter{sys: hw.System()},
		queues:    make([]frameQueue, n),
		discarded: make([]atomic.Uint64, n),
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// InterfaceCount returns the number of controller instances in the group.
func (g *Group) InterfaceCount() int { return g.n }

// MaxFrameFilters returns the acceptance filter capacity per controller.
func (g *Group) MaxFrameFilters() int { return can.MaxFilters }

// Discarded returns controller i's running count of frames dropped
// because its receive queue was full at arrival time.
func (g *Group) Discarded(i int) uint64 {
	if i < 0 || i >= g.n {
		return 0
	}
	return g.discarded[i].Load()
}

// Start brings up the clock tree, the timestamp and deadline timers, and
// every controller, installing up to len(filters) acceptance filters on
// each. Receive buffers beyond len(filters) are left unconfigured.
func (g *Group) Start(filters []can.Filter) error {
	if len(filters) > can.MaxFilters {
		return fmt.Errorf("%w: %d filters (max %d)", ErrBadArgument, len(filters), can.MaxFilters)
	}
	if err := g.startClocks(); err != nil {
		return err
	}
	g.startTimers()
	for i := 0; i < g.n; i++ {
		if err := g.startController(i, filters); err != nil {
			return fmt.Errorf("controller %d: %w", i, err)
		}
	}
	g.logger.Info("group_started", "controllers", g.n, "filters", len(filters))
	return nil
}

// startClocks walks the external-crystal oscillator, the PLL and the
// system clock select in that fixed order. Each stage polls for lock with
// the shared bounded wait; the source design span forever here, which
// could hang the board on a dead crystal.
func (g *Group) startClocks() error {
	sys := g.hw.System()

	// The deadline counter backs the bounded polls below; enable the PIT
	// module before anything can wait.
	sys.Reg(s32k.PITMCR).ClearBits(s32k.PITMCRMDIS)

	sys.Reg(s32k.SOSCCSR).SetBits(s32k.SOSCCSREN)
	if err := g.wait.untilSet(sys.Reg(s32k.SOSCCSR), s32k.SOSCCSRVALID, "oscillator valid"); err != nil {
		metrics.IncError(metrics.ErrClockWait)
		return err
	}
	sys.Reg(s32k.SPLLCSR).SetBits(s32k.SPLLCSREN)
	if err := g.wait.untilSet(sys.Reg(s32k.SPLLCSR), s32k.SPLLCSRLOCK, "pll lock"); err != nil {
		metrics.IncError(metrics.ErrClockWait)
		return err
	}
	sys.Reg(s32k.RCCR).ReplaceBits(s32k.RCCRSCSMask, s32k.SCSSPLL<<s32k.RCCRSCSShift)
	return nil
}

// startTimers chains PIT channels 0 and 1 into the 64-bit monotonic
// microsecond timestamp source. Channel 2 is programmed on demand by the
// deadline primitive.
func (g *Group) startTimers() {
	sys := g.hw.System()
	low := s32k.PITChTimestampLow
	high := s32k.PITChTimestampHigh

	sys.Reg(s32k.PITTCTRL(low)).ClearBits(s32k.TCTRLTEN)
	sys.Reg(s32k.PITTCTRL(high)).ClearBits(s32k.TCTRLTEN)
	sys.Reg(s32k.PITLDVAL(low)).Set(counterMax)
	sys.Reg(s32k.PITLDVAL(high)).Set(counterMax)
	sys.Reg(s32k.PITCVAL(low)).Set(counterMax)
	sys.Reg(s32k.PITCVAL(high)).Set(counterMax)
	// The high channel counts overflows of the low one, so it must be
	// running before the low channel starts.
	sys.Reg(s32k.PITTCTRL(high)).SetBits(s32k.TCTRLCHN | s32k.TCTRLTEN)
	sys.Reg(s32k.PITTCTRL(low)).SetBits(s32k.TCTRLTEN)
}

// startController brings one controller from gated-off to bus-active.
func (g *Group) startController(i int, filters []can.Filter) error {
	sys := g.hw.System()
	bank := g.hw.Controller(i)

	sys.Reg(s32k.CCGR).SetBits(1 << uint(i))

	// Clock source may only change while the module is disabled.
	mcr := bank.Reg(s32k.MCR)
	mcr.SetBits(s32k.MCRMDIS)
	bank.Reg(s32k.CTRL1).SetBits(s32k.CTRL1CLKSRC)
	mcr.ClearBits(s32k.MCRMDIS)

	// Freeze mode is required before touching bit timing or MB RAM.
	mcr.SetBits(s32k.MCRFRZ | s32k.MCRHALT)
	if err := g.wait.untilSet(mcr, s32k.MCRFRZACK, "freeze ack"); err != nil {
		metrics.IncError(metrics.ErrFreezeWait)
		return err
	}

	bank.Reg(s32k.CBT).Set(s32k.CBTNominal)
	bank.Reg(s32k.FDCBT).Set(s32k.FDCBTData)
	bank.Reg(s32k.FDCTRL).Set(s32k.FDCTRLInit)
	mcr.SetBits(s32k.MCRFDEN | s32k.MCRIRMQ | s32k.MCRSRXDIS)

	// MB RAM and the individual masks survive reset; scrub both.
	bank.Zero(s32k.MBBase, s32k.RXIMRBase)
	bank.Zero(s32k.RXIMRBase, s32k.ControllerWords)

	for k, f := range filters {
		messageBuffer(bank, s32k.NumTxMB+k).arm(f)
	}

	bank.Reg(s32k.IFLAG1).ClearBits(rxMBMask) // discard any stale pending flags
	bank.Reg(s32k.IMASK1).Set(rxMBMask)
	g.hw.EnableReceiveIRQ(i, func() { g.OnReceiveInterrupt(i) })

	mcr.ClearBits(s32k.MCRFRZ | s32k.MCRHALT)
	if err := g.wait.untilClear(mcr, s32k.MCRFRZACK, "freeze exit"); err != nil {
		metrics.IncError(metrics.ErrFreezeWait)
		return err
	}
	if err := g.wait.untilClear(mcr, s32k.MCRNOTRDY, "module ready"); err != nil {
		metrics.IncError(metrics.ErrFreezeWait)
		return err
	}
	return nil
}

// Stop disables every controller and gates its clock off. A controller
// that misses its low-power acknowledgment is logged and counted but does
// not fail the call; teardown always reports success.
func (g *Group) Stop() error {
	sys := g.hw.System()
	for i := 0; i < g.n; i++ {
		g.hw.DisableReceiveIRQ(i)
		bank := g.hw.Controller(i)
		bank.Reg(s32k.MCR).SetBits(s32k.MCRMDIS)
		if err := g.wait.untilSet(bank.Reg(s32k.MCR), s32k.MCRLPMACK, "low-power ack"); err != nil {
			metrics.IncError(metrics.ErrLowPowerWait)
			g.logger.Warn("controller_stop_timeout", "controller", i, "error", err)
		}
		sys.Reg(s32k.CCGR).ClearBits(1 << uint(i))
	}
	g.logger.Info("group_stopped", "controllers", g.n)
	return nil
}

// Write loads at most one frame from frames into an inactive transmit
// buffer of controller iface, trying MB0 then MB1. It returns the number
// of frames accepted: 0 with a nil error means both transmit buffers were
// busy, which the caller observes as lack of progress, not as an error.
func (g *Group) Write(iface int, frames []can.Frame) (int, error) {
	if iface < 0 || iface >= g.n {
		return 0, fmt.Errorf("%w: interface %d", ErrBadArgument, iface)
	}
	if len(frames) > TxCapacity {
		return 0, fmt.Errorf("%w: %d frames (tx capacity %d)", ErrBadArgument, len(frames), TxCapacity)
	}
	if len(frames) == 0 {
		return 0, nil
	}
	bank := g.hw.Controller(iface)
	for mb := 0; mb < s32k.NumTxMB; mb++ {
		v := messageBuffer(bank, mb)
		if code := v.code(); code != s32k.CodeTxInactive && code != 0 {
			continue
		}
		bank.Reg(s32k.IFLAG1).ClearBits(1 << uint(mb)) // clear stale completion flag
		v.loadTx(frames[0])
		metrics.IncCANTx(iface)
		return 1, nil
	}
	return 0, nil
}

// Read pops the oldest received frame from controller iface's queue.
// ok=false with a nil error reports an empty queue, a normal state.
func (g *Group) Read(iface int) (can.Frame, bool, error) {
	if iface < 0 || iface >= g.n {
		return can.Frame{}, false, fmt.Errorf("%w: interface %d", ErrBadArgument, iface)
	}
	fr, ok := g.queues[iface].pop()
	return fr, ok, nil
}

// OnReceiveInterrupt is controller i's receive interrupt handler. It
// drains every flagged receive buffer into the software queue, or counts
// a discard when the queue is full, and always completes the unlock
// protocol so the buffer returns to armed-empty.
//
// Interrupt context: no blocking, no bounded waits, no allocation beyond
// the queue slot copy.
func (g *Group) OnReceiveInterrupt(i int) {
	bank := g.hw.Controller(i)
	ts := g.now()
	flags := bank.Reg(s32k.IFLAG1).Get() & rxMBMask
	if flags == 0 {
		return
	}
	for mb := s32k.NumTxMB; mb < s32k.NumMB; mb++ {
		bit := uint32(1) << uint(mb)
		if flags&bit == 0 {
			continue
		}
		if g.queues[i].free() > 0 {
			fr := messageBuffer(bank, mb).readRx(ts)
			g.queues[i].push(fr)
			metrics.IncCANRx(i)
		} else {
			g.discarded[i].Add(1)
			metrics.IncCANDiscard(i)
		}
		// Mandatory unlock read: releases the buffer back to the
		// peripheral. Skipping it leaves the MB latched and starves
		// further reception on this slot.
		_ = bank.Reg(s32k.TIMER).Get()
		bank.Reg(s32k.IFLAG1).ClearBits(bit)
	}
}

// ReconfigureFilters halts every controller in the group, overwrites the
// first len(filters) receive buffers and masks, and resumes. Filter slots
// beyond len(filters) are left untouched. The operation is global and
// disruptive: bus activity pauses on all controllers even if only one
// logical filter set changed. On a timed-out wait the call fails with
// hardware possibly left partially updated; no rollback is attempted.
func (g *Group) ReconfigureFilters(filters []can.Filter) error {
	if len(filters) > can.MaxFilters {
		return fmt.Errorf("%w: %d filters (max %d)", ErrBadArgument, len(filters), can.MaxFilters)
	}
	for i := 0; i < g.n; i++ {
		bank := g.hw.Controller(i)
		mcr := bank.Reg(s32k.MCR)
		mcr.SetBits(s32k.MCRFRZ | s32k.MCRHALT)
		if err := g.wait.untilSet(mcr, s32k.MCRFRZACK, "freeze ack"); err != nil {
			metrics.IncError(metrics.ErrFreezeWait)
			return fmt.Errorf("controller %d: %w", i, err)
		}
		for k, f := range filters {
			messageBuffer(bank, s32k.NumTxMB+k).arm(f)
		}
		mcr.ClearBits(s32k.MCRFRZ | s32k.MCRHALT)
		if err := g.wait.untilClear(mcr, s32k.MCRFRZACK, "freeze exit"); err != nil {
			metrics.IncError(metrics.ErrFreezeWait)
			return fmt.Errorf("controller %d: %w", i, err)
		}
		if err := g.wait.untilClear(mcr, s32k.MCRNOTRDY, "module ready"); err != nil {
			metrics.IncError(metrics.ErrFreezeWait)
			return fmt.Errorf("controller %d: %w", i, err)
		}
	}
	g.logger.Debug("filters_reconfigured", "filters", len(filters))
	return nil
}

// Select waits until any controller has a ready buffer, up to timeout
// (clamped to the global ~1.05 s wait bound). Readiness is disjunctive:
// a receive buffer not busy receiving, or an inactive transmit buffer
// unless ignoreWriteAvailable. It returns nil on ready and ErrTimeout
// when the bound elapses; ErrTimeout is a normal negative result.
//
// Scanning reads each controller's timer register, which globally unlocks
// that controller's message buffers as a hardware side effect.
func (g *Group) Select(timeout time.Duration, ignoreWriteAvailable bool) error {
	d := g.wait.start(ticksFor(timeout))
	for {
		for i := 0; i < g.n; i++ {
			if g.instanceReady(i, ignoreWriteAvailable) {
				return nil
			}
		}
		if d.expired() {
			metrics.IncSelectTimeout()
			return ErrTimeout
		}
		runtime.Gosched()
	}
}

func (g *Group) instanceReady(i int, ignoreWriteAvailable bool) bool {
	bank := g.hw.Controller(i)
	ready := false
	for mb := s32k.NumTxMB; mb < s32k.NumMB; mb++ {
		if messageBuffer(bank, mb).code()&s32k.CodeBusyBit == 0 {
			ready = true
			break
		}
	}
	if !ready && !ignoreWriteAvailable {
		for mb := 0; mb < s32k.NumTxMB; mb++ {
			if messageBuffer(bank, mb).code() == s32k.CodeTxInactive {
				ready = true
				break
			}
		}
	}
	// Global unlock side effect of scanning this controller.
	_ = bank.Reg(s32k.TIMER).Get()
	return ready
}

// now samples the chained PIT channels into 64-bit monotonic
// microseconds. The high word is re-read to guard against a low-channel
// wrap between the two loads.
func (g *Group) now() uint64 {
	sys := g.hw.System()
	lowReg := sys.Reg(s32k.PITCVAL(s32k.PITChTimestampLow))
	highReg := sys.Reg(s32k.PITCVAL(s32k.PITChTimestampHigh))
	for {
		h1 := counterMax - highReg.Get()
		l := counterMax - lowReg.Get()
		h2 := counterMax - highReg.Get()
		if h1 == h2 {
			return uint64(h1)<<32 | uint64(l)
		}
	}
}
