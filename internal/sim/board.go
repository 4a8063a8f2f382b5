// Package sim is a register-level software model of the supported chip:
// SCG clock generator, PIT timers and up to three FlexCAN FD controllers.
// The model runs on its own goroutine, standing in for the hardware state
// machine, and dispatches receive interrupts on the injecting goroutine,
// standing in for the interrupt context. The driver cannot tell it apart
// from a register window as long as it follows the documented protocols.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// Board is a simulated chip with n CAN FD controllers.
type Board struct {
	sys  *mmio.Bank
	ctrl []*mmio.Bank
	n    int

	loopback bool
	deadOsc  bool
	txObs    func(controller int, fr can.Frame)

	handlerMu sync.RWMutex
	handlers  []func()

	pit [4]pitChannel

	stop chan struct{}
	done chan struct{}
}

// pitChannel is the model-side bookkeeping for one PIT channel.
type pitChannel struct {
	running bool
	ldval   uint32
	started time.Time
}

// Option customizes a simulated board.
type Option func(*Board)

// WithLoopback delivers every transmitted frame back onto the board's
// bus, where any controller with a matching armed filter receives it
// (except the sender when self-reception is disabled).
func WithLoopback() Option { return func(b *Board) { b.loopback = true } }

// WithTxObserver registers fn to observe every frame a controller
// transmits. fn runs on the model goroutine.
func WithTxObserver(fn func(controller int, fr can.Frame)) Option {
	return func(b *Board) { b.txObs = fn }
}

// WithDeadOscillator models a board whose crystal never stabilizes: the
// oscillator valid bit stays clear forever, so bring-up must fail its
// bounded clock poll.
func WithDeadOscillator() Option { return func(b *Board) { b.deadOsc = true } }

// modelTick is how often the hardware model advances its state machine.
// The driver's wait bound is about a second, so millisecond-scale model
// latency is comfortably invisible to it.
const modelTick = 200 * time.Microsecond

// New builds a board with n controllers and starts the model goroutine.
func New(n int, opts ...Option) (*Board, error) {
	if n < 1 || n > s32k.MaxControllers {
		return nil, fmt.Errorf("sim: controller count %d out of range", n)
	}
	b := &Board{
		sys:      mmio.NewBank(s32k.SystemWords),
		ctrl:     make([]*mmio.Bank, n),
		n:        n,
		handlers: make([]func(), n),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for i := range b.ctrl {
		b.ctrl[i] = mmio.NewBank(s32k.ControllerWords)
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b, nil
}

// Close stops the model goroutine.
func (b *Board) Close() {
	close(b.stop)
	<-b.done
}

// Controller returns controller i's register bank.
func (b *Board) Controller(i int) *mmio.Bank { return b.ctrl[i] }

// System returns the SCG/PIT bank.
func (b *Board) System() *mmio.Bank { return b.sys }

// EnableReceiveIRQ routes controller i's receive interrupt to fn.
func (b *Board) EnableReceiveIRQ(i int, fn func()) {
	b.handlerMu.Lock()
	b.handlers[i] = fn
	b.handlerMu.Unlock()
}

// DisableReceiveIRQ detaches controller i's receive interrupt, waiting
// out any handler invocation already in flight.
func (b *Board) DisableReceiveIRQ(i int) {
	b.handlerMu.Lock()
	b.handlers[i] = nil
	b.handlerMu.Unlock()
}
