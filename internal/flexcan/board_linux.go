//go:build linux

package flexcan

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/mmio"
	"github.com/kstaniek/go-flexcan-media/internal/s32k"
)

// MappedBoard is a Hardware implementation over a physical register
// window (/dev/mem or a UIO node), for running the driver on a host with
// the peripheral exposed to userspace. Hardware interrupt lines are not
// deliverable to a process, so receive interrupts are emulated UIO-style:
// one goroutine per controller polls the pending flags and invokes the
// handler when a masked flag rises.
type MappedBoard struct {
	mapping *mmio.Mapping
	sys     *mmio.Bank
	ctrl    []*mmio.Bank

	mu    sync.Mutex
	lines []*irqLine
}

type irqLine struct {
	stop chan struct{}
	done chan struct{}
}

// irqPollInterval bounds the added receive latency of the emulated
// interrupt lines.
const irqPollInterval = 50 * time.Microsecond

// OpenMapped maps the system bank followed by n contiguous controller
// banks at physical address base.
func OpenMapped(dev string, base int64, n int) (*MappedBoard, error) {
	if n < 1 || n > s32k.MaxControllers {
		return nil, fmt.Errorf("%w: controller count %d", ErrBadArgument, n)
	}
	words := s32k.SystemWords + n*s32k.ControllerWords
	size := words * 4
	if page := os.Getpagesize(); size%page != 0 {
		size += page - size%page
	}
	m, err := mmio.Map(dev, base, size)
	if err != nil {
		return nil, err
	}
	b := &MappedBoard{
		mapping: m,
		sys:     m.Slice(0, s32k.SystemWords),
		ctrl:    make([]*mmio.Bank, n),
		lines:   make([]*irqLine, n),
	}
	for i := 0; i < n; i++ {
		b.ctrl[i] = m.Slice(s32k.SystemWords+i*s32k.ControllerWords, s32k.ControllerWords)
	}
	return b, nil
}

func (b *MappedBoard) Controller(i int) *mmio.Bank { return b.ctrl[i] }
func (b *MappedBoard) System() *mmio.Bank          { return b.sys }

// EnableReceiveIRQ starts the polling goroutine standing in for
// controller i's interrupt line.
func (b *MappedBoard) EnableReceiveIRQ(i int, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lines[i] != nil {
		return
	}
	line := &irqLine{stop: make(chan struct{}), done: make(chan struct{})}
	b.lines[i] = line
	bank := b.ctrl[i]
	go func() {
		defer close(line.done)
		t := time.NewTicker(irqPollInterval)
		defer t.Stop()
		for {
			select {
			case <-line.stop:
				return
			case <-t.C:
				pending := bank.Reg(s32k.IFLAG1).Get() & bank.Reg(s32k.IMASK1).Get()
				if pending != 0 {
					fn()
				}
			}
		}
	}()
}

// DisableReceiveIRQ stops controller i's polling goroutine and waits for
// any in-flight handler invocation to finish.
func (b *MappedBoard) DisableReceiveIRQ(i int) {
	b.mu.Lock()
	line := b.lines[i]
	b.lines[i] = nil
	b.mu.Unlock()
	if line == nil {
		return
	}
	close(line.stop)
	<-line.done
}

// Close releases all interrupt lines and the register mapping.
func (b *MappedBoard) Close() error {
	for i := range b.lines {
		b.DisableReceiveIRQ(i)
	}
	return b.mapping.Close()
}
