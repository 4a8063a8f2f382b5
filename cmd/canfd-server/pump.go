package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
	"github.com/kstaniek/go-flexcan-media/internal/hub"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
	"github.com/kstaniek/go-flexcan-media/internal/transport"
)

// pump owns the media group. Every mainline driver call (Write, Read,
// Select, ReconfigureFilters, Stop) happens on its goroutine; other
// goroutines only hand frames over through channels.
type pump struct {
	g        *flexcan.Group
	h        *hub.Hub
	mirror   transport.FrameSink // optional slcan mirror, nil when disabled
	txCh     chan can.Frame
	reconfCh chan []can.Filter
	txIface  int
	pending  *can.Frame
	l        *slog.Logger
}

func newPump(g *flexcan.Group, h *hub.Hub, txIface int, l *slog.Logger) *pump {
	return &pump{
		g:        g,
		h:        h,
		txCh:     make(chan can.Frame, txQueueSize),
		reconfCh: make(chan []can.Filter, 1),
		txIface:  txIface,
		l:        l,
	}
}

// SendFrame queues fr for transmission on the bus. Non-blocking; a full
// queue rejects the frame.
func (p *pump) SendFrame(fr can.Frame) error {
	select {
	case p.txCh <- fr:
		return nil
	default:
		metrics.IncError(metrics.ErrCANOver)
		return transport.ErrTxOverflow
	}
}

// Reconfigure asks the pump to swap the acceptance filters on its next
// iteration. Returns false when a reload is already queued.
func (p *pump) Reconfigure(filters []can.Filter) bool {
	select {
	case p.reconfCh <- filters:
		return true
	default:
		return false
	}
}

func (p *pump) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if err := p.g.Stop(); err != nil {
			p.l.Warn("can_stop_error", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case filters := <-p.reconfCh:
			if err := p.g.ReconfigureFilters(filters); err != nil {
				p.l.Warn("filter_reconfigure_error", "error", err)
			} else {
				p.l.Info("filters_reconfigured", "count", len(filters))
			}
			continue
		default:
		}
		p.pumpTx()
		waitTx := p.pending != nil
		if err := p.g.Select(selectPollTimeout, !waitTx); err != nil {
			continue // nothing ready, poll again
		}
		if p.pumpRx() == 0 && p.pending == nil {
			// An idle receive buffer already counts as ready, so a quiet
			// bus returns immediately. Pace the loop.
			time.Sleep(idlePause)
		}
	}
}

// pumpTx drains queued frames into the transmit buffers. A frame that
// finds both buffers busy stays pending and is retried next iteration.
func (p *pump) pumpTx() {
	for {
		if p.pending == nil {
			select {
			case fr := <-p.txCh:
				p.pending = &fr
			default:
				return
			}
		}
		n, err := p.g.Write(p.txIface, []can.Frame{*p.pending})
		if err != nil {
			metrics.IncError(metrics.ErrCANWrite)
			p.l.Warn("can_write_error", "error", err)
			p.pending = nil
			continue
		}
		if n == 0 {
			return
		}
		p.pending = nil
	}
}

// pumpRx drains received frames from every controller, broadcasting each
// to TCP clients and the slcan mirror. Returns the number drained.
func (p *pump) pumpRx() int {
	total := 0
	for i := 0; i < p.g.InterfaceCount(); i++ {
		for k := 0; k < rxDrainBudget; k++ {
			fr, ok, err := p.g.Read(i)
			if err != nil || !ok {
				break
			}
			p.h.Broadcast(fr)
			if p.mirror != nil {
				_ = p.mirror.SendFrame(fr) // drops counted by the mirror's hooks
			}
			total++
		}
	}
	return total
}
