package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/metrics"
	"github.com/kstaniek/go-flexcan-media/internal/slcan"
	"github.com/kstaniek/go-flexcan-media/internal/transport"
)

// blockingPort simulates a very slow serial port to force TX queue overflow.
type blockingPort struct{ block chan struct{} }

func (p *blockingPort) Read(b []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}
func (p *blockingPort) Write(b []byte) (int, error) { <-p.block; return len(b), nil }
func (p *blockingPort) Close() error                { close(p.block); return nil }

func TestSlcanMirrorTxOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bp := &blockingPort{block: make(chan struct{})}
	openSlcanPort = func(name string, baud int, to time.Duration) (slcan.Port, error) { return bp, nil }
	defer func() { openSlcanPort = slcan.Open }()
	beforeErrs := metrics.Snap().Errors

	p := newPump(nil, nil, 0, testLogger())
	cfg := &appConfig{slcanDev: "fake", slcanBaud: 115200, slcanReadTO: 10 * time.Millisecond}
	var wg sync.WaitGroup
	w, cleanup, err := initSlcan(ctx, cfg, p, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSlcan: %v", err)
	}
	defer cleanup()

	// Fill buffer; first frame enqueues and the worker blocks on Write.
	var overflowErr error
	for i := 0; i < txQueueSize+2; i++ {
		fr := can.Frame{ID: uint32(i)}
		err := w.SendFrame(fr)
		if err != nil && overflowErr == nil {
			overflowErr = err
		}
	}
	if overflowErr == nil {
		t.Fatalf("expected at least one overflow error")
	}
	if !errors.Is(overflowErr, slcan.ErrTxOverflow) {
		t.Fatalf("expected ErrTxOverflow, got %v", overflowErr)
	}
	afterErrs := metrics.Snap().Errors
	if afterErrs == beforeErrs {
		t.Fatalf("expected error metric increment on overflow")
	}
}

func TestPumpSendFrameOverflow(t *testing.T) {
	p := newPump(nil, nil, 0, testLogger())
	// Nothing drains txCh, so filling it forces the reject path.
	var overflowErr error
	for i := 0; i < txQueueSize+2; i++ {
		if err := p.SendFrame(can.Frame{ID: uint32(i)}); err != nil && overflowErr == nil {
			overflowErr = err
		}
	}
	if !errors.Is(overflowErr, transport.ErrTxOverflow) {
		t.Fatalf("expected ErrTxOverflow, got %v", overflowErr)
	}
}
