package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-flexcan-media/internal/can"
	"github.com/kstaniek/go-flexcan-media/internal/flexcan"
	"github.com/kstaniek/go-flexcan-media/internal/hub"
	"github.com/kstaniek/go-flexcan-media/internal/sim"
	"github.com/kstaniek/go-flexcan-media/internal/slcan"
)

// testLogger returns a no-op slog.Logger for tests.
func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeSlcanPort implements slcan.Port for tests.
type fakeSlcanPort struct {
	reads [][]byte
	idx   int
	mu    sync.Mutex
}

func (f *fakeSlcanPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.reads) {
		// after delivering all data, block briefly then return EOF repeatedly
		time.Sleep(10 * time.Millisecond)
		return 0, io.EOF
	}
	chunk := f.reads[f.idx]
	f.idx++
	n := copy(p, chunk)
	return n, nil
}
func (f *fakeSlcanPort) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeSlcanPort) Close() error                { return nil }

// recordPort captures everything written to it.
type recordPort struct {
	mu    sync.Mutex
	wrote bytes.Buffer
}

func (p *recordPort) Read(b []byte) (int, error) {
	time.Sleep(10 * time.Millisecond)
	return 0, io.EOF
}
func (p *recordPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrote.Write(b)
}
func (p *recordPort) Close() error { return nil }

// TestSlcanGatewayInbound validates that a line arriving on the slcan port
// is decoded and queued for bus transmission.
func TestSlcanGatewayInbound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openSlcanPort = func(name string, baud int, to time.Duration) (slcan.Port, error) {
		return &fakeSlcanPort{reads: [][]byte{[]byte("B00000100155\r")}}, nil
	}
	defer func() { openSlcanPort = slcan.Open }()

	p := newPump(nil, nil, 0, testLogger())
	cfg := &appConfig{slcanDev: "fake", slcanBaud: 115200, slcanReadTO: 10 * time.Millisecond}
	var wg sync.WaitGroup
	_, cleanup, err := initSlcan(ctx, cfg, p, testLogger(), &wg)
	if err != nil {
		t.Fatalf("initSlcan: %v", err)
	}
	defer cleanup()

	select {
	case fr := <-p.txCh:
		if fr.ID != 0x100 || fr.Length() != 1 || fr.Data[0] != 0x55 {
			t.Fatalf("unexpected frame: %+v", fr)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for injected frame")
	}
}

// TestPumpEndToEndSim drives a client frame through the pump onto the
// simulated bus, back around through loopback, and out to a hub client
// and the slcan mirror.
func TestPumpEndToEndSim(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board, err := sim.New(2, sim.WithLoopback())
	if err != nil {
		t.Fatalf("sim board: %v", err)
	}
	defer board.Close()
	g, err := flexcan.New(board, 2, flexcan.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("flexcan.New: %v", err)
	}
	if err := g.Start([]can.Filter{{ID: 0, Mask: 0}}); err != nil {
		t.Fatalf("start: %v", err)
	}

	h := hub.New()
	c := &hub.Client{Out: make(chan can.Frame, 4), Closed: make(chan struct{})}
	h.Add(c)

	rp := &recordPort{}
	p := newPump(g, h, 0, testLogger())
	p.mirror = slcan.NewTXWriter(ctx, rp, slcan.Codec{}, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go p.run(ctx, &wg)

	fr := can.Frame{ID: 0x12345, DLC: 2}
	fr.Data[0], fr.Data[1] = 0xAA, 0xBB
	if err := p.SendFrame(fr); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-c.Out:
		if got.ID != fr.ID || got.Length() != 2 || got.Data[0] != 0xAA || got.Data[1] != 0xBB {
			t.Fatalf("unexpected broadcast frame: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for broadcast")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rp.mu.Lock()
		s := rp.wrote.String()
		rp.mu.Unlock()
		if strings.Contains(s, "\r") {
			if !strings.HasPrefix(s, "B") {
				t.Fatalf("unexpected mirror line: %q", s)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for mirror write")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	wg.Wait()
}

// TestPumpReconfigure swaps filters through the pump goroutine and checks
// that a frame excluded by the new set no longer reaches clients.
func TestPumpReconfigure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	board, err := sim.New(1)
	if err != nil {
		t.Fatalf("sim board: %v", err)
	}
	defer board.Close()
	g, err := flexcan.New(board, 1, flexcan.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("flexcan.New: %v", err)
	}
	if err := g.Start([]can.Filter{{ID: 0x100, Mask: can.EFFMask}}); err != nil {
		t.Fatalf("start: %v", err)
	}

	h := hub.New()
	c := &hub.Client{Out: make(chan can.Frame, 4), Closed: make(chan struct{})}
	h.Add(c)
	p := newPump(g, h, 0, testLogger())
	var wg sync.WaitGroup
	wg.Add(1)
	go p.run(ctx, &wg)

	if !p.Reconfigure([]can.Filter{{ID: 0x200, Mask: can.EFFMask}}) {
		t.Fatal("reconfigure rejected")
	}
	// A 0x200 frame can only land once the new filter set is active.
	deadline := time.Now().Add(2 * time.Second)
	match := can.Frame{ID: 0x200, DLC: 1}
	match.Data[0] = 0x01
	for !board.Inject(0, match) {
		if time.Now().After(deadline) {
			t.Fatal("timeout injecting after reconfigure")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case got := <-c.Out:
		if got.ID != 0x200 {
			t.Fatalf("unexpected frame: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for matching frame")
	}

	// The original 0x100 filter is gone.
	old := can.Frame{ID: 0x100, DLC: 1}
	if board.Inject(0, old) {
		t.Fatal("expected frame for the replaced filter to be rejected")
	}

	cancel()
	wg.Wait()
}
