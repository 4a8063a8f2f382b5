package flexcan

import (
	"testing"

	"github.com/kstaniek/go-flexcan-media/internal/can"
)

func TestQueue_OverflowKeepsOldest(t *testing.T) {
	var q frameQueue
	rejected := 0
	for i := 0; i < QueueCap+5; i++ {
		if !q.push(can.Frame{ID: uint32(i)}) {
			rejected++
		}
	}
	if rejected != 5 {
		t.Fatalf("rejected %d pushes, want 5", rejected)
	}
	for i := 0; i < QueueCap; i++ {
		fr, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: queue drained early", i)
		}
		if fr.ID != uint32(i) {
			t.Fatalf("pop %d: id %d, order broken", i, fr.ID)
		}
	}
	if _, ok := q.pop(); ok {
		t.Fatal("queue not empty after draining capacity")
	}
}

func TestQueue_EmptyPop(t *testing.T) {
	var q frameQueue
	if fr, ok := q.pop(); ok || fr.ID != 0 {
		t.Fatalf("pop on empty: ok=%v fr=%+v", ok, fr)
	}
	if q.free() != QueueCap {
		t.Fatalf("free %d, want %d", q.free(), QueueCap)
	}
}

func TestQueue_WrapAround(t *testing.T) {
	var q frameQueue
	// Cycle more elements than the capacity so both counters pass the
	// ring boundary several times.
	for i := 0; i < 5*QueueCap; i++ {
		if !q.push(can.Frame{ID: uint32(i)}) {
			t.Fatalf("push %d rejected on non-full queue", i)
		}
		fr, ok := q.pop()
		if !ok || fr.ID != uint32(i) {
			t.Fatalf("cycle %d: got %v/%v", i, fr.ID, ok)
		}
	}
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	var q frameQueue
	const total = 10000
	done := make(chan int)

	go func() {
		got := 0
		next := uint32(0)
		for got < total {
			fr, ok := q.pop()
			if !ok {
				continue
			}
			if fr.ID != next {
				t.Errorf("consumed id %d, want %d", fr.ID, next)
				break
			}
			next++
			got++
		}
		done <- got
	}()

	for i := 0; i < total; {
		if q.push(can.Frame{ID: uint32(i)}) {
			i++
		}
	}
	if got := <-done; got != total {
		t.Fatalf("consumed %d frames, want %d", got, total)
	}
}
