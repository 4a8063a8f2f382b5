package main

import "time"

const (
	txQueueSize      = 1024 // capacity of the async TX rings (CAN transmit queue and slcan mirror)
	slcanReadBufSize = 4096 // per read() buffer for the slcan gateway
	// largeBufferReclaimThreshold is the capacity above which the temporary
	// slcan RX accumulation buffer is discarded and reallocated once empty,
	// so bursts of line noise do not permanently retain large backing arrays.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond

	// selectPollTimeout bounds each media wait so the pump notices context
	// cancellation, queued transmits and filter reloads between polls.
	selectPollTimeout = 5 * time.Millisecond
	// rxDrainBudget caps frames drained per controller per wakeup so a
	// chatty controller cannot starve its neighbors.
	rxDrainBudget = 64
	// idlePause paces the pump on a quiet bus: readiness is level triggered
	// on idle receive buffers, so the media wait alone does not block.
	idlePause = 200 * time.Microsecond
)
