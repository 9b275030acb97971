// Package clocksync computes the offset/round-trip arithmetic behind
// CLOCK_REQUEST/CLOCK_RESPONSE (spec.md §4.8): a sleepy node estimates the
// gateway's clock without ever needing to stay awake to listen for one.
package clocksync

import "time"

// Microseconds is a raw timestamp as carried on the wire.
type Microseconds uint64

// Result is the node-side outcome of a clock exchange.
type Result struct {
	// Offset is how far ahead (positive) or behind (negative) the gateway's
	// clock is relative to the node's, in microseconds.
	Offset int64
	// RoundTrip is the estimated request/response latency, in microseconds.
	RoundTrip int64
}

// Estimate computes offset and round-trip from the four timestamps of one
// exchange: t1 (node send), t2 (gateway receive), t3 (gateway send), t4
// (node receive).
//
//	offset    = ((t2 - t1) + (t3 - t4)) / 2
//	roundTrip = (t4 - t1) - (t3 - t2)
func Estimate(t1, t2, t3, t4 Microseconds) Result {
	return Result{
		Offset:    (int64(t2-t1) + int64(t3-t4)) / 2,
		RoundTrip: int64(t4-t1) - int64(t3-t2),
	}
}

// Now returns the current time as microseconds since the Unix epoch, the
// wire's timestamp unit.
func Now() Microseconds {
	return Microseconds(time.Now().UnixMicro())
}
