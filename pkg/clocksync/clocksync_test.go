package clocksync

import "testing"

func TestEstimateSymmetricLatency(t *testing.T) {
	// Node sends at t1=1000, gateway receives at t2=1050 (50us skew+latency),
	// gateway sends at t3=1060, node receives at t4=1120 (60us latency back).
	res := Estimate(1000, 1050, 1060, 1120)

	wantOffset := int64(((1050 - 1000) + (1060 - 1120)) / 2)
	wantRTT := int64((1120 - 1000) - (1060 - 1050))
	if res.Offset != wantOffset {
		t.Fatalf("Offset = %d, want %d", res.Offset, wantOffset)
	}
	if res.RoundTrip != wantRTT {
		t.Fatalf("RoundTrip = %d, want %d", res.RoundTrip, wantRTT)
	}
}

func TestEstimateZeroSkewZeroLatency(t *testing.T) {
	res := Estimate(1000, 1000, 1000, 1000)
	if res.Offset != 0 || res.RoundTrip != 0 {
		t.Fatalf("got %+v, want zero offset and round trip", res)
	}
}

func TestEstimateNegativeOffset(t *testing.T) {
	// Node's clock is ahead: gateway sees an earlier t2 than the node's t1.
	res := Estimate(2000, 1900, 1950, 2100)
	if res.Offset >= 0 {
		t.Fatalf("Offset = %d, want negative (node ahead of gateway)", res.Offset)
	}
}
