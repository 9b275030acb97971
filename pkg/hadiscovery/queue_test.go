package hadiscovery

import (
	"testing"
	"time"
)

func newTestQueue(cfg Config, start time.Time) (*Queue, *time.Time) {
	q := New(cfg)
	clock := start
	q.now = func() time.Time { return clock }
	return q, &clock
}

func TestRegisterSchedulesFirstDelay(t *testing.T) {
	start := time.Now()
	q, clock := newTestQueue(Config{FirstDelay: 10 * time.Second, NextDelay: time.Minute}, start)
	q.Register("aabbccddeeff", false)

	var fired []string
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 0 {
		t.Fatal("expected no delivery before first delay elapses")
	}

	*clock = start.Add(10 * time.Second)
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 1 || fired[0] != "aabbccddeeff" {
		t.Fatalf("expected one delivery at first delay, got %v", fired)
	}
}

func TestSleepyPeerGetsDoubledCadence(t *testing.T) {
	start := time.Now()
	q, clock := newTestQueue(Config{FirstDelay: 10 * time.Second, NextDelay: time.Minute}, start)
	q.Register("sleepy-mac", true)

	*clock = start.Add(10 * time.Second)
	var fired []string
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 0 {
		t.Fatal("expected sleepy peer's first delivery to wait 2x the base delay")
	}

	*clock = start.Add(20 * time.Second)
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 1 {
		t.Fatal("expected sleepy peer's delivery once doubled delay elapses")
	}
}

func TestTickReschedulesAtNextDelay(t *testing.T) {
	start := time.Now()
	q, clock := newTestQueue(Config{FirstDelay: time.Second, NextDelay: time.Minute}, start)
	q.Register("aabbccddeeff", false)

	*clock = start.Add(time.Second)
	var fired []string
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 1 {
		t.Fatalf("expected first delivery, got %v", fired)
	}

	*clock = start.Add(2 * time.Second)
	fired = nil
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 0 {
		t.Fatal("expected no delivery before NextDelay elapses")
	}

	*clock = start.Add(time.Minute + time.Second)
	q.Tick(func(mac string) { fired = append(fired, mac) })
	if len(fired) != 1 {
		t.Fatal("expected delivery once NextDelay elapses")
	}
}

func TestUnregisterRemovesEntry(t *testing.T) {
	q := New(Config{FirstDelay: time.Second, NextDelay: time.Minute})
	q.Register("aabbccddeeff", false)
	if q.Len() != 1 {
		t.Fatal("expected one registered entry")
	}
	q.Unregister("aabbccddeeff")
	if q.Len() != 0 {
		t.Fatal("expected entry to be removed")
	}
}
