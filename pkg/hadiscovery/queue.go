// Package hadiscovery schedules HA_DISCOVERY_MESSAGE delivery for registered
// nodes at a two-speed cadence (spec.md §4.8): a short delay before the
// first message, then a longer steady-state delay, both doubled for sleepy
// peers. It only ever invokes a callback; it performs no MQTT/HTTP I/O
// itself.
package hadiscovery

import (
	"sync"
	"time"
)

// Callback is invoked once per due delivery, with the target node's MAC (as
// a hex string, matching nodetable.MAC.String()).
type Callback func(mac string)

// Config holds the two cadence delays.
type Config struct {
	FirstDelay time.Duration
	NextDelay  time.Duration
}

type entry struct {
	mac    string
	sleepy bool
	due    time.Time
	sent   bool // true once the first delivery has gone out
}

// Queue is a scheduler the gateway's main loop drives by calling Tick
// periodically; it holds no goroutines or timers of its own.
type Queue struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	now     func() time.Time
}

// New builds a Queue using the given cadence config.
func New(cfg Config) *Queue {
	return &Queue{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register schedules mac for its first HA-discovery delivery, FirstDelay (or
// 2*FirstDelay if sleepy) from now. Re-registering an already-scheduled MAC
// resets its schedule.
func (q *Queue) Register(mac string, sleepy bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delay := q.cfg.FirstDelay
	if sleepy {
		delay *= 2
	}
	q.entries[mac] = &entry{mac: mac, sleepy: sleepy, due: q.now().Add(delay)}
}

// Unregister removes mac from the schedule, e.g. on invalidation.
func (q *Queue) Unregister(mac string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, mac)
}

// Tick delivers every due entry via cb and reschedules it at NextDelay (or
// 2*NextDelay if sleepy).
func (q *Queue) Tick(cb Callback) {
	q.mu.Lock()
	now := q.now()
	var due []*entry
	for _, e := range q.entries {
		if !now.Before(e.due) {
			due = append(due, e)
		}
	}
	for _, e := range due {
		delay := q.cfg.NextDelay
		if e.sleepy {
			delay *= 2
		}
		e.due = now.Add(delay)
		e.sent = true
	}
	q.mu.Unlock()

	for _, e := range due {
		cb(e.mac)
	}
}

// Len reports how many MACs are currently scheduled.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
