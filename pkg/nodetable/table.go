// Package nodetable is the gateway's bounded, MAC-keyed store of peer
// session state. Capacity is fixed at construction time; once full, inserts
// fail rather than grow, so memory use never depends on how many strangers
// send frames at a registered gateway.
package nodetable

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// MAC is a 6-byte hardware address, the table's key type.
type MAC [6]byte

func (m MAC) String() string {
	return hex.EncodeToString(m[:])
}

// Status is a peer session's place in the handshake lifecycle.
type Status int

const (
	Unregistered Status = iota
	InitPending
	ServerHelloSent
	WaitingConfirmation
	Registered
	KeyExpired
	Sleepy
)

func (s Status) String() string {
	switch s {
	case Unregistered:
		return "Unregistered"
	case InitPending:
		return "InitPending"
	case ServerHelloSent:
		return "ServerHelloSent"
	case WaitingConfirmation:
		return "WaitingConfirmation"
	case Registered:
		return "Registered"
	case KeyExpired:
		return "KeyExpired"
	case Sleepy:
		return "Sleepy"
	default:
		return "Unknown"
	}
}

// Node is one peer's session record (spec.md §3, expanded per SPEC_FULL §3).
type Node struct {
	MAC    MAC
	Status Status
	Name   string

	SessionKey  [32]byte
	NoncePrefix [8]byte // derived alongside SessionKey, not exchanged in the handshake
	KeyID       byte

	UpCounter      uint16
	DownCounter    uint16
	UpStrikes      int
	DownStrikes    int
	BroadcastSeen  uint16 // last-seen SENSOR_BRCAST_DATA counter from this node, for replay defence

	// Sleepy is a capability flag, not something negotiated live over the
	// radio: a deep-sleep node has no spare round-trip to announce itself
	// before going back to sleep, so it is provisioned out-of-band (same as
	// node_name/gateway_mac) and looked up by MAC at registration time.
	Sleepy bool

	// RSSI is the last-observed signal strength, in dBm, of a frame from
	// this peer. Stays 0 on transports (e.g. the UDP stand-in for ESP-NOW)
	// that have no physical radio signal to report.
	RSSI int8

	PacketsOK        uint64
	PacketsErr       uint64
	BroadcastKeySent bool

	// Ephemeral handshake state, held only during InitPending/ServerHelloSent
	// and zeroed once the session key is derived or the handshake times out.
	HandshakeEpochX []byte
	HandshakeEpochY []byte
	HandshakeIVNode [12]byte
	HandshakeIVGW   [12]byte
	HandshakeStart  time.Time

	CreatedAt          time.Time
	RegisteredAt       time.Time
	LastActivity       time.Time
	InvalidationReason byte
}

// ZeroHandshakeState clears ephemeral DH material once it is no longer
// needed, leaving the rest of the record intact.
func (n *Node) ZeroHandshakeState() {
	for i := range n.HandshakeEpochX {
		n.HandshakeEpochX[i] = 0
	}
	for i := range n.HandshakeEpochY {
		n.HandshakeEpochY[i] = 0
	}
	n.HandshakeEpochX = nil
	n.HandshakeEpochY = nil
}

var (
	ErrTableFull   = errors.New("nodetable: table is at capacity")
	ErrNotFound    = errors.New("nodetable: no record for that key")
	ErrNameTaken   = errors.New("nodetable: node name already registered")
)

// Table is the bounded associative store described by spec.md §4.6: insert,
// find, remove, iterate over at most Capacity peers.
type Table struct {
	mu       sync.RWMutex
	capacity int
	byMAC    map[MAC]*Node
	byName   map[string]MAC // only non-empty names are indexed
}

// New builds a table with the given capacity (spec's N_MAX, typically 100).
func New(capacity int) *Table {
	return &Table{
		capacity: capacity,
		byMAC:    make(map[MAC]*Node, capacity),
		byName:   make(map[string]MAC, capacity),
	}
}

// FindByMAC returns the record for mac, if any.
func (t *Table) FindByMAC(mac MAC) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byMAC[mac]
	return n, ok
}

// FindByName returns the registered peer holding name, if any. Empty names
// are never indexed and always report not-found.
func (t *Table) FindByName(name string) (*Node, bool) {
	if name == "" {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	mac, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.byMAC[mac], true
}

// Insert stores n, keyed by n.MAC. A MAC already present is replaced (a new
// handshake from the same node supersedes its prior session, per spec.md
// §4.2's "CLIENT_HELLO from same MAC" transition). A brand-new MAC fails
// with ErrTableFull once the table is at capacity.
func (t *Table) Insert(n *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byMAC[n.MAC]; !exists && len(t.byMAC) >= t.capacity {
		return ErrTableFull
	}
	if prev, exists := t.byMAC[n.MAC]; exists && prev.Name != "" {
		delete(t.byName, prev.Name)
	}
	t.byMAC[n.MAC] = n
	if n.Name != "" {
		t.byName[n.Name] = n.MAC
	}
	return nil
}

// Rename updates a node's name, enforcing uniqueness across Registered
// peers. Returns ErrNameTaken if another node already holds it.
func (t *Table) Rename(mac MAC, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byMAC[mac]
	if !ok {
		return ErrNotFound
	}
	if name != "" {
		if holder, taken := t.byName[name]; taken && holder != mac {
			return ErrNameTaken
		}
	}
	if n.Name != "" {
		delete(t.byName, n.Name)
	}
	n.Name = name
	if name != "" {
		t.byName[name] = mac
	}
	return nil
}

// Remove deletes mac's record, if present.
func (t *Table) Remove(mac MAC) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byMAC[mac]; ok {
		if n.Name != "" {
			delete(t.byName, n.Name)
		}
		delete(t.byMAC, mac)
	}
}

// CountActive returns the number of peers currently in Registered state.
func (t *Table) CountActive() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, rec := range t.byMAC {
		if rec.Status == Registered {
			n++
		}
	}
	return n
}

// Count returns the total number of records held, regardless of status.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byMAC)
}

// IterateActive calls fn for every Registered peer, in unspecified order.
// Iteration stops early if fn returns false.
func (t *Table) IterateActive(fn func(*Node) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, n := range t.byMAC {
		if n.Status != Registered {
			continue
		}
		if !fn(n) {
			return
		}
	}
}

// EvictIdle removes every peer whose LastActivity is older than maxIdle
// relative to now, regardless of status, and returns their MACs. Gateway
// policy is to call this with maxIdle = 2*MAX_KEY_VALIDITY (spec.md §4.6).
func (t *Table) EvictIdle(now time.Time, maxIdle time.Duration) []MAC {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []MAC
	for mac, n := range t.byMAC {
		if now.Sub(n.LastActivity) > maxIdle {
			if n.Name != "" {
				delete(t.byName, n.Name)
			}
			delete(t.byMAC, mac)
			evicted = append(evicted, mac)
		}
	}
	return evicted
}
