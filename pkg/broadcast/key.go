// Package broadcast manages the gateway's per-epoch broadcast key: the
// single symmetric key every registered node uses to authenticate downstream
// broadcast frames (spec.md §4.5).
package broadcast

import (
	"fmt"
	"sync"

	"github.com/enigmaiot/enigmaiot/pkg/crypto/kdf"
)

// Manager holds the gateway's broadcast key lineage: the current epoch's
// key, ready for use, and the immediately preceding epoch's key, kept for a
// grace period so frames already in flight at rotation time still decrypt.
type Manager struct {
	mu          sync.RWMutex
	master      [32]byte
	epoch       byte
	currentKey  [32]byte
	previousKey [32]byte
	hasPrevious bool
}

// NewManager derives the epoch-0 broadcast key from master, a 32-byte
// secret generated once at gateway first-run and persisted (spec.md §6).
func NewManager(master [32]byte) (*Manager, error) {
	key, err := kdf.DeriveBroadcastKey(master[:], 0)
	if err != nil {
		return nil, fmt.Errorf("broadcast: derive initial key: %w", err)
	}
	return &Manager{master: master, epoch: 0, currentKey: key}, nil
}

// Rotate advances to the next epoch, deriving a new broadcast key and
// retaining the superseded one as the previous key. The epoch counter wraps
// at 256, matching its 1-byte wire representation.
func (m *Manager) Rotate() (epoch byte, key [32]byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nextEpoch := m.epoch + 1
	nextKey, err := kdf.DeriveBroadcastKey(m.master[:], nextEpoch)
	if err != nil {
		return 0, [32]byte{}, fmt.Errorf("broadcast: derive rotated key: %w", err)
	}

	if m.hasPrevious {
		kdf.SecureZero(&m.previousKey)
	}
	m.previousKey = m.currentKey
	m.hasPrevious = true
	m.epoch = nextEpoch
	m.currentKey = nextKey

	return m.epoch, m.currentKey, nil
}

// Current returns the active epoch and its broadcast key.
func (m *Manager) Current() (epoch byte, key [32]byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch, m.currentKey
}

// Previous returns the immediately preceding epoch's key, if a rotation has
// happened yet, for the grace window where in-flight frames may still use
// it.
func (m *Manager) Previous() (key [32]byte, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previousKey, m.hasPrevious
}

// KeyForEpoch returns the key for epoch if it is the current or immediately
// previous one; any older epoch is no longer retained.
func (m *Manager) KeyForEpoch(epoch byte) ([32]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if epoch == m.epoch {
		return m.currentKey, true
	}
	if m.hasPrevious && epoch == m.epoch-1 {
		return m.previousKey, true
	}
	return [32]byte{}, false
}
