package broadcast

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randMaster(t *testing.T) [32]byte {
	t.Helper()
	var m [32]byte
	if _, err := rand.Read(m[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return m
}

func TestNewManagerDerivesEpochZero(t *testing.T) {
	m, err := NewManager(randMaster(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	epoch, key := m.Current()
	if epoch != 0 {
		t.Fatalf("epoch = %d, want 0", epoch)
	}
	var zero [32]byte
	if key == zero {
		t.Fatal("expected non-zero derived key")
	}
}

func TestRotateAdvancesEpochAndRetainsPrevious(t *testing.T) {
	m, _ := NewManager(randMaster(t))
	_, firstKey := m.Current()

	epoch, newKey, err := m.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if epoch != 1 {
		t.Fatalf("epoch = %d, want 1", epoch)
	}
	if bytes.Equal(newKey[:], firstKey[:]) {
		t.Fatal("expected rotated key to differ from initial key")
	}

	prev, ok := m.Previous()
	if !ok || prev != firstKey {
		t.Fatal("expected previous key to equal pre-rotation current key")
	}
}

func TestKeyForEpochAcceptsCurrentAndPrevious(t *testing.T) {
	m, _ := NewManager(randMaster(t))
	_, firstKey := m.Current()
	_, secondKey, _ := m.Rotate()

	if got, ok := m.KeyForEpoch(1); !ok || got != secondKey {
		t.Fatal("expected current epoch's key to be retrievable")
	}
	if got, ok := m.KeyForEpoch(0); !ok || got != firstKey {
		t.Fatal("expected previous epoch's key to still be retrievable")
	}

	m.Rotate()
	if _, ok := m.KeyForEpoch(0); ok {
		t.Fatal("expected epoch two rotations back to no longer be retained")
	}
}
