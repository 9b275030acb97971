package kdf

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestDeriveSessionKeyDeterministic(t *testing.T) {
	shared := make([]byte, 32)
	rand.Read(shared)
	ivN := make([]byte, 12)
	rand.Read(ivN)
	ivG := make([]byte, 12)
	rand.Read(ivG)

	k1, err := DeriveSessionKey(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	k2, err := DeriveSessionKey(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	if k1 != k2 {
		t.Fatal("HKDF derivation is not deterministic")
	}
}

func TestDeriveSessionKeyDomainSeparation(t *testing.T) {
	shared := make([]byte, 32)
	rand.Read(shared)

	sessionKey, _ := DeriveSessionKey(shared, []byte("iv-a"), []byte("iv-b"))
	broadcastKey, _ := DeriveBroadcastKey(shared, 0)

	if bytes.Equal(sessionKey[:], broadcastKey[:]) {
		t.Fatal("session and broadcast keys must differ under domain separation")
	}
}

func TestDeriveBroadcastKeyPerEpoch(t *testing.T) {
	master := make([]byte, 32)
	rand.Read(master)

	k0, _ := DeriveBroadcastKey(master, 0)
	k1, _ := DeriveBroadcastKey(master, 1)
	if k0 == k1 {
		t.Fatal("different epochs must derive different broadcast keys")
	}
}

func TestDeriveSessionKeyDifferentIVsDiffer(t *testing.T) {
	shared := make([]byte, 32)
	rand.Read(shared)

	k1, _ := DeriveSessionKey(shared, []byte("iv-n-1"), []byte("iv-g-1"))
	k2, _ := DeriveSessionKey(shared, []byte("iv-n-2"), []byte("iv-g-1"))
	if k1 == k2 {
		t.Fatal("different node IVs must produce different session keys")
	}
}

func TestDeriveSessionKeyAndPrefixMatchesDeriveSessionKey(t *testing.T) {
	shared := make([]byte, 32)
	rand.Read(shared)
	ivN := make([]byte, 12)
	rand.Read(ivN)
	ivG := make([]byte, 12)
	rand.Read(ivG)

	key, err := DeriveSessionKey(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKey: %v", err)
	}
	keyAndPrefix, prefix, err := DeriveSessionKeyAndPrefix(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKeyAndPrefix: %v", err)
	}
	if key != keyAndPrefix {
		t.Fatal("DeriveSessionKeyAndPrefix must derive the same key as DeriveSessionKey")
	}
	var zero [PrefixSize]byte
	if prefix == zero {
		t.Fatal("derived prefix must not be all-zero")
	}
}

func TestDeriveSessionKeyAndPrefixDeterministic(t *testing.T) {
	shared := make([]byte, 32)
	rand.Read(shared)
	ivN := []byte("fixed-iv-node")
	ivG := []byte("fixed-iv-gw-")

	_, p1, err := DeriveSessionKeyAndPrefix(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKeyAndPrefix: %v", err)
	}
	_, p2, err := DeriveSessionKeyAndPrefix(shared, ivN, ivG)
	if err != nil {
		t.Fatalf("DeriveSessionKeyAndPrefix: %v", err)
	}
	if p1 != p2 {
		t.Fatal("prefix derivation must be deterministic")
	}
}

func TestDeriveBroadcastKeyAndPrefixMatchesDeriveBroadcastKey(t *testing.T) {
	master := make([]byte, 32)
	rand.Read(master)

	key, err := DeriveBroadcastKey(master, 3)
	if err != nil {
		t.Fatalf("DeriveBroadcastKey: %v", err)
	}
	keyAndPrefix, _, err := DeriveBroadcastKeyAndPrefix(master, 3)
	if err != nil {
		t.Fatalf("DeriveBroadcastKeyAndPrefix: %v", err)
	}
	if key != keyAndPrefix {
		t.Fatal("DeriveBroadcastKeyAndPrefix must derive the same key as DeriveBroadcastKey")
	}
}
