package nodetable

import (
	"errors"
	"testing"
	"time"
)

func mac(b byte) MAC {
	return MAC{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, b}
}

func TestInsertFindRemove(t *testing.T) {
	tbl := New(4)
	n := &Node{MAC: mac(1), Status: Registered, LastActivity: time.Now()}
	if err := tbl.Insert(n); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := tbl.FindByMAC(mac(1))
	if !ok || got.MAC != mac(1) {
		t.Fatal("expected to find inserted node")
	}
	tbl.Remove(mac(1))
	if _, ok := tbl.FindByMAC(mac(1)); ok {
		t.Fatal("expected node to be removed")
	}
}

func TestInsertRejectsOverCapacity(t *testing.T) {
	tbl := New(2)
	for i := byte(1); i <= 2; i++ {
		if err := tbl.Insert(&Node{MAC: mac(i), LastActivity: time.Now()}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if err := tbl.Insert(&Node{MAC: mac(3), LastActivity: time.Now()}); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
}

func TestInsertSameMACReplaces(t *testing.T) {
	tbl := New(1)
	first := &Node{MAC: mac(1), Status: InitPending, LastActivity: time.Now()}
	if err := tbl.Insert(first); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	second := &Node{MAC: mac(1), Status: Registered, LastActivity: time.Now()}
	if err := tbl.Insert(second); err != nil {
		t.Fatalf("Insert replacement: %v", err)
	}
	got, _ := tbl.FindByMAC(mac(1))
	if got.Status != Registered {
		t.Fatal("expected new handshake to replace prior record")
	}
}

func TestFindByName(t *testing.T) {
	tbl := New(4)
	tbl.Insert(&Node{MAC: mac(1), Name: "kitchen", LastActivity: time.Now()})

	got, ok := tbl.FindByName("kitchen")
	if !ok || got.MAC != mac(1) {
		t.Fatal("expected to find node by name")
	}
	if _, ok := tbl.FindByName(""); ok {
		t.Fatal("empty name must never be found")
	}
}

func TestRenameEnforcesUniqueness(t *testing.T) {
	tbl := New(4)
	tbl.Insert(&Node{MAC: mac(1), Name: "kitchen", LastActivity: time.Now()})
	tbl.Insert(&Node{MAC: mac(2), LastActivity: time.Now()})

	if err := tbl.Rename(mac(2), "kitchen"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if err := tbl.Rename(mac(2), "garage"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got, ok := tbl.FindByName("garage"); !ok || got.MAC != mac(2) {
		t.Fatal("expected rename to take effect")
	}
}

func TestCountActiveOnlyCountsRegistered(t *testing.T) {
	tbl := New(4)
	tbl.Insert(&Node{MAC: mac(1), Status: Registered, LastActivity: time.Now()})
	tbl.Insert(&Node{MAC: mac(2), Status: InitPending, LastActivity: time.Now()})

	if got := tbl.CountActive(); got != 1 {
		t.Fatalf("CountActive() = %d, want 1", got)
	}
	if got := tbl.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestIterateActiveSkipsNonRegistered(t *testing.T) {
	tbl := New(4)
	tbl.Insert(&Node{MAC: mac(1), Status: Registered, LastActivity: time.Now()})
	tbl.Insert(&Node{MAC: mac(2), Status: Unregistered, LastActivity: time.Now()})

	seen := 0
	tbl.IterateActive(func(n *Node) bool {
		seen++
		if n.Status != Registered {
			t.Fatalf("iterated a non-Registered node: %v", n.Status)
		}
		return true
	})
	if seen != 1 {
		t.Fatalf("expected 1 active node visited, got %d", seen)
	}
}

func TestEvictIdle(t *testing.T) {
	tbl := New(4)
	now := time.Now()
	tbl.Insert(&Node{MAC: mac(1), LastActivity: now.Add(-2 * time.Hour)})
	tbl.Insert(&Node{MAC: mac(2), LastActivity: now})

	evicted := tbl.EvictIdle(now, time.Hour)
	if len(evicted) != 1 || evicted[0] != mac(1) {
		t.Fatalf("expected mac(1) evicted, got %v", evicted)
	}
	if _, ok := tbl.FindByMAC(mac(1)); ok {
		t.Fatal("expected evicted node to be gone")
	}
	if _, ok := tbl.FindByMAC(mac(2)); !ok {
		t.Fatal("expected active node to remain")
	}
}

func TestZeroHandshakeState(t *testing.T) {
	n := &Node{
		HandshakeEpochX: []byte{1, 2, 3},
		HandshakeEpochY: []byte{4, 5, 6},
	}
	n.ZeroHandshakeState()
	if n.HandshakeEpochX != nil || n.HandshakeEpochY != nil {
		t.Fatal("expected ephemeral handshake state to be cleared")
	}
}
