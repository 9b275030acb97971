package persistence

import (
	"testing"
	"time"

	"github.com/enigmaiot/enigmaiot/pkg/nodetable"
)

func TestWarmCacheMirrorAndLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	cache, err := NewWarmCache("localhost:6379", time.Hour)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer cache.Close()

	mac := nodetable.MAC{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0x01}
	n := &nodetable.Node{
		MAC:          mac,
		Status:       nodetable.Registered,
		Name:         "kitchen-sensor",
		KeyID:        1,
		RegisteredAt: time.Now(),
		LastActivity: time.Now(),
	}

	if err := cache.Mirror(n); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	defer cache.Forget(mac)

	loaded, err := cache.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	found := false
	for _, got := range loaded {
		if got.MAC == mac && got.Name == "kitchen-sensor" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected mirrored node in LoadAll result")
	}

	if err := cache.Forget(mac); err != nil {
		t.Fatalf("Forget: %v", err)
	}
}
