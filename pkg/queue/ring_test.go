package queue

import "testing"

func TestPushPopFIFO(t *testing.T) {
	r := NewRing[int](4, 2)
	for i := 1; i <= 3; i++ {
		if !r.Push(i) {
			t.Fatalf("expected push %d to land in primary ring", i)
		}
	}
	for i := 1; i <= 3; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("Pop() = %d, %v; want %d, true", v, ok, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected empty ring to report not-ok")
	}
}

func TestPushOverflowsWhenPrimaryFull(t *testing.T) {
	r := NewRing[int](2, 2)
	r.Push(1)
	r.Push(2)
	if ok := r.Push(3); ok {
		t.Fatal("expected third push to overflow, not land in primary")
	}

	stats := r.Stats()
	if stats.Overflowed != 1 {
		t.Fatalf("Overflowed = %d, want 1", stats.Overflowed)
	}

	// Primary now holds {2, 3}; overflow holds {1}. Drain order is
	// primary-first, so 2, 3, then 1.
	want := []int{2, 3, 1}
	for _, w := range want {
		v, ok := r.Pop()
		if !ok || v != w {
			t.Fatalf("Pop() = %d, %v; want %d, true", v, ok, w)
		}
	}
}

func TestOverflowDropsWhenAlsoFull(t *testing.T) {
	r := NewRing[int](1, 1)
	r.Push(1) // primary: {1}
	r.Push(2) // evicts 1 into overflow; primary: {2}, overflow: {1}
	r.Push(3) // evicts 2 into overflow, but overflow is full: drops 1, keeps 2

	stats := r.Stats()
	if stats.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Pushed != 3 {
		t.Fatalf("Pushed = %d, want 3", stats.Pushed)
	}

	want := []int{3, 2}
	for _, w := range want {
		v, ok := r.Pop()
		if !ok || v != w {
			t.Fatalf("Pop() = %d, %v; want %d, true", v, ok, w)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected ring to be empty after draining both areas")
	}
}

func TestZeroCapacityOverflowDropsImmediately(t *testing.T) {
	r := NewRing[int](1, 0)
	r.Push(1)
	r.Push(2)

	stats := r.Stats()
	if stats.Dropped != 1 || stats.Overflowed != 0 {
		t.Fatalf("got stats %+v, want Dropped=1 Overflowed=0", stats)
	}
}

func TestLenReflectsBothAreas(t *testing.T) {
	r := NewRing[int](1, 1)
	r.Push(1)
	r.Push(2)
	if got := r.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}
