package recovery

import "testing"

func TestRing_PushAndDrainFIFO(t *testing.T) {
	r := newRing[int](5)
	for i := 1; i <= 3; i++ {
		if r.push(i) {
			t.Errorf("push %d: unexpected eviction", i)
		}
	}

	got := r.drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Errorf("position %d: expected %d, got %d", i, i+1, v)
		}
	}
	if r.len() != 0 {
		t.Errorf("expected empty ring after drain, got %d", r.len())
	}
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 8; i++ {
		evicted := r.push(i)
		if i <= 3 && evicted {
			t.Errorf("push %d: unexpected eviction before capacity", i)
		}
		if i > 3 && !evicted {
			t.Errorf("push %d: expected eviction at capacity", i)
		}
	}

	got := r.drain()
	want := []int{6, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i] != v {
			t.Errorf("position %d: expected %d, got %d", i, v, got[i])
		}
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := newRing[string](0)
	r.push("a")
	r.push("b")

	got := r.drain()
	if len(got) != 1 || got[0] != "b" {
		t.Errorf("expected only the newest entry, got %v", got)
	}
}
