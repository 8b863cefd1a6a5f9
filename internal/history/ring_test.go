package history

import "testing"

func TestRingAppendAndReadAll(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		r.Append(i)
	}
	got := r.ReadAll()
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadAll = %v, want %v", got, want)
		}
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[string](2)
	r.Append("a")
	r.Append("b")
	r.Append("c")
	got := r.ReadAll()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("ReadAll = %v, want [b c]", got)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if r.Cap() != 2 {
		t.Fatalf("Cap = %d, want 2", r.Cap())
	}
}

func TestRingTail(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}
	tail := r.Tail(2)
	if len(tail) != 2 || tail[0] != 4 || tail[1] != 5 {
		t.Fatalf("Tail(2) = %v, want [4 5]", tail)
	}
	if got := r.Tail(0); len(got) != 5 {
		t.Fatalf("Tail(0) = %v, want all 5", got)
	}
	if got := r.Tail(10); len(got) != 5 {
		t.Fatalf("Tail(10) = %v, want all 5", got)
	}
}

func TestRingSinceTracksAppendsPastEviction(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 3; i++ {
		r.Append(i)
	}
	got, seq := r.Since(0)
	if len(got) != 3 || seq != 3 {
		t.Fatalf("Since(0) = %v seq %d, want 3 items seq 3", got, seq)
	}

	// The ring is full now; further appends must still surface.
	r.Append(4)
	got, seq = r.Since(seq)
	if len(got) != 1 || got[0] != 4 || seq != 4 {
		t.Fatalf("Since(3) = %v seq %d, want [4] seq 4", got, seq)
	}

	// Nothing new since the last drain.
	if got, _ := r.Since(seq); len(got) != 0 {
		t.Fatalf("Since(%d) = %v, want empty", seq, got)
	}
}

func TestRingSinceCapsAtRetainedWindow(t *testing.T) {
	r := NewRing[int](2)
	for i := 1; i <= 5; i++ {
		r.Append(i)
	}
	// Entries 1..3 were evicted before the reader drained; only the
	// retained window comes back.
	got, seq := r.Since(0)
	if len(got) != 2 || got[0] != 4 || got[1] != 5 || seq != 5 {
		t.Fatalf("Since(0) = %v seq %d, want [4 5] seq 5", got, seq)
	}
}

func TestRingFIFOAtLogCapacities(t *testing.T) {
	for _, capacity := range []int{5000, 10000} {
		r := NewRing[int](capacity)
		for i := 0; i <= capacity; i++ {
			r.Append(i)
		}
		got := r.ReadAll()
		if len(got) != capacity {
			t.Fatalf("capacity %d: Len = %d after capacity+1 appends", capacity, len(got))
		}
		if got[0] != 1 || got[capacity-1] != capacity {
			t.Fatalf("capacity %d: window [%d..%d], want [1..%d]", capacity, got[0], got[capacity-1], capacity)
		}
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[int](3)
	r.Append(1)
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", r.Len())
	}
	if got := r.ReadAll(); len(got) != 0 {
		t.Fatalf("ReadAll after Clear = %v, want empty", got)
	}
}

func TestRingReadAllReturnsCopy(t *testing.T) {
	r := NewRing[int](3)
	r.Append(1)
	got := r.ReadAll()
	got[0] = 99
	if r.ReadAll()[0] != 1 {
		t.Fatal("ReadAll must return a copy, not the backing slice")
	}
}
