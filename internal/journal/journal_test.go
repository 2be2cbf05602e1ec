package journal

import "testing"

func TestAppendContiguity(t *testing.T) {
	j := New()
	for i := 0; i < 10; i++ {
		idx := j.Append([]byte{byte(i)})
		if idx != uint64(i) {
			t.Fatalf("Append #%d returned index %d", i, idx)
		}
	}
	if j.Len()+int(j.TailIndex()) != int(j.NextIndex()) {
		t.Fatalf("invariant broken: len=%d tail=%d next=%d", j.Len(), j.TailIndex(), j.NextIndex())
	}
}

func TestDropThroughInvariant(t *testing.T) {
	j := New()
	for i := 0; i < 20; i++ {
		j.Append([]byte{byte(i)})
	}
	if err := j.DropThrough(12); err != nil {
		t.Fatalf("DropThrough(12): %v", err)
	}
	if j.TailIndex() != 12 {
		t.Fatalf("tail = %d, want 12", j.TailIndex())
	}
	if uint64(j.Len())+j.TailIndex() != j.NextIndex() {
		t.Fatalf("invariant broken after drop: len=%d tail=%d next=%d", j.Len(), j.TailIndex(), j.NextIndex())
	}

	if err := j.DropThrough(j.NextIndex() + 1); err == nil {
		t.Error("expected error dropping through beyond next index")
	}
	if err := j.DropThrough(0); err == nil {
		t.Error("expected error dropping through before tail")
	}
}

func TestFullPanicsOnAppend(t *testing.T) {
	j := New()
	for i := 0; i < MaxSendBuffer; i++ {
		j.Append([]byte{byte(i)})
	}
	if !j.Full() {
		t.Fatal("expected journal to report full")
	}
	defer func() {
		if recover() == nil {
			t.Error("expected Append to panic when full")
		}
	}()
	j.Append([]byte{0})
}

func TestIterRangeOrder(t *testing.T) {
	j := New()
	for i := 0; i < 5; i++ {
		j.Append([]byte{byte(i)})
	}
	var got []byte
	j.IterRange(1, 4, func(index uint64, chunk []byte) bool {
		got = append(got, chunk[0])
		return true
	})
	want := []byte{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOldest(t *testing.T) {
	j := New()
	if _, _, ok := j.Oldest(); ok {
		t.Fatal("expected no oldest entry on empty journal")
	}
	j.Append([]byte("a"))
	j.Append([]byte("b"))
	idx, chunk, ok := j.Oldest()
	if !ok || idx != 0 || string(chunk) != "a" {
		t.Fatalf("Oldest() = %d %q %v, want 0 a true", idx, chunk, ok)
	}
}
