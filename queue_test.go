package dualmix

import "testing"

func TestSampleQueueFIFO(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(8)
	in := []float32{1, 2, 3, 4, 5}
	if n := q.write(in); n != 5 {
		t.Fatalf("write returned %d, want 5", n)
	}
	if got := q.buffered(); got != 5 {
		t.Fatalf("buffered = %d, want 5", got)
	}

	out := make([]float32, 3)
	if n := q.read(out); n != 3 {
		t.Fatalf("read returned %d, want 3", n)
	}
	for i, want := range []float32{1, 2, 3} {
		if out[i] != want {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}

	// drain the rest
	if n := q.read(out); n != 2 {
		t.Fatalf("read returned %d, want 2", n)
	}
	if out[0] != 4 || out[1] != 5 {
		t.Errorf("tail read = %v %v, want 4 5", out[0], out[1])
	}
	if got := q.buffered(); got != 0 {
		t.Errorf("buffered after drain = %d, want 0", got)
	}
}

func TestSampleQueueDropsNewestWhenFull(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(4)
	if n := q.write([]float32{1, 2, 3, 4}); n != 4 {
		t.Fatalf("write returned %d, want 4", n)
	}
	// queue is full: the overflow write is dropped entirely
	if n := q.write([]float32{9, 9}); n != 0 {
		t.Fatalf("overflow write returned %d, want 0", n)
	}

	out := make([]float32, 4)
	q.read(out)
	for i, want := range []float32{1, 2, 3, 4} {
		if out[i] != want {
			t.Errorf("out[%d] = %v, want %v (old data must survive overflow)", i, out[i], want)
		}
	}
}

func TestSampleQueuePartialWrite(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(4)
	q.write([]float32{1, 2})
	// only two slots left; the rest of this write is dropped
	if n := q.write([]float32{3, 4, 5, 6}); n != 2 {
		t.Fatalf("partial write returned %d, want 2", n)
	}
	out := make([]float32, 4)
	q.read(out)
	for i, want := range []float32{1, 2, 3, 4} {
		if out[i] != want {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want)
		}
	}
}

func TestSampleQueueWrapsAround(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(4)
	out := make([]float32, 4)
	for round := 0; round < 10; round++ {
		base := float32(round * 3)
		q.write([]float32{base, base + 1, base + 2})
		n := q.read(out)
		if n != 3 {
			t.Fatalf("round %d: read %d, want 3", round, n)
		}
		for i := 0; i < 3; i++ {
			if out[i] != base+float32(i) {
				t.Fatalf("round %d: out[%d] = %v, want %v", round, i, out[i], base+float32(i))
			}
		}
	}
}

func TestSampleQueueRoundsCapacityUp(t *testing.T) {
	t.Parallel()

	q := newSampleQueue(5)
	if n := q.write(make([]float32, 8)); n != 8 {
		t.Errorf("capacity 5 rounds up to 8, write accepted %d", n)
	}
}
