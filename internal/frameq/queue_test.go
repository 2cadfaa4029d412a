package frameq

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New(5)
	for i := 0; i < 5; i++ {
		if !q.Enqueue([]byte{byte(i)}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	for i := 0; i < 5; i++ {
		f, ok := q.Dequeue(time.Second)
		if !ok {
			t.Fatalf("dequeue %d failed", i)
		}
		if f[0] != byte(i) {
			t.Errorf("dequeue %d: got %d, want %d", i, f[0], i)
		}
	}
}

func TestDropNewestWhenFull(t *testing.T) {
	const n = 10
	q := New(n)

	for i := 0; i < n; i++ {
		if !q.Enqueue([]byte{byte(i)}) {
			t.Fatalf("enqueue %d rejected before capacity", i)
		}
	}
	if q.Enqueue([]byte{0xee}) {
		t.Fatal("enqueue accepted past capacity")
	}
	if q.Len() != n {
		t.Fatalf("len = %d, want %d", q.Len(), n)
	}

	// The first frame in is still the first frame out.
	f, ok := q.Dequeue(time.Second)
	if !ok || f[0] != 0 {
		t.Fatalf("got %v %v, want frame 0", f, ok)
	}

	_, dropped := q.Stats()
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestDequeueTimeout(t *testing.T) {
	q := New(2)
	start := time.Now()
	_, ok := q.Dequeue(50 * time.Millisecond)
	if ok {
		t.Fatal("dequeue on empty queue returned a frame")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("dequeue returned before timeout")
	}
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := New(2)
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue([]byte("late"))
	}()
	f, ok := q.Dequeue(2 * time.Second)
	if !ok || !bytes.Equal(f, []byte("late")) {
		t.Fatalf("got %q %v, want late frame", f, ok)
	}
}

func TestCloseDrainsBeforeEndOfStream(t *testing.T) {
	q := New(5)
	q.Enqueue([]byte("a"))
	q.Enqueue([]byte("b"))
	q.Close()

	if q.Enqueue([]byte("c")) {
		t.Error("enqueue accepted after close")
	}
	if q.Done() {
		t.Error("Done before drain")
	}

	for _, want := range []string{"a", "b"} {
		f, ok := q.Dequeue(time.Second)
		if !ok || string(f) != want {
			t.Fatalf("drain got %q %v, want %q", f, ok, want)
		}
	}

	if _, ok := q.Dequeue(time.Second); ok {
		t.Error("dequeue succeeded on drained closed queue")
	}
	if !q.Done() {
		t.Error("Done false after close and drain")
	}
}

func TestCloseUnblocksWaiter(t *testing.T) {
	q := New(2)
	done := make(chan struct{})
	go func() {
		q.Dequeue(10 * time.Second)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a waiting Dequeue")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(10)
	const total = 200

	var got [][]byte
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			f, ok := q.Dequeue(100 * time.Millisecond)
			if !ok {
				if q.Done() {
					return
				}
				continue
			}
			got = append(got, f)
		}
	}()

	for i := 0; i < total; i++ {
		q.Enqueue([]byte{byte(i)})
		time.Sleep(time.Millisecond / 4)
	}
	q.Close()
	wg.Wait()

	// Drops are allowed, reordering and duplication are not.
	last := -1
	seen := make(map[int]bool)
	for _, f := range got {
		v := int(f[0])
		if seen[v] {
			t.Fatalf("frame %d duplicated", v)
		}
		seen[v] = true
		if v <= last {
			t.Fatalf("frame %d arrived after %d", v, last)
		}
		last = v
	}
}
