package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestQueue_BasicOperations(t *testing.T) {
	q := New[string]()

	if size := q.Len(); size != 0 {
		t.Errorf("Expected empty queue, got size %d", size)
	}

	if _, err := q.Pop(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}

	if err := q.Push("a", false); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if size := q.Len(); size != 1 {
		t.Errorf("Expected size 1, got %d", size)
	}

	if got := q.Snapshot(); fmt.Sprint(got) != "[a]" {
		t.Errorf("Snapshot = %v, want [a]", got)
	}

	popped, err := q.Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if popped != "a" {
		t.Errorf("Popped wrong item: %q", popped)
	}

	if _, err := q.Pop(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty after draining, got %v", err)
	}
}

func TestQueue_HighLaneServedFirst(t *testing.T) {
	q := New[string]()

	for i := 0; i < 3; i++ {
		if err := q.Push(fmt.Sprintf("regular-%d", i), false); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := q.Push(fmt.Sprintf("high-%d", i), true); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	want := []string{"high-0", "high-1", "regular-0", "regular-1", "regular-2"}
	if got := q.Snapshot(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Snapshot = %v, want %v", got, want)
	}

	for i, w := range want {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop %d failed: %v", i, err)
		}
		if got != w {
			t.Errorf("Pop %d = %q, want %q", i, got, w)
		}
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[int]()
	for i := 0; i < 4; i++ {
		_ = q.Push(i, i%2 == 0)
	}

	if n := q.Clear(); n != 4 {
		t.Errorf("Clear dropped %d items, want 4", n)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after Clear, got %d", q.Len())
	}

	stats := q.GetStats()
	if stats.TotalCleared != 4 {
		t.Errorf("TotalCleared = %d, want 4", stats.TotalCleared)
	}
	if stats.PeakSize != 4 {
		t.Errorf("PeakSize = %d, want 4", stats.PeakSize)
	}
}

func TestQueue_Close(t *testing.T) {
	q := New[int]()
	_ = q.Push(1, false)

	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := q.Push(2, false); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.Pop(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestQueue_ConcurrentAccess(t *testing.T) {
	q := New[string]()

	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = q.Push(fmt.Sprintf("p%d-%d", producerID, i), producerID%2 == 0)
			}
		}(p)
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Fatalf("Expected 100 items, got %d", q.Len())
	}

	// Per-producer order survives concurrent pushes.
	last := map[string]int{}
	for q.Len() > 0 {
		item, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		var producer, seq int
		if _, err := fmt.Sscanf(item, "p%d-%d", &producer, &seq); err != nil {
			t.Fatalf("bad item %q: %v", item, err)
		}
		key := fmt.Sprint(producer)
		if prev, ok := last[key]; ok && seq <= prev {
			t.Errorf("producer %d out of order: %d after %d", producer, seq, prev)
		}
		last[key] = seq
	}
}
