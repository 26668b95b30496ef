package stream

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestQueueDropOldestKeepsNewest(t *testing.T) {
	const capacity = 5
	q := NewQueue[int](capacity)
	for i := 0; i <= capacity; i++ {
		q.Push(i)
	}
	if q.Len() != capacity {
		t.Fatalf("expected %d queued, got %d", capacity, q.Len())
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
	for want := 1; want <= capacity; want++ {
		got, ok := q.TryPop()
		if !ok {
			t.Fatalf("expected item %d", want)
		}
		if got != want {
			t.Fatalf("expected %d got %d", want, got)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestQueuePushReportsEviction(t *testing.T) {
	q := NewQueue[string](1)
	if q.Push("a") {
		t.Fatalf("first push should not evict")
	}
	if !q.Push("b") {
		t.Fatalf("second push should evict")
	}
	if got, _ := q.TryPop(); got != "b" {
		t.Fatalf("expected newest item, got %q", got)
	}
}

func TestQueuePopTimesOut(t *testing.T) {
	q := NewQueue[int](2)
	start := time.Now()
	if _, ok := q.Pop(context.Background(), 30*time.Millisecond); ok {
		t.Fatalf("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("pop returned too early: %s", elapsed)
	}
}

func TestQueuePopWakesOnPush(t *testing.T) {
	q := NewQueue[int](2)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(42)
	}()
	got, ok := q.Pop(context.Background(), time.Second)
	if !ok || got != 42 {
		t.Fatalf("expected 42, got %d ok=%v", got, ok)
	}
}

func TestQueuePopHonoursContext(t *testing.T) {
	q := NewQueue[int](2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Pop(ctx, time.Second); ok {
		t.Fatalf("expected no item after cancel")
	}
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const total = 500
	q := NewQueue[int](total)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.Push(i)
		}
	}()

	last := -1
	for received := 0; received < total; received++ {
		got, ok := q.Pop(context.Background(), time.Second)
		if !ok {
			t.Fatalf("timed out after %d items", received)
		}
		if got <= last {
			t.Fatalf("out of order: %d after %d", got, last)
		}
		last = got
	}
	wg.Wait()
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue[int](3)
	q.Push(1)
	q.Push(2)
	q.Drain()
	if q.Len() != 0 {
		t.Fatalf("expected drained queue, got %d", q.Len())
	}
	q.Push(3)
	if got, _ := q.TryPop(); got != 3 {
		t.Fatalf("expected 3 after drain, got %d", got)
	}
}
