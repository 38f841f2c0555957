package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](8)
	defer q.Close()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d) error: %v", i, err)
		}
	}
	if q.Depth() != 5 {
		t.Fatalf("expected depth 5, got %d", q.Depth())
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue error: %v", err)
		}
		if got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue[string](2)
	defer q.Close()

	if err := q.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if err := q.Enqueue("b"); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if err := q.Enqueue("c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// draining frees capacity
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("Dequeue error: %v", err)
	}
	if err := q.Enqueue("c"); err != nil {
		t.Fatalf("Enqueue after drain error: %v", err)
	}
}

func TestQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue[int](1)
	defer q.Close()

	done := make(chan int, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Enqueue(42); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("dequeue never completed")
	}
}

func TestQueueDequeueContextCancel(t *testing.T) {
	q := NewQueue[int](1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue[int](4)
	if err := q.Enqueue(1); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	q.Close()

	if err := q.Enqueue(2); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}

	// queued items remain dequeueable after close
	if v, err := q.Dequeue(context.Background()); err != nil || v != 1 {
		t.Fatalf("expected drained item, got %d, %v", v, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after drain, got %v", err)
	}
}
