package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestTextQueueFIFO(t *testing.T) {
	q := NewTextQueue()
	q.Push("one")
	q.Push("two")
	q.Push("three")

	for _, want := range []string{"one", "two", "three"} {
		got, ok := q.Pop(context.Background(), 10*time.Millisecond)
		if !ok {
			t.Fatalf("expected %q, queue empty", want)
		}
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, has %d", q.Len())
	}
}

func TestTextQueueIsLossless(t *testing.T) {
	q := NewTextQueue()
	const n = 200
	for i := 0; i < n; i++ {
		q.Push(fmt.Sprintf("text-%03d", i))
	}

	for i := 0; i < n; i++ {
		got, ok := q.Pop(context.Background(), 10*time.Millisecond)
		if !ok {
			t.Fatalf("queue drained early at %d", i)
		}
		if want := fmt.Sprintf("text-%03d", i); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestTextQueuePopTimesOut(t *testing.T) {
	q := NewTextQueue()
	if _, ok := q.Pop(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("expected timeout on empty queue")
	}
}

func TestTextQueuePopObservesCancellation(t *testing.T) {
	q := NewTextQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := q.Pop(ctx, time.Second); ok {
		t.Fatal("expected cancelled Pop to fail")
	}
}
