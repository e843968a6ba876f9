package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/visperlabs/visper-core/internal/capture"
)

func TestFrameSlotHoldsAtMostOne(t *testing.T) {
	slot := NewFrameSlot()

	slot.Put(&capture.Frame{})
	slot.Put(&capture.Frame{})
	slot.Put(&capture.Frame{})

	if !slot.Pending() {
		t.Fatal("expected a pending frame")
	}
	if got := slot.Drops(); got != 2 {
		t.Fatalf("expected 2 drops, got %d", got)
	}

	if _, ok := slot.Take(context.Background(), 10*time.Millisecond); !ok {
		t.Fatal("expected to take the surviving frame")
	}
	if slot.Pending() {
		t.Fatal("slot should be empty after Take")
	}
}

func TestFrameSlotTakeTimesOut(t *testing.T) {
	slot := NewFrameSlot()

	start := time.Now()
	if _, ok := slot.Take(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("expected timeout, got a frame")
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("Take returned too early: %v", elapsed)
	}
}

func TestFrameSlotTakeObservesCancellation(t *testing.T) {
	slot := NewFrameSlot()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := slot.Take(ctx, time.Second); ok {
		t.Fatal("expected cancelled Take to fail")
	}
}

func TestFrameSlotTakeWakesOnPut(t *testing.T) {
	slot := NewFrameSlot()

	got := make(chan bool, 1)
	go func() {
		_, ok := slot.Take(context.Background(), time.Second)
		got <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	slot.Put(&capture.Frame{})

	select {
	case ok := <-got:
		if !ok {
			t.Fatal("waiting Take should have received the frame")
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not wake on Put")
	}
}

func TestFrameSlotDrainReleasesFrame(t *testing.T) {
	slot := NewFrameSlot()
	slot.Put(&capture.Frame{})
	slot.Drain()

	if slot.Pending() {
		t.Fatal("Drain should empty the slot")
	}
}
