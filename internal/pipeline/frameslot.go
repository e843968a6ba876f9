package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/visperlabs/visper-core/internal/capture"
)

// FrameSlot is the capture→recognition handoff: a single-slot queue where a
// new frame overwrites an unread one. The producer never blocks; only the
// newest frame matters for recognition latency, so an evicted frame is
// released immediately.
type FrameSlot struct {
	mu     sync.Mutex
	frame  *capture.Frame
	drops  uint64
	signal chan struct{}
}

func NewFrameSlot() *FrameSlot {
	return &FrameSlot{signal: make(chan struct{}, 1)}
}

// Put stores the frame, evicting and closing any unread predecessor.
func (s *FrameSlot) Put(f *capture.Frame) {
	s.mu.Lock()
	if s.frame != nil {
		s.frame.Close()
		s.drops++
	}
	s.frame = f
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Take returns the pending frame, waiting up to timeout for one to arrive.
// It returns false on timeout or when ctx is cancelled; the caller owns the
// returned frame and must Close it.
func (s *FrameSlot) Take(ctx context.Context, timeout time.Duration) (*capture.Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		f := s.frame
		s.frame = nil
		s.mu.Unlock()
		if f != nil {
			return f, true
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return nil, false
		case <-s.signal:
		}
	}
}

// Drops reports how many unread frames were overwritten.
func (s *FrameSlot) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// Pending reports whether an unread frame is waiting.
func (s *FrameSlot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

// Drain releases any unread frame. Called once the consumer is gone.
func (s *FrameSlot) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		s.frame.Close()
		s.frame = nil
	}
}
