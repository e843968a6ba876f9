package pipeline

import (
	"context"
	"sync"
	"time"
)

// TextQueue is the recognition→speech handoff: an unbounded FIFO that never
// drops an accepted text. Backpressure is applied upstream by debounce, not
// by this queue.
type TextQueue struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
}

func NewTextQueue() *TextQueue {
	return &TextQueue{signal: make(chan struct{}, 1)}
}

// Push appends text. Never blocks.
func (q *TextQueue) Push(text string) {
	q.mu.Lock()
	q.items = append(q.items, text)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the oldest queued text, waiting up to timeout for one to
// arrive. Returns false on timeout or when ctx is cancelled.
func (q *TextQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			text := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return text, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false
		case <-timer.C:
			return "", false
		case <-q.signal:
		}
	}
}

// Len reports the number of queued texts.
func (q *TextQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
