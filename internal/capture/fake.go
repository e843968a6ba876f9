package capture

import (
	"sync"
	"time"
)

// FakeSource is a scripted Source for tests: it replays a fixed sequence of
// frames and errors, then reports ErrSourceClosed.
type FakeSource struct {
	OpenErr error

	mu     sync.Mutex
	script []fakeStep
	opens  int
	closes int
}

type fakeStep struct {
	frame *Frame
	err   error
}

func (f *FakeSource) QueueFrame(frame *Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{frame: frame})
}

func (f *FakeSource) QueueError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{err: err})
}

func (f *FakeSource) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	f.opens++
	return nil
}

func (f *FakeSource) Read() (*Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return nil, ErrSourceClosed
	}
	step := f.script[0]
	f.script = f.script[1:]
	if step.err != nil {
		return nil, step.err
	}
	if step.frame.Timestamp.IsZero() {
		step.frame.Timestamp = time.Now()
	}
	return step.frame, nil
}

func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// Opened reports how many times Open succeeded.
func (f *FakeSource) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Closed reports how many times Close was called.
func (f *FakeSource) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
