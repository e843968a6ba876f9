package tts

import (
	"context"
	"sync"
)

// MockSynth returns a short silent buffer for every request. Useful for tests
// and for running the pipeline without a synthesis engine installed.
type MockSynth struct {
	sampleRate int
	channels   int
	Err        error

	mu       sync.Mutex
	requests []Request
}

func NewMockSynth(sampleRate, channels int) *MockSynth {
	return &MockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *MockSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return Result{}, m.Err
	}
	// 50ms of silence.
	n := m.sampleRate * m.channels / 20 * 2
	return Result{PCM: make([]byte, n), SampleRate: m.sampleRate, Channels: m.channels}, nil
}

// Requests returns the requests seen so far.
func (m *MockSynth) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
