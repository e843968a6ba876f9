package ocr

import "context"

// MockBackend returns a fixed script of candidates, one per call. It exists
// for tests and for running the pipeline without any native OCR installed.
type MockBackend struct {
	BackendName string
	Script      []Candidate
	Err         error

	calls int
}

func (m *MockBackend) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

func (m *MockBackend) Recognize(_ context.Context, _ Image) (Candidate, error) {
	if m.Err != nil {
		return Candidate{}, m.Err
	}
	if m.calls >= len(m.Script) {
		return Candidate{Backend: m.Name()}, nil
	}
	c := m.Script[m.calls]
	m.calls++
	c.Backend = m.Name()
	return c, nil
}
