package ocr

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRegistrySkipsFailedConstructor(t *testing.T) {
	r := NewRegistry(newLogger())
	r.Register("broken", func() (Backend, error) {
		return nil, errors.New("init failed")
	})
	r.Register("mock", func() (Backend, error) {
		return &MockBackend{}, nil
	})

	if names := r.Names(); len(names) != 1 || names[0] != "mock" {
		t.Fatalf("expected only mock registered, got %v", names)
	}
	if _, err := r.Get("broken"); err == nil {
		t.Fatal("expected lookup of failed backend to error")
	}
}

func TestRegistryEnabledPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(newLogger())
	r.Register("first", func() (Backend, error) { return &MockBackend{BackendName: "first"}, nil })
	r.Register("second", func() (Backend, error) { return &MockBackend{BackendName: "second"}, nil })
	r.Register("third", func() (Backend, error) { return &MockBackend{BackendName: "third"}, nil })

	enabled := r.Enabled([]string{"third", "first", "unknown"})
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled backends, got %d", len(enabled))
	}
	if enabled[0].Name() != "first" || enabled[1].Name() != "third" {
		t.Fatalf("expected registration order, got %s then %s", enabled[0].Name(), enabled[1].Name())
	}
}

func TestRegistryEnabledMayBeEmpty(t *testing.T) {
	r := NewRegistry(newLogger())
	if enabled := r.Enabled([]string{"tesseract"}); len(enabled) != 0 {
		t.Fatalf("expected no enabled backends, got %d", len(enabled))
	}
}
