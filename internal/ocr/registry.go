package ocr

import (
	"fmt"
	"log/slog"
	"sync"
)

// Constructor builds a backend instance. Returning an error disables the
// backend for the process lifetime; nothing else is affected.
type Constructor func() (Backend, error)

// Registry holds the backends that initialized successfully at startup.
// Registration order is preserved: fusion ties beyond length and confidence
// break toward the earlier backend.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]Backend
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		log:      log.With(slog.String("component", "ocr-registry")),
	}
}

// Register constructs and installs a backend. Construction failure is logged
// and the backend stays absent; later lookups simply skip it.
func (r *Registry) Register(name string, build Constructor) {
	backend, err := build()
	if err != nil {
		r.log.Warn("ocr backend unavailable",
			slog.String("backend", name),
			slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.backends[name]; dup {
		r.log.Warn("ocr backend already registered", slog.String("backend", name))
		return
	}
	r.backends[name] = backend
	r.order = append(r.order, name)
	r.log.Info("ocr backend registered", slog.String("backend", name))
}

// Enabled resolves the configured backend names against the registry in
// registration order. Unknown or failed names are skipped. An empty result is
// legal: the pipeline runs and never produces output.
func (r *Registry) Enabled(names []string) []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var enabled []Backend
	for _, name := range r.order {
		if want[name] {
			enabled = append(enabled, r.backends[name])
		}
	}
	return enabled
}

// Names lists registered backends in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Get returns a backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("ocr backend %q not registered", name)
	}
	return b, nil
}
