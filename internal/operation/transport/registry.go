package transport

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/tombee/remediator/pkg/errors"
)

// Registry holds the named transports of a process.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Build creates an HTTPTransport for each config and replaces the
// registry contents. Nothing changes when any config is invalid.
func (r *Registry) Build(configs []ClientConfig, logger *slog.Logger) error {
	built := make(map[string]Transport, len(configs))
	for _, cfg := range configs {
		if _, dup := built[cfg.Name]; dup {
			return &errors.ValidationError{Field: "http_clients", Message: "duplicate client name " + cfg.Name}
		}
		t, err := NewHTTPTransport(cfg, logger)
		if err != nil {
			return err
		}
		built[cfg.Name] = t
	}

	r.mu.Lock()
	r.transports = built
	r.mu.Unlock()
	return nil
}

// Put registers t under its name, replacing any previous transport.
func (r *Registry) Put(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[t.Name()] = t
}

// Get returns the named transport.
func (r *Registry) Get(name string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "http client", ID: name}
	}
	return t, nil
}

// Names returns the registered client names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
