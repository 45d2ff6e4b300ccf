package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/txn2/sql-gateway/pkg/backend"
)

// ErrFrozen is returned when registering after Freeze.
var ErrFrozen = errors.New("registry is frozen")

type entry struct {
	adapter backend.Adapter
	timeout time.Duration
}

// Registry manages adapter registration and lifecycle. Once frozen it is
// read-only, and lookups need no coordination with configuration.
type Registry struct {
	mu sync.RWMutex

	// Registered adapters by lowercased name
	adapters map[string]entry

	// Factory functions by kind
	factories map[string]AdapterFactory

	frozen bool
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]entry),
		factories: make(map[string]AdapterFactory),
	}
}

// RegisterFactory registers an adapter factory for a kind.
func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(kind)] = factory
}

// Kinds returns the registered factory kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Register adds an adapter to the registry. A non-positive timeout means
// the adapter family's default.
func (r *Registry) Register(adapter backend.Adapter, timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	key := strings.ToLower(adapter.Name())
	if key == "" {
		return fmt.Errorf("adapter name is required")
	}
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("backend %s already registered", key)
	}
	if timeout <= 0 {
		timeout = adapter.Family().DefaultTimeout()
	}

	r.adapters[key] = entry{adapter: adapter, timeout: timeout}
	return nil
}

// CreateAndRegister creates an adapter from config and registers it.
func (r *Registry) CreateAndRegister(cfg AdapterConfig) error {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(cfg.Kind)]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown backend kind: %s", cfg.Kind)
	}

	adapter, err := factory(cfg.Name, cfg.Config)
	if err != nil {
		return fmt.Errorf("creating backend %s/%s: %w", cfg.Kind, cfg.Name, err)
	}

	if err := r.Register(adapter, cfg.Timeout); err != nil {
		_ = adapter.Close()
		return err
	}
	return nil
}

// Freeze stops further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get retrieves an adapter by name.
func (r *Registry) Get(name string) (backend.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.adapters[strings.ToLower(name)]
	return e.adapter, ok
}

// Timeout returns the call budget configured for name, or zero when no
// such backend is registered.
func (r *Registry) Timeout(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[strings.ToLower(name)].timeout
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns all registered adapters.
func (r *Registry) All() []backend.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]backend.Adapter, 0, len(r.adapters))
	for _, e := range r.adapters {
		result = append(result, e.adapter)
	}
	return result
}

// Close closes all registered adapters.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, e := range r.adapters {
		if err := e.adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing backends: %v", errs)
	}
	return nil
}
