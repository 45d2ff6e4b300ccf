package backend

import (
	"context"
	"sync/atomic"
)

// NoopAdapter accepts every call and returns an empty result. It backs
// dry-run configurations and tests.
type NoopAdapter struct {
	name   string
	family Family
	calls  atomic.Int64
}

// NewNoopAdapter creates a no-op adapter registered under name.
func NewNoopAdapter(name string, family Family) *NoopAdapter {
	return &NoopAdapter{name: name, family: family}
}

// Name returns the adapter name.
func (n *NoopAdapter) Name() string {
	return n.name
}

// Family returns the configured family.
func (n *NoopAdapter) Family() Family {
	return n.family
}

// Execute returns an empty result.
func (n *NoopAdapter) Execute(_ context.Context, _ *Call) (*Result, error) {
	n.calls.Add(1)
	return &Result{Rows: []map[string]any{}}, nil
}

// Calls returns how many times Execute ran.
func (n *NoopAdapter) Calls() int64 {
	return n.calls.Load()
}

// Close does nothing.
func (n *NoopAdapter) Close() error {
	return nil
}

// Verify interface compliance.
var _ Adapter = (*NoopAdapter)(nil)
