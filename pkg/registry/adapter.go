// Package registry builds and holds the configured backend adapters.
package registry

import (
	"time"

	"github.com/txn2/sql-gateway/pkg/backend"
)

// AdapterFactory creates an adapter from configuration.
type AdapterFactory func(name string, config map[string]any) (backend.Adapter, error)

// AdapterConfig holds configuration for one backend instance.
type AdapterConfig struct {
	// Name is what requests route on. It is matched case-insensitively.
	Name string `yaml:"name"`

	// Kind selects the factory, e.g. "relational", "sqlite" or "hedera".
	Kind string `yaml:"kind"`

	// Timeout overrides the family default call budget when positive.
	Timeout time.Duration `yaml:"timeout"`

	Config map[string]any `yaml:"config"`
}
