package registry

import (
	"fmt"
	"maps"
	"strings"
)

// LoaderConfig holds configuration for loading backends.
type LoaderConfig struct {
	// Defaults holds kind-level config merged under each instance's config.
	Defaults map[string]map[string]any `yaml:"defaults"`

	Backends []AdapterConfig `yaml:"backends"`
}

// Loader loads backends from configuration.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new backend loader.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// Load creates every configured backend and freezes the registry. On error
// the backends created so far stay registered so the caller can close them.
func (l *Loader) Load(cfg LoaderConfig) error {
	for _, b := range cfg.Backends {
		// Merge kind-level config with instance config
		mergedCfg := make(map[string]any)
		maps.Copy(mergedCfg, cfg.Defaults[strings.ToLower(b.Kind)])
		maps.Copy(mergedCfg, b.Config)

		adapterCfg := AdapterConfig{
			Name:    b.Name,
			Kind:    b.Kind,
			Timeout: b.Timeout,
			Config:  mergedCfg,
		}
		if err := l.registry.CreateAndRegister(adapterCfg); err != nil {
			return fmt.Errorf("loading backend %s/%s: %w", b.Kind, b.Name, err)
		}
	}

	l.registry.Freeze()
	return nil
}
