package ratedist

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Instantiate when no factory is registered
// under the requested name.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("shape %q not found", e.Name) }

// Registry is a process-wide name -> factory mapping. It is populated once
// at startup (builtins plus any externally-registered plugin table); after
// that reads only take the read lock, which is uncontended since no writer
// runs concurrently with dispatchers.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry with builtins pre-registered.
func Default() *Registry { return defaultRegistry }

// NewRegistry builds a registry with the built-in shapes already registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("constant", newConstant)
	r.Register("linear", newLinear)
	r.Register("poisson", newPoisson)
	r.Register("step", newStep)
	r.Register("sine", newSine)
	r.Register("mix", func() Shape { return newMix(r) })
	r.Register("sequence", func() Shape { return newSequence(r) })
	return r
}

// Register is an idempotent overwrite.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns the factory for name, or nil if unregistered.
func (r *Registry) Get(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[name]
}

// List returns all registered shape names, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate constructs a shape and calls Initialize. It does not call
// Validate: the caller decides whether to surface validation failures as
// admission errors or dispatcher errors.
func (r *Registry) Instantiate(name string, config map[string]any) (Shape, error) {
	factory := r.Get(name)
	if factory == nil {
		return nil, &ErrNotFound{Name: name}
	}
	instance := factory()
	instance.Initialize(config)
	return instance, nil
}

// ExternalPlugin names a shape factory supplied by the host environment,
// loaded alongside the builtins.
type ExternalPlugin struct {
	Name    string
	Factory Factory
}

// LoadExternalPlugins registers each plugin in turn, isolating one bad
// entry (a factory that panics on construction) from preventing the rest
// from loading -- mirroring the source loader's per-symbol import-failure
// isolation.
func LoadExternalPlugins(r *Registry, plugins []ExternalPlugin) {
	for _, p := range plugins {
		func(p ExternalPlugin) {
			defer func() {
				if rec := recover(); rec != nil {
					logrus.WithFields(logrus.Fields{
						"plugin": p.Name,
						"panic":  rec,
					}).Error("failed to load external rate-shape plugin")
				}
			}()
			_ = p.Factory()
			r.Register(p.Name, p.Factory)
		}(p)
	}
}
