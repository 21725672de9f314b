package render

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh, uninitialized Renderer.
type Factory func() Renderer

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under the given name. Backends call this
// from an init function; registering the same name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("render: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("render: Register called twice for backend " + name)
	}
	registry[name] = f
}

// New returns an uninitialized Renderer from the named backend.
func New(name string) (Renderer, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("render: unknown backend %q (registered: %v)", name, Backends())
	}
	return f(), nil
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
