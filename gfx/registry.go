package gfx

import (
	"fmt"
	"sort"
	"sync"
)

// BackendFactory creates a backend instance. It returns nil when the
// backend cannot run on this machine.
type BackendFactory func() Backend

type registration struct {
	name     string
	priority int
	factory  BackendFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds a backend under name. Higher priorities win in Default.
// It is typically called from init() in backend packages; registering the
// same name again replaces the previous entry.
func Register(name string, priority int, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = registration{name: name, priority: priority, factory: factory}
}

// Unregister removes a backend. This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// Available returns registered backend names, highest priority first.
func Available() []string {
	regs := sortedRegistrations()
	names := make([]string, 0, len(regs))
	for _, r := range regs {
		names = append(names, r.name)
	}
	return names
}

// Lookup creates the backend registered under name.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	r, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, name)
	}
	b := r.factory()
	if b == nil {
		return nil, fmt.Errorf("%w: %q is not usable on this system", ErrBackendNotFound, name)
	}
	return b, nil
}

// Default returns the highest priority backend that can be created.
func Default() (Backend, error) {
	for _, r := range sortedRegistrations() {
		if b := r.factory(); b != nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: none available", ErrBackendNotFound)
}

func sortedRegistrations() []registration {
	registryMu.RLock()
	regs := make([]registration, 0, len(registry))
	for _, r := range registry {
		regs = append(regs, r)
	}
	registryMu.RUnlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].name < regs[j].name
	})
	return regs
}
