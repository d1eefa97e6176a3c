package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Completer. It is invoked once, when the backend is
// selected at startup.
type Factory func() (Completer, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register registers a backend factory under name, replacing any previous one.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// New builds the Completer registered under name.
func New(name string) (Completer, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend %q (registered: %v)", name, List())
	}
	c, err := f()
	if err != nil {
		return nil, fmt.Errorf("build backend %q: %w", name, err)
	}
	return c, nil
}

// List returns the names of all registered backends.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registered backends (for testing).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	factories = make(map[string]Factory)
}
