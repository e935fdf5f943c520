// Package sink defines the interface for destinations that accept points,
// and a Registry that instantiates sinks by type name from configuration.
//
// Concrete sinks live in subpackages (influx, clickhouse, file). Each
// exposes a Factory that builds the sink from a raw options map, as read
// from the configuration file.
package sink

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kylerisse/perfpoints/pkg/point"
)

// Sink is a destination for points.
type Sink interface {
	// Type returns the registered name of this sink type (e.g. "influx").
	Type() string

	// Write delivers points. A Write either delivers everything it was
	// given or returns an error; sinks do not retry.
	Write(ctx context.Context, points []point.Point) error

	// Close releases any resources held by the sink.
	Close() error
}

// Factory creates a Sink from a raw options map.
type Factory func(options map[string]any) (Sink, error)

// Registry holds registered sink types and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a sink type factory under the given name.
// Returns an error if the name is already registered.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("sink type %q is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a Sink of the given type using the provided options.
// Returns an error naming the registered types if name is unknown, or the
// factory's error.
func (r *Registry) Create(name string, options map[string]any) (Sink, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type %q (available: %s)", name, strings.Join(r.Types(), ", "))
	}
	return factory(options)
}

// Has reports whether a sink type is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// Types returns the names of all registered sink types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
