// Package registry maps class names from pipeline configs to constructors.
//
// A Registry is an ordinary value owned by whoever composes the pipeline;
// there is no global table. Separate registries are kept per kind of thing being
// built (components, dataset readers), each with its own config type.
package registry

import (
	"errors"
	"fmt"
	"sort"
)

// Common errors for registry operations
var (
	ErrEmptyName     = errors.New("class name is empty")
	ErrDuplicateName = errors.New("class name already registered")
	ErrUnknownClass  = errors.New("unknown class name")
)

// Factory builds a T from its configuration
type Factory[C, T any] func(config C) (T, error)

// Registry maps class names to factories
type Registry[C, T any] struct {
	factories map[string]Factory[C, T]
}

// New creates an empty registry
func New[C, T any]() *Registry[C, T] {
	return &Registry[C, T]{factories: make(map[string]Factory[C, T])}
}

// Register adds a factory under name
func (r *Registry[C, T]) Register(name string, factory Factory[C, T]) error {
	if name == "" {
		return ErrEmptyName
	}
	if factory == nil {
		return fmt.Errorf("nil factory for %q", name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry[C, T]) MustRegister(name string, factory Factory[C, T]) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Has reports whether name is registered
func (r *Registry[C, T]) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Build constructs the class registered under name
func (r *Registry[C, T]) Build(name string, config C) (T, error) {
	factory, ok := r.factories[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownClass, name, r.Names())
	}
	return factory(config)
}

// Names returns the registered class names in sorted order
func (r *Registry[C, T]) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
