// Package registry maps the string transform/readable kinds a task spec
// names to concrete constructors, the way plugins.go's PluginRegistry maps
// a task type to an executor: a lookup table built at startup, consulted
// once per vertex by taskspec.Build.
package registry

import (
	"fmt"

	"github.com/swarmguard/taskexecutor/internal/ir"
)

// TransformFactory builds a Transform from a vertex's declared config.
type TransformFactory func(config map[string]any) (ir.Transform, error)

// ReadableFactory builds a Readable from a source vertex's declared
// config.
type ReadableFactory func(config map[string]any) (ir.Readable, error)

// Registry holds the transform and readable kinds this executor process
// knows how to construct.
type Registry struct {
	transforms map[string]TransformFactory
	readables  map[string]ReadableFactory
}

// New builds an empty Registry with the built-in kinds pre-registered.
func New() *Registry {
	r := &Registry{
		transforms: make(map[string]TransformFactory),
		readables:  make(map[string]ReadableFactory),
	}
	r.RegisterTransform("identity", newIdentityTransform)
	r.RegisterTransform("count", newCountTransform)
	r.RegisterReadable("static", newStaticReadable)
	return r
}

// RegisterTransform adds or replaces the factory for kind.
func (r *Registry) RegisterTransform(kind string, f TransformFactory) { r.transforms[kind] = f }

// RegisterReadable adds or replaces the factory for kind.
func (r *Registry) RegisterReadable(kind string, f ReadableFactory) { r.readables[kind] = f }

// Transform builds the Transform named by kind.
func (r *Registry) Transform(kind string, config map[string]any) (ir.Transform, error) {
	f, ok := r.transforms[kind]
	if !ok {
		return nil, fmt.Errorf("unknown transform kind %q", kind)
	}
	return f(config)
}

// Readable builds the Readable named by kind.
func (r *Registry) Readable(kind string, config map[string]any) (ir.Readable, error) {
	f, ok := r.readables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown readable kind %q", kind)
	}
	return f(config)
}
