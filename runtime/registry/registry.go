// Package registry maps operation function names to their implementations.
//
// Operation functions register themselves from init, the way database/sql
// drivers do, and the registry must be fully populated before a plan is
// compiled. Every registration also records a Descriptor on an append-only
// discovery list that tooling can enumerate.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dozer-project/lucius/core/artifact"
)

// OperationFunc computes one step result from an artifact. The result is
// bound under the step's output name and read by signal predicates.
type OperationFunc func(*artifact.Artifact) (any, error)

// Descriptor describes a registered operation for discovery.
type Descriptor struct {
	Function string `json:"function" yaml:"function" cbor:"function"`
	Output   string `json:"output" yaml:"output" cbor:"output"`
	Module   string `json:"module" yaml:"module" cbor:"module"`
}

// Registry holds registered operation functions.
type Registry struct {
	mu          sync.RWMutex
	funcs       map[string]OperationFunc
	descriptors []Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		funcs: make(map[string]OperationFunc),
	}
}

// Register adds fn under desc.Function. Registering a name twice is an
// error; the first registration wins.
func (r *Registry) Register(desc Descriptor, fn OperationFunc) error {
	if desc.Function == "" {
		return fmt.Errorf("register operation: empty function name")
	}
	if fn == nil {
		return fmt.Errorf("register operation %q: nil function", desc.Function)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[desc.Function]; exists {
		return fmt.Errorf("register operation %q: already registered", desc.Function)
	}
	r.funcs[desc.Function] = fn
	r.descriptors = append(r.descriptors, desc)
	return nil
}

// Lookup retrieves an operation function by name.
func (r *Registry) Lookup(name string) (OperationFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	return fn, ok
}

// IsRegistered checks if an operation name is registered.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.funcs[name]
	return ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns a copy of the discovery list in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Global registry instance (database/sql pattern)
var global = New()

// Default returns the process-wide registry that built-in operations
// register into.
func Default() *Registry {
	return global
}

// Register adds fn to the default registry.
//
// Example:
//
//	func init() {
//	    registry.MustRegister(registry.Descriptor{
//	        Function: "inspect_magic",
//	        Output:   "MagicResult",
//	        Module:   "ops",
//	    }, InspectMagic)
//	}
func Register(desc Descriptor, fn OperationFunc) error {
	return global.Register(desc, fn)
}

// MustRegister is Register for init functions; it panics on error.
func MustRegister(desc Descriptor, fn OperationFunc) {
	if err := global.Register(desc, fn); err != nil {
		panic(err)
	}
}

// Descriptors lists the default registry's descriptors.
func Descriptors() []Descriptor {
	return global.Descriptors()
}
