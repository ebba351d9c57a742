package dirty

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Function is a helper callable from rule expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helper functions exposed to rule engines.
// Names are case-insensitive. The zero value is ready to use.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry returns an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: map[string]Function{}}
}

// Register adds a function under name. Registering a nil function, an
// empty name, or a duplicate name fails.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("dirty: function %q is nil", name)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("dirty: function name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = map[string]Function{}
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("dirty: function %q already registered", key)
	}
	r.functions[key] = fn
	return nil
}

// Call invokes the named function.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("dirty: function registry not configured")
	}
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	fn, ok := r.functions[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dirty: unknown function %q", name)
	}
	return fn(args...)
}

// Names returns the registered names sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy sharing the function values but not the
// map, so later registrations on either side stay independent.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	clone := NewFunctionRegistry()
	if r == nil {
		return clone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Len reports the number of registered functions.
func (r *FunctionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}
