package dirty

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Reserved member names routed to the owning handler instead of the
// tracked instance. They shadow same-named instance methods.
const (
	memberIsDirty      = "IsDirty"
	memberDifferential = "DifferentialState"
	memberOriginal     = "OriginalState"
	memberRevert       = "Revert"
	memberInstance     = "Instance"
	memberString       = "String"
)

// Router is the routed entry point every wrapper call funnels into.
type Router interface {
	Intercept(token uuid.UUID, member string, args []any) (any, error)
}

// Boundary produces the wrapper object for a tracked identity. The
// wrapper holds no tracking state of its own, only the token its calls
// are routed under.
type Boundary interface {
	Wrap(router Router, token uuid.UUID, descriptors []Descriptor) (*Wrapper, error)
}

// BoundaryFunc adapts a function into a Boundary.
type BoundaryFunc func(router Router, token uuid.UUID, descriptors []Descriptor) (*Wrapper, error)

func (f BoundaryFunc) Wrap(router Router, token uuid.UUID, descriptors []Descriptor) (*Wrapper, error) {
	return f(router, token, descriptors)
}

func defaultBoundary() Boundary {
	return BoundaryFunc(func(router Router, token uuid.UUID, descriptors []Descriptor) (*Wrapper, error) {
		return newWrapper(router, token, descriptors), nil
	})
}

// Wrapper is the stand-in application code interacts with instead of the
// tracked instance. Property reads and writes, inspection calls, and
// arbitrary member calls all route through the owning factory, which
// keeps the wrapper valid across Refresh and fails fast with AccessError
// once the registry entry is gone.
type Wrapper struct {
	router Router
	token  uuid.UUID
	props  map[string]Descriptor
	names  []string
}

var _ Dirtyable = (*Wrapper)(nil)

func newWrapper(router Router, token uuid.UUID, descriptors []Descriptor) *Wrapper {
	props := make(map[string]Descriptor, len(descriptors))
	names := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		props[desc.Name] = desc
		names = append(names, desc.Name)
	}
	sort.Strings(names)
	return &Wrapper{router: router, token: token, props: props, names: names}
}

// Token returns the routing token assigned at wrap time.
func (w *Wrapper) Token() uuid.UUID {
	return w.token
}

// Properties returns the tracked property names in sorted order.
func (w *Wrapper) Properties() []string {
	return append([]string(nil), w.names...)
}

// Get reads a property through its getter. Nested entities and containers
// come back wrapped according to the factory policy.
func (w *Wrapper) Get(property string) (any, error) {
	desc, ok := w.props[property]
	if !ok {
		return nil, &InvocationError{Member: property, Err: errUnknownProperty}
	}
	return w.router.Intercept(w.token, desc.Getter, nil)
}

// Set writes a property through its setter, updating the patch map.
func (w *Wrapper) Set(property string, value any) error {
	desc, ok := w.props[property]
	if !ok {
		return &InvocationError{Member: property, Err: errUnknownProperty}
	}
	_, err := w.router.Intercept(w.token, desc.Setter, []any{value})
	return err
}

// Call routes an arbitrary member call. Accessor members behave exactly
// like Get and Set, anything else is delegated to the tracked instance.
func (w *Wrapper) Call(member string, args ...any) (any, error) {
	return w.router.Intercept(w.token, member, args)
}

// Dirty reports whether the tracked identity differs from its baseline.
func (w *Wrapper) Dirty() (bool, error) {
	result, err := w.router.Intercept(w.token, memberIsDirty, nil)
	if err != nil {
		return false, err
	}
	dirty, _ := result.(bool)
	return dirty, nil
}

// DifferentialState returns the properties currently differing from
// baseline.
func (w *Wrapper) DifferentialState() (map[string]any, error) {
	result, err := w.router.Intercept(w.token, memberDifferential, nil)
	if err != nil {
		return nil, err
	}
	diff, _ := result.(map[string]any)
	return diff, nil
}

// OriginalState returns a copy of the baseline snapshot.
func (w *Wrapper) OriginalState() (map[string]any, error) {
	result, err := w.router.Intercept(w.token, memberOriginal, nil)
	if err != nil {
		return nil, err
	}
	original, _ := result.(map[string]any)
	return original, nil
}

// Revert restores the tracked graph to its baseline.
func (w *Wrapper) Revert() error {
	_, err := w.router.Intercept(w.token, memberRevert, nil)
	return err
}

// Instance returns the raw tracked value behind the wrapper.
func (w *Wrapper) Instance() (any, error) {
	return w.router.Intercept(w.token, memberInstance, nil)
}

// String delegates to the tracked instance. Orphan wrappers report a
// marker instead of failing.
func (w *Wrapper) String() string {
	result, err := w.router.Intercept(w.token, memberString, nil)
	if err != nil {
		return fmt.Sprintf("<orphan wrapper %s>", w.token)
	}
	text, _ := result.(string)
	return text
}

// MarshalJSON substitutes the wrapper with its raw tracked instance.
func (w *Wrapper) MarshalJSON() ([]byte, error) {
	instance, err := w.Instance()
	if err != nil {
		return nil, err
	}
	return json.Marshal(instance)
}
