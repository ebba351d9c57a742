package dirty

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// entityState owns the baseline snapshot, the patch map, and the
// sub-state cache for one tracked instance. The mutex guards the maps
// only; it is never held across a call into the instance's own code, so
// interception stays reentrant.
type entityState struct {
	factory *Factory
	token   uuid.UUID
	wrapper *Wrapper

	descriptors map[string]Descriptor
	getters     map[string]string
	setters     map[string]string

	mu       sync.Mutex
	instance any
	baseline map[string]any
	patches  map[string]any
	subs     map[string]State
	cache    map[string]any
}

func newEntityState(f *Factory, token uuid.UUID, descriptors []Descriptor) *entityState {
	s := &entityState{
		factory:     f,
		token:       token,
		descriptors: make(map[string]Descriptor, len(descriptors)),
		getters:     make(map[string]string, len(descriptors)),
		setters:     make(map[string]string, len(descriptors)),
		patches:     map[string]any{},
		subs:        map[string]State{},
		cache:       map[string]any{},
	}
	for _, desc := range descriptors {
		s.descriptors[desc.Name] = desc
		s.getters[desc.Getter] = desc.Name
		s.setters[desc.Setter] = desc.Name
	}
	return s
}

// rebase snapshots next's properties as the new baseline and drops all
// accumulated tracking state.
func (s *entityState) rebase(next any) error {
	baseline, err := snapshotProperties(next, s.descriptors)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.instance = next
	s.baseline = baseline
	s.patches = map[string]any{}
	s.subs = map[string]State{}
	s.cache = map[string]any{}
	s.mu.Unlock()
	return nil
}

func snapshotProperties(instance any, descriptors map[string]Descriptor) (map[string]any, error) {
	rv := reflect.ValueOf(instance)
	baseline := make(map[string]any, len(descriptors))
	for name, desc := range descriptors {
		value, err := callGetter(rv, desc.Getter)
		if err != nil {
			return nil, err
		}
		baseline[name] = value
	}
	return baseline, nil
}

func (s *entityState) Instance() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance
}

func (s *entityState) Wrapper() any {
	return s.wrapper
}

func (s *entityState) IsDirty() bool {
	return s.dirtyWalk(map[State]bool{})
}

func (s *entityState) dirtyWalk(seen map[State]bool) bool {
	if seen[s] {
		return false
	}
	seen[s] = true

	s.mu.Lock()
	if len(s.patches) > 0 {
		s.mu.Unlock()
		return true
	}
	subs := make([]State, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if stateDirty(sub, seen) {
			return true
		}
	}
	return false
}

func stateDirty(st State, seen map[State]bool) bool {
	switch h := st.(type) {
	case *entityState:
		return h.dirtyWalk(seen)
	case *containerState:
		return h.dirtyWalk(seen)
	default:
		return st.IsDirty()
	}
}

func (s *entityState) OriginalState() (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	original := make(map[string]any, len(s.baseline))
	for name, value := range s.baseline {
		original[name] = value
	}
	return original, nil
}

// DifferentialState returns patched properties at their patched value
// plus, for every unpatched property whose cached sub-state is dirty,
// that property at its current wrapped value.
func (s *entityState) DifferentialState() (map[string]any, error) {
	diff := map[string]any{}

	type subEntry struct {
		name  string
		sub   State
		value any
	}
	s.mu.Lock()
	for name, value := range s.patches {
		diff[name] = value
	}
	entries := make([]subEntry, 0, len(s.subs))
	for name, sub := range s.subs {
		if _, patched := s.patches[name]; patched {
			continue
		}
		value, ok := s.cache[name]
		if !ok {
			continue
		}
		entries = append(entries, subEntry{name: name, sub: sub, value: value})
	}
	s.mu.Unlock()

	for _, entry := range entries {
		// A fresh visited set per property so a sub shared across
		// properties is never masked by an earlier walk.
		if stateDirty(entry.sub, map[State]bool{s: true}) {
			diff[entry.name] = entry.value
		}
	}
	return diff, nil
}

// Revert restores the baseline: dirty entity sub-states revert first,
// then every differential property's baseline value is written back
// through its setter, then all tracking state clears. Container
// sub-states carry no value-level diff; revert resets their structural
// signal but leaves their contents and any dirty members as they are.
func (s *entityState) Revert() error {
	return s.revertWalk(map[State]bool{})
}

func (s *entityState) revertWalk(seen map[State]bool) error {
	if seen[s] {
		return nil
	}
	seen[s] = true

	diff, err := s.DifferentialState()
	if err != nil {
		return err
	}

	s.mu.Lock()
	subs := make([]State, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	restore := make(map[string]any, len(diff))
	for name := range diff {
		restore[name] = s.baseline[name]
	}
	instance := s.instance
	s.mu.Unlock()

	for _, sub := range subs {
		switch sub := sub.(type) {
		case *entityState:
			if err := sub.revertWalk(seen); err != nil {
				return err
			}
		case *containerState:
			sub.resetStructural()
		}
	}

	for name, value := range restore {
		desc := s.descriptors[name]
		if err := callSetter(instance, desc.Setter, value, desc.Type); err != nil {
			return &InvocationError{Member: desc.Setter, Err: err}
		}
	}

	s.mu.Lock()
	s.patches = map[string]any{}
	s.subs = map[string]State{}
	s.cache = map[string]any{}
	s.mu.Unlock()

	s.factory.noteReverted(s)
	return nil
}

func (s *entityState) Refresh(next any) error {
	_, err := s.factory.refreshEntity(s, next)
	return err
}

func (s *entityState) Close() {
	s.factory.teardown(s)
}

// clear drops all tracking state, leaving the instance untouched.
func (s *entityState) clear() {
	s.mu.Lock()
	s.patches = map[string]any{}
	s.subs = map[string]State{}
	s.cache = map[string]any{}
	s.mu.Unlock()
}

func (s *entityState) intercept(member string, args []any) (any, error) {
	switch member {
	case memberIsDirty:
		return s.IsDirty(), nil
	case memberDifferential:
		diff, err := s.DifferentialState()
		return diff, err
	case memberOriginal:
		original, err := s.OriginalState()
		return original, err
	case memberRevert:
		return nil, s.Revert()
	case memberInstance:
		return s.Instance(), nil
	case memberString:
		return s.describe(), nil
	}
	if name, ok := s.getters[member]; ok {
		return s.interceptGetter(s.descriptors[name])
	}
	if name, ok := s.setters[member]; ok {
		if len(args) != 1 {
			return nil, &InvocationError{Member: member, Err: fmt.Errorf("setter expects one argument, got %d", len(args))}
		}
		return nil, s.interceptSetter(s.descriptors[name], args[0])
	}
	return s.invoke(member, args)
}

func (s *entityState) describe() string {
	instance := s.Instance()
	if stringer, ok := instance.(fmt.Stringer); ok {
		return stringer.String()
	}
	return fmt.Sprintf("%v", instance)
}

// interceptGetter delegates to the raw getter and offers the result to
// the wrap-if-needed path. Only wrapped results are cached, so a tracked
// sub-graph keeps a stable identity across reads while plain values read
// through to the instance on every call. Racing getters may both wrap;
// the first cached result wins for both.
func (s *entityState) interceptGetter(desc Descriptor) (any, error) {
	s.mu.Lock()
	if value, ok := s.cache[desc.Name]; ok {
		s.mu.Unlock()
		return value, nil
	}
	instance := s.instance
	s.mu.Unlock()

	raw, err := callGetter(reflect.ValueOf(instance), desc.Getter)
	if err != nil {
		return nil, &InvocationError{Member: desc.Getter, Err: err}
	}
	wrapped, err := s.factory.wrapProperty(desc.Name, raw)
	if err != nil {
		return nil, err
	}
	sub, tracked := s.factory.stateBehind(wrapped)
	if !tracked {
		return wrapped, nil
	}

	s.mu.Lock()
	if existing, ok := s.cache[desc.Name]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.cache[desc.Name] = wrapped
	s.subs[desc.Name] = sub
	s.mu.Unlock()
	return wrapped, nil
}

// interceptSetter writes through to the raw setter first, then updates
// the patch map against the baseline: equal-to-baseline removes the
// patch, anything else records the value as passed.
func (s *entityState) interceptSetter(desc Descriptor, value any) error {
	raw, err := s.factory.resolveRaw(value)
	if err != nil {
		return err
	}
	instance := s.Instance()
	if err := callSetter(instance, desc.Setter, raw, desc.Type); err != nil {
		return &InvocationError{Member: desc.Setter, Err: err}
	}

	s.mu.Lock()
	dirtied := false
	if strictEquals(raw, s.baseline[desc.Name]) {
		delete(s.patches, desc.Name)
	} else {
		s.patches[desc.Name] = value
		dirtied = true
	}
	delete(s.cache, desc.Name)
	delete(s.subs, desc.Name)
	s.mu.Unlock()

	s.factory.noteModified(s, desc.Name, dirtied)
	return nil
}

// invoke delegates a non-accessor member to the tracked instance
// reflectively. Wrapped arguments are unwrapped to their raw values and
// a trailing error return is surfaced as the call's error.
func (s *entityState) invoke(member string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &InvocationError{Member: member, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	method := reflect.ValueOf(s.Instance()).MethodByName(member)
	if !method.IsValid() {
		return nil, &InvocationError{Member: member, Err: errUnknownMember}
	}

	mt := method.Type()
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		raw, rerr := s.factory.resolveRaw(arg)
		if rerr != nil {
			return nil, rerr
		}
		var paramType reflect.Type
		switch {
		case mt.IsVariadic() && i >= mt.NumIn()-1:
			paramType = mt.In(mt.NumIn() - 1).Elem()
		case i < mt.NumIn():
			paramType = mt.In(i)
		default:
			return nil, &InvocationError{Member: member, Err: fmt.Errorf("too many arguments: got %d", len(args))}
		}
		if raw == nil {
			in[i] = reflect.Zero(paramType)
		} else {
			in[i] = reflect.ValueOf(raw)
		}
	}

	out := method.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if mt.Out(0) == errorType {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, out[0].Interface().(error)
		}
		return out[0].Interface(), nil
	default:
		values := make([]any, len(out))
		for i := range out {
			values[i] = out[i].Interface()
		}
		if mt.Out(mt.NumOut()-1) == errorType {
			var callErr error
			if !out[len(out)-1].IsNil() {
				callErr = out[len(out)-1].Interface().(error)
			}
			if len(out) == 2 {
				return values[0], callErr
			}
			return values[:len(values)-1], callErr
		}
		return values, nil
	}
}

func callGetter(rv reflect.Value, member string) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("calling %s: %v", member, r)
		}
	}()
	method := rv.MethodByName(member)
	if !method.IsValid() {
		return nil, fmt.Errorf("no method %s on %s", member, rv.Type())
	}
	out := method.Call(nil)
	return out[0].Interface(), nil
}

func callSetter(instance any, member string, value any, paramType reflect.Type) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("calling %s: %v", member, r)
		}
	}()
	method := reflect.ValueOf(instance).MethodByName(member)
	if !method.IsValid() {
		return fmt.Errorf("no method %s on %T", member, instance)
	}
	var arg reflect.Value
	if value == nil {
		arg = reflect.Zero(paramType)
	} else {
		arg = reflect.ValueOf(value)
		if !arg.Type().AssignableTo(paramType) {
			return fmt.Errorf("cannot assign %T to %s", value, paramType)
		}
	}
	method.Call([]reflect.Value{arg})
	return nil
}

// strictEquals is the "did this property change" rule: containers
// compare by identity, pointers by address, everything else by deep
// equality.
func strictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isContainerValue(a) || isContainerValue(b) {
		return containerIdentity(a, b)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Pointer || rb.Kind() == reflect.Pointer {
		if ra.Kind() != rb.Kind() || ra.Type() != rb.Type() {
			return false
		}
		return ra.Pointer() == rb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

func containerIdentity(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() || ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Map:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Len() == rb.Len() && (ra.Len() == 0 || ra.Pointer() == rb.Pointer())
	case reflect.Array:
		return reflect.DeepEqual(a, b)
	default:
		return false
	}
}
