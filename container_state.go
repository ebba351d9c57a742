package dirty

import (
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// containerState owns the structural-dirty flag and per-element tracking
// for one list, set, or map. Containers contribute a boolean dirty
// signal only; value-level diff and revert are unsupported.
type containerState struct {
	factory *Factory
	token   uuid.UUID
	wrapper any

	mu         sync.Mutex
	raw        any
	structural bool
	// wrapped maps a raw member to its wrapper, recorded only when
	// wrapping actually replaced the value.
	wrapped map[any]any
	subs    map[State]bool
}

func newContainerState(f *Factory, raw any, token uuid.UUID) *containerState {
	return &containerState{
		factory: f,
		token:   token,
		raw:     raw,
		wrapped: map[any]any{},
		subs:    map[State]bool{},
	}
}

// buildWrapper picks the tracked view matching the raw container kind.
func (s *containerState) buildWrapper() (any, error) {
	switch s.raw.(type) {
	case List:
		s.wrapper = &trackedList{state: s}
	case Set:
		s.wrapper = &trackedSet{state: s}
	case Map:
		s.wrapper = &trackedMap{state: s}
	default:
		return nil, &CreationError{Type: typeName(s.raw), Err: fmt.Errorf("not a trackable container")}
	}
	return s.wrapper, nil
}

// adoptExisting eagerly offers current members to the wrap-if-needed
// path. Map keys stay raw, only values are offered.
func (s *containerState) adoptExisting(path *buildPath) error {
	switch raw := s.raw.(type) {
	case Map:
		for _, entry := range raw.Entries() {
			if _, err := s.adoptWith(path, entry.Value); err != nil {
				return err
			}
		}
	case List:
		for it := raw.Iterator(); it.Next(); {
			if _, err := s.adoptWith(path, it.Value()); err != nil {
				return err
			}
		}
	case Set:
		for it := raw.Iterator(); it.Next(); {
			if _, err := s.adoptWith(path, it.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}

// adoptWith unwraps value to its raw form, offers it to the wrap path,
// and records the wrapper when one was produced. The raw form is what
// the underlying container stores.
func (s *containerState) adoptWith(path *buildPath, value any) (any, error) {
	raw, err := s.factory.resolveRaw(value)
	if err != nil {
		return nil, err
	}
	wrapped, err := s.factory.wrapIfNecessary("", raw, path)
	if err != nil {
		return nil, err
	}
	if wrapped == nil || !wrappedValue(wrapped) {
		return raw, nil
	}
	sub, ok := s.factory.stateBehind(wrapped)
	if !ok {
		return raw, nil
	}
	s.mu.Lock()
	if comparableValue(raw) {
		s.wrapped[raw] = wrapped
	}
	s.subs[sub] = true
	s.mu.Unlock()
	return raw, nil
}

// adopt is the mutator-path variant of adoptWith. Wrap failures are
// traced and the raw value stored untracked, since container interfaces
// carry no error returns.
func (s *containerState) adopt(value any) any {
	raw, err := s.factory.resolveRaw(value)
	if err != nil {
		s.factory.trace(TraceEvent{Op: "adopt", Type: typeName(value), Err: err})
		return value
	}
	if _, err := s.adoptWith(newBuildPath(), raw); err != nil {
		s.factory.trace(TraceEvent{Op: "adopt", Type: typeName(raw), Err: err})
	}
	return raw
}

// resolve shallow-unwraps a lookup argument, falling back to the value
// itself when it is an orphan wrapper.
func (s *containerState) resolve(value any) any {
	raw, err := s.factory.resolveRaw(value)
	if err != nil {
		return value
	}
	return raw
}

// rewrap substitutes a raw member with its recorded wrapper on the way
// out.
func (s *containerState) rewrap(value any) any {
	if value == nil || !comparableValue(value) {
		return value
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if wrapped, ok := s.wrapped[value]; ok {
		return wrapped
	}
	return value
}

func (s *containerState) markDirty() {
	s.mu.Lock()
	s.structural = true
	s.mu.Unlock()
}

// resetStructural drops the structural-dirty flag while leaving member
// tracking intact. An owning entity calls this when it reverts; dirty
// members keep reporting through the member registry.
func (s *containerState) resetStructural() {
	s.mu.Lock()
	s.structural = false
	s.mu.Unlock()
}

func (s *containerState) Instance() any {
	return s.raw
}

func (s *containerState) Wrapper() any {
	return s.wrapper
}

func (s *containerState) IsDirty() bool {
	return s.dirtyWalk(map[State]bool{})
}

func (s *containerState) dirtyWalk(seen map[State]bool) bool {
	if seen[s] {
		return false
	}
	seen[s] = true

	s.mu.Lock()
	if s.structural {
		s.mu.Unlock()
		return true
	}
	subs := make([]State, 0, len(s.subs))
	for sub := range s.subs {
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

func (s *containerState) OriginalState() (map[string]any, error) {
	return nil, &StateError{Op: "originalState", Detail: "containers track a dirty signal only"}
}

func (s *containerState) DifferentialState() (map[string]any, error) {
	return nil, &StateError{Op: "differentialState", Detail: "containers track a dirty signal only"}
}

func (s *containerState) Revert() error {
	return &StateError{Op: "revert", Detail: "containers cannot revert"}
}

func (s *containerState) Refresh(any) error {
	return &StateError{Op: "refresh", Detail: "container identities cannot be refreshed"}
}

func (s *containerState) Close() {
	s.factory.teardown(s)
}

func (s *containerState) clear() {
	s.mu.Lock()
	s.wrapped = map[any]any{}
	s.subs = map[State]bool{}
	s.mu.Unlock()
}

func (s *containerState) intercept(member string, _ []any) (any, error) {
	switch member {
	case memberIsDirty:
		return s.IsDirty(), nil
	case memberInstance:
		return s.Instance(), nil
	case memberString:
		return fmt.Sprintf("%v", s.raw), nil
	case memberDifferential:
		diff, err := s.DifferentialState()
		return diff, err
	case memberOriginal:
		original, err := s.OriginalState()
		return original, err
	case memberRevert:
		return nil, s.Revert()
	}
	return nil, &InvocationError{Member: member, Err: errUnknownMember}
}

func (s *containerState) list() List {
	return s.raw.(List)
}

func (s *containerState) set() Set {
	return s.raw.(Set)
}

func (s *containerState) mapRaw() Map {
	return s.raw.(Map)
}

func wrappedValue(value any) bool {
	switch value.(type) {
	case *Wrapper, *trackedList, *trackedSet, *trackedMap:
		return true
	}
	return false
}

func comparableValue(value any) bool {
	if value == nil {
		return false
	}
	return reflect.TypeOf(value).Comparable()
}

// trackedList is the tracked view over a List. Mutators flip the
// structural-dirty flag, accessors rewrap tracked elements.
type trackedList struct {
	state *containerState
}

func (l *trackedList) Add(value any) {
	raw := l.state.adopt(value)
	l.state.list().Add(raw)
	l.state.markDirty()
}

func (l *trackedList) AddAll(values ...any) {
	raws := make([]any, len(values))
	for i, value := range values {
		raws[i] = l.state.adopt(value)
	}
	l.state.list().AddAll(raws...)
	l.state.markDirty()
}

func (l *trackedList) Insert(index int, value any) {
	raw := l.state.adopt(value)
	l.state.list().Insert(index, raw)
	l.state.markDirty()
}

func (l *trackedList) Set(index int, value any) any {
	raw := l.state.adopt(value)
	previous := l.state.list().Set(index, raw)
	l.state.markDirty()
	return l.state.rewrap(previous)
}

func (l *trackedList) Get(index int) any {
	return l.state.rewrap(l.state.list().Get(index))
}

func (l *trackedList) Remove(value any) bool {
	removed := l.state.list().Remove(l.state.resolve(value))
	l.state.markDirty()
	return removed
}

func (l *trackedList) RemoveAt(index int) any {
	previous := l.state.list().RemoveAt(index)
	l.state.markDirty()
	return l.state.rewrap(previous)
}

func (l *trackedList) RemoveIf(predicate func(value any) bool) bool {
	changed := l.state.list().RemoveIf(func(value any) bool {
		return predicate(l.state.rewrap(value))
	})
	l.state.markDirty()
	return changed
}

func (l *trackedList) RemoveAll(values ...any) bool {
	raws := make([]any, len(values))
	for i, value := range values {
		raws[i] = l.state.resolve(value)
	}
	changed := l.state.list().RemoveAll(raws...)
	l.state.markDirty()
	return changed
}

func (l *trackedList) RetainAll(values ...any) bool {
	raws := make([]any, len(values))
	for i, value := range values {
		raws[i] = l.state.resolve(value)
	}
	changed := l.state.list().RetainAll(raws...)
	l.state.markDirty()
	return changed
}

func (l *trackedList) Clear() {
	l.state.list().Clear()
	l.state.markDirty()
}

func (l *trackedList) Contains(value any) bool {
	return l.state.list().Contains(l.state.resolve(value))
}

func (l *trackedList) IndexOf(value any) int {
	return l.state.list().IndexOf(l.state.resolve(value))
}

func (l *trackedList) Len() int {
	return l.state.list().Len()
}

func (l *trackedList) Iterator() Iterator {
	return &trackedIterator{state: l.state, inner: l.state.list().Iterator()}
}

func (l *trackedList) All() iter.Seq[any] {
	inner := l.state.list().All()
	return func(yield func(any) bool) {
		for value := range inner {
			if !yield(l.state.rewrap(value)) {
				return
			}
		}
	}
}

// Dirty reports the container's tracking signal.
func (l *trackedList) Dirty() bool {
	return l.state.IsDirty()
}

// MarshalJSON substitutes the tracked view with the raw container.
func (l *trackedList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.state.list())
}

// trackedSet is the tracked view over a Set.
type trackedSet struct {
	state *containerState
}

func (s *trackedSet) Add(value any) bool {
	raw := s.state.adopt(value)
	added := s.state.set().Add(raw)
	s.state.markDirty()
	return added
}

func (s *trackedSet) AddAll(values ...any) bool {
	changed := false
	for _, value := range values {
		raw := s.state.adopt(value)
		if s.state.set().Add(raw) {
			changed = true
		}
	}
	s.state.markDirty()
	return changed
}

func (s *trackedSet) Remove(value any) bool {
	removed := s.state.set().Remove(s.state.resolve(value))
	s.state.markDirty()
	return removed
}

func (s *trackedSet) RemoveIf(predicate func(value any) bool) bool {
	changed := s.state.set().RemoveIf(func(value any) bool {
		return predicate(s.state.rewrap(value))
	})
	s.state.markDirty()
	return changed
}

func (s *trackedSet) RemoveAll(values ...any) bool {
	raws := make([]any, len(values))
	for i, value := range values {
		raws[i] = s.state.resolve(value)
	}
	changed := s.state.set().RemoveAll(raws...)
	s.state.markDirty()
	return changed
}

func (s *trackedSet) RetainAll(values ...any) bool {
	raws := make([]any, len(values))
	for i, value := range values {
		raws[i] = s.state.resolve(value)
	}
	changed := s.state.set().RetainAll(raws...)
	s.state.markDirty()
	return changed
}

func (s *trackedSet) Clear() {
	s.state.set().Clear()
	s.state.markDirty()
}

func (s *trackedSet) Contains(value any) bool {
	return s.state.set().Contains(s.state.resolve(value))
}

func (s *trackedSet) Len() int {
	return s.state.set().Len()
}

func (s *trackedSet) Iterator() Iterator {
	return &trackedIterator{state: s.state, inner: s.state.set().Iterator()}
}

func (s *trackedSet) All() iter.Seq[any] {
	inner := s.state.set().All()
	return func(yield func(any) bool) {
		for value := range inner {
			if !yield(s.state.rewrap(value)) {
				return
			}
		}
	}
}

func (s *trackedSet) Dirty() bool {
	return s.state.IsDirty()
}

func (s *trackedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.state.set())
}

// trackedMap is the tracked view over a Map. Keys stay raw, values are
// tracked.
type trackedMap struct {
	state *containerState
}

func (m *trackedMap) Put(key, value any) any {
	raw := m.state.adopt(value)
	previous := m.state.mapRaw().Put(m.state.resolve(key), raw)
	m.state.markDirty()
	return m.state.rewrap(previous)
}

func (m *trackedMap) PutAll(src Map) {
	if src == nil {
		return
	}
	for _, entry := range src.Entries() {
		m.Put(entry.Key, entry.Value)
	}
}

func (m *trackedMap) Merge(key, value any, remap func(current, value any) any) any {
	current, ok := m.Get(key)
	if !ok || remap == nil {
		m.Put(key, value)
		merged, _ := m.Get(key)
		return merged
	}
	m.Put(key, remap(current, value))
	merged, _ := m.Get(key)
	return merged
}

func (m *trackedMap) Get(key any) (any, bool) {
	value, ok := m.state.mapRaw().Get(m.state.resolve(key))
	if !ok {
		return nil, false
	}
	return m.state.rewrap(value), true
}

func (m *trackedMap) Remove(key any) (any, bool) {
	previous, ok := m.state.mapRaw().Remove(m.state.resolve(key))
	m.state.markDirty()
	if !ok {
		return nil, false
	}
	return m.state.rewrap(previous), true
}

func (m *trackedMap) ContainsKey(key any) bool {
	return m.state.mapRaw().ContainsKey(m.state.resolve(key))
}

func (m *trackedMap) Clear() {
	m.state.mapRaw().Clear()
	m.state.markDirty()
}

func (m *trackedMap) Keys() []any {
	return m.state.mapRaw().Keys()
}

func (m *trackedMap) Values() []any {
	values := m.state.mapRaw().Values()
	for i, value := range values {
		values[i] = m.state.rewrap(value)
	}
	return values
}

func (m *trackedMap) Entries() []MapEntry {
	entries := m.state.mapRaw().Entries()
	for i, entry := range entries {
		entries[i].Value = m.state.rewrap(entry.Value)
	}
	return entries
}

func (m *trackedMap) Len() int {
	return m.state.mapRaw().Len()
}

func (m *trackedMap) Iterator() Iterator {
	return &trackedIterator{state: m.state, inner: m.state.mapRaw().Iterator()}
}

func (m *trackedMap) All() iter.Seq2[any, any] {
	inner := m.state.mapRaw().All()
	return func(yield func(any, any) bool) {
		for key, value := range inner {
			if !yield(key, m.state.rewrap(value)) {
				return
			}
		}
	}
}

func (m *trackedMap) Dirty() bool {
	return m.state.IsDirty()
}

func (m *trackedMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.state.mapRaw())
}

// trackedIterator rewraps elements on the way out and dirties the
// container when the iterator removes.
type trackedIterator struct {
	state *containerState
	inner Iterator
}

func (it *trackedIterator) Next() bool {
	return it.inner.Next()
}

func (it *trackedIterator) Value() any {
	value := it.inner.Value()
	if entry, ok := value.(MapEntry); ok {
		entry.Value = it.state.rewrap(entry.Value)
		return entry
	}
	return it.state.rewrap(value)
}

func (it *trackedIterator) Remove() {
	it.inner.Remove()
	it.state.markDirty()
}
