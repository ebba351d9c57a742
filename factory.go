package dirty

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Option configures a Factory.
type Option func(*factoryConfig)

type factoryConfig struct {
	catalog  Catalog
	policy   Policy
	boundary Boundary
	logger   TraceLogger
	journal  journalSettings
}

// WithCatalog replaces the property catalog. Defaults to a fresh
// ReflectCatalog.
func WithCatalog(catalog Catalog) Option {
	return func(cfg *factoryConfig) {
		cfg.catalog = catalog
	}
}

// WithPolicy replaces the tracking policy. Defaults to DefaultPolicy.
func WithPolicy(policy Policy) Option {
	return func(cfg *factoryConfig) {
		cfg.policy = policy
	}
}

// WithBoundary replaces the wrapper producer.
func WithBoundary(boundary Boundary) Option {
	return func(cfg *factoryConfig) {
		cfg.boundary = boundary
	}
}

// WithTraceLogger receives factory lifecycle and interception events.
func WithTraceLogger(logger TraceLogger) Option {
	return func(cfg *factoryConfig) {
		cfg.logger = logger
	}
}

// Factory is the top-level registry: it guarantees at most one handler
// per tracked identity, routes intercepted wrapper calls to the owning
// handler, and owns the create/refresh/release/close lifecycle.
type Factory struct {
	cfg     factoryConfig
	emitter journalEmitter

	mu     sync.RWMutex
	states map[any]State
	routes map[uuid.UUID]State
	closed bool
}

// New builds a factory.
func New(opts ...Option) (*Factory, error) {
	cfg := factoryConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.catalog == nil {
		cfg.catalog = NewReflectCatalog()
	}
	if cfg.policy == nil {
		cfg.policy = DefaultPolicy{}
	}
	if cfg.boundary == nil {
		cfg.boundary = defaultBoundary()
	}
	if cfg.logger == nil {
		cfg.logger = nopTraceLogger{}
	}

	f := &Factory{
		cfg:    cfg,
		states: map[any]State{},
		routes: map[uuid.UUID]State{},
	}
	f.emitter = cfg.journal.build()
	return f, nil
}

func (f *Factory) trace(event TraceEvent) {
	f.cfg.logger.Trace(event)
}

// Create wraps instance for tracking. Calling it again with the same
// instance, or with the wrapper itself, returns the same wrapper.
func (f *Factory) Create(instance any) (*Wrapper, error) {
	if err := f.ensureOpen("create"); err != nil {
		return nil, err
	}
	if wrapper, ok := instance.(*Wrapper); ok {
		if _, ok := f.stateForToken(wrapper.token); ok {
			return wrapper, nil
		}
		return nil, &AccessError{}
	}
	if err := validateEntity(instance); err != nil {
		return nil, err
	}
	return f.wrapEntity(instance, newBuildPath())
}

// ExistingState returns the handler tracking value, which may be a raw
// instance, a wrapper, or a tracked container.
func (f *Factory) ExistingState(value any) (State, bool) {
	return f.lookupAny(value)
}

// WrapIfNecessary offers value to the tracking policy: entities and
// containers come back wrapped, everything else comes back untouched.
func (f *Factory) WrapIfNecessary(value any) (any, error) {
	if err := f.ensureOpen("wrap"); err != nil {
		return nil, err
	}
	return f.wrapIfNecessary("", value, newBuildPath())
}

// Refresh re-baselines the handler tracking previous onto next. The
// wrapper identity survives: previously handed out wrapper references
// keep working against the new baseline.
func (f *Factory) Refresh(previous, next any) (*Wrapper, error) {
	if err := f.ensureOpen("refresh"); err != nil {
		return nil, err
	}
	st, ok := f.lookupAny(previous)
	if !ok {
		return nil, &StateError{Op: "refresh", Detail: fmt.Sprintf("%s is not tracked", typeName(previous))}
	}
	es, ok := st.(*entityState)
	if !ok {
		return nil, &StateError{Op: "refresh", Detail: "container identities cannot be refreshed"}
	}
	return f.refreshEntity(es, next)
}

// Release drops the handler tracking value from the registries. Further
// wrapper calls fail with AccessError.
func (f *Factory) Release(value any) error {
	if err := f.ensureOpen("release"); err != nil {
		return err
	}
	st, ok := f.lookupAny(value)
	if !ok {
		return &StateError{Op: "release", Detail: fmt.Sprintf("%s is not tracked", typeName(value))}
	}
	st.Close()
	return nil
}

// Close tears down every handler and marks the factory closed. Closing
// twice is a no-op. Concurrent in-flight interception is a documented
// caller precondition, not enforced here.
func (f *Factory) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	states := make([]State, 0, len(f.states))
	for _, st := range f.states {
		states = append(states, st)
	}
	f.states = map[any]State{}
	f.routes = map[uuid.UUID]State{}
	f.mu.Unlock()

	for _, st := range states {
		f.clearState(st)
		f.emitReleased(st)
	}
	f.trace(TraceEvent{Op: "close"})
	f.emitClosed(len(states))
	return nil
}

// Unwrap deep-unwraps value: wrappers become their raw instances and
// containers become fresh containers holding recursively unwrapped
// elements.
func (f *Factory) Unwrap(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Wrapper:
		st, ok := f.stateForToken(v.token)
		if !ok {
			return nil, &AccessError{Member: memberInstance}
		}
		return f.Unwrap(st.Instance())
	case *trackedList:
		return f.unwrapList(v.state.list())
	case *trackedSet:
		return f.unwrapSet(v.state.set())
	case *trackedMap:
		return f.unwrapMap(v.state.mapRaw())
	case List:
		return f.unwrapList(v)
	case Set:
		return f.unwrapSet(v)
	case Map:
		return f.unwrapMap(v)
	}
	return value, nil
}

func (f *Factory) unwrapList(src List) (any, error) {
	out := NewList()
	for it := src.Iterator(); it.Next(); {
		raw, err := f.Unwrap(it.Value())
		if err != nil {
			return nil, err
		}
		out.Add(raw)
	}
	return out, nil
}

func (f *Factory) unwrapSet(src Set) (any, error) {
	out := NewSet()
	for it := src.Iterator(); it.Next(); {
		raw, err := f.Unwrap(it.Value())
		if err != nil {
			return nil, err
		}
		out.Add(raw)
	}
	return out, nil
}

func (f *Factory) unwrapMap(src Map) (any, error) {
	out := NewMap()
	for _, entry := range src.Entries() {
		raw, err := f.Unwrap(entry.Value)
		if err != nil {
			return nil, err
		}
		out.Put(entry.Key, raw)
	}
	return out, nil
}

// Intercept is the routed entry point the interception boundary funnels
// every wrapper call into.
func (f *Factory) Intercept(token uuid.UUID, member string, args []any) (any, error) {
	st, ok := f.stateForToken(token)
	if !ok {
		return nil, &AccessError{Member: member}
	}
	switch h := st.(type) {
	case *entityState:
		return h.intercept(member, args)
	case *containerState:
		return h.intercept(member, args)
	default:
		return nil, &AccessError{Member: member}
	}
}

func (f *Factory) ensureOpen(op string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return &AccessError{Op: op}
	}
	return nil
}

func validateEntity(instance any) error {
	if instance == nil {
		return &CreationError{Type: "<nil>"}
	}
	rv := reflect.ValueOf(instance)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem().Kind() != reflect.Struct {
		return &CreationError{
			Type: typeName(instance),
			Err:  fmt.Errorf("tracked instances must be non-nil struct pointers"),
		}
	}
	return nil
}

// buildPath is the per-call "in construction" identity set. Revisiting
// an identity mid-wrap means the graph cycles through a container, which
// cannot terminate, so it raises StateError.
type buildPath struct {
	active map[any]bool
}

func newBuildPath() *buildPath {
	return &buildPath{active: map[any]bool{}}
}

func (p *buildPath) enter(identity any) error {
	if p.active[identity] {
		return &StateError{Op: "create", Detail: fmt.Sprintf("cycle detected while wrapping %s", typeName(identity))}
	}
	p.active[identity] = true
	return nil
}

func (p *buildPath) exit(identity any) {
	delete(p.active, identity)
}

// wrapProperty is the getter-interception wrap path; the property name
// reaches the policy.
func (f *Factory) wrapProperty(property string, value any) (any, error) {
	return f.wrapIfNecessary(property, value, newBuildPath())
}

func (f *Factory) wrapIfNecessary(property string, value any, path *buildPath) (any, error) {
	if value == nil {
		return nil, nil
	}
	if wrappedValue(value) {
		return value, nil
	}
	if st, ok := f.lookupState(value); ok {
		return st.Wrapper(), nil
	}
	if f.cfg.policy.TrackEntity(property, value) {
		if err := validateEntity(value); err != nil {
			return nil, err
		}
		wrapper, err := f.wrapEntity(value, path)
		if err != nil {
			return nil, err
		}
		return wrapper, nil
	}
	if f.cfg.policy.TrackContainer(value) {
		return f.wrapContainer(value, path)
	}
	return value, nil
}

// wrapEntity builds a handler optimistically outside the registry lock,
// then inserts if absent: when two goroutines race on the same instance
// exactly one handler wins and both receive it.
func (f *Factory) wrapEntity(instance any, path *buildPath) (*Wrapper, error) {
	if st, ok := f.lookupState(instance); ok {
		if es, ok := st.(*entityState); ok {
			return es.wrapper, nil
		}
		return nil, &CreationError{Type: typeName(instance), Err: fmt.Errorf("identity already tracked as container")}
	}
	if err := path.enter(instance); err != nil {
		return nil, err
	}
	defer path.exit(instance)

	descriptors, err := f.cfg.catalog.Properties(reflect.TypeOf(instance).Elem())
	if err != nil {
		return nil, &CreationError{Type: typeName(instance), Err: err}
	}

	state := newEntityState(f, uuid.New(), descriptors)
	if err := state.rebase(instance); err != nil {
		return nil, &CreationError{Type: typeName(instance), Err: err}
	}
	wrapper, err := f.cfg.boundary.Wrap(f, state.token, descriptors)
	if err != nil {
		return nil, &CreationError{Type: typeName(instance), Err: err}
	}
	if wrapper == nil {
		return nil, &CreationError{Type: typeName(instance), Err: fmt.Errorf("boundary produced no wrapper")}
	}
	state.wrapper = wrapper

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, &AccessError{Op: "create"}
	}
	if existing, ok := f.states[instance]; ok {
		f.mu.Unlock()
		if es, ok := existing.(*entityState); ok {
			return es.wrapper, nil
		}
		return nil, &CreationError{Type: typeName(instance), Err: fmt.Errorf("identity already tracked as container")}
	}
	f.states[instance] = state
	f.routes[state.token] = state
	f.mu.Unlock()

	f.trace(TraceEvent{Op: "create", Type: typeName(instance)})
	f.emitTracked(state)
	return wrapper, nil
}

// wrapContainer eagerly wraps current members, so construction shares
// the caller's build path for cycle detection.
func (f *Factory) wrapContainer(container any, path *buildPath) (any, error) {
	if !comparableValue(container) {
		return nil, &CreationError{Type: typeName(container), Err: fmt.Errorf("container identity must be comparable")}
	}
	if err := path.enter(container); err != nil {
		return nil, err
	}
	defer path.exit(container)

	state := newContainerState(f, container, uuid.New())
	tracked, err := state.buildWrapper()
	if err != nil {
		return nil, err
	}
	if err := state.adoptExisting(path); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, &AccessError{Op: "create"}
	}
	if existing, ok := f.states[container]; ok {
		f.mu.Unlock()
		return existing.Wrapper(), nil
	}
	f.states[container] = state
	f.routes[state.token] = state
	f.mu.Unlock()

	f.trace(TraceEvent{Op: "create", Type: typeName(container)})
	return tracked, nil
}

func (f *Factory) refreshEntity(es *entityState, next any) (*Wrapper, error) {
	if err := f.ensureOpen("refresh"); err != nil {
		return nil, err
	}
	if next == nil {
		return nil, &StateError{Op: "refresh", Detail: "replacement instance is required"}
	}
	previous := es.Instance()
	if reflect.TypeOf(next) != reflect.TypeOf(previous) {
		return nil, &StateError{Op: "refresh", Detail: fmt.Sprintf("type mismatch: tracking %s, got %s", typeName(previous), typeName(next))}
	}
	if other, ok := f.lookupState(next); ok && other != State(es) {
		return nil, &StateError{Op: "refresh", Detail: fmt.Sprintf("replacement %s is already tracked", typeName(next))}
	}
	if err := es.rebase(next); err != nil {
		return nil, &StateError{Op: "refresh", Detail: err.Error()}
	}

	f.mu.Lock()
	delete(f.states, previous)
	f.states[next] = es
	f.mu.Unlock()

	f.trace(TraceEvent{Op: "refresh", Type: typeName(next)})
	f.emitRefreshed(es)
	return es.wrapper, nil
}

// teardown removes a handler's registry entries. It backs State.Close
// and stays idempotent so factory Close and handler Close compose.
func (f *Factory) teardown(st State) {
	var instance any
	var token uuid.UUID
	switch h := st.(type) {
	case *entityState:
		instance = h.Instance()
		token = h.token
	case *containerState:
		instance = h.raw
		token = h.token
	default:
		return
	}

	f.mu.Lock()
	_, registered := f.routes[token]
	if registered {
		delete(f.routes, token)
		if comparableValue(instance) {
			delete(f.states, instance)
		}
	}
	f.mu.Unlock()
	if !registered {
		return
	}

	f.clearState(st)
	f.trace(TraceEvent{Op: "release", Type: typeName(instance)})
	f.emitReleased(st)
}

func (f *Factory) clearState(st State) {
	switch h := st.(type) {
	case *entityState:
		h.clear()
	case *containerState:
		h.clear()
	}
}

// resolveRaw shallow-unwraps one level: a wrapper becomes its instance,
// a tracked container becomes its raw container, anything else passes
// through. Orphan wrappers fail with AccessError.
func (f *Factory) resolveRaw(value any) (any, error) {
	switch v := value.(type) {
	case *Wrapper:
		st, ok := f.stateForToken(v.token)
		if !ok {
			return nil, &AccessError{Member: memberInstance}
		}
		return st.Instance(), nil
	case *trackedList:
		return v.state.raw, nil
	case *trackedSet:
		return v.state.raw, nil
	case *trackedMap:
		return v.state.raw, nil
	}
	return value, nil
}

// stateBehind resolves the handler owning a wrapped value.
func (f *Factory) stateBehind(value any) (State, bool) {
	switch v := value.(type) {
	case *Wrapper:
		return f.stateForToken(v.token)
	case *trackedList:
		return v.state, true
	case *trackedSet:
		return v.state, true
	case *trackedMap:
		return v.state, true
	}
	return nil, false
}

func (f *Factory) lookupAny(value any) (State, bool) {
	switch v := value.(type) {
	case *Wrapper:
		return f.stateForToken(v.token)
	case *trackedList:
		return f.stateForToken(v.state.token)
	case *trackedSet:
		return f.stateForToken(v.state.token)
	case *trackedMap:
		return f.stateForToken(v.state.token)
	}
	return f.lookupState(value)
}

func (f *Factory) lookupState(value any) (State, bool) {
	if !comparableValue(value) {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.states[value]
	return st, ok
}

func (f *Factory) stateForToken(token uuid.UUID) (State, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.routes[token]
	return st, ok
}

func (f *Factory) noteModified(s *entityState, property string, dirtied bool) {
	f.trace(TraceEvent{Op: "setter", Type: typeName(s.Instance()), Property: property})
	f.emitModified(s, property, dirtied)
}

func (f *Factory) noteReverted(s *entityState) {
	f.trace(TraceEvent{Op: "revert", Type: typeName(s.Instance())})
	f.emitReverted(s)
}
