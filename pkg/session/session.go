package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	dirty "github.com/goliatone/go-dirty"
	"github.com/goliatone/go-dirty/overlay"
	"github.com/google/uuid"
)

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the commit timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

type sessionEntry struct {
	wrapper *dirty.Wrapper
	state   dirty.State
}

// Session tracks a batch of entities against one factory and commits
// their accumulated changes as change sets.
type Session struct {
	factory *dirty.Factory
	store   ChangeStore
	clock   func() time.Time

	mu      sync.Mutex
	entries []sessionEntry
}

// New builds a session over factory and store.
func New(factory *dirty.Factory, store ChangeStore, opts ...Option) (*Session, error) {
	if factory == nil {
		return nil, fmt.Errorf("session: factory is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session: change store is required")
	}
	s := &Session{
		factory: factory,
		store:   store,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Track wraps instance for tracking and enrolls it in the session.
// Tracking the same instance again returns the existing wrapper.
func (s *Session) Track(instance any) (*dirty.Wrapper, error) {
	wrapper, err := s.factory.Create(instance)
	if err != nil {
		return nil, err
	}
	state, ok := s.factory.ExistingState(wrapper)
	if !ok {
		return nil, fmt.Errorf("session: tracked instance has no state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.state == state {
			return entry.wrapper, nil
		}
	}
	s.entries = append(s.entries, sessionEntry{wrapper: wrapper, state: state})
	return wrapper, nil
}

// Tracked returns the enrolled wrappers in tracking order.
func (s *Session) Tracked() []*dirty.Wrapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*dirty.Wrapper, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.wrapper)
	}
	return out
}

// DirtyStates returns the handlers with pending changes.
func (s *Session) DirtyStates() []dirty.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dirty.State, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.state.IsDirty() {
			out = append(out, entry.state)
		}
	}
	return out
}

// RevertAll rolls every enrolled entity back to its baseline.
func (s *Session) RevertAll() error {
	s.mu.Lock()
	entries := append([]sessionEntry(nil), s.entries...)
	s.mu.Unlock()

	var errs []error
	for _, entry := range entries {
		if err := entry.state.Revert(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Commit renders each dirty entity's differential into a change set,
// appends it to the store, and re-baselines the entity so the next
// commit starts clean. Change sets already appended stay in the store
// when a later entity fails.
func (s *Session) Commit(ctx context.Context) ([]ChangeSet, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	entries := append([]sessionEntry(nil), s.entries...)
	s.mu.Unlock()

	var committed []ChangeSet
	for _, entry := range entries {
		if !entry.state.IsDirty() {
			continue
		}
		change, err := s.renderChange(entry)
		if err != nil {
			return committed, err
		}
		if err := s.store.Append(ctx, change); err != nil {
			return committed, fmt.Errorf("session: appending change set: %w", err)
		}
		instance := entry.state.Instance()
		if _, err := s.factory.Refresh(instance, instance); err != nil {
			return committed, fmt.Errorf("session: re-baselining %T: %w", instance, err)
		}
		committed = append(committed, change)
	}
	return committed, nil
}

func (s *Session) renderChange(entry sessionEntry) (ChangeSet, error) {
	diff, err := entry.state.DifferentialState()
	if err != nil {
		return ChangeSet{}, err
	}

	changes := make(map[string]any, len(diff))
	for property, value := range diff {
		raw, err := s.factory.Unwrap(value)
		if err != nil {
			return ChangeSet{}, fmt.Errorf("session: unwrapping %s: %w", property, err)
		}
		changes[property] = overlay.Clone(normalizeValue(raw))
	}

	instance := entry.state.Instance()
	return ChangeSet{
		ID:         uuid.New(),
		Key:        s.keyFor(entry, instance),
		EntityType: fmt.Sprintf("%T", instance),
		Changes:    changes,
		OccurredAt: s.clock().UTC(),
	}, nil
}

func (s *Session) keyFor(entry sessionEntry, instance any) string {
	if keyed, ok := instance.(Keyed); ok {
		if key := keyed.TrackingKey(); key != "" {
			return key
		}
	}
	return entry.wrapper.Token().String()
}

// normalizeValue converts tracked collection values into plain slices
// and maps so the detached copy carries data, not handler internals.
func normalizeValue(value any) any {
	switch v := value.(type) {
	case dirty.List:
		out := make([]any, 0, v.Len())
		for it := v.Iterator(); it.Next(); {
			out = append(out, normalizeValue(it.Value()))
		}
		return out
	case dirty.Set:
		out := make([]any, 0, v.Len())
		for it := v.Iterator(); it.Next(); {
			out = append(out, normalizeValue(it.Value()))
		}
		return out
	case dirty.Map:
		entries := v.Entries()
		stringKeys := true
		for _, entry := range entries {
			if _, ok := entry.Key.(string); !ok {
				stringKeys = false
				break
			}
		}
		if stringKeys {
			out := make(map[string]any, len(entries))
			for _, entry := range entries {
				out[entry.Key.(string)] = normalizeValue(entry.Value)
			}
			return out
		}
		out := make([]any, 0, len(entries))
		for _, entry := range entries {
			out = append(out, map[string]any{
				"key":   normalizeValue(entry.Key),
				"value": normalizeValue(entry.Value),
			})
		}
		return out
	}
	return value
}
