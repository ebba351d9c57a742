package dirty

import (
	"errors"
	"testing"
)

func TestContainerMutationDirtiesOwner(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	view, ok := value.(*trackedList)
	if !ok {
		t.Fatalf("expected a tracked list, got %T", value)
	}

	view.Add("late")
	if !view.Dirty() {
		t.Fatalf("expected a mutated container to report dirty")
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a mutated container to dirty the owner")
	}
	diff, _ := wrapper.DifferentialState()
	if diff["tags"] != any(view) {
		t.Fatalf("expected the owner differential to expose the tracked view, got %v", diff)
	}
	if order.tags.Len() != 3 || !order.tags.Contains("late") {
		t.Fatalf("expected the mutation to write through to the raw container")
	}
}

func TestContainerStructuralSignalResetsOnOwnerRevert(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	view := value.(*trackedList)
	view.Add("late")

	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to succeed, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected the owner to be clean after revert")
	}
	if !order.tags.Contains("late") {
		t.Fatalf("expected in-place container mutations to survive revert")
	}

	again, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if again.(*trackedList) != view {
		t.Fatalf("expected the tracked view identity to survive revert")
	}
	if view.Dirty() {
		t.Fatalf("expected the structural signal to reset with the owner's revert")
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected re-reading the container to leave the owner clean")
	}
}

func TestContainerDirtyMemberSurvivesOwnerRevert(t *testing.T) {
	factory := newTestFactory(t)
	member := &testProfile{bio: "crew"}
	order := newTestOrder()
	order.tags = NewList(member)
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	view := value.(*trackedList)
	memberWrapper, ok := view.Get(0).(*Wrapper)
	if !ok {
		t.Fatalf("expected the member to come back wrapped, got %T", view.Get(0))
	}
	if err := memberWrapper.Set("bio", "changed"); err != nil {
		t.Fatalf("expected the member setter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a dirty member to dirty the owner")
	}

	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to succeed, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected the owner to be clean right after revert")
	}

	if _, err := wrapper.Get("tags"); err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a still-dirty member to re-dirty the owner on observation")
	}
	if err := memberWrapper.Revert(); err != nil {
		t.Fatalf("expected the member revert to succeed, got %v", err)
	}
	if member.bio != "crew" {
		t.Fatalf("expected the member baseline back, got %q", member.bio)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected the owner to be clean once the member reverted")
	}
}

func TestContainerInspectionOperationsUnsupported(t *testing.T) {
	factory := newTestFactory(t)
	view, err := factory.WrapIfNecessary(NewList("a"))
	if err != nil {
		t.Fatalf("expected a container wrap, got error %v", err)
	}
	st, ok := factory.ExistingState(view)
	if !ok {
		t.Fatalf("expected a registered container state")
	}

	var stateErr *StateError
	if _, err := st.OriginalState(); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from a container baseline, got %v", err)
	}
	if _, err := st.DifferentialState(); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from a container differential, got %v", err)
	}
	if err := st.Revert(); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from a container revert, got %v", err)
	}
	if err := st.Refresh(NewList()); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError from a container refresh, got %v", err)
	}
}

func TestContainerIteratorRemoveDirtiesOwner(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	view := value.(*trackedList)

	for it := view.Iterator(); it.Next(); {
		if it.Value() == "rush" {
			it.Remove()
		}
	}
	if order.tags.Len() != 1 || order.tags.Contains("rush") {
		t.Fatalf("expected the iterator removal to write through")
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected an iterator removal to dirty the owner")
	}
}

func TestContainerRewrapsTrackedMembers(t *testing.T) {
	factory := newTestFactory(t)
	profile := &testProfile{bio: "crew"}
	list := NewList(profile, "plain")

	value, err := factory.WrapIfNecessary(list)
	if err != nil {
		t.Fatalf("expected a container wrap, got error %v", err)
	}
	view := value.(*trackedList)

	memberWrapper, ok := view.Get(0).(*Wrapper)
	if !ok {
		t.Fatalf("expected the entity member wrapped, got %T", view.Get(0))
	}
	direct, err := factory.Create(profile)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}
	if memberWrapper != direct {
		t.Fatalf("expected one wrapper per member identity")
	}
	if view.Get(1) != "plain" {
		t.Fatalf("expected plain members untouched, got %v", view.Get(1))
	}
	if list.Get(0) != any(profile) {
		t.Fatalf("expected the raw container to keep the raw member")
	}

	wrappers := 0
	for member := range view.All() {
		if _, ok := member.(*Wrapper); ok {
			wrappers++
		}
	}
	if wrappers != 1 {
		t.Fatalf("expected exactly one wrapped member in iteration, got %d", wrappers)
	}
}

func TestContainerAdoptsNewMembers(t *testing.T) {
	factory := newTestFactory(t)
	list := NewList()
	value, err := factory.WrapIfNecessary(list)
	if err != nil {
		t.Fatalf("expected a container wrap, got error %v", err)
	}
	view := value.(*trackedList)

	added := &testProfile{bio: "walk-on"}
	view.Add(added)
	if list.Get(0) != any(added) {
		t.Fatalf("expected the raw member stored, got %T", list.Get(0))
	}
	if _, ok := view.Get(0).(*Wrapper); !ok {
		t.Fatalf("expected the adopted member to read back wrapped, got %T", view.Get(0))
	}
	if _, ok := factory.ExistingState(added); !ok {
		t.Fatalf("expected the adopted member to be registered")
	}

	tracked := &testProfile{bio: "transfer"}
	wrapped, err := factory.Create(tracked)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}
	view.Add(wrapped)
	if list.Get(1) != any(tracked) {
		t.Fatalf("expected wrapper arguments unwrapped before storage, got %T", list.Get(1))
	}
	if view.Get(1).(*Wrapper) != wrapped {
		t.Fatalf("expected the stored member to read back as its wrapper")
	}
}

func TestContainerConstructionCycleFails(t *testing.T) {
	factory := newTestFactory(t)

	selfish := NewList()
	selfish.Add(selfish)
	var stateErr *StateError
	if _, err := factory.WrapIfNecessary(selfish); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError for a self-containing list, got %v", err)
	}

	a := NewList()
	b := NewList()
	a.Add(b)
	b.Add(a)
	if _, err := factory.WrapIfNecessary(a); !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError for mutually containing lists, got %v", err)
	}
}

func TestContainerMapViewTracksValues(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("labels")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	view, ok := value.(*trackedMap)
	if !ok {
		t.Fatalf("expected a tracked map, got %T", value)
	}

	owner := &testProfile{bio: "keeper"}
	if previous := view.Put("owner", owner); previous != nil {
		t.Fatalf("expected no previous value, got %v", previous)
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a map insert to dirty the owner")
	}

	got, ok := view.Get("owner")
	if !ok {
		t.Fatalf("expected the inserted key to resolve")
	}
	if _, ok := got.(*Wrapper); !ok {
		t.Fatalf("expected the entity value to read back wrapped, got %T", got)
	}
	raw, _ := order.labels.Get("owner")
	if raw != any(owner) {
		t.Fatalf("expected the raw map to keep the raw value, got %T", raw)
	}

	for _, entry := range view.Entries() {
		if entry.Key == "owner" {
			if _, ok := entry.Value.(*Wrapper); !ok {
				t.Fatalf("expected entries to rewrap entity values, got %T", entry.Value)
			}
		}
	}

	previous, ok := view.Remove("priority")
	if !ok || previous != "high" {
		t.Fatalf("expected the removed value back, got %v", previous)
	}
	if order.labels.ContainsKey("priority") {
		t.Fatalf("expected the removal to write through")
	}
}

func TestContainerSetViewDeduplicates(t *testing.T) {
	factory := newTestFactory(t)
	set := NewSet("a")
	value, err := factory.WrapIfNecessary(set)
	if err != nil {
		t.Fatalf("expected a container wrap, got error %v", err)
	}
	view := value.(*trackedSet)

	if view.Add("a") {
		t.Fatalf("expected the duplicate to be rejected")
	}
	if !view.Add("b") {
		t.Fatalf("expected the new member to be added")
	}
	if set.Len() != 2 {
		t.Fatalf("expected two raw members, got %d", set.Len())
	}
	if !view.Dirty() {
		t.Fatalf("expected mutator calls to flip the structural signal")
	}
}
