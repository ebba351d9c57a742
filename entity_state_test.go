package dirty

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEntityWritesThroughToInstance(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if order.code != "ord-7" {
		t.Fatalf("expected the raw instance to observe the write, got %q", order.code)
	}
	code, err := wrapper.Get("code")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if code != "ord-7" {
		t.Fatalf("expected the written value back, got %v", code)
	}
}

func TestEntityDirtinessLifecycle(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected a fresh wrapper to be clean")
	}
	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a patched wrapper to be dirty")
	}
	if err := wrapper.Set("code", "ord-1"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected writing the baseline value back to un-dirty the property")
	}
}

func TestEntityDifferentialStateContents(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if err := wrapper.Set("amount", 250); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}

	diff, err := wrapper.DifferentialState()
	if err != nil {
		t.Fatalf("expected the differential, got %v", err)
	}
	if len(diff) != 2 {
		t.Fatalf("expected two differential entries, got %v", diff)
	}
	if diff["code"] != "ord-7" || diff["amount"] != 250 {
		t.Fatalf("expected patched values in the differential, got %v", diff)
	}

	diff["code"] = "mutated"
	again, _ := wrapper.DifferentialState()
	if again["code"] != "ord-7" {
		t.Fatalf("expected the differential to be a detached copy")
	}
}

func TestEntityOriginalStateIsImmutable(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	original, err := wrapper.OriginalState()
	if err != nil {
		t.Fatalf("expected the baseline snapshot, got %v", err)
	}
	if original["code"] != "ord-1" || original["amount"] != 100 {
		t.Fatalf("expected the creation-time values, got %v", original)
	}

	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	original["amount"] = -1
	fresh, _ := wrapper.OriginalState()
	if fresh["code"] != "ord-1" || fresh["amount"] != 100 {
		t.Fatalf("expected the baseline to survive writes and copy mutation, got %v", fresh)
	}
}

func TestEntitySetterAcceptsWrappedValues(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	replacement := &testProfile{bio: "replacement"}
	child, err := factory.Create(replacement)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}
	if err := wrapper.Set("profile", child); err != nil {
		t.Fatalf("expected a wrapped argument to route, got %v", err)
	}

	if order.profile != replacement {
		t.Fatalf("expected the raw instance to hold the unwrapped value")
	}
	diff, _ := wrapper.DifferentialState()
	if diff["profile"] != any(child) {
		t.Fatalf("expected the differential to record the value as passed, got %T", diff["profile"])
	}
}

func TestEntityContainerReplacementUsesIdentity(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	originalTags := order.tags
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	replacement := NewList()
	replacement.AddAll("new", "rush")
	if err := wrapper.Set("tags", replacement); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected an equal-content replacement to still count as a change")
	}

	if err := wrapper.Set("tags", originalTags); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected restoring the baseline reference to un-dirty the property")
	}
}

func TestEntityNestedEntityDirtiesParent(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	value, err := wrapper.Get("profile")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	child, ok := value.(*Wrapper)
	if !ok {
		t.Fatalf("expected a nested wrapper, got %T", value)
	}
	if err := child.Set("bio", "updated"); err != nil {
		t.Fatalf("expected the nested setter to route, got %v", err)
	}

	if isDirty, _ := wrapper.Dirty(); !isDirty {
		t.Fatalf("expected a dirty nested entity to dirty the parent")
	}
	diff, _ := wrapper.DifferentialState()
	if diff["profile"] != any(child) {
		t.Fatalf("expected the parent differential to expose the nested wrapper, got %v", diff)
	}

	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to succeed, got %v", err)
	}
	if order.profile.bio != "first customer" {
		t.Fatalf("expected the nested baseline back, got %q", order.profile.bio)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected the parent to be clean after revert")
	}
	if isDirty, _ := child.Dirty(); isDirty {
		t.Fatalf("expected the nested wrapper to be clean after revert")
	}

	again, err := wrapper.Get("profile")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if again.(*Wrapper) != child {
		t.Fatalf("expected the nested wrapper identity to survive revert")
	}
}

func TestEntityRevertRestoresPatchedValues(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if err := wrapper.Set("amount", 250); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to succeed, got %v", err)
	}

	if order.code != "ord-1" || order.amount != 100 {
		t.Fatalf("expected the raw instance back at baseline, got %q %d", order.code, order.amount)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected a reverted wrapper to be clean")
	}
	diff, _ := wrapper.DifferentialState()
	if len(diff) != 0 {
		t.Fatalf("expected an empty differential after revert, got %v", diff)
	}
}

func TestEntityRevertRestoresReplacedContainer(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	originalTags := order.tags
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	replacement := NewList()
	replacement.AddAll("new", "rush", "fragile")
	if err := wrapper.Set("tags", replacement); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	if order.tags != replacement {
		t.Fatalf("expected the replacement to be written through")
	}

	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to succeed, got %v", err)
	}
	if order.tags != originalTags {
		t.Fatalf("expected the baseline container reference back")
	}
	if order.tags.Len() != 2 {
		t.Fatalf("expected the baseline contents back, got %d entries", order.tags.Len())
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected a reverted wrapper to be clean")
	}
}

func TestEntityPassthroughInvocation(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	described, err := wrapper.Call("Describe", "id=")
	if err != nil {
		t.Fatalf("expected the delegated call to succeed, got %v", err)
	}
	if described != "id=ord-1" {
		t.Fatalf("expected the instance method result, got %v", described)
	}

	total, err := wrapper.Call("Total", 5)
	if err != nil {
		t.Fatalf("expected the delegated call to succeed, got %v", err)
	}
	if total != 105 {
		t.Fatalf("expected the value half of a value-error pair, got %v", total)
	}

	if _, err := wrapper.Call("Fail"); !errors.Is(err, errOrderFailed) {
		t.Fatalf("expected the instance error to surface, got %v", err)
	}

	var invocationErr *InvocationError
	if _, err := wrapper.Call("Vanish"); !errors.As(err, &invocationErr) {
		t.Fatalf("expected InvocationError for an unknown member, got %v", err)
	}
	if _, err := wrapper.Call("Describe", "a", "b"); !errors.As(err, &invocationErr) {
		t.Fatalf("expected InvocationError for excess arguments, got %v", err)
	}
}

func TestEntityDelegatedPanicIsRecovered(t *testing.T) {
	factory := newTestFactory(t)
	doc := &testDoc{Title: "fuse"}
	wrapper, err := factory.Create(doc)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	_, err = wrapper.Call("Explode")
	var invocationErr *InvocationError
	if !errors.As(err, &invocationErr) {
		t.Fatalf("expected InvocationError from a panicking member, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected the panic to be reported, got %v", err)
	}
}

func TestEntityReservedMembersShadowInstanceMethods(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	result, err := wrapper.Call("IsDirty")
	if err != nil {
		t.Fatalf("expected the reserved member to route, got %v", err)
	}
	if result != false {
		t.Fatalf("expected the handler's answer, not the instance method's, got %v", result)
	}
}

func TestEntityStringAndJSONDelegation(t *testing.T) {
	factory := newTestFactory(t)
	doc := &testDoc{Title: "fly"}
	wrapper, err := factory.Create(doc)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if wrapper.String() != "doc:fly" {
		t.Fatalf("expected the instance Stringer result, got %q", wrapper.String())
	}

	data, err := json.Marshal(wrapper)
	if err != nil {
		t.Fatalf("expected JSON marshaling to succeed, got %v", err)
	}
	if string(data) != `{"Title":"fly"}` {
		t.Fatalf("expected the raw instance JSON, got %s", data)
	}
}

func TestEntitySelfReferenceTerminates(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	order.parent = order
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	parent, err := wrapper.Get("parent")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if parent.(*Wrapper) != wrapper {
		t.Fatalf("expected the self reference to reuse the same wrapper")
	}

	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected a cyclic but unchanged graph to be clean")
	}
	if err := wrapper.Set("code", "ord-7"); err != nil {
		t.Fatalf("expected the setter to route, got %v", err)
	}
	diff, err := wrapper.DifferentialState()
	if err != nil {
		t.Fatalf("expected the differential, got %v", err)
	}
	if len(diff) != 1 || diff["code"] != "ord-7" {
		t.Fatalf("expected only the patched property in the differential, got %v", diff)
	}
	if err := wrapper.Revert(); err != nil {
		t.Fatalf("expected revert to terminate on a cyclic graph, got %v", err)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected a reverted cyclic graph to be clean")
	}
}

func TestEntityNilPropertyResultsAreNotCached(t *testing.T) {
	factory := newTestFactory(t)
	order := &testOrder{code: "bare"}
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	tags, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if tags != nil {
		t.Fatalf("expected a nil container to read as nil, got %T", tags)
	}

	order.tags = NewList("late")
	again, err := wrapper.Get("tags")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if _, ok := again.(*trackedList); !ok {
		t.Fatalf("expected the later value to wrap, got %T", again)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected reads alone to leave the wrapper clean")
	}
}

func TestEntityPlainValuesReadThroughAfterRawMutation(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	code, err := wrapper.Get("code")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if code != "ord-1" {
		t.Fatalf("expected the initial code, got %v", code)
	}

	order.code = "ord-renumbered"
	again, err := wrapper.Get("code")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if again != "ord-renumbered" {
		t.Fatalf("expected the read to reflect the raw mutation, got %v", again)
	}
	if isDirty, _ := wrapper.Dirty(); isDirty {
		t.Fatalf("expected reads alone to leave the wrapper clean")
	}
}

func TestEntityGetterCachesWrappedResults(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	first, err := wrapper.Get("profile")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	second, err := wrapper.Get("profile")
	if err != nil {
		t.Fatalf("expected the getter to route, got %v", err)
	}
	if first.(*Wrapper) != second.(*Wrapper) {
		t.Fatalf("expected repeated reads to return the cached wrapper")
	}
}

func TestEntityAccessorValidation(t *testing.T) {
	factory := newTestFactory(t)
	order := newTestOrder()
	wrapper, err := factory.Create(order)
	if err != nil {
		t.Fatalf("expected a wrapper, got error %v", err)
	}

	if _, err := wrapper.Get("ghost"); !errors.Is(err, errUnknownProperty) {
		t.Fatalf("expected the unknown property error, got %v", err)
	}
	if err := wrapper.Set("ghost", 1); !errors.Is(err, errUnknownProperty) {
		t.Fatalf("expected the unknown property error, got %v", err)
	}

	var invocationErr *InvocationError
	if _, err := wrapper.Call("SetCode"); !errors.As(err, &invocationErr) {
		t.Fatalf("expected InvocationError for a missing setter argument, got %v", err)
	}
	if err := wrapper.Set("amount", "NaN"); !errors.As(err, &invocationErr) {
		t.Fatalf("expected InvocationError for a mistyped value, got %v", err)
	}
}
