package overlay

import (
	"reflect"
	"testing"
)

type cloneNode struct {
	Name     string
	Children []*cloneNode
	Attrs    map[string]any
	Next     *cloneNode
}

func TestCloneDetachesNestedStorage(t *testing.T) {
	original := &cloneNode{
		Name:     "root",
		Children: []*cloneNode{{Name: "child"}},
		Attrs:    map[string]any{"depth": 1},
	}

	cloned := Clone(original)
	if cloned == original {
		t.Fatalf("expected a fresh pointer")
	}
	if !reflect.DeepEqual(cloned, original) {
		t.Fatalf("expected an equal copy, got %+v", cloned)
	}

	cloned.Name = "mutated"
	cloned.Children[0].Name = "mutated"
	cloned.Attrs["depth"] = 99

	if original.Name != "root" || original.Children[0].Name != "child" || original.Attrs["depth"] != 1 {
		t.Fatalf("expected the original untouched, got %+v", original)
	}
}

func TestCloneHandlesCycles(t *testing.T) {
	a := &cloneNode{Name: "a"}
	b := &cloneNode{Name: "b", Next: a}
	a.Next = b

	cloned := Clone(a)
	if cloned == a {
		t.Fatalf("expected a fresh pointer")
	}
	if cloned.Next == b {
		t.Fatalf("expected the cycle partner to be cloned too")
	}
	if cloned.Next.Next != cloned {
		t.Fatalf("expected the clone to close its own cycle")
	}
}

func TestCloneScalarsAndNils(t *testing.T) {
	if Clone(42) != 42 {
		t.Fatalf("expected scalars to pass through")
	}
	if Clone("text") != "text" {
		t.Fatalf("expected strings to pass through")
	}
	var nilNode *cloneNode
	if Clone(nilNode) != nil {
		t.Fatalf("expected nil pointers to stay nil")
	}
	var nilMap map[string]int
	if Clone(nilMap) != nil {
		t.Fatalf("expected nil maps to stay nil")
	}
}
