package dirty

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapRuleErrorCreatesMetadata(t *testing.T) {
	base := errors.New("boom")
	err := wrapRuleError("expr", `value.struct &&`, phaseEntity, base)

	var policyErr *PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("expected PolicyError, got %T", err)
	}
	if policyErr.Engine != "expr" {
		t.Fatalf("expected engine expr, got %q", policyErr.Engine)
	}
	if policyErr.Rule != `value.struct &&` {
		t.Fatalf("expected rule metadata, got %q", policyErr.Rule)
	}
	if policyErr.Phase != phaseEntity {
		t.Fatalf("expected phase metadata, got %q", policyErr.Phase)
	}
	if !errors.Is(policyErr.Err, base) {
		t.Fatalf("wrapped error should unwrap to the base error")
	}
}

func TestWrapRuleErrorAugmentsExisting(t *testing.T) {
	base := errors.New("compile failure")
	existing := &PolicyError{Engine: "cel", Err: base}

	err := wrapRuleError("expr", "rule", phaseContainer, existing)
	if !errors.Is(err, base) {
		t.Fatalf("expected the base error to unwrap")
	}
	if existing.Engine != "cel" {
		t.Fatalf("existing engine should not be overwritten, got %q", existing.Engine)
	}
	if existing.Rule != "rule" {
		t.Fatalf("rule should be filled, got %q", existing.Rule)
	}
	if existing.Phase != phaseContainer {
		t.Fatalf("phase should be filled, got %q", existing.Phase)
	}
}

func TestWrapRuleErrorPassesNil(t *testing.T) {
	if err := wrapRuleError("expr", "rule", phaseEntity, nil); err != nil {
		t.Fatalf("expected nil to pass through, got %v", err)
	}
	if err := wrapEngineError("expr", nil); err != nil {
		t.Fatalf("expected nil to pass through, got %v", err)
	}
}

func TestWrapEngineErrorKeepsPrefixedErrors(t *testing.T) {
	prefixed := errors.New("dirty: already ours")
	if err := wrapEngineError("cel", prefixed); err != prefixed {
		t.Fatalf("expected prefixed errors untouched, got %v", err)
	}

	raw := errors.New("engine exploded")
	err := wrapEngineError("cel", raw)
	if !errors.Is(err, raw) {
		t.Fatalf("expected the cause to unwrap")
	}
	if !strings.HasPrefix(err.Error(), "dirty: cel engine:") {
		t.Fatalf("expected the engine prefix, got %q", err.Error())
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&CreationError{Type: "*pkg.Widget"}, `dirty: cannot create wrapper for *pkg.Widget`},
		{&CreationError{}, `dirty: cannot create wrapper for <nil>`},
		{&CreationError{Type: "*pkg.Widget", Err: errors.New("no boundary")}, `dirty: cannot create wrapper for *pkg.Widget: no boundary`},
		{&AccessError{}, `dirty: orphan wrapper: unable to find the wrapper's factory entry`},
		{&AccessError{Member: "SetName"}, `dirty: orphan wrapper: unable to find the wrapper's factory entry for member "SetName"`},
		{&AccessError{Op: "create"}, `dirty: create: factory is closed`},
		{&InvocationError{Member: "Fail", Err: errors.New("boom")}, `dirty: intercepting member "Fail": boom`},
		{&StateError{Op: "refresh", Detail: "not tracked"}, `dirty: refresh: not tracked`},
		{&StateError{Detail: "cycle detected"}, `dirty: cycle detected`},
		{&PolicyError{Engine: "expr", Rule: "x", Phase: "entity", Err: errors.New("bad")}, `dirty: expr policy rule="x" phase=entity: bad`},
		{&PolicyError{Engine: "cel", Phase: "container", Err: errors.New("bad")}, `dirty: cel policy rule=<empty> phase=container: bad`},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	base := errors.New("root cause")

	var creation error = &CreationError{Type: "T", Err: base}
	if !errors.Is(creation, base) {
		t.Fatalf("expected CreationError to unwrap")
	}
	var invocation error = &InvocationError{Member: "Do", Err: base}
	if !errors.Is(invocation, base) {
		t.Fatalf("expected InvocationError to unwrap")
	}
	var policy error = &PolicyError{Err: base}
	if !errors.Is(policy, base) {
		t.Fatalf("expected PolicyError to unwrap")
	}
}
