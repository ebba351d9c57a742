package dirty

import (
	"errors"
	"testing"
)

func abstainLayer(name string, priority int) Layer {
	return Layer{Name: name, Priority: priority, Rule: func(Target) Verdict {
		return VerdictAbstain
	}}
}

func TestChainValidationSentinels(t *testing.T) {
	rule := func(Target) Verdict { return VerdictAbstain }

	if _, err := NewChain(nil, Layer{Name: "  ", Priority: 10, Rule: rule}); !errors.Is(err, ErrLayerNameRequired) {
		t.Fatalf("expected ErrLayerNameRequired, got %v", err)
	}
	if _, err := NewChain(nil, Layer{Name: "dup", Priority: 10, Rule: rule}, Layer{Name: "dup", Priority: 20, Rule: rule}); !errors.Is(err, ErrDuplicateLayerName) {
		t.Fatalf("expected ErrDuplicateLayerName, got %v", err)
	}
	if _, err := NewChain(nil, Layer{Name: "norule", Priority: 10}); !errors.Is(err, ErrLayerRuleRequired) {
		t.Fatalf("expected ErrLayerRuleRequired, got %v", err)
	}
	if _, err := NewChain(nil, Layer{Name: "a", Priority: 10, Rule: rule}, Layer{Name: "b", Priority: 10, Rule: rule}); !errors.Is(err, ErrLayerOrder) {
		t.Fatalf("expected ErrLayerOrder, got %v", err)
	}
}

func TestChainOrdersLayersByPriority(t *testing.T) {
	chain, err := NewChain(nil,
		abstainLayer("weak", 10),
		abstainLayer("strong", 100),
		abstainLayer("middle", 50),
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}

	layers := chain.Layers()
	want := []string{"strong", "middle", "weak"}
	if len(layers) != len(want) {
		t.Fatalf("expected %d layers, got %d", len(want), len(layers))
	}
	for i, name := range want {
		if layers[i].Name != name {
			t.Fatalf("expected layer %q at position %d, got %q", name, i, layers[i].Name)
		}
	}
}

func TestChainFirstDecisiveVerdictWins(t *testing.T) {
	var consulted []string
	chain, err := NewChain(nil,
		Layer{Name: "first", Priority: 300, Rule: func(Target) Verdict {
			consulted = append(consulted, "first")
			return VerdictAbstain
		}},
		Layer{Name: "second", Priority: 200, Rule: func(Target) Verdict {
			consulted = append(consulted, "second")
			return VerdictIgnore
		}},
		Layer{Name: "third", Priority: 100, Rule: func(Target) Verdict {
			consulted = append(consulted, "third")
			return VerdictTrack
		}},
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}

	if chain.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the first decisive layer to ignore")
	}
	if len(consulted) != 2 || consulted[0] != "first" || consulted[1] != "second" {
		t.Fatalf("expected consultation to stop at the deciding layer, got %v", consulted)
	}
}

func TestChainFallbackDecidesWhenAllAbstain(t *testing.T) {
	chain, err := NewChain(nil, abstainLayer("noop", 10))
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}
	if !chain.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the default fallback to track struct pointers")
	}
	if !chain.TrackContainer(NewList()) {
		t.Fatalf("expected the default fallback to track containers")
	}

	declining, err := NewChain(PolicyFuncs{}, abstainLayer("noop", 10))
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}
	if declining.TrackEntity("profile", &testProfile{}) || declining.TrackContainer(NewList()) {
		t.Fatalf("expected the declining fallback to decide")
	}
}

func TestChainTypeLayers(t *testing.T) {
	chain, err := NewChain(nil,
		DenyTypesLayer("deny", 200, "dirty.testProfile"),
		AllowTypesLayer("allow", 100, "dirty.testOrder"),
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}

	if chain.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the deny layer to match the bare type name")
	}
	if !chain.TrackEntity("order", &testOrder{}) {
		t.Fatalf("expected the allow layer to match the pointer's element type")
	}
	// Unlisted scalars fall through both layers to the default policy.
	if chain.TrackEntity("amount", 42) {
		t.Fatalf("expected unmatched scalars to reach the declining default")
	}
}

func TestChainPackageLayers(t *testing.T) {
	chain, err := NewChain(nil,
		DenyPackagesLayer("deny-stdlib-free", 200, "github.com/goliatone/go-dirty"),
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}
	if chain.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the package prefix to deny this module's types")
	}

	allow, err := NewChain(PolicyFuncs{},
		AllowPackagesLayer("allow-module", 200, "github.com/goliatone/go-dirty"),
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}
	if !allow.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the package prefix to allow this module's types")
	}
	if allow.TrackEntity("amount", 42) {
		t.Fatalf("expected package-less values to abstain through to the fallback")
	}
}

func TestChainPolicyLayerNeverAbstains(t *testing.T) {
	chain, err := NewChain(
		PolicyFuncs{Entity: func(string, any) bool { return true }},
		PolicyLayer("default-as-layer", 100, DefaultPolicy{}),
	)
	if err != nil {
		t.Fatalf("expected a chain, got error %v", err)
	}

	if !chain.TrackEntity("profile", &testProfile{}) {
		t.Fatalf("expected the policy layer to track struct pointers")
	}
	// The layer converts the default policy's decline into a decisive
	// ignore, so the always-track fallback is never reached.
	if chain.TrackEntity("amount", 42) {
		t.Fatalf("expected the policy layer to decide against scalars")
	}
	if !chain.TrackContainer(NewList()) {
		t.Fatalf("expected the policy layer to route container targets")
	}
}
