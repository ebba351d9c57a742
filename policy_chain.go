package dirty

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Verdict is one layer's answer for a tracking decision.
type Verdict int

const (
	// VerdictAbstain defers to the next layer.
	VerdictAbstain Verdict = iota
	// VerdictTrack decides tracking.
	VerdictTrack
	// VerdictIgnore decides against tracking.
	VerdictIgnore
)

func (v Verdict) String() string {
	switch v {
	case VerdictAbstain:
		return "abstain"
	case VerdictTrack:
		return "track"
	case VerdictIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Target describes one tracking decision point.
type Target struct {
	Phase    string
	Property string
	Value    any
}

// LayerRule inspects a target and answers with a verdict.
type LayerRule func(target Target) Verdict

// Layer is one prioritized rule in a Chain. Higher priority runs first.
type Layer struct {
	Name     string
	Label    string
	Priority int
	Rule     LayerRule
}

var (
	// ErrLayerNameRequired rejects layers without a name.
	ErrLayerNameRequired = errors.New("dirty: layer name is required")
	// ErrDuplicateLayerName rejects two layers sharing a name.
	ErrDuplicateLayerName = errors.New("dirty: duplicate layer name")
	// ErrLayerRuleRequired rejects layers without a rule.
	ErrLayerRuleRequired = errors.New("dirty: layer rule is required")
	// ErrLayerOrder rejects two layers sharing a priority.
	ErrLayerOrder = errors.New("dirty: layer priorities must be strictly decreasing")
)

// Chain consults layers in priority order; the first non-abstaining
// verdict wins and the fallback policy decides when every layer abstains.
type Chain struct {
	layers   []Layer
	fallback Policy
}

// NewChain validates and orders the layers. Layers need unique names and
// unique priorities; a nil fallback defaults to DefaultPolicy.
func NewChain(fallback Policy, layers ...Layer) (*Chain, error) {
	seen := map[string]bool{}
	ordered := make([]Layer, 0, len(layers))
	for _, layer := range layers {
		name := strings.TrimSpace(layer.Name)
		if name == "" {
			return nil, ErrLayerNameRequired
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLayerName, name)
		}
		if layer.Rule == nil {
			return nil, fmt.Errorf("%w: %s", ErrLayerRuleRequired, name)
		}
		seen[name] = true
		layer.Name = name
		ordered = append(ordered, layer)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Priority == ordered[i-1].Priority {
			return nil, fmt.Errorf("%w: %s and %s share priority %d",
				ErrLayerOrder, ordered[i-1].Name, ordered[i].Name, ordered[i].Priority)
		}
	}

	if fallback == nil {
		fallback = DefaultPolicy{}
	}
	return &Chain{layers: ordered, fallback: fallback}, nil
}

// Layers returns the ordered layers without their rules' internals
// exposed to mutation.
func (c *Chain) Layers() []Layer {
	return append([]Layer(nil), c.layers...)
}

func (c *Chain) TrackEntity(property string, value any) bool {
	return c.decide(Target{Phase: phaseEntity, Property: property, Value: value}, func(v any) bool {
		return c.fallback.TrackEntity(property, v)
	})
}

func (c *Chain) TrackContainer(value any) bool {
	return c.decide(Target{Phase: phaseContainer, Value: value}, c.fallback.TrackContainer)
}

func (c *Chain) decide(target Target, terminal func(any) bool) bool {
	for _, layer := range c.layers {
		switch layer.Rule(target) {
		case VerdictTrack:
			return true
		case VerdictIgnore:
			return false
		}
	}
	return terminal(target.Value)
}

// DenyTypesLayer ignores values whose type name matches one of names.
func DenyTypesLayer(name string, priority int, typeNames ...string) Layer {
	names := append([]string(nil), typeNames...)
	return Layer{Name: name, Label: "Deny types", Priority: priority, Rule: func(target Target) Verdict {
		if matchesTypeName(target.Value, names) {
			return VerdictIgnore
		}
		return VerdictAbstain
	}}
}

// AllowTypesLayer tracks values whose type name matches one of names.
func AllowTypesLayer(name string, priority int, typeNames ...string) Layer {
	names := append([]string(nil), typeNames...)
	return Layer{Name: name, Label: "Allow types", Priority: priority, Rule: func(target Target) Verdict {
		if matchesTypeName(target.Value, names) {
			return VerdictTrack
		}
		return VerdictAbstain
	}}
}

// DenyPackagesLayer ignores values whose package path starts with one of
// prefixes.
func DenyPackagesLayer(name string, priority int, prefixes ...string) Layer {
	paths := append([]string(nil), prefixes...)
	return Layer{Name: name, Label: "Deny packages", Priority: priority, Rule: func(target Target) Verdict {
		if matchesPackagePrefix(target.Value, paths) {
			return VerdictIgnore
		}
		return VerdictAbstain
	}}
}

// AllowPackagesLayer tracks values whose package path starts with one of
// prefixes.
func AllowPackagesLayer(name string, priority int, prefixes ...string) Layer {
	paths := append([]string(nil), prefixes...)
	return Layer{Name: name, Label: "Allow packages", Priority: priority, Rule: func(target Target) Verdict {
		if matchesPackagePrefix(target.Value, paths) {
			return VerdictTrack
		}
		return VerdictAbstain
	}}
}

// PolicyLayer turns a whole policy into a decisive layer. It never
// abstains; place it last or behind narrower layers.
func PolicyLayer(name string, priority int, policy Policy) Layer {
	return Layer{Name: name, Label: "Policy", Priority: priority, Rule: func(target Target) Verdict {
		if policy == nil {
			return VerdictAbstain
		}
		tracked := false
		switch target.Phase {
		case phaseContainer:
			tracked = policy.TrackContainer(target.Value)
		default:
			tracked = policy.TrackEntity(target.Property, target.Value)
		}
		if tracked {
			return VerdictTrack
		}
		return VerdictIgnore
	}}
}

func matchesTypeName(value any, names []string) bool {
	if value == nil {
		return false
	}
	t := reflect.TypeOf(value)
	candidates := []string{t.String(), strings.TrimPrefix(t.String(), "*")}
	if t.Kind() == reflect.Pointer {
		candidates = append(candidates, t.Elem().String())
	}
	for _, name := range names {
		for _, candidate := range candidates {
			if candidate == name {
				return true
			}
		}
	}
	return false
}

func matchesPackagePrefix(value any, prefixes []string) bool {
	if value == nil {
		return false
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := t.PkgPath()
	if pkg == "" {
		return false
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(pkg, prefix) {
			return true
		}
	}
	return false
}
