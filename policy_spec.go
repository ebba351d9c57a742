package dirty

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-dirty/internal/specio"
	"github.com/goliatone/go-dirty/overlay"
)

// Spec file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// Spec default policy names.
const (
	SpecDefaultBuiltin = "builtin"
	SpecDefaultTrack   = "track"
	SpecDefaultIgnore  = "ignore"
)

// Layer priorities a built spec uses, strongest first.
const (
	specPriorityDenyTypes     = 500
	specPriorityAllowTypes    = 400
	specPriorityDenyPackages  = 300
	specPriorityAllowPackages = 200
	specPriorityRules         = 100
)

// Spec is the declarative form of a tracking policy. Deny and allow
// lists become prioritized layers, the rules section becomes a rule
// policy, and the default decides when nothing else does.
type Spec struct {
	Version       int       `json:"version"`
	Default       string    `json:"default,omitempty"`
	DenyTypes     []string  `json:"deny_types,omitempty"`
	AllowTypes    []string  `json:"allow_types,omitempty"`
	DenyPackages  []string  `json:"deny_packages,omitempty"`
	AllowPackages []string  `json:"allow_packages,omitempty"`
	Rules         SpecRules `json:"rules,omitempty"`
}

// SpecRules selects a rule engine and the expressions it evaluates.
type SpecRules struct {
	Engine    string `json:"engine,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Container string `json:"container,omitempty"`
}

// ParseSpec reads a spec payload in the given format. Unknown keys are
// rejected.
func ParseSpec(data []byte, format string) (*Spec, error) {
	payload := map[string]any{}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatYAML, "yml":
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("dirty: parse yaml spec: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("dirty: parse toml spec: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("dirty: parse json spec: %w", err)
		}
	default:
		return nil, fmt.Errorf("dirty: unsupported spec format %q", format)
	}

	decoder := specio.New[Spec](specio.WithStrictFields[Spec]())
	spec, err := decoder.Decode(specio.Context{Format: format}, payload)
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// LoadSpecFile reads a spec file, picking the format from the extension.
func LoadSpecFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dirty: read spec file: %w", err)
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	case ".json":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("dirty: cannot infer spec format from %q", filepath.Base(path))
	}
	spec, err := ParseSpec(data, format)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return spec, nil
}

// Validate checks version and enum fields.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("dirty: spec is nil")
	}
	if s.Version != 1 {
		return fmt.Errorf("dirty: unsupported policy spec version %d", s.Version)
	}
	switch s.Default {
	case "", SpecDefaultBuiltin, SpecDefaultTrack, SpecDefaultIgnore:
	default:
		return fmt.Errorf("dirty: unknown default policy %q", s.Default)
	}
	switch s.Rules.Engine {
	case "", "expr", "cel", "js", "lua":
	default:
		return fmt.Errorf("dirty: unknown rule engine %q", s.Rules.Engine)
	}
	return nil
}

// SpecLayer pairs a spec with the source it came from.
type SpecLayer struct {
	Spec   *Spec
	Source overlay.Source
}

// MergeSpecs overlays the layers, stronger sources winning field by
// field. List fields replace wholesale when the stronger layer sets them.
func MergeSpecs(layers ...SpecLayer) (*Spec, error) {
	kept := make([]SpecLayer, 0, len(layers))
	for _, layer := range layers {
		if layer.Spec == nil {
			continue
		}
		if layer.Source.Level == overlay.LevelUnknown {
			return nil, fmt.Errorf("dirty: spec layer %q has unknown source level", layer.Source.Name)
		}
		kept = append(kept, layer)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("dirty: no spec layers to merge")
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Source.Level > kept[j].Source.Level
	})
	specs := make([]*Spec, len(kept))
	for i, layer := range kept {
		specs[i] = layer.Spec
	}
	merged := overlay.Merge(specs...)
	return merged, nil
}

// SpecBuildOption configures Build.
type SpecBuildOption func(*specBuildConfig)

type specBuildConfig struct {
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    TraceLogger
}

// SpecWithEvaluator overrides the engine named by the spec.
func SpecWithEvaluator(evaluator Evaluator) SpecBuildOption {
	return func(cfg *specBuildConfig) {
		cfg.evaluator = evaluator
	}
}

// SpecWithProgramCache is handed to the constructed engine.
func SpecWithProgramCache(cache ProgramCache) SpecBuildOption {
	return func(cfg *specBuildConfig) {
		cfg.cache = cache
	}
}

// SpecWithFunctionRegistry is handed to the constructed engine.
func SpecWithFunctionRegistry(registry *FunctionRegistry) SpecBuildOption {
	return func(cfg *specBuildConfig) {
		cfg.functions = registry
	}
}

// SpecWithTraceLogger receives rule evaluation events.
func SpecWithTraceLogger(logger TraceLogger) SpecBuildOption {
	return func(cfg *specBuildConfig) {
		cfg.logger = logger
	}
}

// Build turns the spec into a layered policy.
func (s *Spec) Build(opts ...SpecBuildOption) (Policy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg := specBuildConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	terminal := specDefaultPolicy(s.Default)

	var layers []Layer
	if len(s.DenyTypes) > 0 {
		layers = append(layers, DenyTypesLayer("deny-types", specPriorityDenyTypes, s.DenyTypes...))
	}
	if len(s.AllowTypes) > 0 {
		layers = append(layers, AllowTypesLayer("allow-types", specPriorityAllowTypes, s.AllowTypes...))
	}
	if len(s.DenyPackages) > 0 {
		layers = append(layers, DenyPackagesLayer("deny-packages", specPriorityDenyPackages, s.DenyPackages...))
	}
	if len(s.AllowPackages) > 0 {
		layers = append(layers, AllowPackagesLayer("allow-packages", specPriorityAllowPackages, s.AllowPackages...))
	}

	if s.Rules.Entity != "" || s.Rules.Container != "" {
		evaluator := cfg.evaluator
		if evaluator == nil {
			var err error
			evaluator, err = specEngine(s.Rules.Engine, cfg)
			if err != nil {
				return nil, err
			}
		}
		ruleOpts := []RulePolicyOption{
			RuleWithEvaluator(evaluator),
			RuleWithFallback(terminal),
		}
		if s.Rules.Entity != "" {
			ruleOpts = append(ruleOpts, RuleWithEntityRule(s.Rules.Entity))
		}
		if s.Rules.Container != "" {
			ruleOpts = append(ruleOpts, RuleWithContainerRule(s.Rules.Container))
		}
		if cfg.logger != nil {
			ruleOpts = append(ruleOpts, RuleWithTraceLogger(cfg.logger))
		}
		rulePolicy, err := NewRulePolicy(ruleOpts...)
		if err != nil {
			return nil, err
		}
		layers = append(layers, PolicyLayer("rules", specPriorityRules, rulePolicy))
	}

	return NewChain(terminal, layers...)
}

func specDefaultPolicy(name string) Policy {
	switch name {
	case SpecDefaultTrack:
		return PolicyFuncs{
			Entity: func(_ string, value any) bool {
				return trackableStruct(value, true)
			},
			Container: DefaultPolicy{}.TrackContainer,
		}
	case SpecDefaultIgnore:
		return PolicyFuncs{}
	default:
		return DefaultPolicy{}
	}
}

func specEngine(name string, cfg specBuildConfig) (Evaluator, error) {
	switch name {
	case "", "expr":
		var opts []ExprEvaluatorOption
		if cfg.cache != nil {
			opts = append(opts, ExprWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			opts = append(opts, ExprWithFunctionRegistry(cfg.functions))
		}
		return NewExprEvaluator(opts...), nil
	case "cel":
		var opts []CELEvaluatorOption
		if cfg.cache != nil {
			opts = append(opts, CELWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			opts = append(opts, CELWithFunctionRegistry(cfg.functions))
		}
		return NewCELEvaluator(opts...), nil
	case "js":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: js engine requires the js_eval build tag", ErrNoEvaluator)
		}
		var opts []JSEvaluatorOption
		if cfg.cache != nil {
			opts = append(opts, JSWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			opts = append(opts, JSWithFunctionRegistry(cfg.functions))
		}
		return NewJSEvaluator(opts...), nil
	case "lua":
		if !luaEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: lua engine requires the lua_eval build tag", ErrNoEvaluator)
		}
		var opts []LuaEvaluatorOption
		if cfg.functions != nil {
			opts = append(opts, LuaWithFunctionRegistry(cfg.functions))
		}
		return NewLuaEvaluator(opts...), nil
	default:
		return nil, fmt.Errorf("dirty: unknown rule engine %q", name)
	}
}
