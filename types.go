package dirty

import (
	"time"
)

// State is the tracking handler bound to one wrapped identity. Entity
// handlers implement the full surface; container handlers report dirtiness
// only and return StateError for the value-level operations.
type State interface {
	// Instance returns the raw tracked value.
	Instance() any
	// Wrapper returns the stand-in routed through the factory.
	Wrapper() any
	// IsDirty reports whether the identity differs from its baseline,
	// directly or through any tracked nested value.
	IsDirty() bool
	// OriginalState returns a copy of the baseline snapshot.
	OriginalState() (map[string]any, error)
	// DifferentialState returns the properties currently differing from
	// baseline, including transitively dirty nested properties.
	DifferentialState() (map[string]any, error)
	// Revert restores the tracked graph to its baseline.
	Revert() error
	// Refresh replaces the tracked instance and rebuilds the baseline.
	Refresh(next any) error
	// Close removes the handler's registry entries. The tracked instance
	// is left untouched.
	Close()
}

// Dirtyable is the inspection surface every entity wrapper exposes.
type Dirtyable interface {
	Dirty() (bool, error)
	DifferentialState() (map[string]any, error)
	OriginalState() (map[string]any, error)
	Revert() error
}

// Policy decides, per value, whether it should be deep-tracked as an
// entity, tracked as a container, or left alone. The property name is
// provided when the decision point is a named property and is empty
// otherwise.
type Policy interface {
	TrackEntity(property string, value any) bool
	TrackContainer(value any) bool
}

// Evaluator executes tracking-rule expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, rule string) (any, error)
	Compile(rule string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule is a reusable compiled rule program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures rule compilation.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct {
	cacheKey string
}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// WithCompileCacheKey overrides the cache key used for the compiled
// program. Engines default to the rule source.
func WithCompileCacheKey(key string) CompileOption {
	return compileOptionFunc(func(cfg *compileConfig) {
		cfg.cacheKey = key
	})
}

func applyCompileOptions(opts []CompileOption) compileConfig {
	cfg := compileConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyCompileOption(&cfg)
	}
	return cfg
}

// RuleContext carries the inputs a tracking rule can consult. Value holds
// the classification facts of the candidate, Args and Metadata are caller
// supplied, and Now defaults to the evaluation time when unset.
type RuleContext struct {
	Property string
	Phase    string
	Value    map[string]any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	if ctx.Now != nil {
		return *ctx.Now
	}
	return time.Now()
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Value == nil {
		ctx.Value = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

const (
	phaseEntity    = "entity"
	phaseContainer = "container"
)
