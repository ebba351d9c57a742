package dirty

import (
	"fmt"
	"strings"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// CELEvaluatorOption configures the CEL engine.
type CELEvaluatorOption func(*celEvaluatorConfig)

type celEvaluatorConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// CELWithProgramCache reuses compiled programs across evaluations.
func CELWithProgramCache(cache ProgramCache) CELEvaluatorOption {
	return func(cfg *celEvaluatorConfig) {
		cfg.cache = cache
	}
}

// CELWithFunctionRegistry exposes the registry through the call() overloads.
func CELWithFunctionRegistry(registry *FunctionRegistry) CELEvaluatorOption {
	return func(cfg *celEvaluatorConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// NewCELEvaluator returns a rule engine built on cel-go. Rules are always
// compiled; configure a ProgramCache to avoid recompiling hot rules.
func NewCELEvaluator(opts ...CELEvaluatorOption) Evaluator {
	cfg := celEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &celEvaluator{cache: cfg.cache, registry: cfg.functions}
}

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func (e *celEvaluator) Evaluate(ctx RuleContext, rule string) (any, error) {
	compiled, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(ctx)
}

func (e *celEvaluator) Compile(rule string, opts ...CompileOption) (CompiledRule, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("dirty: rule must not be empty")
	}
	cfg := applyCompileOptions(opts)
	key := cfg.cacheKey
	if key == "" {
		key = rule
	}
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(celgo.Program); ok {
				return &celCompiledRule{program: program}, nil
			}
		}
	}
	program, err := e.buildProgram(rule)
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &celCompiledRule{program: program}, nil
}

func (e *celEvaluator) buildProgram(rule string) (celgo.Program, error) {
	env, err := e.buildEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

func (e *celEvaluator) buildEnv() (*celgo.Env, error) {
	declarations := []celgo.EnvOption{
		celgo.Variable("property", celgo.StringType),
		celgo.Variable("phase", celgo.StringType),
		celgo.Variable("value", celgo.DynType),
		celgo.Variable("now", celgo.TimestampType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
	}
	if e.registry != nil {
		declarations = append(declarations, celgo.Function("call",
			celgo.Overload("call_name", []*celgo.Type{celgo.StringType}, celgo.DynType,
				celgo.FunctionBinding(e.dispatchCall)),
			celgo.Overload("call_name_args", []*celgo.Type{celgo.StringType, celgo.ListType(celgo.DynType)}, celgo.DynType,
				celgo.FunctionBinding(e.dispatchCall)),
		))
	}
	return celgo.NewEnv(declarations...)
}

func (e *celEvaluator) dispatchCall(values ...ref.Val) ref.Val {
	if len(values) == 0 {
		return types.NewErr("dirty: call requires a function name")
	}
	name, ok := values[0].Value().(string)
	if !ok {
		return types.NewErr("dirty: call name must be a string")
	}
	var args []any
	if len(values) > 1 {
		lister, ok := values[1].(traits.Lister)
		if !ok {
			return types.NewErr("dirty: call arguments must be a list")
		}
		it := lister.Iterator()
		for it.HasNext() == types.True {
			args = append(args, it.Next().Value())
		}
	}
	result, err := e.registry.Call(name, args...)
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if result == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(result)
}

type celCompiledRule struct {
	program celgo.Program
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaultNow().withDefaultMaps()
	out, _, err := r.program.Eval(map[string]any{
		"property": ctx.Property,
		"phase":    ctx.Phase,
		"value":    ctx.Value,
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	})
	if err != nil {
		return nil, wrapEngineError("cel", err)
	}
	return out.Value(), nil
}
