package dirty

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures the expr engine.
type ExprEvaluatorOption func(*exprEvaluatorConfig)

type exprEvaluatorConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// ExprWithProgramCache reuses compiled programs across evaluations.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(cfg *exprEvaluatorConfig) {
		cfg.cache = cache
	}
}

// ExprWithFunctionRegistry exposes the registry's functions to rules. The
// registry is cloned, later registrations on the original do not leak in.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(cfg *exprEvaluatorConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// NewExprEvaluator returns the default rule engine, built on expr-lang.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	cfg := exprEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &exprEvaluator{cache: cfg.cache, registry: cfg.functions}
}

type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func (e *exprEvaluator) Evaluate(ctx RuleContext, rule string) (any, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("dirty: rule must not be empty")
	}
	if e.cache == nil {
		ctx = ctx.withDefaultNow().withDefaultMaps()
		result, err := exprlang.Eval(rule, e.environment(ctx))
		if err != nil {
			return nil, wrapEngineError("expr", err)
		}
		return result, nil
	}
	compiled, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(ctx)
}

func (e *exprEvaluator) Compile(rule string, opts ...CompileOption) (CompiledRule, error) {
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
			if program, ok := cached.(*exprvm.Program); ok {
				return &exprCompiledRule{evaluator: e, program: program}, nil
			}
		}
	}
	program, err := exprlang.Compile(rule, e.compileOptions()...)
	if err != nil {
		return nil, wrapEngineError("expr", err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &exprCompiledRule{evaluator: e, program: program}, nil
}

func (e *exprEvaluator) compileOptions() []exprlang.Option {
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	if e.registry != nil {
		options = append(options, exprlang.Function("call", func(params ...any) (any, error) {
			return callRegistryDynamic(e.registry, params...)
		}))
		for _, name := range e.registry.Names() {
			options = append(options, exprlang.Function(name, func(params ...any) (any, error) {
				return e.registry.Call(name, params...)
			}))
		}
	}
	return options
}

func (e *exprEvaluator) environment(ctx RuleContext) map[string]any {
	env := map[string]any{
		"property": ctx.Property,
		"phase":    ctx.Phase,
		"value":    ctx.Value,
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
	if e.registry != nil {
		env["call"] = func(params ...any) (any, error) {
			return callRegistryDynamic(e.registry, params...)
		}
		for _, name := range e.registry.Names() {
			env[name] = func(args ...any) (any, error) {
				return e.registry.Call(name, args...)
			}
		}
	}
	return env
}

// callRegistryDynamic dispatches call("name", args...) style invocations.
func callRegistryDynamic(registry *FunctionRegistry, params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("dirty: call requires a function name")
	}
	name, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("dirty: call name must be a string, got %T", params[0])
	}
	return registry.Call(name, params[1:]...)
}

type exprCompiledRule struct {
	evaluator *exprEvaluator
	program   *exprvm.Program
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaultNow().withDefaultMaps()
	result, err := exprlang.Run(r.program, r.evaluator.environment(ctx))
	if err != nil {
		return nil, wrapEngineError("expr", err)
	}
	return result, nil
}
