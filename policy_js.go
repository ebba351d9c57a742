//go:build js_eval

package dirty

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// NewJSEvaluator returns a rule engine built on goja. Each evaluation
// runs in a fresh VM so rules cannot leak state into each other.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := applyJSEvaluatorOptions(opts)
	return &jsEvaluator{cache: cfg.cache, registry: cfg.functions}
}

func jsEvaluatorAvailable() bool { return true }

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, rule string) (any, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("dirty: rule must not be empty")
	}
	if e.cache == nil {
		ctx = ctx.withDefaultNow().withDefaultMaps()
		vm := goja.New()
		if err := e.injectContext(vm, ctx); err != nil {
			return nil, wrapEngineError("js", err)
		}
		value, err := vm.RunString(wrapJSRule(rule))
		if err != nil {
			return nil, wrapEngineError("js", err)
		}
		return value.Export(), nil
	}
	compiled, err := e.Compile(rule)
	if err != nil {
		return nil, err
	}
	return compiled.Evaluate(ctx)
}

func (e *jsEvaluator) Compile(rule string, opts ...CompileOption) (CompiledRule, error) {
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
			if program, ok := cached.(*goja.Program); ok {
				return &jsCompiledRule{evaluator: e, program: program}, nil
			}
		}
	}
	program, err := goja.Compile("", wrapJSRule(rule), false)
	if err != nil {
		return nil, wrapEngineError("js", err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &jsCompiledRule{evaluator: e, program: program}, nil
}

// wrapJSRule turns a bare expression into an evaluable program body.
func wrapJSRule(rule string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", rule)
}

func (e *jsEvaluator) injectContext(vm *goja.Runtime, ctx RuleContext) error {
	bindings := map[string]any{
		"property": ctx.Property,
		"phase":    ctx.Phase,
		"value":    ctx.Value,
		"now":      ctx.timestamp(),
		"args":     ctx.Args,
		"metadata": ctx.Metadata,
	}
	for name, value := range bindings {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}
	if e.registry == nil {
		return nil
	}
	if err := vm.Set("call", func(params ...any) (any, error) {
		return callRegistryDynamic(e.registry, params...)
	}); err != nil {
		return err
	}
	for _, name := range e.registry.Names() {
		if err := vm.Set(name, func(args ...any) (any, error) {
			return e.registry.Call(name, args...)
		}); err != nil {
			return err
		}
	}
	return nil
}

type jsCompiledRule struct {
	evaluator *jsEvaluator
	program   *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	ctx = ctx.withDefaultNow().withDefaultMaps()
	vm := goja.New()
	if err := r.evaluator.injectContext(vm, ctx); err != nil {
		return nil, wrapEngineError("js", err)
	}
	value, err := vm.RunProgram(r.program)
	if err != nil {
		return nil, wrapEngineError("js", err)
	}
	return value.Export(), nil
}
