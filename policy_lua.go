//go:build lua_eval

package dirty

import (
	"fmt"
	"strings"
	"time"

	lua "github.com/Shopify/go-lua"
)

// NewLuaEvaluator returns a rule engine built on go-lua. Each evaluation
// runs in a fresh state. go-lua has no detached compiled chunk, so
// Compile returns a rule that re-runs the source.
func NewLuaEvaluator(opts ...LuaEvaluatorOption) Evaluator {
	cfg := applyLuaEvaluatorOptions(opts)
	return &luaEvaluator{registry: cfg.functions}
}

func luaEvaluatorAvailable() bool { return true }

type luaEvaluator struct {
	registry *FunctionRegistry
}

func (e *luaEvaluator) Evaluate(ctx RuleContext, rule string) (any, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("dirty: rule must not be empty")
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()
	l := lua.NewState()
	lua.OpenLibraries(l)
	e.injectContext(l, ctx)
	if err := lua.DoString(l, "return ("+rule+")"); err != nil {
		return nil, wrapEngineError("lua", err)
	}
	return luaResult(l, -1), nil
}

func (e *luaEvaluator) Compile(rule string, opts ...CompileOption) (CompiledRule, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("dirty: rule must not be empty")
	}
	return &luaCompiledRule{evaluator: e, rule: rule}, nil
}

func (e *luaEvaluator) injectContext(l *lua.State, ctx RuleContext) {
	l.PushString(ctx.Property)
	l.SetGlobal("property")
	l.PushString(ctx.Phase)
	l.SetGlobal("phase")
	pushLuaTable(l, ctx.Value)
	l.SetGlobal("value")
	l.PushString(ctx.timestamp().Format(time.RFC3339))
	l.SetGlobal("now")
	pushLuaTable(l, ctx.Args)
	l.SetGlobal("args")
	pushLuaTable(l, ctx.Metadata)
	l.SetGlobal("metadata")

	if e.registry == nil {
		return
	}
	l.Register("call", func(ls *lua.State) int {
		top := ls.Top()
		if top == 0 {
			lua.Errorf(ls, "dirty: call requires a function name")
			return 0
		}
		name, _ := ls.ToString(1)
		args := make([]any, 0, top-1)
		for i := 2; i <= top; i++ {
			args = append(args, luaResult(ls, i))
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			lua.Errorf(ls, "%s", err.Error())
			return 0
		}
		pushLuaValue(ls, result)
		return 1
	})
	for _, name := range e.registry.Names() {
		l.Register(name, func(ls *lua.State) int {
			top := ls.Top()
			args := make([]any, 0, top)
			for i := 1; i <= top; i++ {
				args = append(args, luaResult(ls, i))
			}
			result, err := e.registry.Call(name, args...)
			if err != nil {
				lua.Errorf(ls, "%s", err.Error())
				return 0
			}
			pushLuaValue(ls, result)
			return 1
		})
	}
}

func pushLuaTable(l *lua.State, values map[string]any) {
	l.CreateTable(0, len(values))
	for key, value := range values {
		pushLuaValue(l, value)
		l.SetField(-2, key)
	}
}

func pushLuaValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case int:
		l.PushNumber(float64(v))
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	case time.Time:
		l.PushString(v.Format(time.RFC3339))
	case map[string]any:
		pushLuaTable(l, v)
	default:
		l.PushString(fmt.Sprintf("%v", v))
	}
}

func luaResult(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		number, _ := l.ToNumber(index)
		return number
	case lua.TypeString:
		text, _ := l.ToString(index)
		return text
	default:
		return nil
	}
}

type luaCompiledRule struct {
	evaluator *luaEvaluator
	rule      string
}

func (r *luaCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.Evaluate(ctx, r.rule)
}
