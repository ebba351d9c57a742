package dirty

// LuaEvaluatorOption configures the Lua engine. The engine itself
// compiles only under the lua_eval build tag; without it NewLuaEvaluator
// returns nil.
type LuaEvaluatorOption func(*luaEvaluatorConfig)

type luaEvaluatorConfig struct {
	functions *FunctionRegistry
}

// LuaWithFunctionRegistry exposes the registry's functions to rules.
func LuaWithFunctionRegistry(registry *FunctionRegistry) LuaEvaluatorOption {
	return func(cfg *luaEvaluatorConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

func applyLuaEvaluatorOptions(opts []LuaEvaluatorOption) luaEvaluatorConfig {
	cfg := luaEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
