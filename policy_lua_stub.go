//go:build !lua_eval

package dirty

// NewLuaEvaluator returns nil when the binary was built without the
// lua_eval tag. Callers treat a nil evaluator as unavailable.
func NewLuaEvaluator(opts ...LuaEvaluatorOption) Evaluator {
	applyLuaEvaluatorOptions(opts)
	return nil
}

func luaEvaluatorAvailable() bool { return false }
