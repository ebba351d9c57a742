//go:build !js_eval

package dirty

// NewJSEvaluator returns nil when the binary was built without the
// js_eval tag. Callers treat a nil evaluator as unavailable.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	applyJSEvaluatorOptions(opts)
	return nil
}

func jsEvaluatorAvailable() bool { return false }
