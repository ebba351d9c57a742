package dirty

import (
	"fmt"
	"time"
)

// RulePolicyOption configures a RulePolicy.
type RulePolicyOption func(*rulePolicyConfig)

type rulePolicyConfig struct {
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	entity    string
	container string
	fallback  Policy
	logger    TraceLogger
	args      map[string]any
	metadata  map[string]any
	now       func() time.Time
}

// RuleWithEvaluator selects the rule engine. Without it the policy uses
// the expr engine.
func RuleWithEvaluator(evaluator Evaluator) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.evaluator = evaluator
	}
}

// RuleWithProgramCache is used when the policy constructs its own engine.
func RuleWithProgramCache(cache ProgramCache) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.cache = cache
	}
}

// RuleWithFunctionRegistry is used when the policy constructs its own
// engine. The registry is cloned.
func RuleWithFunctionRegistry(registry *FunctionRegistry) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		if registry != nil {
			cfg.functions = registry.Clone()
		}
	}
}

// RuleWithEntityRule sets the expression deciding entity tracking.
func RuleWithEntityRule(rule string) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.entity = rule
	}
}

// RuleWithContainerRule sets the expression deciding container tracking.
func RuleWithContainerRule(rule string) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.container = rule
	}
}

// RuleWithFallback sets the policy consulted when a rule is missing or
// its evaluation fails. Defaults to DefaultPolicy.
func RuleWithFallback(policy Policy) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.fallback = policy
	}
}

// RuleWithTraceLogger receives one event per rule evaluation.
func RuleWithTraceLogger(logger TraceLogger) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.logger = logger
	}
}

// RuleWithArgs passes caller data into every rule context.
func RuleWithArgs(args map[string]any) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.args = args
	}
}

// RuleWithMetadata passes caller metadata into every rule context.
func RuleWithMetadata(metadata map[string]any) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.metadata = metadata
	}
}

// RuleWithClock overrides the rule context timestamp source.
func RuleWithClock(clock func() time.Time) RulePolicyOption {
	return func(cfg *rulePolicyConfig) {
		cfg.now = clock
	}
}

// RulePolicy decides tracking by evaluating rule expressions against the
// candidate value's classification facts. Rules are compiled once at
// construction; evaluation failures fall back to the fallback policy's
// verdict instead of blocking tracking.
type RulePolicy struct {
	evaluator     Evaluator
	engine        string
	entityRule    string
	containerRule string
	entity        CompiledRule
	container     CompiledRule
	fallback      Policy
	logger        TraceLogger
	args          map[string]any
	metadata      map[string]any
	now           func() time.Time
}

// NewRulePolicy compiles the configured rules. A rule that fails to
// compile or an unavailable engine fails construction.
func NewRulePolicy(opts ...RulePolicyOption) (*RulePolicy, error) {
	cfg := rulePolicyConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	evaluator := cfg.evaluator
	if evaluator == nil {
		var exprOpts []ExprEvaluatorOption
		if cfg.cache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cfg.cache))
		}
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		evaluator = NewExprEvaluator(exprOpts...)
	}
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}

	policy := &RulePolicy{
		evaluator:     evaluator,
		engine:        evaluatorEngineName(evaluator),
		entityRule:    cfg.entity,
		containerRule: cfg.container,
		fallback:      cfg.fallback,
		logger:        cfg.logger,
		args:          cfg.args,
		metadata:      cfg.metadata,
		now:           cfg.now,
	}
	if policy.fallback == nil {
		policy.fallback = DefaultPolicy{}
	}
	if policy.logger == nil {
		policy.logger = nopTraceLogger{}
	}

	if cfg.entity != "" {
		compiled, err := evaluator.Compile(cfg.entity)
		if err != nil {
			return nil, wrapRuleError(policy.engine, cfg.entity, phaseEntity, err)
		}
		policy.entity = compiled
	}
	if cfg.container != "" {
		compiled, err := evaluator.Compile(cfg.container)
		if err != nil {
			return nil, wrapRuleError(policy.engine, cfg.container, phaseContainer, err)
		}
		policy.container = compiled
	}
	return policy, nil
}

// Engine reports the rule engine name.
func (p *RulePolicy) Engine() string {
	return p.engine
}

func (p *RulePolicy) TrackEntity(property string, value any) bool {
	return p.decide(phaseEntity, property, p.entity, p.entityRule, value, func(v any) bool {
		return p.fallback.TrackEntity(property, v)
	})
}

func (p *RulePolicy) TrackContainer(value any) bool {
	return p.decide(phaseContainer, "", p.container, p.containerRule, value, p.fallback.TrackContainer)
}

func (p *RulePolicy) decide(phase, property string, rule CompiledRule, source string, value any, terminal func(any) bool) bool {
	if rule == nil {
		return terminal(value)
	}

	ctx := RuleContext{
		Property: property,
		Phase:    phase,
		Value:    valueFacts(value),
		Args:     p.args,
		Metadata: p.metadata,
	}
	if p.now != nil {
		now := p.now()
		ctx.Now = &now
	}

	start := time.Now()
	result, err := rule.Evaluate(ctx)
	duration := time.Since(start)

	verdict := false
	if err == nil {
		decided, convErr := coerceVerdict(result)
		verdict = decided
		err = convErr
	}
	if err != nil {
		err = wrapRuleError(p.engine, source, phase, err)
	}
	p.logger.Trace(TraceEvent{
		Op:       "policy",
		Property: property,
		Engine:   p.engine,
		Rule:     source,
		Phase:    phase,
		Duration: duration,
		Err:      err,
	})
	if err != nil {
		return terminal(value)
	}
	return verdict
}

func coerceVerdict(result any) (bool, error) {
	switch v := result.(type) {
	case bool:
		return v, nil
	case nil:
		return false, fmt.Errorf("rule returned no result")
	default:
		return false, fmt.Errorf("rule returned %T, want bool", result)
	}
}

func evaluatorEngineName(evaluator Evaluator) string {
	switch fmt.Sprintf("%T", evaluator) {
	case "*dirty.exprEvaluator":
		return "expr"
	case "*dirty.celEvaluator":
		return "cel"
	case "*dirty.jsEvaluator":
		return "js"
	case "*dirty.luaEvaluator":
		return "lua"
	case "<nil>":
		return "unknown"
	default:
		return "custom"
	}
}
