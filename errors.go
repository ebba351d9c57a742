package dirty

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEvaluator is returned when a rule policy needs an evaluator but
// none is configured and the default engine is unavailable in this build.
var ErrNoEvaluator = errors.New("dirty: evaluator not configured")

var (
	errUnknownProperty = errors.New("unknown property")
	errUnknownMember   = errors.New("unknown member")
)

// CreationError reports that a wrapper could not be prepared for a value.
type CreationError struct {
	Type string
	Err  error
}

func (e *CreationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("dirty: cannot create wrapper for %s", describeType(e.Type))
	}
	return fmt.Sprintf("dirty: cannot create wrapper for %s: %v", describeType(e.Type), e.Err)
}

func (e *CreationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AccessError reports a call that can no longer reach tracking state:
// either a routed call against an orphaned wrapper whose registry entry
// is gone, or a surface operation against a closed factory. Op is set
// for the closed-factory case, Member for the orphan case.
type AccessError struct {
	Member string
	Op     string
}

func (e *AccessError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op != "" {
		return fmt.Sprintf("dirty: %s: factory is closed", e.Op)
	}
	if e.Member == "" {
		return "dirty: orphan wrapper: unable to find the wrapper's factory entry"
	}
	return fmt.Sprintf("dirty: orphan wrapper: unable to find the wrapper's factory entry for member %q", e.Member)
}

// InvocationError reports that a delegated call into the tracked instance's
// own code raised a fault. It carries the member name and the root cause.
type InvocationError struct {
	Member string
	Err    error
}

func (e *InvocationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("dirty: intercepting member %q: %v", e.Member, e.Err)
}

func (e *InvocationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StateError reports a tracking contract violation such as refreshing an
// untracked instance or revisiting an identity while its wrapper is still
// under construction.
type StateError struct {
	Op     string
	Detail string
}

func (e *StateError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("dirty: %s", e.Detail)
	}
	return fmt.Sprintf("dirty: %s: %s", e.Op, e.Detail)
}

// PolicyError captures rule engine metadata alongside the originating error.
type PolicyError struct {
	Engine string
	Rule   string
	Phase  string
	Err    error
}

func (e *PolicyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("dirty: %s policy %s phase=%s: %v", e.Engine, describeRule(e.Rule), e.Phase, e.Err)
}

func (e *PolicyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeRule(rule string) string {
	if rule == "" {
		return "rule=<empty>"
	}
	return fmt.Sprintf("rule=%q", rule)
}

func describeType(name string) string {
	if name == "" {
		return "<nil>"
	}
	return name
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var policyErr *PolicyError
	if errors.As(err, &policyErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "dirty:") {
		return err
	}
	return fmt.Errorf("dirty: %s engine: %w", engine, err)
}

func wrapRuleError(engine, rule, phase string, err error) error {
	if err == nil {
		return nil
	}

	var policyErr *PolicyError
	if errors.As(err, &policyErr) {
		if policyErr.Engine == "" {
			policyErr.Engine = engine
		}
		if policyErr.Rule == "" {
			policyErr.Rule = rule
		}
		if policyErr.Phase == "" {
			policyErr.Phase = phase
		}
		return policyErr
	}

	return &PolicyError{
		Engine: engine,
		Rule:   rule,
		Phase:  phase,
		Err:    err,
	}
}
