package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/pipeflow/types"
)

// Evaluator evaluates step run conditions to a boolean gate decision.
type Evaluator struct{}

// NewEvaluator creates a condition evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates a condition expression against the bindings and
// returns whether the guarded step should run. The {{ }} wrapper is
// optional; an empty or whitespace-only condition is vacuously true.
//
// A reference that does not resolve makes the condition false in
// non-strict mode and fails with CONDITION_EVALUATION in strict mode.
// Malformed syntax fails in both modes.
func (e *Evaluator) Evaluate(condition string, params, stepOutputs map[string]any, strict bool) (bool, error) {
	expr := stripWrapper(condition)
	if expr == "" {
		return true, nil
	}

	n, err := parseExpression(expr)
	if err != nil {
		return false, types.Errorf(types.ErrConditionEvaluation,
			"invalid condition %q", condition).WithCause(err)
	}

	b := Bindings{Params: params, StepOutputs: stepOutputs, Strict: strict}
	value, err := n.eval(b)
	if err != nil {
		var undefErr *undefinedRefError
		if errors.As(err, &undefErr) {
			if strict {
				return false, types.Errorf(types.ErrConditionEvaluation,
					"unresolvable reference %q in condition %q", undefErr.path, condition)
			}
			return false, nil
		}
		return false, types.Errorf(types.ErrConditionEvaluation,
			"evaluate condition %q", condition).WithCause(err)
	}
	return truthy(value), nil
}

// Validate statically checks a condition: the syntax must parse and
// every reference must point at a declared parameter or a known step.
// It returns one message per problem found, or nil when clean.
func (e *Evaluator) Validate(condition string, availableParams, availableSteps map[string]bool) []string {
	expr := stripWrapper(condition)
	if expr == "" {
		return nil
	}

	n, err := parseExpression(expr)
	if err != nil {
		return []string{fmt.Sprintf("invalid condition syntax: %v", err)}
	}

	var refs []string
	collectRefs(n, &refs)

	var problems []string
	for _, ref := range refs {
		parts := strings.Split(ref, ".")
		switch parts[0] {
		case "params":
			if len(parts) < 2 || !availableParams[parts[1]] {
				problems = append(problems, fmt.Sprintf("condition references undeclared parameter %q", ref))
			}
		case "steps":
			if len(parts) < 2 || !availableSteps[parts[1]] {
				problems = append(problems, fmt.Sprintf("condition references unknown step %q", ref))
			}
		}
	}
	return problems
}

// stripWrapper removes one optional level of {{ }} around a condition.
func stripWrapper(condition string) string {
	s := strings.TrimSpace(condition)
	if strings.HasPrefix(s, openDelim) && strings.HasSuffix(s, closeDelim) {
		s = strings.TrimSpace(s[len(openDelim) : len(s)-len(closeDelim)])
	}
	return s
}
