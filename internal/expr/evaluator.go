package expr

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// Env holds the variables visible to an expression, keyed by name.
// Rule environments map canonical field names to parsed values.
type Env map[string]interface{}

// Eval evaluates a compiled expression against the given environment.
func Eval(compiled *CompiledExpr, env Env) (interface{}, error) {
	if compiled == nil || compiled.program == nil {
		return nil, fmt.Errorf("nil compiled expression")
	}

	result, err := expr.Run(compiled.program, map[string]interface{}(env))
	if err != nil {
		return nil, fmt.Errorf("expression eval error for %q: %w", compiled.Source, err)
	}
	return result, nil
}

// EvalBool evaluates a compiled expression and returns a boolean result.
// Returns an error if the expression does not evaluate to a boolean.
func EvalBool(compiled *CompiledExpr, env Env) (bool, error) {
	result, err := Eval(compiled, env)
	if err != nil {
		return false, err
	}

	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, expected bool", compiled.Source, result)
	}
	return b, nil
}

// EvalWithEnv compiles and evaluates an expression against a flat
// environment map in one step.
func EvalWithEnv(source string, env Env) (interface{}, error) {
	result, err := expr.Eval(source, map[string]interface{}(env))
	if err != nil {
		return nil, fmt.Errorf("expression eval error for %q: %w", source, err)
	}
	return result, nil
}
