package validation

import (
	"fmt"
	"time"

	"github.com/szaher/contractbot/internal/expr"
	"github.com/szaher/contractbot/internal/field"
)

// Severity levels for business rules.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// RuleDef describes a cross-field business rule. Field names the value that
// is rejected when an error-severity rule fails.
type RuleDef struct {
	Name       string     `json:"name" yaml:"name"`
	Expression string     `json:"expression" yaml:"expression"`
	Field      field.Name `json:"field" yaml:"field"`
	Severity   string     `json:"severity" yaml:"severity"` // "error" or "warning"
	Message    string     `json:"message" yaml:"message"`
}

// RuleResult is the outcome of evaluating a single rule.
type RuleResult struct {
	RuleName   string     `json:"rule_name"`
	Field      field.Name `json:"field,omitempty"`
	Passed     bool       `json:"passed"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message,omitempty"`
	Expression string     `json:"expression"`
	Error      string     `json:"error,omitempty"` // Set if expression eval failed
}

// ValidationResult is the outcome of evaluating all rules.
type ValidationResult struct {
	Passed       bool         `json:"passed"`
	RulesChecked int          `json:"rules_checked"`
	Results      []RuleResult `json:"results"`
	Warnings     []string     `json:"warnings,omitempty"`
	Errors       []string     `json:"errors,omitempty"`
}

// Rejected returns the fields named by failed error-severity rules, in rule order.
func (r *ValidationResult) Rejected() []field.Name {
	var out []field.Name
	seen := make(map[field.Name]bool)
	for _, rr := range r.Results {
		if rr.Passed || rr.Severity != SeverityError || rr.Field == "" || seen[rr.Field] {
			continue
		}
		seen[rr.Field] = true
		out = append(out, rr.Field)
	}
	return out
}

type compiledRule struct {
	def     RuleDef
	program *expr.CompiledExpr
}

// RuleSet evaluates compiled business rules against collected values.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles rules against the typed environment of fields.
// A rule that does not compile is a programming error in the flow definition.
func NewRuleSet(fields []field.Name, rules []RuleDef) (*RuleSet, error) {
	proto := make(expr.Env, len(fields))
	for _, f := range fields {
		proto[string(f)] = zeroValue(f)
	}

	rs := &RuleSet{}
	for _, r := range rules {
		if r.Severity == "" {
			r.Severity = SeverityError
		}
		if r.Field != "" && !r.Field.Valid() {
			return nil, fmt.Errorf("rule %q: unknown field %q", r.Name, r.Field)
		}
		compiled, err := expr.Compile(r.Expression, proto)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		rs.rules = append(rs.rules, compiledRule{def: r, program: compiled})
	}
	return rs, nil
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Defs returns the rule definitions in evaluation order.
func (rs *RuleSet) Defs() []RuleDef {
	if rs == nil {
		return nil
	}
	out := make([]RuleDef, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.def
	}
	return out
}

// Validate runs all rules against the collected values.
func (rs *RuleSet) Validate(collected map[field.Name]string) *ValidationResult {
	result := &ValidationResult{
		Passed:       true,
		RulesChecked: rs.Len(),
	}
	if rs == nil {
		return result
	}

	env := Env(collected)
	for _, rule := range rs.rules {
		rr := evaluateRule(rule, env)
		result.Results = append(result.Results, rr)

		if !rr.Passed {
			switch rule.def.Severity {
			case SeverityError:
				result.Passed = false
				result.Errors = append(result.Errors, rr.Message)
			case SeverityWarning:
				result.Warnings = append(result.Warnings, rr.Message)
			}
		}
	}

	return result
}

func evaluateRule(rule compiledRule, env expr.Env) RuleResult {
	rr := RuleResult{
		RuleName:   rule.def.Name,
		Field:      rule.def.Field,
		Severity:   rule.def.Severity,
		Expression: rule.def.Expression,
	}

	passed, err := expr.EvalBool(rule.program, env)
	if err != nil {
		rr.Passed = false
		rr.Error = err.Error()
		rr.Message = fmt.Sprintf("Rule %q: expression evaluation failed: %v", rule.def.Name, err)
		return rr
	}

	rr.Passed = passed
	if !passed {
		rr.Message = rule.def.Message
		if rr.Message == "" {
			rr.Message = fmt.Sprintf("Rule %q failed", rule.def.Name)
		}
	}

	return rr
}

// Env converts collected string values into typed expression variables:
// dates become time.Time, yes/no fields become bool and everything else
// stays a string. Unparseable values keep their zero value.
func Env(collected map[field.Name]string) expr.Env {
	env := make(expr.Env, len(collected))
	for _, f := range field.All() {
		env[string(f)] = zeroValue(f)
	}
	for f, v := range collected {
		switch f.Kind() {
		case field.KindDate:
			if t, err := ParseDate(v); err == nil {
				env[string(f)] = t
			}
		case field.KindYesNo:
			b, _ := ParseYesNo(v)
			env[string(f)] = b
		default:
			env[string(f)] = v
		}
	}
	return env
}

func zeroValue(f field.Name) interface{} {
	switch f.Kind() {
	case field.KindDate:
		return time.Time{}
	case field.KindYesNo:
		return false
	default:
		return ""
	}
}
